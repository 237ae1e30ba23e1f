// internal/domain/delivery/errors.go
package delivery

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a delivery failure by what the caller may do about it.
type Kind int

const (
	KindUnknown     Kind = iota
	KindTransient        // connection reset, timeout, platform 5xx: retry with backoff
	KindRateLimited      // platform asked us to slow down: wait RetryAfter first
	KindPermanent        // chat not found, bot blocked, bad request: never retry
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	case KindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Error is returned by Sink implementations and by the webhook registration call.
type Error struct {
	Kind       Kind
	RetryAfter time.Duration // Only meaningful for KindRateLimited
	Err        error
}

func (e *Error) Error() string {
	if e.Kind == KindRateLimited {
		return fmt.Sprintf("%s delivery error (retry after %s): %v", e.Kind, e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("%s delivery error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func Transient(err error) error {
	return &Error{Kind: KindTransient, Err: err}
}

func RateLimited(retryAfter time.Duration, err error) error {
	return &Error{Kind: KindRateLimited, RetryAfter: retryAfter, Err: err}
}

func Permanent(err error) error {
	return &Error{Kind: KindPermanent, Err: err}
}

// KindOf returns the classification of err. Errors that were not classified by a
// Sink are treated as permanent so they are never retried blindly.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindPermanent
}

// RetryAfter returns the wait requested by a rate-limited error.
func RetryAfter(err error) (time.Duration, bool) {
	var de *Error
	if errors.As(err, &de) && de.Kind == KindRateLimited {
		return de.RetryAfter, true
	}
	return 0, false
}
