// internal/app/delivery_service.go
package app

import (
	"context"
	"fmt"
	"time"

	"film_department_bot/internal/domain/delivery"
	"film_department_bot/internal/domain/message"

	"github.com/sirupsen/logrus"
)

var ErrRetriesExhausted = fmt.Errorf("delivery retries exhausted")
var ErrRateLimitTooLong = fmt.Errorf("rate limit wait exceeds the configured maximum")

// ErrorReporter forwards failures to an external error tracker.
type ErrorReporter interface {
	CaptureError(err error, tags map[string]string)
}

type noopReporter struct{}

func (noopReporter) CaptureError(error, map[string]string) {}

// RetryPolicy bounds how hard DeliveryService tries before dropping a reply.
type RetryPolicy struct {
	MaxAttempts      int
	BaseBackoff      time.Duration
	MaxBackoff       time.Duration
	MaxRateLimitWait time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      3,
		BaseBackoff:      500 * time.Millisecond,
		MaxBackoff:       10 * time.Second,
		MaxRateLimitWait: time.Minute,
	}
}

// backoff returns the wait after the given failed attempt (1-based).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return d
}

// DeliveryService is the caller of the Sink: it retries transient failures with
// exponential backoff, honours retry_after for rate limits and drops the reply on
// permanent rejection or exhausted retries.
type DeliveryService struct {
	sink     delivery.Sink
	policy   RetryPolicy
	reporter ErrorReporter
	logger   *logrus.Entry
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewDeliveryService(sink delivery.Sink, policy RetryPolicy, reporter ErrorReporter, logger *logrus.Entry) *DeliveryService {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if reporter == nil {
		reporter = noopReporter{}
	}
	return &DeliveryService{
		sink:     sink,
		policy:   policy,
		reporter: reporter,
		logger:   logger,
		sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deliver sends reply, retrying per policy. A returned error means the reply was dropped.
func (s *DeliveryService) Deliver(ctx context.Context, reply message.Reply) (delivery.Ack, error) {
	logCtx := s.logger.WithField("chat_id", reply.ChatID)

	var lastErr error
	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		ack, err := s.sink.Deliver(ctx, reply)
		if err == nil {
			if attempt > 1 {
				logCtx.WithField("attempt", attempt).Info("Reply delivered after retry")
			}
			return ack, nil
		}
		lastErr = err

		kind := delivery.KindOf(err)
		attemptLog := logCtx.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"kind":    kind.String(),
		})

		var wait time.Duration
		switch kind {
		case delivery.KindTransient:
			wait = s.policy.backoff(attempt)
		case delivery.KindRateLimited:
			wait = s.policy.backoff(attempt)
			if retryAfter, ok := delivery.RetryAfter(err); ok && retryAfter > wait {
				wait = retryAfter
			}
			if s.policy.MaxRateLimitWait > 0 && wait > s.policy.MaxRateLimitWait {
				attemptLog.WithField("wait", wait).Error("Rate limit wait too long, dropping reply")
				dropErr := fmt.Errorf("%w (%s): %w", ErrRateLimitTooLong, wait, err)
				s.report(dropErr, reply, kind)
				return delivery.Ack{}, dropErr
			}
		default:
			attemptLog.Warn("Reply rejected permanently, dropping")
			s.report(err, reply, kind)
			return delivery.Ack{}, err
		}

		if attempt == s.policy.MaxAttempts {
			break
		}
		attemptLog.WithField("wait", wait).Warn("Reply delivery failed, retrying")
		if err := s.sleep(ctx, wait); err != nil {
			logCtx.WithError(err).Warn("Delivery retry cancelled, dropping reply")
			return delivery.Ack{}, fmt.Errorf("delivery cancelled: %w", lastErr)
		}
	}

	dropErr := fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, s.policy.MaxAttempts, lastErr)
	logCtx.WithError(dropErr).Error("Dropping reply")
	s.report(dropErr, reply, delivery.KindOf(lastErr))
	return delivery.Ack{}, dropErr
}

func (s *DeliveryService) report(err error, reply message.Reply, kind delivery.Kind) {
	s.reporter.CaptureError(err, map[string]string{
		"component": "delivery",
		"kind":      kind.String(),
		"chat_id":   fmt.Sprintf("%d", reply.ChatID),
	})
}
