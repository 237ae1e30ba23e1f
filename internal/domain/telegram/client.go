package telegram

import (
	"context"
	"time"

	"film_department_bot/internal/domain/message"
)

// UpdateSource pulls updates from the platform with long-poll semantics: the call
// blocks until at least one update newer than offset exists or timeout elapses.
// offset is the first update ID the caller has not yet acknowledged.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]message.Update, error)
}

// WebhookInfo is the platform's view of the registered webhook.
type WebhookInfo struct {
	URL                string
	PendingUpdateCount int
	LastErrorMessage   string
	LastErrorAt        time.Time
}

// WebhookRegistrar manages the webhook target on the platform side. Errors follow
// the delivery error taxonomy (transient, rate limited, permanent).
type WebhookRegistrar interface {
	SetWebhook(ctx context.Context, url, secretToken string) error
	WebhookInfo(ctx context.Context) (WebhookInfo, error)
	RemoveWebhook(ctx context.Context) error
}
