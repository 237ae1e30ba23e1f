package sentryutil

import (
	"time"

	"film_department_bot/internal/infra/config"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

// Reporter forwards dropped replies and handler panics to Sentry.
// With an empty DSN the SDK is initialised as a no-op and nothing leaves the process.
type Reporter struct {
	enabled bool
}

func Init(cfg *config.AppConfig, logger *logrus.Entry) *Reporter {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.Environment,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			// Chat participants are not our users; never ship their identity.
			event.User = sentry.User{}
			return event
		},
	})
	if err != nil {
		logger.WithError(err).Warn("Sentry init failed, error tracking disabled")
		return &Reporter{}
	}
	if cfg.SentryDSN == "" {
		logger.Info("SENTRY_DSN empty, error tracking disabled")
		return &Reporter{}
	}
	logger.Info("Sentry initialized")
	return &Reporter{enabled: true}
}

func (r *Reporter) Enabled() bool { return r != nil && r.enabled }

func (r *Reporter) CaptureError(err error, tags map[string]string) {
	if err == nil || !r.Enabled() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

func (r *Reporter) Flush() {
	if r.Enabled() {
		sentry.Flush(2 * time.Second)
	}
}
