package scheduler

import (
	"context"
	"fmt"
	"time"

	"film_department_bot/internal/domain/telegram"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Pruner trims old journal rows. The Postgres journal implements it.
type Pruner interface {
	Prune(ctx context.Context, keep int64) (int64, error)
}

type Config struct {
	WebhookCheckSpec string // Empty disables the webhook check
	WebhookURL       string
	SecretToken      string

	PruneSpec string // Empty disables pruning
	PruneKeep int64
}

// MaintenanceScheduler runs periodic housekeeping: it re-registers the webhook
// when the platform's view drifted from ours and trims the journal.
type MaintenanceScheduler struct {
	cronEngine *cron.Cron
	cfg        Config
	registrar  telegram.WebhookRegistrar
	pruner     Pruner
	logger     *logrus.Entry
}

// NewMaintenanceScheduler builds the scheduler. registrar and pruner may be nil,
// which disables the matching job.
func NewMaintenanceScheduler(cfg Config, registrar telegram.WebhookRegistrar, pruner Pruner, logger *logrus.Entry) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		cronEngine: cron.New(cron.WithLocation(time.UTC)),
		cfg:        cfg,
		registrar:  registrar,
		pruner:     pruner,
		logger:     logger,
	}
}

// Start registers the enabled jobs and starts the cron engine. It returns the
// number of jobs scheduled.
func (s *MaintenanceScheduler) Start() (int, error) {
	jobs := 0

	if s.cfg.WebhookCheckSpec != "" && s.registrar != nil {
		_, err := s.cronEngine.AddFunc(s.cfg.WebhookCheckSpec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			s.CheckWebhook(ctx)
		})
		if err != nil {
			return 0, fmt.Errorf("could not add webhook check job: %w", err)
		}
		jobs++
	}

	if s.cfg.PruneSpec != "" && s.pruner != nil {
		_, err := s.cronEngine.AddFunc(s.cfg.PruneSpec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			s.PruneJournal(ctx)
		})
		if err != nil {
			return 0, fmt.Errorf("could not add journal prune job: %w", err)
		}
		jobs++
	}

	s.cronEngine.Start()
	s.logger.WithField("jobs", jobs).Info("Maintenance scheduler started")
	return jobs, nil
}

// CheckWebhook compares the registered webhook with the configured one and
// re-registers it on drift. It reports whether a re-registration happened.
func (s *MaintenanceScheduler) CheckWebhook(ctx context.Context) bool {
	info, err := s.registrar.WebhookInfo(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Could not fetch webhook info")
		return false
	}

	logCtx := s.logger.WithField("pending_updates", info.PendingUpdateCount)
	if info.LastErrorMessage != "" {
		logCtx = logCtx.WithFields(logrus.Fields{
			"last_error":    info.LastErrorMessage,
			"last_error_at": info.LastErrorAt,
		})
		logCtx.Warn("Platform reports webhook delivery errors")
	}

	if info.URL == s.cfg.WebhookURL {
		logCtx.Debug("Webhook registration is current")
		return false
	}

	logCtx.WithField("registered_url", info.URL).Warn("Webhook URL drifted, re-registering")
	if err := s.registrar.SetWebhook(ctx, s.cfg.WebhookURL, s.cfg.SecretToken); err != nil {
		logCtx.WithError(err).Error("Webhook re-registration failed")
		return false
	}
	logCtx.Info("Webhook re-registered")
	return true
}

func (s *MaintenanceScheduler) PruneJournal(ctx context.Context) {
	n, err := s.pruner.Prune(ctx, s.cfg.PruneKeep)
	if err != nil {
		s.logger.WithError(err).Warn("Journal pruning failed")
		return
	}
	s.logger.WithField("removed", n).Info("Journal pruned")
}

// Stop stops scheduling and waits for running jobs.
func (s *MaintenanceScheduler) Stop() {
	s.logger.Info("Stopping maintenance scheduler...")
	ctx := s.cronEngine.Stop()
	<-ctx.Done()
	s.logger.Info("Maintenance scheduler stopped")
}
