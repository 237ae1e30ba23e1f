package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"film_department_bot/internal/app"
	"film_department_bot/internal/domain/command"
	"film_department_bot/internal/domain/journal"
	domainTelegram "film_department_bot/internal/domain/telegram"
	"film_department_bot/internal/infra/cache"
	"film_department_bot/internal/infra/config"
	idb "film_department_bot/internal/infra/database"
	"film_department_bot/internal/infra/logger"
	"film_department_bot/internal/infra/memory"
	"film_department_bot/internal/infra/polling"
	"film_department_bot/internal/infra/scheduler"
	sentryutil "film_department_bot/internal/infra/sentry"
	"film_department_bot/internal/infra/telegram"
	"film_department_bot/internal/infra/webhook"

	"github.com/sirupsen/logrus"
)

// Extra time the HTTP client allows on top of the long-poll wait.
const pollClientSlack = 15 * time.Second

func main() {
	fmt.Println("Film Department Bot starting...")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Could not load application configuration: %v\n", err)
		os.Exit(2)
	}

	logger.Init(cfg)
	mainLogger := logger.Component("main")
	mainLogger.WithFields(logrus.Fields{
		"mode":        cfg.Mode,
		"environment": cfg.Environment,
		"journal":     cfg.JournalBackend,
	}).Info("Configuration loaded")

	reporter := sentryutil.Init(cfg, logger.Component("sentry"))
	defer reporter.Flush()

	if err := run(cfg, reporter, mainLogger); err != nil {
		mainLogger.WithError(err).Error("Bot stopped with an error")
		reporter.CaptureError(err, map[string]string{"component": "main"})
		reporter.Flush()
		os.Exit(exitCode(err))
	}
	mainLogger.Info("Application shut down gracefully")
}

// exitCode is 2 for setup mistakes an operator has to fix (configuration, a
// broken command table) and 1 for runtime failures.
func exitCode(err error) int {
	switch {
	case errors.Is(err, config.ErrConfiguration),
		errors.Is(err, command.ErrDuplicateCommand),
		errors.Is(err, command.ErrInvalidCommand):
		return 2
	default:
		return 1
	}
}

func run(cfg *config.AppConfig, reporter *sentryutil.Reporter, mainLogger *logrus.Entry) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Registry: filled once, sealed before any update arrives.
	registry := command.NewRegistry()
	catalog := telegram.DefaultCatalog()
	catalog.Prefix = cfg.CommandPrefix
	if err := telegram.RegisterBotCommands(registry, catalog, logger.Component("handlers")); err != nil {
		return err
	}
	registry.Seal()

	bot, err := telegram.NewBot(telegram.BotOptions{
		Token:    cfg.TelegramToken,
		MaxConns: cfg.MaxOutboundConns,
		Timeout:  cfg.PollTimeout + pollClientSlack,
	}, logger.Component("telebot"))
	if err != nil {
		return err
	}
	adapter := telegram.NewTelebotAdapter(bot)
	mainLogger.WithField("username", adapter.Username()).Info("Telegram bot authorized")

	if cfg.PublishCommands {
		n, err := adapter.PublishCommands(registry.Entries())
		if err != nil {
			mainLogger.WithError(err).Warn("Could not publish command menu")
		} else {
			mainLogger.WithField("count", n).Info("Command menu published")
		}
	}

	store, pruner, err := openJournal(ctx, cfg, adapter.Username())
	if err != nil {
		return err
	}
	defer store.Close()

	router := app.NewRouter(registry, cfg.CommandPrefix, adapter.Username())
	policy := app.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.DeliveryMaxAttempts
	policy.BaseBackoff = cfg.DeliveryBaseBackoff
	deliverer := app.NewDeliveryService(adapter, policy, reporter, logger.Component("delivery"))
	processor := app.NewProcessor(router, deliverer, store, app.ProcessorConfig{
		Prefix:        cfg.CommandPrefix,
		UnknownPolicy: app.UnknownCommandPolicy(cfg.UnknownCommandPolicy),
		UnknownReply:  cfg.UnknownCommandReply,
	}, reporter, logger.Component("processor"))

	schedCfg := scheduler.Config{PruneSpec: cfg.JournalPruneCron, PruneKeep: int64(cfg.JournalPruneKeep)}

	switch cfg.Mode {
	case config.ModeWebhook:
		srv := webhook.New(webhook.Config{
			Addr:        cfg.ListenAddr(),
			WebhookURL:  cfg.WebhookURL(),
			SecretPath:  cfg.WebhookSecretPath,
			SecretToken: cfg.WebhookSecretToken,
			GracePeriod: cfg.ShutdownGracePeriod,
		}, processor, adapter, logger.Component("webhook"))

		if err := srv.Register(ctx); err != nil {
			return err
		}

		schedCfg.WebhookCheckSpec = cfg.WebhookCheckCron
		schedCfg.WebhookURL = cfg.WebhookURL()
		schedCfg.SecretToken = cfg.WebhookSecretToken
		maintenance, err := startMaintenance(schedCfg, adapter, pruner)
		if err != nil {
			return err
		}
		defer maintenance.Stop()

		return srv.Run(ctx)

	default:
		// getUpdates is refused while a webhook is set.
		if err := adapter.RemoveWebhook(ctx); err != nil {
			return fmt.Errorf("could not remove webhook before polling: %w", err)
		}

		maintenance, err := startMaintenance(schedCfg, nil, pruner)
		if err != nil {
			return err
		}
		defer maintenance.Stop()

		poller := polling.New(adapter, processor, store, polling.Config{
			Timeout:     cfg.PollTimeout,
			ChatWorkers: cfg.PollChatWorkers,
		}, logger.Component("polling"))
		return poller.Run(ctx)
	}
}

// openJournal returns the configured journal backend and, when it supports
// pruning, the pruner for the maintenance scheduler.
func openJournal(ctx context.Context, cfg *config.AppConfig, botID string) (journal.Store, scheduler.Pruner, error) {
	log := logger.Component("journal").WithField("backend", cfg.JournalBackend)

	switch cfg.JournalBackend {
	case config.JournalPostgres:
		db, err := idb.NewPostgresConnection(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("could not connect to database: %w", err)
		}
		repo := idb.NewPostgresJournalRepository(db, botID)
		if err := repo.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Info("Database connection established")
		return repo, repo, nil

	case config.JournalRedis:
		j, err := cache.NewRedisJournal(ctx, cfg.RedisURL, botID, cache.DefaultTTL)
		if err != nil {
			return nil, nil, err
		}
		log.Info("Redis connection established")
		return j, nil, nil

	case config.JournalMemory:
		log.Info("Using in-memory journal; offsets and duplicates are forgotten on restart")
		return memory.NewJournal(memory.DefaultCapacity), nil, nil
	}
	return nil, nil, errors.New("unknown journal backend " + cfg.JournalBackend)
}

func startMaintenance(cfg scheduler.Config, adapter *telegram.TelebotAdapter, pruner scheduler.Pruner) (*scheduler.MaintenanceScheduler, error) {
	var registrar domainTelegram.WebhookRegistrar
	if adapter != nil {
		registrar = adapter
	}
	s := scheduler.NewMaintenanceScheduler(cfg, registrar, pruner, logger.Component("scheduler"))
	if _, err := s.Start(); err != nil {
		return nil, err
	}
	return s, nil
}
