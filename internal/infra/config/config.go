package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"
)

// ErrConfiguration wraps every validation failure returned by Load.
var ErrConfiguration = errors.New("configuration error")

// Operating modes.
const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// Journal backends.
const (
	JournalMemory   = "memory"
	JournalPostgres = "postgres"
	JournalRedis    = "redis"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	TelegramToken string
	Mode          string
	Port          int
	PublicURL     string // Base URL the platform uses to reach the webhook

	WebhookSecretPath  string // Unguessable path segment for POST updates
	WebhookSecretToken string // Optional X-Telegram-Bot-Api-Secret-Token value
	WebhookCheckCron   string // Watchdog schedule; empty disables it

	CommandPrefix        string
	UnknownCommandPolicy string // "ignore" or "reply"
	UnknownCommandReply  string
	PublishCommands      bool // Push the command list to the platform's menu on startup

	PollTimeout     time.Duration
	PollChatWorkers int

	DeliveryMaxAttempts int
	DeliveryBaseBackoff time.Duration
	MaxOutboundConns    int
	ShutdownGracePeriod time.Duration

	JournalBackend   string
	DatabaseURL      string
	RedisURL         string
	JournalPruneCron string // Postgres only; empty disables pruning
	JournalPruneKeep int

	SentryDSN string

	LogLevel    string
	Environment string
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.TelegramToken = firstEnv("TELEGRAM_TOKEN", "BOT_TOKEN")
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("%w: TELEGRAM_TOKEN is not set", ErrConfiguration)
	}

	cfg.Mode = strings.ToLower(getEnv("MODE", ModePolling))
	if cfg.Mode != ModePolling && cfg.Mode != ModeWebhook {
		return nil, fmt.Errorf("%w: MODE must be %q or %q, got %q", ErrConfiguration, ModePolling, ModeWebhook, cfg.Mode)
	}

	if cfg.Port, err = getInt("PORT", 10000); err != nil {
		return nil, err
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("%w: PORT out of range: %d", ErrConfiguration, cfg.Port)
	}

	cfg.PublicURL = strings.TrimRight(firstEnv("PUBLIC_URL", "RENDER_URL"), "/")
	if cfg.Mode == ModeWebhook {
		if cfg.PublicURL == "" {
			return nil, fmt.Errorf("%w: PUBLIC_URL is required in webhook mode", ErrConfiguration)
		}
		u, err := url.Parse(cfg.PublicURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("%w: invalid PUBLIC_URL %q", ErrConfiguration, cfg.PublicURL)
		}
	}

	cfg.WebhookSecretPath = strings.Trim(os.Getenv("WEBHOOK_SECRET_PATH"), "/")
	if cfg.WebhookSecretPath == "" {
		cfg.WebhookSecretPath = DeriveSecretPath(cfg.TelegramToken)
	}
	if strings.Contains(cfg.WebhookSecretPath, "/") {
		return nil, fmt.Errorf("%w: WEBHOOK_SECRET_PATH must be a single path segment", ErrConfiguration)
	}
	cfg.WebhookSecretToken = os.Getenv("WEBHOOK_SECRET_TOKEN")
	cfg.WebhookCheckCron = getEnv("WEBHOOK_CHECK_CRON", "*/10 * * * *")

	cfg.CommandPrefix = getEnv("COMMAND_PREFIX", "/")
	if utf8.RuneCountInString(cfg.CommandPrefix) != 1 {
		return nil, fmt.Errorf("%w: COMMAND_PREFIX must be a single character, got %q", ErrConfiguration, cfg.CommandPrefix)
	}

	cfg.UnknownCommandPolicy = strings.ToLower(getEnv("UNKNOWN_COMMAND_POLICY", "ignore"))
	if cfg.UnknownCommandPolicy != "ignore" && cfg.UnknownCommandPolicy != "reply" {
		return nil, fmt.Errorf("%w: UNKNOWN_COMMAND_POLICY must be ignore or reply, got %q", ErrConfiguration, cfg.UnknownCommandPolicy)
	}
	cfg.UnknownCommandReply = getEnv("UNKNOWN_COMMAND_REPLY", "Sorry, I don't know {command}. Send /help to see what I can do.")

	if cfg.PublishCommands, err = getBool("PUBLISH_COMMANDS", true); err != nil {
		return nil, err
	}

	if cfg.PollTimeout, err = getDuration("POLL_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	// The long poll is sent in whole seconds.
	if cfg.PollTimeout < time.Second {
		return nil, fmt.Errorf("%w: POLL_TIMEOUT must be at least 1s, got %s", ErrConfiguration, cfg.PollTimeout)
	}
	if cfg.PollChatWorkers, err = getInt("POLL_CHAT_WORKERS", 1); err != nil {
		return nil, err
	}
	if cfg.PollChatWorkers < 1 {
		return nil, fmt.Errorf("%w: POLL_CHAT_WORKERS must be at least 1", ErrConfiguration)
	}

	if cfg.DeliveryMaxAttempts, err = getInt("DELIVERY_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.DeliveryMaxAttempts < 1 {
		return nil, fmt.Errorf("%w: DELIVERY_MAX_ATTEMPTS must be at least 1", ErrConfiguration)
	}
	if cfg.DeliveryBaseBackoff, err = getDuration("DELIVERY_BASE_BACKOFF", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.MaxOutboundConns, err = getInt("MAX_OUTBOUND_CONNS", 16); err != nil {
		return nil, err
	}
	if cfg.ShutdownGracePeriod, err = getDuration("SHUTDOWN_GRACE_PERIOD", 10*time.Second); err != nil {
		return nil, err
	}

	cfg.JournalBackend = strings.ToLower(getEnv("JOURNAL_BACKEND", JournalMemory))
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RedisURL = os.Getenv("REDIS_URL")
	switch cfg.JournalBackend {
	case JournalMemory:
	case JournalPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("%w: DATABASE_URL is required for the postgres journal", ErrConfiguration)
		}
	case JournalRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("%w: REDIS_URL is required for the redis journal", ErrConfiguration)
		}
	default:
		return nil, fmt.Errorf("%w: unknown JOURNAL_BACKEND %q", ErrConfiguration, cfg.JournalBackend)
	}

	cfg.JournalPruneCron = getEnv("JOURNAL_PRUNE_CRON", "@daily")
	if cfg.JournalPruneKeep, err = getInt("JOURNAL_PRUNE_KEEP", 100000); err != nil {
		return nil, err
	}

	cfg.SentryDSN = os.Getenv("SENTRY_DSN")

	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", "info"))
	cfg.Environment = strings.ToLower(getEnv("ENVIRONMENT", "development"))

	return cfg, nil
}

// WebhookURL is the full URL registered with the platform.
func (c *AppConfig) WebhookURL() string {
	return c.PublicURL + "/" + c.WebhookSecretPath
}

// ListenAddr is the address the webhook server binds to.
func (c *AppConfig) ListenAddr() string {
	return fmt.Sprintf("0.0.0.0:%d", c.Port)
}

// DeriveSecretPath returns a stable, unguessable path segment for the token,
// so the token itself never shows up in URLs or access logs.
func DeriveSecretPath(token string) string {
	sum := sha256.Sum256([]byte("webhook:" + token))
	return hex.EncodeToString(sum[:16])
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s: %v", ErrConfiguration, key, err)
	}
	return n, nil
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: invalid %s: %v", ErrConfiguration, key, err)
	}
	return b, nil
}

// getDuration accepts Go durations ("15s") and bare integers meaning seconds.
func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s: %v", ErrConfiguration, key, err)
	}
	return d, nil
}
