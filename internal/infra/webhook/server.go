package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"film_department_bot/internal/app"
	"film_department_bot/internal/domain/delivery"
	"film_department_bot/internal/domain/message"
	"film_department_bot/internal/domain/telegram"
	infraTelegram "film_department_bot/internal/infra/telegram"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// SecretTokenHeader carries the secret_token given to setWebhook.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// LivenessBody is what GET / answers.
const LivenessBody = "Bot is running"

const maxUpdateBytes = 1 << 20

// Processor handles one update. app.Processor implements it.
type Processor interface {
	Process(ctx context.Context, update message.Update) app.Result
}

// Config holds server configuration.
type Config struct {
	Addr        string
	WebhookURL  string // Full URL registered with the platform
	SecretPath  string // Path segment updates are POSTed to
	SecretToken string // Optional; when set, requests must carry it in SecretTokenHeader
	GracePeriod time.Duration

	RegisterAttempts int
	RegisterBackoff  time.Duration
}

// Server receives pushed updates. It answers the platform only after the update
// went through the processor, so an update the platform saw acknowledged was
// processed.
type Server struct {
	cfg        Config
	processor  Processor
	registrar  telegram.WebhookRegistrar
	logger     *logrus.Entry
	router     chi.Router
	httpServer *http.Server

	inFlight atomic.Int64
}

func New(cfg Config, processor Processor, registrar telegram.WebhookRegistrar, logger *logrus.Entry) *Server {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 10 * time.Second
	}
	if cfg.RegisterAttempts < 1 {
		cfg.RegisterAttempts = 5
	}
	if cfg.RegisterBackoff <= 0 {
		cfg.RegisterBackoff = time.Second
	}
	s := &Server{
		cfg:       cfg,
		processor: processor,
		registrar: registrar,
		logger:    logger,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(LivenessBody))
	})
	r.Post("/"+s.cfg.SecretPath, s.handleUpdate)

	return r
}

// Router returns the chi router serving the webhook.
func (s *Server) Router() chi.Router { return s.router }

// InFlight is the number of updates currently being processed.
func (s *Server) InFlight() int64 { return s.inFlight.Load() }

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	logCtx := s.logger.WithField("request_id", middleware.GetReqID(r.Context()))

	if s.cfg.SecretToken != "" {
		got := r.Header.Get(SecretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.SecretToken)) != 1 {
			logCtx.WithField("remote_addr", r.RemoteAddr).Warn("Webhook request with wrong secret token")
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	var raw telebot.Update
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpdateBytes))
	if err := dec.Decode(&raw); err != nil {
		logCtx.WithError(err).Warn("Malformed webhook payload")
		http.Error(w, "malformed update", http.StatusBadRequest)
		return
	}
	// The body must hold exactly one update.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		logCtx.WithError(err).Warn("Trailing data after webhook payload")
		http.Error(w, "malformed update", http.StatusBadRequest)
		return
	}
	if raw.ID == 0 {
		logCtx.Warn("Webhook payload without update_id")
		http.Error(w, "missing update_id", http.StatusBadRequest)
		return
	}

	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	// The platform may hang up before we finish; the reply still goes out.
	res := s.processor.Process(context.WithoutCancel(r.Context()), infraTelegram.ToUpdate(raw))
	logCtx.WithFields(logrus.Fields{
		"update_id": raw.ID,
		"trace_id":  res.TraceID,
		"outcome":   res.Outcome.Kind.String(),
	}).Debug("Webhook update processed")

	w.WriteHeader(http.StatusOK)
}

// Register points the platform at this server. Transient failures are retried
// with backoff; a permanent rejection (bad token, bad URL) is returned at once.
func (s *Server) Register(ctx context.Context) error {
	backoff := s.cfg.RegisterBackoff
	var lastErr error
	for attempt := 1; attempt <= s.cfg.RegisterAttempts; attempt++ {
		err := s.registrar.SetWebhook(ctx, s.cfg.WebhookURL, s.cfg.SecretToken)
		if err == nil {
			s.logger.WithField("attempt", attempt).Info("Webhook registered")
			return nil
		}
		lastErr = err
		if delivery.KindOf(err) == delivery.KindPermanent {
			return fmt.Errorf("webhook registration rejected: %w", err)
		}
		if attempt == s.cfg.RegisterAttempts {
			break
		}

		wait := backoff
		if d, ok := delivery.RetryAfter(err); ok && d > wait {
			wait = d
		}
		s.logger.WithError(err).WithFields(logrus.Fields{"attempt": attempt, "wait": wait}).Warn("Webhook registration failed, retrying")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return fmt.Errorf("webhook registration failed after %d attempts: %w", s.cfg.RegisterAttempts, lastErr)
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("webhook server: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then drains in-flight
// requests for up to the grace period. Requests still running after that are
// abandoned.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", ln.Addr().String()).Info("Webhook server listening")
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("webhook server: %w", err)
	case <-ctx.Done():
	}

	s.logger.WithField("grace_period", s.cfg.GracePeriod).Info("Shutting down webhook server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.GracePeriod)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).WithField("abandoned", s.InFlight()).Warn("Grace period elapsed, abandoning in-flight updates")
		s.httpServer.Close()
		return nil
	}
	s.logger.Info("Webhook server stopped")
	return nil
}
