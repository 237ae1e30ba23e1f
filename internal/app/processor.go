package app

import (
	"context"
	"fmt"
	"strings"

	"film_department_bot/internal/domain/delivery"
	"film_department_bot/internal/domain/journal"
	"film_department_bot/internal/domain/message"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// UnknownCommandPolicy decides what happens when a prefixed token is not registered.
type UnknownCommandPolicy string

const (
	UnknownCommandIgnore UnknownCommandPolicy = "ignore"
	UnknownCommandReply  UnknownCommandPolicy = "reply"
)

// CommandPlaceholder in the unknown-command reply is replaced with the received command.
const CommandPlaceholder = "{command}"

// Deliverer sends a reply, retrying as it sees fit. DeliveryService implements it.
type Deliverer interface {
	Deliver(ctx context.Context, reply message.Reply) (delivery.Ack, error)
}

type ProcessorConfig struct {
	Prefix        string
	UnknownPolicy UnknownCommandPolicy
	UnknownReply  string
}

// Result describes what happened to one update.
type Result struct {
	TraceID   string
	Outcome   Outcome
	Duplicate bool
	Delivered bool
	Err       error // Delivery error when a reply was dropped
}

// Processor is the pipeline shared by both transport adapters:
// journal, route, apply the unknown-command policy, deliver.
type Processor struct {
	router    *Router
	deliverer Deliverer
	journal   journal.Journal
	cfg       ProcessorConfig
	reporter  ErrorReporter
	logger    *logrus.Entry
}

func NewProcessor(router *Router, deliverer Deliverer, j journal.Journal, cfg ProcessorConfig, reporter ErrorReporter, logger *logrus.Entry) *Processor {
	if cfg.UnknownPolicy == "" {
		cfg.UnknownPolicy = UnknownCommandIgnore
	}
	if reporter == nil {
		reporter = noopReporter{}
	}
	return &Processor{
		router:    router,
		deliverer: deliverer,
		journal:   j,
		cfg:       cfg,
		reporter:  reporter,
		logger:    logger,
	}
}

// Process handles one update end to end. It never panics on handler failure and
// reports delivery failures in the Result rather than as a returned error: an
// update that reached Process counts as consumed.
func (p *Processor) Process(ctx context.Context, update message.Update) Result {
	res := Result{TraceID: uuid.NewString()}
	logCtx := p.logger.WithFields(logrus.Fields{
		"update_id": update.ID,
		"chat_id":   update.ChatID,
		"trace_id":  res.TraceID,
	})

	res.Outcome = p.router.Route(update)
	if res.Outcome.Command.Name != "" {
		logCtx = logCtx.WithField("command", res.Outcome.Command.Name)
	}

	if p.journal != nil {
		dup, err := p.journal.Record(ctx, journal.Entry{
			UpdateID:   update.ID,
			ChatID:     update.ChatID,
			Command:    res.Outcome.Command.Name,
			ReceivedAt: update.ReceivedAt,
		})
		switch {
		case err != nil:
			logCtx.WithError(err).Warn("Could not record update in journal")
		case dup:
			res.Duplicate = true
			logCtx.Warn("Update was already processed once, processing it again")
		}
	}

	var reply message.Reply
	switch res.Outcome.Kind {
	case OutcomeDispatched:
		reply = res.Outcome.Reply
	case OutcomeUnknownCommand:
		if p.cfg.UnknownPolicy != UnknownCommandReply || p.cfg.UnknownReply == "" {
			logCtx.Debug("Unknown command ignored")
			return res
		}
		logCtx.Info("Unknown command, sending fallback reply")
		reply = message.NewReply(update.ChatID, p.unknownReplyText(res.Outcome.Command.Name))
	case OutcomeHandlerFailed:
		logCtx.WithError(res.Outcome.Err).Error("Command handler failed")
		p.reporter.CaptureError(res.Outcome.Err, map[string]string{
			"component": "router",
			"command":   res.Outcome.Command.Name,
		})
		return res
	case OutcomeNoReply:
		logCtx.Debug("Handler chose not to reply")
		return res
	default:
		logCtx.Debug("Update ignored")
		return res
	}

	ack, err := p.deliverer.Deliver(ctx, reply)
	if err != nil {
		res.Err = err
		logCtx.WithError(err).Error("Reply dropped")
		return res
	}
	res.Delivered = true
	logCtx.WithField("message_id", ack.MessageID).Info("Reply delivered")
	return res
}

func (p *Processor) unknownReplyText(name string) string {
	prefix := p.cfg.Prefix
	if prefix == "" {
		prefix = "/"
	}
	return strings.ReplaceAll(p.cfg.UnknownReply, CommandPlaceholder, fmt.Sprintf("%s%s", prefix, name))
}
