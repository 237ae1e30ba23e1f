package app

import (
	"fmt"

	"film_department_bot/internal/domain/command"
	"film_department_bot/internal/domain/message"
)

var ErrHandlerPanic = fmt.Errorf("command handler panicked")

// OutcomeKind is the result class of routing one update.
type OutcomeKind int

const (
	OutcomeIgnored        OutcomeKind = iota // Text does not start with the command prefix
	OutcomeDispatched                        // Handler produced a reply
	OutcomeUnknownCommand                    // Prefix present, token not registered
	OutcomeNoReply                           // Handler chose not to reply
	OutcomeHandlerFailed                     // Handler panicked; recovered here
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeDispatched:
		return "dispatched"
	case OutcomeUnknownCommand:
		return "unknown_command"
	case OutcomeNoReply:
		return "no_reply"
	case OutcomeHandlerFailed:
		return "handler_failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome of Router.Route. Command is set for every kind except Ignored; Reply only
// for Dispatched; Err only for HandlerFailed.
type Outcome struct {
	Kind    OutcomeKind
	Command command.Command
	Reply   message.Reply
	Err     error
}

// Router turns an update into an Outcome using a sealed registry. It never talks to
// the network and is safe for concurrent use.
type Router struct {
	registry    *command.Registry
	prefix      string
	botUsername string
}

func NewRouter(registry *command.Registry, prefix, botUsername string) *Router {
	if prefix == "" {
		prefix = command.DefaultPrefix
	}
	return &Router{
		registry:    registry,
		prefix:      prefix,
		botUsername: botUsername,
	}
}

// Route extracts the command token and invokes its handler synchronously.
func (r *Router) Route(update message.Update) (out Outcome) {
	cmd, ok := command.Parse(update.Text, r.prefix, r.botUsername)
	if !ok {
		return Outcome{Kind: OutcomeIgnored}
	}

	handler, ok := r.registry.Resolve(cmd.Name)
	if !ok {
		return Outcome{Kind: OutcomeUnknownCommand, Command: cmd}
	}

	defer func() {
		if p := recover(); p != nil {
			out = Outcome{
				Kind:    OutcomeHandlerFailed,
				Command: cmd,
				Err:     fmt.Errorf("%w: /%s: %v", ErrHandlerPanic, cmd.Name, p),
			}
		}
	}()

	reply, send := handler(update)
	if !send {
		return Outcome{Kind: OutcomeNoReply, Command: cmd}
	}
	if reply.ChatID == 0 {
		reply.ChatID = update.ChatID
	}
	return Outcome{Kind: OutcomeDispatched, Command: cmd, Reply: reply}
}
