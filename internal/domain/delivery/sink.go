package delivery

import (
	"context"
	"time"

	"film_department_bot/internal/domain/message"
)

// Ack confirms that the platform accepted a reply.
type Ack struct {
	ChatID    int64
	MessageID int
	SentAt    time.Time
}

// Sink sends a reply to its destination chat. Each Deliver call makes at most
// one network call; retrying is the caller's decision.
type Sink interface {
	Deliver(ctx context.Context, reply message.Reply) (Ack, error)
}
