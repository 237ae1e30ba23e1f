// internal/domain/message/update.go
package message

import "time"

// Update is one inbound event from the messaging platform.
// It is passed by value and never modified after it is received.
type Update struct {
	ID         int64     // update_id assigned by the platform, strictly increasing
	ChatID     int64     // Originating chat
	Text       string    // Raw text, may start with a command token
	ReceivedAt time.Time // When the platform accepted the message
}

// HasText reports whether the update carries any text to route.
func (u Update) HasText() bool {
	return u.Text != ""
}
