// internal/domain/journal/repository.go
package journal

import (
	"context"
	"time"
)

// Entry records that an update was taken up for processing.
type Entry struct {
	UpdateID   int64
	ChatID     int64
	Command    string // Empty when the update carried no command
	ReceivedAt time.Time
}

// Journal remembers which updates were already processed. Record reports
// duplicate=true when the update ID was seen before; the caller logs and carries on.
type Journal interface {
	Record(ctx context.Context, e Entry) (duplicate bool, err error)
}

// OffsetStore persists the ID of the last update whose batch was fully processed.
// LoadOffset returns 0 when nothing was stored yet. SaveOffset overwrites: the
// platform may restart its numbering lower than a previously stored value.
type OffsetStore interface {
	LoadOffset(ctx context.Context) (int64, error)
	SaveOffset(ctx context.Context, lastUpdateID int64) error
}

// Store is a backend providing both concerns.
type Store interface {
	Journal
	OffsetStore
	Close() error
}
