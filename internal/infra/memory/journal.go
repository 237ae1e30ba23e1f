// Package memory holds the in-process journal backend. Nothing survives a
// restart; it is the default when no database is configured.
package memory

import (
	"context"
	"sync"

	"film_department_bot/internal/domain/journal"
)

// DefaultCapacity is how many update IDs the journal remembers.
const DefaultCapacity = 10000

// Journal remembers the most recent update IDs in FIFO order and the last
// acknowledged offset.
type Journal struct {
	mu       sync.Mutex
	capacity int
	seen     map[int64]struct{}
	order    []int64 // ring buffer of seen IDs
	next     int
	offset   int64
}

var _ journal.Store = (*Journal)(nil)

func NewJournal(capacity int) *Journal {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Journal{
		capacity: capacity,
		seen:     make(map[int64]struct{}, capacity),
		order:    make([]int64, 0, capacity),
	}
}

func (j *Journal) Record(_ context.Context, e journal.Entry) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.seen[e.UpdateID]; ok {
		return true, nil
	}
	if len(j.order) < j.capacity {
		j.order = append(j.order, e.UpdateID)
	} else {
		delete(j.seen, j.order[j.next])
		j.order[j.next] = e.UpdateID
		j.next = (j.next + 1) % j.capacity
	}
	j.seen[e.UpdateID] = struct{}{}
	return false, nil
}

func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.seen)
}

func (j *Journal) LoadOffset(context.Context) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.offset, nil
}

func (j *Journal) SaveOffset(_ context.Context, lastUpdateID int64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.offset = lastUpdateID
	return nil
}

func (j *Journal) Close() error { return nil }
