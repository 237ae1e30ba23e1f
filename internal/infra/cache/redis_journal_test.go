package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"film_department_bot/internal/domain/journal"
)

func newTestJournal(t *testing.T) *RedisJournal {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	j, err := NewRedisJournal(context.Background(), url, fmt.Sprintf("test%d", time.Now().UnixNano()), time.Minute)
	if err != nil {
		t.Fatalf("NewRedisJournal: %v", err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := j.client.Keys(ctx, j.prefix+":*").Result()
		if len(keys) > 0 {
			j.client.Del(ctx, keys...)
		}
		j.Close()
	})
	return j
}

func TestRedisJournal_Duplicates(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	if dup, err := j.Record(ctx, journal.Entry{UpdateID: 5, Command: "start"}); err != nil || dup {
		t.Fatalf("first Record: dup=%v err=%v", dup, err)
	}
	if dup, err := j.Record(ctx, journal.Entry{UpdateID: 5, Command: "start"}); err != nil || !dup {
		t.Fatalf("second Record: dup=%v err=%v", dup, err)
	}
}

func TestRedisJournal_Offset(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	if got, err := j.LoadOffset(ctx); err != nil || got != 0 {
		t.Fatalf("LoadOffset on empty store = %d, %v", got, err)
	}
	j.SaveOffset(ctx, 30)
	if got, _ := j.LoadOffset(ctx); got != 30 {
		t.Errorf("offset = %d, want 30", got)
	}
	j.SaveOffset(ctx, 12)
	if got, _ := j.LoadOffset(ctx); got != 12 {
		t.Errorf("offset = %d, want 12", got)
	}
}

func TestRedisJournal_Keys(t *testing.T) {
	j := NewRedisJournalFromClient(nil, "FilmBot", 0)
	if j.updateKey(7) != "bot:FilmBot:update:7" || j.offsetKey() != "bot:FilmBot:offset" {
		t.Errorf("unexpected keys %q %q", j.updateKey(7), j.offsetKey())
	}
	if j.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want default", j.ttl)
	}
}
