package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"film_department_bot/internal/domain/delivery"
	"film_department_bot/internal/domain/journal"
	"film_department_bot/internal/domain/message"
)

type fakeJournal struct {
	mu   sync.Mutex
	seen map[int64]bool
	err  error
}

func (j *fakeJournal) Record(_ context.Context, e journal.Entry) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return false, j.err
	}
	if j.seen == nil {
		j.seen = make(map[int64]bool)
	}
	dup := j.seen[e.UpdateID]
	j.seen[e.UpdateID] = true
	return dup, nil
}

func newTestProcessor(t *testing.T, sink delivery.Sink, j journal.Journal, cfg ProcessorConfig) *Processor {
	t.Helper()
	router := NewRouter(newTestRegistry(t), "/", "")
	svc := NewDeliveryService(sink, RetryPolicy{MaxAttempts: 1}, nil, testLogger())
	return NewProcessor(router, svc, j, cfg, nil, testLogger())
}

func TestProcessor_EndToEndStart(t *testing.T) {
	sink := &scriptedSink{}
	p := newTestProcessor(t, sink, &fakeJournal{}, ProcessorConfig{})

	res := p.Process(context.Background(), message.Update{ID: 1, ChatID: 42, Text: "/start"})
	if res.Outcome.Kind != OutcomeDispatched || !res.Delivered {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.TraceID == "" {
		t.Error("expected a trace id")
	}
	if len(sink.delivered) != 1 {
		t.Fatalf("expected one delivery, got %d", len(sink.delivered))
	}
	if got := sink.delivered[0]; got.ChatID != 42 || got.Text != "welcome" {
		t.Errorf("unexpected reply %+v", got)
	}
}

func TestProcessor_UnknownCommandPolicy(t *testing.T) {
	t.Run("ignore", func(t *testing.T) {
		sink := &scriptedSink{}
		p := newTestProcessor(t, sink, nil, ProcessorConfig{UnknownPolicy: UnknownCommandIgnore, UnknownReply: "nope"})
		res := p.Process(context.Background(), message.Update{ID: 1, ChatID: 5, Text: "/nope"})
		if res.Outcome.Kind != OutcomeUnknownCommand || res.Delivered {
			t.Fatalf("unexpected result %+v", res)
		}
		if sink.calls != 0 {
			t.Errorf("expected silence, got %d sends", sink.calls)
		}
	})

	t.Run("reply", func(t *testing.T) {
		sink := &scriptedSink{}
		p := newTestProcessor(t, sink, nil, ProcessorConfig{
			Prefix:        "/",
			UnknownPolicy: UnknownCommandReply,
			UnknownReply:  "Sorry, I don't know {command}. Try /help.",
		})
		res := p.Process(context.Background(), message.Update{ID: 1, ChatID: 5, Text: "/nope"})
		if !res.Delivered {
			t.Fatalf("expected fallback to be delivered, got %+v", res)
		}
		if want := "Sorry, I don't know /nope. Try /help."; sink.delivered[0].Text != want {
			t.Errorf("fallback text %q, want %q", sink.delivered[0].Text, want)
		}
	})
}

func TestProcessor_IgnoredAndNoReplyDoNotDeliver(t *testing.T) {
	sink := &scriptedSink{}
	p := newTestProcessor(t, sink, nil, ProcessorConfig{})

	for _, text := range []string{"hello there", "/silent", "/boom"} {
		p.Process(context.Background(), message.Update{ID: 1, ChatID: 5, Text: text})
	}
	if sink.calls != 0 {
		t.Errorf("expected no deliveries, got %d", sink.calls)
	}
}

func TestProcessor_DuplicateIsProcessedAndFlagged(t *testing.T) {
	sink := &scriptedSink{}
	p := newTestProcessor(t, sink, &fakeJournal{}, ProcessorConfig{})

	u := message.Update{ID: 9, ChatID: 1, Text: "/help"}
	first := p.Process(context.Background(), u)
	second := p.Process(context.Background(), u)

	if first.Duplicate {
		t.Error("first processing must not be flagged duplicate")
	}
	if !second.Duplicate {
		t.Error("second processing must be flagged duplicate")
	}
	if len(sink.delivered) != 2 {
		t.Errorf("duplicates are still processed, expected 2 deliveries, got %d", len(sink.delivered))
	}
}

func TestProcessor_JournalErrorIsNotFatal(t *testing.T) {
	sink := &scriptedSink{}
	p := newTestProcessor(t, sink, &fakeJournal{err: errors.New("db down")}, ProcessorConfig{})

	res := p.Process(context.Background(), message.Update{ID: 1, ChatID: 1, Text: "/start"})
	if !res.Delivered {
		t.Fatalf("journal failure must not block delivery: %+v", res)
	}
}

func TestProcessor_DeliveryFailureReported(t *testing.T) {
	sink := &scriptedSink{errs: []error{delivery.Permanent(errors.New("bot was blocked by the user"))}}
	p := newTestProcessor(t, sink, nil, ProcessorConfig{})

	res := p.Process(context.Background(), message.Update{ID: 1, ChatID: 1, Text: "/start"})
	if res.Delivered || res.Err == nil {
		t.Fatalf("expected dropped reply, got %+v", res)
	}
	if res.Outcome.Kind != OutcomeDispatched {
		t.Errorf("routing outcome should still be dispatched, got %s", res.Outcome.Kind)
	}
}
