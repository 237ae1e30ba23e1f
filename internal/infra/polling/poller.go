package polling

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"film_department_bot/internal/app"
	"film_department_bot/internal/domain/delivery"
	"film_department_bot/internal/domain/journal"
	"film_department_bot/internal/domain/message"
	"film_department_bot/internal/domain/telegram"

	"github.com/sirupsen/logrus"
)

// State of the polling loop.
type State int32

const (
	StateIdle State = iota
	StatePolling
	StateProcessing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateProcessing:
		return "processing"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Processor handles one update. app.Processor implements it.
type Processor interface {
	Process(ctx context.Context, update message.Update) app.Result
}

type Config struct {
	Timeout         time.Duration // Long-poll wait per request
	ChatWorkers     int           // >1 processes different chats of a batch concurrently
	ErrorBackoff    time.Duration // First wait after a failed poll
	MaxErrorBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.ChatWorkers < 1 {
		c.ChatWorkers = 1
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = time.Second
	}
	if c.MaxErrorBackoff < c.ErrorBackoff {
		c.MaxErrorBackoff = 30 * time.Second
	}
	return c
}

// Poller pulls batches of updates and feeds them to the processor. The offset
// only moves past a batch after every update in it was processed, which makes
// delivery to the processor at-least-once across crashes.
type Poller struct {
	source    telegram.UpdateSource
	processor Processor
	offsets   journal.OffsetStore
	cfg       Config
	logger    *logrus.Entry

	state   atomic.Int32
	lastAck atomic.Int64
}

// New creates a Poller. offsets may be nil, in which case the acknowledgment
// point lives in memory and on the platform only.
func New(source telegram.UpdateSource, processor Processor, offsets journal.OffsetStore, cfg Config, logger *logrus.Entry) *Poller {
	return &Poller{
		source:    source,
		processor: processor,
		offsets:   offsets,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

func (p *Poller) State() State {
	return State(p.state.Load())
}

// Offset is the ID of the last update whose batch was fully processed.
func (p *Poller) Offset() int64 {
	return p.lastAck.Load()
}

// Run polls until ctx is cancelled. A batch that is being processed when ctx is
// cancelled is finished first. Permanent transport errors (revoked token, another
// instance polling) end the loop with an error.
//
// The first request always asks for offset 0: the platform remembers what was
// confirmed, and update IDs may restart lower after a long idle period, so a
// stored offset is only used to recognise redeliveries.
func (p *Poller) Run(ctx context.Context) error {
	defer p.state.Store(int32(StateStopped))

	var stored int64
	if p.offsets != nil {
		last, err := p.offsets.LoadOffset(ctx)
		if err != nil {
			p.logger.WithError(err).Warn("Could not load stored offset")
		} else {
			stored = last
		}
	}

	p.logger.WithFields(logrus.Fields{
		"timeout":      p.cfg.Timeout,
		"chat_workers": p.cfg.ChatWorkers,
	}).Info("Polling started")

	backoff := p.cfg.ErrorBackoff
	for {
		if ctx.Err() != nil {
			p.logger.Info("Polling stopped")
			return nil
		}

		p.state.Store(int32(StatePolling))
		updates, err := p.source.GetUpdates(ctx, p.nextOffset(), p.cfg.Timeout)
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info("Polling stopped")
				return nil
			}
			if delivery.KindOf(err) == delivery.KindPermanent {
				p.logger.WithError(err).Error("Update transport rejected polling")
				return fmt.Errorf("polling: %w", err)
			}

			wait := backoff
			if d, ok := delivery.RetryAfter(err); ok && d > wait {
				wait = d
			}
			p.logger.WithError(err).WithField("wait", wait).Warn("Polling failed, backing off")
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				p.logger.Info("Polling stopped")
				return nil
			}
			backoff *= 2
			if backoff > p.cfg.MaxErrorBackoff {
				backoff = p.cfg.MaxErrorBackoff
			}
			continue
		}
		backoff = p.cfg.ErrorBackoff

		if len(updates) == 0 {
			continue
		}

		if stored > 0 {
			p.checkFirstBatch(stored, updates)
			stored = 0
		}

		p.state.Store(int32(StateProcessing))
		// Shutdown must not cut a batch in half.
		p.processBatch(context.WithoutCancel(ctx), updates)
		p.acknowledge(context.WithoutCancel(ctx), updates)
	}
}

// checkFirstBatch compares the first batch after startup with the offset saved
// by the previous run.
func (p *Poller) checkFirstBatch(stored int64, updates []message.Update) {
	lowest := updates[0].ID
	for _, u := range updates[1:] {
		if u.ID < lowest {
			lowest = u.ID
		}
	}
	logCtx := p.logger.WithFields(logrus.Fields{"stored_offset": stored, "first_update": lowest})
	switch {
	case lowest+int64(len(updates)) <= stored:
		logCtx.Warn("Update IDs are far below the stored offset, the platform restarted its numbering")
	case lowest <= stored:
		logCtx.Info("Platform redelivered updates from before the restart")
	}
}

func (p *Poller) nextOffset() int64 {
	last := p.lastAck.Load()
	if last == 0 {
		return 0
	}
	return last + 1
}

func (p *Poller) acknowledge(ctx context.Context, updates []message.Update) {
	last := p.lastAck.Load()
	for _, u := range updates {
		if u.ID > last {
			last = u.ID
		}
	}
	p.lastAck.Store(last)

	if p.offsets != nil {
		if err := p.offsets.SaveOffset(ctx, last); err != nil {
			p.logger.WithError(err).WithField("offset", last).Warn("Could not persist offset")
		}
	}
	p.logger.WithFields(logrus.Fields{"offset": last, "batch": len(updates)}).Debug("Batch acknowledged")
}

// processBatch keeps arrival order within each chat. With one worker the whole
// batch is sequential; with more, each chat's updates run on their own goroutine.
func (p *Poller) processBatch(ctx context.Context, updates []message.Update) {
	if p.cfg.ChatWorkers <= 1 {
		for _, u := range updates {
			p.processor.Process(ctx, u)
		}
		return
	}

	var chats []int64
	byChat := make(map[int64][]message.Update)
	for _, u := range updates {
		if _, ok := byChat[u.ChatID]; !ok {
			chats = append(chats, u.ChatID)
		}
		byChat[u.ChatID] = append(byChat[u.ChatID], u)
	}

	sem := make(chan struct{}, p.cfg.ChatWorkers)
	var wg sync.WaitGroup
	for _, chat := range chats {
		queue := byChat[chat]
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			for _, u := range queue {
				p.processor.Process(ctx, u)
			}
		}()
	}
	wg.Wait()
}
