package batch

import (
	"context"
	"time"

	"minisiem/pkg/models"
)

// FlushFunc receives a full batch. It owns the slice once called.
type FlushFunc func(ctx context.Context, events []models.Event)

// Batcher accumulates events and flushes them by size or age.
// It is not safe for concurrent use; the ingest loop is its only caller.
type Batcher struct {
	size      int
	interval  time.Duration
	batch     []models.Event
	lastFlush time.Time
	flush     FlushFunc
	now       func() time.Time
}

// New creates a batcher. An interval <= 0 disables the age trigger.
func New(size int, interval time.Duration, flush FlushFunc) *Batcher {
	if size <= 0 {
		size = 1
	}
	b := &Batcher{
		size:     size,
		interval: interval,
		flush:    flush,
		now:      time.Now,
	}
	b.batch = make([]models.Event, 0, size)
	b.lastFlush = b.now()
	return b
}

// Add appends one event and flushes if either trigger fires.
// It reports whether a flush happened during this call.
func (b *Batcher) Add(ctx context.Context, event models.Event) bool {
	b.batch = append(b.batch, event)
	if len(b.batch) >= b.size {
		b.doFlush(ctx)
		return true
	}
	return b.FlushIfDue(ctx)
}

// FlushIfDue flushes a non-empty batch older than the flush interval.
func (b *Batcher) FlushIfDue(ctx context.Context) bool {
	if b.interval <= 0 || len(b.batch) == 0 {
		return false
	}
	if b.now().Sub(b.lastFlush) <= b.interval {
		return false
	}
	b.doFlush(ctx)
	return true
}

// Flush delivers whatever is buffered.
func (b *Batcher) Flush(ctx context.Context) bool {
	if len(b.batch) == 0 {
		return false
	}
	b.doFlush(ctx)
	return true
}

// Len returns the number of buffered events.
func (b *Batcher) Len() int {
	return len(b.batch)
}

func (b *Batcher) doFlush(ctx context.Context) {
	out := b.batch
	// The flush function keeps its slice; never reuse the backing array.
	b.batch = make([]models.Event, 0, b.size)
	b.lastFlush = b.now()
	if b.flush != nil {
		b.flush(ctx, out)
	}
}
