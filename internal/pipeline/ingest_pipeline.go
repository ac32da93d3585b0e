package pipeline

import (
	"context"
	"errors"
	"time"

	"minisiem/internal/batch"
	"minisiem/internal/filter"
	"minisiem/internal/input/eve"
	"minisiem/internal/logger"
	"minisiem/internal/metrics"
	"minisiem/internal/output/opensearch"
	"minisiem/internal/rules"
	"minisiem/pkg/models"
)

// Options controls batching.
type Options struct {
	LiveBatchSize    int
	BacklogBatchSize int
	FlushInterval    time.Duration
}

// IngestPipeline replays the eve backlog, then follows the file, shipping
// alert records to the bulk writer in file order. Everything runs on the
// caller's goroutine; flushes are synchronous.
type IngestPipeline struct {
	file        *eve.File
	writer      BulkWriter
	notifier    Notifier
	deadLetters DeadLetterWriter
	engine      rules.Engine
	metrics     *metrics.Metrics
	opts        Options
}

// NewIngestPipeline creates the ingest pipeline. notifier, deadLetters and
// engine are optional.
func NewIngestPipeline(file *eve.File, writer BulkWriter, notifier Notifier, deadLetters DeadLetterWriter, engine rules.Engine, m *metrics.Metrics, opts Options) *IngestPipeline {
	if opts.LiveBatchSize <= 0 {
		opts.LiveBatchSize = 200
	}
	if opts.BacklogBatchSize <= 0 {
		opts.BacklogBatchSize = 1000
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 1500 * time.Millisecond
	}
	return &IngestPipeline{
		file:        file,
		writer:      writer,
		notifier:    notifier,
		deadLetters: deadLetters,
		engine:      engine,
		metrics:     m,
		opts:        opts,
	}
}

// Run replays the backlog and then follows the file until ctx is done.
// Batches still buffered at cancellation are not delivered.
func (p *IngestPipeline) Run(ctx context.Context) error {
	logger.Infof("Ingest pipeline started: %s", p.file.Path())

	if err := p.replayBacklog(ctx); err != nil {
		return err
	}
	return p.followLoop(ctx)
}

// Close releases pipeline resources.
func (p *IngestPipeline) Close() error {
	if p.notifier != nil {
		if err := p.notifier.Close(); err != nil {
			logger.Errorf("Failed to close notifier: %v", err)
		}
	}
	if p.deadLetters != nil {
		if err := p.deadLetters.Close(); err != nil {
			logger.Errorf("Failed to close dead letter writer: %v", err)
		}
	}
	if p.writer != nil {
		if err := p.writer.Close(); err != nil {
			logger.Errorf("Failed to close bulk writer: %v", err)
		}
	}
	return p.file.Close()
}

func (p *IngestPipeline) replayBacklog(ctx context.Context) error {
	b := batch.New(p.opts.BacklogBatchSize, 0, p.flushBacklog)

	alerts := 0
	stats, err := p.file.ReadBacklog(ctx, func(event models.Event) {
		if !filter.OnlyAlerts(event) {
			return
		}
		alerts++
		p.metrics.Alert(metrics.PhaseBacklog)
		b.Add(ctx, p.tag(event))
	})
	if err != nil {
		return err
	}
	b.Flush(ctx)

	logger.Infof("Backlog replayed: %d lines, %d alerts, %d malformed, %d bytes",
		stats.Lines, alerts, stats.Malformed, stats.Bytes)
	return nil
}

// flushBacklog delivers one backlog batch, then notifies each of its records.
func (p *IngestPipeline) flushBacklog(ctx context.Context, events []models.Event) {
	p.deliver(ctx, events)
	for _, event := range events {
		p.notify(ctx, event)
	}
}

func (p *IngestPipeline) followLoop(ctx context.Context) error {
	live := batch.New(p.opts.LiveBatchSize, p.opts.FlushInterval, p.deliver)
	follower := eve.NewFollower(p.file, func() { live.FlushIfDue(ctx) })

	for {
		event, err := follower.Next(ctx)
		if err != nil {
			return err
		}
		if !filter.OnlyAlerts(event) {
			live.FlushIfDue(ctx)
			continue
		}

		p.metrics.Alert(metrics.PhaseLive)
		event = p.tag(event)
		p.notify(ctx, event)
		live.Add(ctx, event)
	}
}

// deliver hands a batch to the bulk writer. The batch is never re-queued;
// a dropped batch is archived when a dead letter writer is configured.
func (p *IngestPipeline) deliver(ctx context.Context, events []models.Event) {
	err := p.writer.WriteBatch(ctx, events)
	if err == nil || !errors.Is(err, opensearch.ErrBatchDropped) || p.deadLetters == nil {
		return
	}
	if err := p.deadLetters.Archive(ctx, events); err != nil {
		logger.Errorf("Failed to archive dropped batch of %d: %v", len(events), err)
		return
	}
	logger.Warnf("Archived dropped batch of %d alerts", len(events))
}

// notify is best effort: the outcome never affects indexing.
func (p *IngestPipeline) notify(ctx context.Context, event models.Event) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.SendAlert(ctx, event); err != nil {
		p.metrics.NotifyFailed()
	}
}

func (p *IngestPipeline) tag(event models.Event) models.Event {
	if p.engine == nil {
		return event
	}
	if tags := p.engine.Apply(event); len(tags) > 0 {
		event["rule_tags"] = tags
	}
	return event
}
