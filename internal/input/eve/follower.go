package eve

import (
	"bytes"
	"context"
	"fmt"

	"minisiem/internal/logger"
	"minisiem/internal/metrics"
	"minisiem/pkg/models"
)

// Follower yields events appended to the eve log after the backlog pass.
// It polls instead of relying on filesystem notifications.
type Follower struct {
	file      *File
	fragments *fragmentBuffer
	onIdle    func()
}

// NewFollower creates a follower over file. onIdle, when set, runs every
// time a poll finds no new data, before sleeping.
func NewFollower(file *File, onIdle func()) *Follower {
	return &Follower{
		file:      file,
		fragments: newFragmentBuffer(file.cfg.MaxFragments),
		onIdle:    onIdle,
	}
}

// Next blocks until the next event can be decoded or ctx is done. The
// sequence has no natural end; cancellation is the only way out.
func (f *Follower) Next(ctx context.Context) (models.Event, error) {
	if err := f.file.openAtEnd(ctx); err != nil {
		return nil, err
	}

	m := f.file.cfg.Metrics
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line, ok, err := f.file.readLine()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.file.cfg.Path, err)
		}
		if !ok {
			line, ok = f.file.takeUnterminated()
		}
		if !ok {
			rewound, err := f.file.truncated()
			if err != nil {
				return nil, err
			}
			if rewound {
				logger.Warnf("Input file %s was truncated; reading from the start", f.file.cfg.Path)
				f.fragments.reset()
				continue
			}
			if f.onIdle != nil {
				f.onIdle()
			}
			if err := sleepCtx(ctx, f.file.cfg.PollInterval); err != nil {
				return nil, err
			}
			continue
		}

		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		m.LineRead(metrics.PhaseLive)

		event, ok, discarded := f.fragments.feed(line)
		if discarded {
			m.FragmentBufferDiscarded()
			logger.Debugf("Discarded partial-line buffer after %d fragments", f.file.cfg.MaxFragments)
		}
		if !ok {
			m.MalformedLine(metrics.PhaseLive)
			continue
		}
		return event, nil
	}
}
