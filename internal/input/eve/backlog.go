package eve

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"minisiem/internal/logger"
	"minisiem/internal/metrics"
	"minisiem/pkg/models"
)

// BacklogStats summarizes one backlog pass.
type BacklogStats struct {
	Lines     int
	Malformed int
	Events    int
	Bytes     int64
}

// ReadBacklog decodes every line currently in the file, from byte 0, and
// hands each event to fn in file order. Undecodable lines are skipped. A
// missing file is not an error. On return the handle sits at end-of-file.
func (f *File) ReadBacklog(ctx context.Context, fn func(models.Event)) (BacklogStats, error) {
	var stats BacklogStats

	if !f.opened() {
		if err := f.open(io.SeekStart); err != nil {
			if os.IsNotExist(err) {
				logger.Infof("Input file %s does not exist yet; no backlog to replay", f.cfg.Path)
				return stats, nil
			}
			return stats, fmt.Errorf("open %s: %w", f.cfg.Path, err)
		}
	}
	start := f.offset

	handle := func(raw []byte) {
		line := bytes.TrimSpace(raw)
		if len(line) == 0 {
			return
		}
		stats.Lines++
		f.cfg.Metrics.LineRead(metrics.PhaseBacklog)
		event, err := decodeEvent(line)
		if err != nil {
			stats.Malformed++
			f.cfg.Metrics.MalformedLine(metrics.PhaseBacklog)
			return
		}
		stats.Events++
		fn(event)
	}

	for {
		if stats.Lines%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
		}
		line, ok, err := f.readLine()
		if err != nil {
			return stats, fmt.Errorf("read %s: %w", f.cfg.Path, err)
		}
		if !ok {
			break
		}
		handle(line)
	}

	// An unfinished final line is left pending for the follower unless it
	// is already a whole object.
	if line, ok := f.takeUnterminated(); ok {
		handle(line)
	}

	stats.Bytes = f.offset - start
	return stats, nil
}
