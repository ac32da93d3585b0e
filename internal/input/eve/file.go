package eve

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/afero"

	"minisiem/internal/logger"
	"minisiem/internal/metrics"
)

// Config configures access to the eve log.
type Config struct {
	Path         string
	PollInterval time.Duration
	WaitInterval time.Duration
	MaxFragments int
	FS           afero.Fs
	Metrics      *metrics.Metrics
}

// File is the single read handle shared by the backlog pass and the
// follower. The follower resumes exactly where the backlog stopped.
type File struct {
	cfg    Config
	fs     afero.Fs
	file   afero.File
	reader *bufio.Reader
	// pending holds bytes of a line whose newline has not been written yet.
	pending []byte
	offset  int64
}

// NewFile prepares a reader for cfg.Path. Nothing is opened until the
// backlog or the follower needs the file.
func NewFile(cfg Config) *File {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.WaitInterval <= 0 {
		cfg.WaitInterval = 500 * time.Millisecond
	}
	if cfg.MaxFragments <= 0 {
		cfg.MaxFragments = 1000
	}
	fs := cfg.FS
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &File{cfg: cfg, fs: fs}
}

// Path returns the watched path.
func (f *File) Path() string {
	return f.cfg.Path
}

// Offset returns the number of bytes consumed so far, pending bytes included.
func (f *File) Offset() int64 {
	return f.offset
}

// Close releases the file handle.
func (f *File) Close() error {
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	f.reader = nil
	return err
}

func (f *File) opened() bool {
	return f.file != nil
}

func (f *File) open(whence int) error {
	file, err := f.fs.Open(f.cfg.Path)
	if err != nil {
		return err
	}
	offset, err := file.Seek(0, whence)
	if err != nil {
		file.Close()
		return fmt.Errorf("seek %s: %w", f.cfg.Path, err)
	}
	f.file = file
	f.reader = bufio.NewReaderSize(file, 64*1024)
	f.offset = offset
	f.pending = nil
	return nil
}

// openAtEnd waits for the file to exist and positions the handle at its
// end. It is a no-op when the backlog already opened the file.
func (f *File) openAtEnd(ctx context.Context) error {
	if f.opened() {
		return nil
	}

	waiting := false
	for {
		err := f.open(io.SeekEnd)
		if err == nil {
			if waiting {
				logger.Infof("Input file appeared: %s", f.cfg.Path)
			}
			return nil
		}
		if !os.IsNotExist(err) {
			return fmt.Errorf("open %s: %w", f.cfg.Path, err)
		}
		if !waiting {
			logger.Infof("Waiting for input file: %s", f.cfg.Path)
			waiting = true
		}
		if err := sleepCtx(ctx, f.cfg.WaitInterval); err != nil {
			return err
		}
	}
}

// readLine returns the next newline-terminated line. ok is false when only
// an incomplete line (or nothing) is available right now.
func (f *File) readLine() ([]byte, bool, error) {
	chunk, err := f.reader.ReadBytes('\n')
	f.offset += int64(len(chunk))
	if len(chunk) > 0 {
		f.pending = append(f.pending, chunk...)
	}
	if err == io.EOF {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	line := f.pending
	f.pending = nil
	return line, true, nil
}

// takeUnterminated hands out the pending tail when it already forms a
// complete JSON object. A writer never appends to a closed object, so only
// the trailing newline is still missing.
func (f *File) takeUnterminated() ([]byte, bool) {
	trimmed := bytes.TrimSpace(f.pending)
	if !isCompleteObject(trimmed) {
		return nil, false
	}
	f.pending = nil
	return trimmed, true
}

// truncated detects a file that shrank below the read offset and rewinds
// to byte 0.
func (f *File) truncated() (bool, error) {
	info, err := f.file.Stat()
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", f.cfg.Path, err)
	}
	if info.Size() >= f.offset {
		return false, nil
	}
	if _, err := f.file.Seek(0, io.SeekStart); err != nil {
		return false, fmt.Errorf("seek %s: %w", f.cfg.Path, err)
	}
	f.reader.Reset(f.file)
	f.offset = 0
	f.pending = nil
	return true, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
