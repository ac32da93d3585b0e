package deadletterjson

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"

	"minisiem/internal/logger"
	"minisiem/pkg/models"
)

// Writer appends dropped bulk batches to a JSON lines file.
type Writer struct {
	path    string
	file    *os.File
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewWriter opens path for appending, creating parent directories.
func NewWriter(path string) (*Writer, error) {
	if path == "" {
		return nil, fmt.Errorf("dead letter path is empty")
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}

	logger.Infof("Dead letter JSON writer initialized: %s", path)
	return &Writer{
		path:    path,
		file:    f,
		encoder: json.NewEncoder(f),
	}, nil
}

// Archive writes one line per event.
func (w *Writer) Archive(_ context.Context, events []models.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, event := range events {
		if err := w.encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode dead letter: %w", err)
		}
	}
	return nil
}

// Close closes the output file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		err := w.file.Close()
		w.file = nil
		return err
	}
	return nil
}
