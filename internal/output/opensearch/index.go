package opensearch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"minisiem/internal/logger"
)

// WaitReady polls GET / until the cluster answers with a 2xx status or the
// ready timeout elapses.
func (w *Writer) WaitReady(ctx context.Context) error {
	deadline := time.Now().Add(w.cfg.ReadyTimeout)
	var lastErr error
	for {
		resp, err := w.do(ctx, http.MethodGet, "/", 3*time.Second, nil, nil)
		if err == nil && resp.ok() {
			return nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = statusError(http.MethodGet, "/", resp)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("opensearch not reachable at %s: %w", w.baseURL, lastErr)
		}
		logger.Debugf("OpenSearch not ready yet: %v", lastErr)

		// The last wait is cut short so one probe lands on the deadline.
		wait := w.cfg.ReadyInterval
		if remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// indexBody returns the fixed settings and mapping used at creation.
func (w *Writer) indexBody() map[string]interface{} {
	return map[string]interface{}{
		"settings": map[string]interface{}{
			"index": map[string]interface{}{"number_of_shards": w.cfg.Shards},
		},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"timestamp": map[string]interface{}{"type": "date"},
				"src_ip":    map[string]interface{}{"type": "ip"},
				"dest_ip":   map[string]interface{}{"type": "ip"},
				"alert":     map[string]interface{}{"type": "object", "enabled": true},
			},
		},
	}
}

// EnsureIndex creates the index with its mapping when it does not exist.
// Another process creating it first is not an error.
func (w *Writer) EnsureIndex(ctx context.Context) error {
	path := "/" + w.cfg.Index

	head, err := w.do(ctx, http.MethodHead, path, 5*time.Second, nil, nil)
	if err != nil {
		return fmt.Errorf("check index %s: %w", w.cfg.Index, err)
	}
	switch {
	case head.ok():
		logger.Infof("Index %s already exists", w.cfg.Index)
		return nil
	case head.status != http.StatusNotFound:
		return fmt.Errorf("check index %s: %w", w.cfg.Index, statusError(http.MethodHead, path, head))
	}

	body, err := json.Marshal(w.indexBody())
	if err != nil {
		return fmt.Errorf("failed to marshal index mapping: %w", err)
	}
	resp, err := w.do(ctx, http.MethodPut, path, 10*time.Second, body, map[string]string{
		"Content-Type": "application/json",
	})
	if err != nil {
		return fmt.Errorf("create index %s: %w", w.cfg.Index, err)
	}
	if resp.ok() {
		logger.Infof("Index %s created", w.cfg.Index)
		return nil
	}
	if resp.status == http.StatusBadRequest && bytes.Contains(resp.body, []byte("resource_already_exists_exception")) {
		logger.Infof("Index %s was created concurrently", w.cfg.Index)
		return nil
	}
	return fmt.Errorf("create index %s: %w", w.cfg.Index, statusError(http.MethodPut, path, resp))
}
