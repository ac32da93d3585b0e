package opensearch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"minisiem/internal/logger"
	"minisiem/pkg/models"
)

// ErrBatchDropped is returned by WriteBatch when both delivery attempts
// failed and the batch was given up.
var ErrBatchDropped = errors.New("bulk batch dropped")

// BulkResult summarizes an accepted bulk response.
type BulkResult struct {
	Took       int
	Items      int
	ItemErrors int
	FirstError string
}

type bulkResponse struct {
	Took   int                   `json:"took"`
	Errors bool                  `json:"errors"`
	Items  []map[string]bulkItem `json:"items"`
}

type bulkItem struct {
	Index  string          `json:"_index"`
	Status int             `json:"status"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// EncodeBulk renders events as bulk NDJSON: an index action line naming
// the target index before every document, newline-terminated.
func EncodeBulk(index string, events []models.Event) ([]byte, error) {
	action, err := json.Marshal(map[string]map[string]string{"index": {"_index": index}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal bulk action: %w", err)
	}

	var buf bytes.Buffer
	for _, event := range events {
		doc, err := json.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal document: %w", err)
		}
		buf.Write(action)
		buf.WriteByte('\n')
		buf.Write(doc)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func gzipBody(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := gz.Write(body); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteBatch delivers one batch. A failed submission is retried exactly
// once after the retry backoff; if that fails too the batch is dropped
// and ErrBatchDropped is returned. Per-document errors in an accepted
// response are logged, never retried.
func (w *Writer) WriteBatch(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}

	body, err := w.encode(events)
	if err != nil {
		logger.Errorf("Failed to encode bulk batch of %d, dropping: %v", len(events), err)
		w.cfg.Metrics.BatchDropped()
		return fmt.Errorf("%w: %v", ErrBatchDropped, err)
	}

	res, err := w.Submit(ctx, body, len(events))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Errorf("Bulk error: %v", err)
		w.cfg.Metrics.BulkRetry()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.cfg.RetryBackoff):
		}

		res, err = w.Submit(ctx, body, len(events))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Errorf("Bulk failed again, dropping batch of %d: %v", len(events), err)
			w.cfg.Metrics.BatchDropped()
			return fmt.Errorf("%w (%d events): %v", ErrBatchDropped, len(events), err)
		}
	}

	if res.ItemErrors > 0 {
		w.cfg.Metrics.ItemErrors(res.ItemErrors)
		logger.Errorf("Bulk item errors: %d of %d documents rejected, first: %s", res.ItemErrors, res.Items, res.FirstError)
	}
	return nil
}

func (w *Writer) encode(events []models.Event) ([]byte, error) {
	body, err := EncodeBulk(w.cfg.Index, events)
	if err != nil {
		return nil, err
	}
	if w.cfg.Compress {
		return gzipBody(body)
	}
	return body, nil
}

// Submit performs a single POST /_bulk with an already encoded body.
// Transport failures and non-2xx statuses are errors.
func (w *Writer) Submit(ctx context.Context, body []byte, docs int) (BulkResult, error) {
	headers := map[string]string{"Content-Type": "application/x-ndjson"}
	if w.cfg.Compress {
		headers["Content-Encoding"] = "gzip"
	}

	resp, err := w.do(ctx, http.MethodPost, "/_bulk", w.cfg.RequestTimeout, body, headers)
	if err != nil {
		w.cfg.Metrics.BulkResult(false, docs)
		return BulkResult{}, err
	}
	if !resp.ok() {
		w.cfg.Metrics.BulkResult(false, docs)
		return BulkResult{}, statusError(http.MethodPost, "/_bulk", resp)
	}
	w.cfg.Metrics.BulkResult(true, docs)

	var parsed bulkResponse
	if err := json.Unmarshal(resp.body, &parsed); err != nil {
		logger.Warnf("Failed to decode bulk response: %v", err)
		return BulkResult{Items: docs}, nil
	}
	return summarize(parsed), nil
}

func summarize(parsed bulkResponse) BulkResult {
	res := BulkResult{Took: parsed.Took, Items: len(parsed.Items)}
	if !parsed.Errors {
		return res
	}
	for _, item := range parsed.Items {
		for _, result := range item {
			if len(result.Error) == 0 || string(result.Error) == "null" {
				continue
			}
			res.ItemErrors++
			if res.FirstError == "" {
				res.FirstError = string(result.Error)
			}
		}
	}
	return res
}
