package opensearch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"minisiem/internal/metrics"
)

// Config configures the OpenSearch writer.
type Config struct {
	URL            string
	Index          string
	Shards         int
	ReadyTimeout   time.Duration
	ReadyInterval  time.Duration
	RequestTimeout time.Duration
	RetryBackoff   time.Duration
	Compress       bool
	Headers        map[string]string
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
	Metrics   *metrics.Metrics
}

// Writer indexes alert batches through the bulk API. One HTTP client is
// shared by every call so connections are pooled.
type Writer struct {
	cfg     Config
	baseURL string
	client  *http.Client
}

// NewWriter creates an OpenSearch writer.
func NewWriter(cfg Config) (*Writer, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("opensearch URL is empty")
	}
	if strings.TrimSpace(cfg.Index) == "" {
		return nil, fmt.Errorf("opensearch index is empty")
	}
	if cfg.Shards <= 0 {
		cfg.Shards = 1
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 120 * time.Second
	}
	if cfg.ReadyInterval <= 0 {
		cfg.ReadyInterval = 2 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}

	client := &http.Client{}
	if cfg.Transport != nil {
		client.Transport = cfg.Transport
	}

	return &Writer{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		client:  client,
	}, nil
}

// Index returns the target index name.
func (w *Writer) Index() string {
	return w.cfg.Index
}

// Close releases HTTP resources.
func (w *Writer) Close() error {
	w.client.CloseIdleConnections()
	return nil
}

type response struct {
	status int
	body   []byte
}

func (r response) ok() bool {
	return r.status >= 200 && r.status < 300
}

func (w *Writer) do(ctx context.Context, method, path string, timeout time.Duration, body []byte, headers map[string]string) (response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, w.baseURL+path, reader)
	if err != nil {
		return response{}, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range w.cfg.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return response{}, fmt.Errorf("%s %s: read response: %w", method, path, err)
	}
	return response{status: resp.StatusCode, body: respBody}, nil
}

func statusError(method, path string, r response) error {
	msg := strings.TrimSpace(string(r.body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return fmt.Errorf("%s %s failed with status %d: %s", method, path, r.status, msg)
}
