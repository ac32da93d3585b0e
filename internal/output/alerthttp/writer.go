package alerthttp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"minisiem/pkg/models"
)

// Writer posts single alerts to the alert API.
type Writer struct {
	endpoint string
	apiKey   string
	headers  map[string]string
	client   *http.Client
}

// Config configures the HTTP writer.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
	Headers map[string]string
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Enabled reports whether both the endpoint and the key are set.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.URL) != "" && strings.TrimSpace(c.APIKey) != ""
}

// NewWriter creates an HTTP writer.
func NewWriter(cfg Config) (*Writer, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("http alert URL is empty")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("http alert API key is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 1500 * time.Millisecond
	}
	client := &http.Client{Timeout: timeout}
	if cfg.Transport != nil {
		client.Transport = cfg.Transport
	}
	return &Writer{
		endpoint: strings.TrimRight(cfg.URL, "/") + "/alert",
		apiKey:   cfg.APIKey,
		headers:  cfg.Headers,
		client:   client,
	}, nil
}

// SendAlert posts one alert record as its raw JSON object.
func (w *Writer) SendAlert(ctx context.Context, event models.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("x-api-key", w.apiKey)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("http request failed with status %s", resp.Status)
	}

	return nil
}

// Close releases HTTP resources.
func (w *Writer) Close() error {
	w.client.CloseIdleConnections()
	return nil
}
