package alertredis

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	redis "github.com/redis/go-redis/v9"

	"minisiem/pkg/models"
)

// Config configures the Redis list notifier.
type Config struct {
	Addr     string
	Password string
	DB       int
	Key      string
	Timeout  time.Duration
}

// Writer pushes alert records onto a Redis list.
type Writer struct {
	client  *redis.Client
	key     string
	timeout time.Duration
}

// NewWriter creates a Redis list notifier.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("redis key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 1500 * time.Millisecond
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
		MaxRetries:   -1,
	})

	return &Writer{
		client:  client,
		key:     cfg.Key,
		timeout: cfg.Timeout,
	}, nil
}

// Key returns the target list.
func (w *Writer) Key() string {
	return w.key
}

// SendAlert appends one alert to the list.
func (w *Writer) SendAlert(ctx context.Context, event models.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	if err := w.client.RPush(ctx, w.key, body).Err(); err != nil {
		return fmt.Errorf("redis rpush %s: %w", w.key, err)
	}
	return nil
}

// Close closes the client.
func (w *Writer) Close() error {
	return w.client.Close()
}
