package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Ingest IngestConfig `yaml:"ingest"`
}

// IngestConfig is the project configuration.
type IngestConfig struct {
	Input      InputConfig      `yaml:"input"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	OpenSearch OpenSearchConfig `yaml:"opensearch"`
	Notify     NotifyConfig     `yaml:"notify"`
	DeadLetter DeadLetterConfig `yaml:"dead_letter"`
	Rules      RulesConfig      `yaml:"rules"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// InputConfig controls the eve.json reader.
type InputConfig struct {
	Path         string        `yaml:"path"`
	PollInterval time.Duration `yaml:"poll_interval"`
	WaitInterval time.Duration `yaml:"wait_interval"`
	MaxFragments int           `yaml:"max_fragments"`
}

// PipelineConfig controls batching.
type PipelineConfig struct {
	LiveBatchSize    int           `yaml:"live_batch_size"`
	BacklogBatchSize int           `yaml:"backlog_batch_size"`
	FlushInterval    time.Duration `yaml:"flush_interval"`
}

// OpenSearchConfig controls the bulk sink.
type OpenSearchConfig struct {
	URL            string            `yaml:"url"`
	Index          string            `yaml:"index"`
	Shards         int               `yaml:"shards"`
	ReadyTimeout   time.Duration     `yaml:"ready_timeout"`
	RequestTimeout time.Duration     `yaml:"request_timeout"`
	RetryBackoff   time.Duration     `yaml:"retry_backoff"`
	Compress       bool              `yaml:"compress"`
	Headers        map[string]string `yaml:"headers"`
}

// NotifyConfig controls per-alert notification.
type NotifyConfig struct {
	Mode  string            `yaml:"mode"` // http|redis
	HTTP  NotifyHTTPConfig  `yaml:"http"`
	Redis NotifyRedisConfig `yaml:"redis"`
}

// NotifyHTTPConfig config for the alert API endpoint.
type NotifyHTTPConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// NotifyRedisConfig config for pushing alerts onto a Redis list.
type NotifyRedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Key      string        `yaml:"key"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DeadLetterConfig controls archiving of dropped bulk batches.
type DeadLetterConfig struct {
	Enabled bool             `yaml:"enabled"`
	Mode    string           `yaml:"mode"` // file|s3
	File    FileOutputConfig `yaml:"file"`
	S3      S3OutputConfig   `yaml:"s3"`
}

// FileOutputConfig config for local JSON output.
type FileOutputConfig struct {
	Path string `yaml:"path"`
}

// S3OutputConfig config for gzip JSONL objects in S3.
type S3OutputConfig struct {
	Region  string        `yaml:"region"`
	Bucket  string        `yaml:"bucket"`
	Prefix  string        `yaml:"prefix"`
	Timeout time.Duration `yaml:"timeout"`
}

// RulesConfig controls Sigma tagging of alerts.
type RulesConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MetricsConfig controls the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
	Pretty  bool   `yaml:"pretty"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadOptional behaves like LoadConfig but returns an empty Config when the
// file does not exist, so the process can run from environment alone.
func LoadOptional(path string) (*Config, bool, error) {
	cfg, err := LoadConfig(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Config{}, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

// ApplyEnv overlays the recognised environment variables on top of cfg.
// Unset or blank variables leave the file value in place.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	in := &cfg.Ingest
	set("OPENSEARCH_URL", &in.OpenSearch.URL)
	set("INDEX_NAME", &in.OpenSearch.Index)
	set("EVE_PATH", &in.Input.Path)
	set("API_URL", &in.Notify.HTTP.URL)
	set("API_KEY", &in.Notify.HTTP.APIKey)
	set("LOG_LEVEL", &in.Logging.Level)
}
