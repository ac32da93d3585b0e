package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"minisiem/config"
	"minisiem/internal/input/eve"
	"minisiem/internal/logger"
	"minisiem/internal/metrics"
	"minisiem/internal/output/alerthttp"
	"minisiem/internal/output/alertredis"
	"minisiem/internal/output/deadletterjson"
	"minisiem/internal/output/deadletters3"
	"minisiem/internal/output/opensearch"
	"minisiem/internal/pipeline"
	"minisiem/internal/rules"
)

const defaultConfigName = "minisiem.yml"

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat(defaultConfigName); err == nil {
		return defaultConfigName
	}

	exePath, err := os.Executable()
	if err == nil {
		path := filepath.Join(filepath.Dir(exePath), defaultConfigName)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return defaultConfigName
}

func applyDefaults(cfg *config.Config, fromFile bool) {
	in := &cfg.Ingest

	if in.Input.Path == "" {
		in.Input.Path = "/var/log/suricata/eve.json"
	}
	if in.Input.PollInterval <= 0 {
		in.Input.PollInterval = 500 * time.Millisecond
	}
	if in.Input.WaitInterval <= 0 {
		in.Input.WaitInterval = 500 * time.Millisecond
	}
	if in.Input.MaxFragments <= 0 {
		in.Input.MaxFragments = 1000
	}

	if in.Pipeline.LiveBatchSize <= 0 {
		in.Pipeline.LiveBatchSize = 200
	}
	if in.Pipeline.BacklogBatchSize <= 0 {
		in.Pipeline.BacklogBatchSize = 1000
	}
	if in.Pipeline.FlushInterval <= 0 {
		in.Pipeline.FlushInterval = 1500 * time.Millisecond
	}

	if in.OpenSearch.URL == "" {
		in.OpenSearch.URL = "http://opensearch:9200"
	}
	if in.OpenSearch.Index == "" {
		in.OpenSearch.Index = "suricata-logs"
	}
	if in.OpenSearch.Shards <= 0 {
		in.OpenSearch.Shards = 1
	}
	if in.OpenSearch.ReadyTimeout <= 0 {
		in.OpenSearch.ReadyTimeout = 120 * time.Second
	}
	if in.OpenSearch.RequestTimeout <= 0 {
		in.OpenSearch.RequestTimeout = 15 * time.Second
	}
	if in.OpenSearch.RetryBackoff <= 0 {
		in.OpenSearch.RetryBackoff = time.Second
	}

	if in.Notify.Mode == "" {
		in.Notify.Mode = "http"
	}
	if in.Notify.HTTP.Timeout <= 0 {
		in.Notify.HTTP.Timeout = 1500 * time.Millisecond
	}
	if in.Notify.Redis.Key == "" {
		in.Notify.Redis.Key = "suricata_alerts"
	}

	if in.DeadLetter.Mode == "" {
		in.DeadLetter.Mode = "file"
	}
	if in.DeadLetter.File.Path == "" {
		in.DeadLetter.File.Path = "output/dropped_batches.jsonl"
	}

	if in.Metrics.Addr == "" {
		in.Metrics.Addr = ":9108"
	}

	// Without a config file the process runs from environment alone and
	// still needs to log somewhere.
	if !fromFile {
		in.Logging.Enabled = true
		in.Logging.Console = true
	}
	if in.Logging.Level == "" {
		in.Logging.Level = "info"
	}
}

func fatalf(format string, args ...interface{}) {
	logger.Errorf(format, args...)
	log.Fatalf(format, args...)
}

func main() {
	configArg := pflag.StringP("config", "c", "", "path to "+defaultConfigName)
	logLevel := pflag.String("log-level", "", "override logging level (debug|info|warn|error)")
	pflag.Parse()

	configPath := findConfigFile(*configArg)
	cfg, fromFile, err := config.LoadOptional(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	config.ApplyEnv(cfg, os.LookupEnv)
	if *logLevel != "" {
		cfg.Ingest.Logging.Level = *logLevel
	}
	applyDefaults(cfg, fromFile)
	in := cfg.Ingest

	if err := logger.Init(logger.Options{
		Enabled: in.Logging.Enabled,
		Level:   in.Logging.Level,
		File:    in.Logging.File,
		Console: in.Logging.Console,
		Pretty:  in.Logging.Pretty,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Infof("minisiem ingest starting")
	if fromFile {
		logger.Infof("Config loaded from: %s", configPath)
	} else {
		logger.Infof("No config file at %s; using environment and defaults", configPath)
	}
	logger.Infof("OpenSearch: %s index=%s", in.OpenSearch.URL, in.OpenSearch.Index)
	logger.Infof("Input: %s", in.Input.Path)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if in.Metrics.Enabled {
		m = metrics.New()
		go func() {
			if err := m.Serve(ctx, in.Metrics.Addr); err != nil {
				logger.Errorf("Metrics listener failed: %v", err)
			}
		}()
		logger.Infof("Metrics listening on %s/metrics", in.Metrics.Addr)
	}

	writer, err := opensearch.NewWriter(opensearch.Config{
		URL:            in.OpenSearch.URL,
		Index:          in.OpenSearch.Index,
		Shards:         in.OpenSearch.Shards,
		ReadyTimeout:   in.OpenSearch.ReadyTimeout,
		RequestTimeout: in.OpenSearch.RequestTimeout,
		RetryBackoff:   in.OpenSearch.RetryBackoff,
		Compress:       in.OpenSearch.Compress,
		Headers:        in.OpenSearch.Headers,
		Metrics:        m,
	})
	if err != nil {
		fatalf("Failed to create OpenSearch writer: %v", err)
	}
	interrupted, err := bootstrapIndex(ctx, writer)
	if err != nil {
		fatalf("%v", err)
	}
	if interrupted {
		logger.Infof("interrupted, exiting.")
		return
	}

	notifier := newNotifier(in.Notify)
	deadLetters := newDeadLetterWriter(ctx, in.DeadLetter)
	engine := newRuleEngine(in.Rules)

	file := eve.NewFile(eve.Config{
		Path:         in.Input.Path,
		PollInterval: in.Input.PollInterval,
		WaitInterval: in.Input.WaitInterval,
		MaxFragments: in.Input.MaxFragments,
		Metrics:      m,
	})

	pipe := pipeline.NewIngestPipeline(file, writer, notifier, deadLetters, engine, m, pipeline.Options{
		LiveBatchSize:    in.Pipeline.LiveBatchSize,
		BacklogBatchSize: in.Pipeline.BacklogBatchSize,
		FlushInterval:    in.Pipeline.FlushInterval,
	})

	err = pipe.Run(ctx)
	if cerr := pipe.Close(); cerr != nil {
		logger.Errorf("Error closing pipeline: %v", cerr)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fatalf("Pipeline error: %v", err)
	}
	logger.Infof("interrupted, exiting.")
}

type indexBootstrapper interface {
	WaitReady(ctx context.Context) error
	EnsureIndex(ctx context.Context) error
}

// bootstrapIndex waits for the cluster and creates the index. A signal
// arriving during either step reports interrupted instead of an error.
func bootstrapIndex(ctx context.Context, w indexBootstrapper) (interrupted bool, err error) {
	if err := w.WaitReady(ctx); err != nil {
		if ctx.Err() != nil {
			return true, nil
		}
		return false, fmt.Errorf("OpenSearch not ready: %w", err)
	}
	logger.Infof("OpenSearch is ready")

	if err := w.EnsureIndex(ctx); err != nil {
		if ctx.Err() != nil {
			return true, nil
		}
		return false, fmt.Errorf("failed to ensure index: %w", err)
	}
	return false, nil
}

func newNotifier(cfg config.NotifyConfig) pipeline.Notifier {
	switch cfg.Mode {
	case "http":
		hc := alerthttp.Config{URL: cfg.HTTP.URL, APIKey: cfg.HTTP.APIKey, Timeout: cfg.HTTP.Timeout}
		if !hc.Enabled() {
			logger.Infof("Alert notification disabled (API_URL or API_KEY unset)")
			return nil
		}
		w, err := alerthttp.NewWriter(hc)
		if err != nil {
			fatalf("Failed to create alert HTTP writer: %v", err)
		}
		logger.Infof("Alert notification: http (%s/alert)", strings.TrimRight(cfg.HTTP.URL, "/"))
		return w
	case "redis":
		w, err := alertredis.NewWriter(alertredis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
			Timeout:  cfg.Redis.Timeout,
		})
		if err != nil {
			fatalf("Failed to create alert Redis writer: %v", err)
		}
		logger.Infof("Alert notification: redis (%s)", w.Key())
		return w
	case "none":
		return nil
	default:
		fatalf("Unknown notify mode: %s", cfg.Mode)
		return nil
	}
}

func newDeadLetterWriter(ctx context.Context, cfg config.DeadLetterConfig) pipeline.DeadLetterWriter {
	if !cfg.Enabled {
		return nil
	}
	switch cfg.Mode {
	case "file":
		w, err := deadletterjson.NewWriter(cfg.File.Path)
		if err != nil {
			fatalf("Failed to create dead letter file writer: %v", err)
		}
		logger.Infof("Dead letter mode: file (%s)", cfg.File.Path)
		return w
	case "s3":
		w, err := deadletters3.NewWriter(ctx, deadletters3.Config{
			Region:  cfg.S3.Region,
			Bucket:  cfg.S3.Bucket,
			Prefix:  cfg.S3.Prefix,
			Timeout: cfg.S3.Timeout,
		})
		if err != nil {
			fatalf("Failed to create dead letter S3 writer: %v", err)
		}
		logger.Infof("Dead letter mode: s3 (%s/%s)", cfg.S3.Bucket, cfg.S3.Prefix)
		return w
	default:
		fatalf("Unknown dead letter mode: %s", cfg.Mode)
		return nil
	}
}

func newRuleEngine(cfg config.RulesConfig) rules.Engine {
	if !cfg.Enabled {
		return nil
	}
	if strings.TrimSpace(cfg.Path) == "" {
		logger.Warnf("Rules enabled but rules.path is empty; rule tagging disabled")
		return nil
	}
	engine, stats, err := rules.NewSigmaEngine(cfg.Path)
	if err != nil {
		fatalf("Failed to load Sigma rules from %s: %v", cfg.Path, err)
	}
	logger.Infof("Sigma rules loaded: loaded=%d skipped_complex=%d skipped_datasource=%d skipped_invalid=%d files=%d",
		stats.Loaded,
		stats.SkippedComplex,
		stats.SkippedDatasource,
		stats.SkippedInvalid,
		stats.TotalFiles,
	)
	if stats.Loaded == 0 {
		logger.Warnf("No compatible Sigma rules loaded; rule tagging is effectively disabled")
		return nil
	}
	return engine
}
