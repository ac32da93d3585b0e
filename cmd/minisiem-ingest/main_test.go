package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"minisiem/config"
)

func TestApplyDefaultsFillsDocumentedValues(t *testing.T) {
	cfg := &config.Config{}
	applyDefaults(cfg, false)
	in := cfg.Ingest

	if in.OpenSearch.URL != "http://opensearch:9200" {
		t.Fatalf("expected default url, got %q", in.OpenSearch.URL)
	}
	if in.OpenSearch.Index != "suricata-logs" {
		t.Fatalf("expected default index, got %q", in.OpenSearch.Index)
	}
	if in.Input.Path != "/var/log/suricata/eve.json" {
		t.Fatalf("expected default eve path, got %q", in.Input.Path)
	}
	if in.Pipeline.LiveBatchSize != 200 || in.Pipeline.BacklogBatchSize != 1000 {
		t.Fatalf("unexpected batch sizes: %+v", in.Pipeline)
	}
	if in.Pipeline.FlushInterval != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s flush interval, got %v", in.Pipeline.FlushInterval)
	}
	if in.OpenSearch.ReadyTimeout != 120*time.Second || in.OpenSearch.RetryBackoff != time.Second {
		t.Fatalf("unexpected opensearch timings: %+v", in.OpenSearch)
	}
	if in.Input.MaxFragments != 1000 {
		t.Fatalf("expected 1000 max fragments, got %d", in.Input.MaxFragments)
	}
	if !in.Logging.Enabled || !in.Logging.Console || in.Logging.Level != "info" {
		t.Fatalf("expected console logging without a config file, got %+v", in.Logging)
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &config.Config{}
	cfg.Ingest.OpenSearch.Index = "custom"
	cfg.Ingest.Pipeline.LiveBatchSize = 10
	cfg.Ingest.Logging.Level = "debug"
	applyDefaults(cfg, true)

	if cfg.Ingest.OpenSearch.Index != "custom" || cfg.Ingest.Pipeline.LiveBatchSize != 10 {
		t.Fatalf("explicit values overwritten: %+v", cfg.Ingest)
	}
	if cfg.Ingest.Logging.Enabled {
		t.Fatalf("logging.enabled from file must be respected")
	}
	if cfg.Ingest.Logging.Level != "debug" {
		t.Fatalf("expected debug level kept, got %q", cfg.Ingest.Logging.Level)
	}
}

func TestEnvOverridesThenDefaults(t *testing.T) {
	env := map[string]string{"INDEX_NAME": "ids", "EVE_PATH": "/tmp/eve.json"}
	cfg := &config.Config{}
	config.ApplyEnv(cfg, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	applyDefaults(cfg, false)

	if cfg.Ingest.OpenSearch.Index != "ids" || cfg.Ingest.Input.Path != "/tmp/eve.json" {
		t.Fatalf("environment not applied: %+v", cfg.Ingest)
	}
	if cfg.Ingest.OpenSearch.URL != "http://opensearch:9200" {
		t.Fatalf("expected default url, got %q", cfg.Ingest.OpenSearch.URL)
	}
}

type fakeCluster struct {
	readyErr  error
	ensureErr error
	onEnsure  func()
	ensured   int
}

func (f *fakeCluster) WaitReady(ctx context.Context) error {
	return f.readyErr
}

func (f *fakeCluster) EnsureIndex(ctx context.Context) error {
	f.ensured++
	if f.onEnsure != nil {
		f.onEnsure()
	}
	if f.ensureErr != nil {
		return f.ensureErr
	}
	return ctx.Err()
}

func TestBootstrapIndexSignalDuringEnsureIsInterrupt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cluster := &fakeCluster{onEnsure: cancel}
	interrupted, err := bootstrapIndex(ctx, cluster)
	if err != nil {
		t.Fatalf("expected no error on interrupt, got %v", err)
	}
	if !interrupted {
		t.Fatalf("expected interrupted")
	}
}

func TestBootstrapIndexSignalDuringWaitIsInterrupt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cluster := &fakeCluster{readyErr: context.Canceled}
	interrupted, err := bootstrapIndex(ctx, cluster)
	if err != nil || !interrupted {
		t.Fatalf("expected interrupted without error, got %v %v", interrupted, err)
	}
	if cluster.ensured != 0 {
		t.Fatalf("expected no index bootstrap after interrupt")
	}
}

func TestBootstrapIndexFailuresAreErrors(t *testing.T) {
	boom := errors.New("401 unauthorized")

	interrupted, err := bootstrapIndex(context.Background(), &fakeCluster{ensureErr: boom})
	if interrupted || !errors.Is(err, boom) {
		t.Fatalf("expected ensure error, got %v %v", interrupted, err)
	}

	interrupted, err = bootstrapIndex(context.Background(), &fakeCluster{readyErr: boom})
	if interrupted || !errors.Is(err, boom) {
		t.Fatalf("expected ready error, got %v %v", interrupted, err)
	}

	interrupted, err = bootstrapIndex(context.Background(), &fakeCluster{})
	if interrupted || err != nil {
		t.Fatalf("expected success, got %v %v", interrupted, err)
	}
}
