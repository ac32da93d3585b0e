package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevelDefaultsToInfo(t *testing.T) {
	cases := map[string]Level{
		"debug":   Debug,
		"INFO":    Info,
		"warning": Warn,
		" error ": Error,
		"":        Info,
		"verbose": Info,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q): expected %d, got %d", in, want, got)
		}
	}
}

func TestInitWritesFilteredLevelsToFile(t *testing.T) {
	defer func() { globalLogger = nil }()

	path := filepath.Join(t.TempDir(), "logs", "ingest.log")
	if err := Init(Options{Enabled: true, Level: "warn", File: path}); err != nil {
		t.Fatalf("init logger: %v", err)
	}

	Infof("startup %d", 1)
	Warnf("bulk error: %s", "boom")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "startup 1") {
		t.Fatalf("did not expect info message below warn level: %s", out)
	}
	if !strings.Contains(out, "bulk error: boom") {
		t.Fatalf("expected warn message in log output, got: %s", out)
	}
}

func TestDisabledLoggerDropsEverything(t *testing.T) {
	defer func() { globalLogger = nil }()

	if err := Init(Options{Enabled: false}); err != nil {
		t.Fatalf("init logger: %v", err)
	}
	if active(Error) {
		t.Fatalf("expected disabled logger to be inactive")
	}
	Errorf("ignored")
}
