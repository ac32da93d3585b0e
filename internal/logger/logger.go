package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Level is the logging level.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

// Logger is a basic logger wrapper.
type Logger struct {
	level   Level
	logger  zerolog.Logger
	enabled bool
}

// Options controls logger output.
type Options struct {
	Enabled bool
	Level   string
	File    string
	Console bool
	Pretty  bool
}

var globalLogger *Logger

// Init initializes the logger.
func Init(opts Options) error {
	if !opts.Enabled {
		globalLogger = &Logger{enabled: false}
		return nil
	}

	var writers []io.Writer

	if opts.File != "" {
		dir := filepath.Dir(opts.File)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, f)
	}

	if opts.Console || len(writers) == 0 {
		if opts.Pretty {
			writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05"})
		} else {
			writers = append(writers, os.Stdout)
		}
	}

	level := parseLevel(opts.Level)
	globalLogger = &Logger{
		level: level,
		logger: zerolog.New(io.MultiWriter(writers...)).
			Level(zerologLevel(level)).
			With().
			Timestamp().
			Str("service", "minisiem-ingest").
			Logger(),
		enabled: true,
	}

	return nil
}

func parseLevel(levelStr string) Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return Debug
	case "info":
		return Info
	case "warn", "warning":
		return Warn
	case "error":
		return Error
	default:
		return Info
	}
}

func zerologLevel(level Level) zerolog.Level {
	switch level {
	case Debug:
		return zerolog.DebugLevel
	case Warn:
		return zerolog.WarnLevel
	case Error:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func active(level Level) bool {
	return globalLogger != nil && globalLogger.enabled && globalLogger.level <= level
}

// Debugf logs a debug message.
func Debugf(format string, args ...interface{}) {
	if !active(Debug) {
		return
	}
	globalLogger.logger.Debug().Msgf(format, args...)
}

// Infof logs an info message.
func Infof(format string, args ...interface{}) {
	if !active(Info) {
		return
	}
	globalLogger.logger.Info().Msgf(format, args...)
}

// Warnf logs a warning.
func Warnf(format string, args ...interface{}) {
	if !active(Warn) {
		return
	}
	globalLogger.logger.Warn().Msgf(format, args...)
}

// Errorf logs an error message.
func Errorf(format string, args ...interface{}) {
	if !active(Error) {
		return
	}
	globalLogger.logger.Error().Msgf(format, args...)
}
