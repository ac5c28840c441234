// Package logging provides structured logging configuration using log/slog.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds logging configuration options.
type Config struct {
	// Level is the minimum log level to output.
	Level slog.Level
	// JSON enables JSON output format (for production).
	JSON bool
	// Output is the writer to write logs to. Defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns a logging configuration driven by the environment.
// LOG_LEVEL accepts DEBUG, INFO, WARN or ERROR (default INFO); LOG_JSON=true selects the JSON handler.
func DefaultConfig() Config {
	cfg := Config{
		Level:  slog.LevelInfo,
		Output: os.Stderr,
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.Level = ParseLevel(logLevel)
	}
	if v := os.Getenv("LOG_JSON"); v != "" {
		cfg.JSON, _ = strconv.ParseBool(v)
	}
	return cfg
}

// ProductionConfig returns a logging configuration suitable for production.
func ProductionConfig() Config {
	return Config{
		Level:  slog.LevelInfo,
		JSON:   true,
		Output: os.Stderr,
	}
}

// ParseLevel converts a string log level to slog.Level. Unknown values map to INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup initializes the default slog logger with the given configuration.
func Setup(cfg Config) *slog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level: cfg.Level,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
