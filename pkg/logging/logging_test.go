package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		" Warn ":  slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}

	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestDefaultConfig_FromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_JSON", "true")

	cfg := DefaultConfig()
	assert.Equal(t, slog.LevelDebug, cfg.Level)
	assert.True(t, cfg.JSON)
}

func TestProductionConfig(t *testing.T) {
	cfg := ProductionConfig()
	assert.True(t, cfg.JSON)
	assert.Equal(t, slog.LevelInfo, cfg.Level)
}

func TestSetup_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Config{Level: slog.LevelWarn, JSON: true, Output: &buf})

	logger.Info("dropped")
	logger.Warn("kept", "component", "rates")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "rates", entry["component"])
}
