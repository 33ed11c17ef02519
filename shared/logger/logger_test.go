package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBuffered(t *testing.T, cfg Config) (*Logger, *bytes.Buffer) {
	t.Helper()
	output := &bytes.Buffer{}
	cfg.writer = output
	l, err := New(&cfg)
	require.NoError(t, err)
	require.NotNil(t, l)
	return l, output
}

func decodeLines(t *testing.T, output *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(output.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestNew_LevelFiltering(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantLevel []string
	}{
		{name: "trace keeps everything", level: "trace", wantLevel: []string{"DEBUG-4", "DEBUG", "INFO", "WARN", "ERROR"}},
		{name: "debug", level: "debug", wantLevel: []string{"DEBUG", "INFO", "WARN", "ERROR"}},
		{name: "info", level: "info", wantLevel: []string{"INFO", "WARN", "ERROR"}},
		{name: "warn", level: "warn", wantLevel: []string{"WARN", "ERROR"}},
		{name: "error", level: "error", wantLevel: []string{"ERROR"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, output := newBuffered(t, Config{Level: tt.level, Format: "json"})

			l.Log(t.Context(), LevelTrace, "frame received")
			l.Debug("batch drawn")
			l.Info("worker connected", slog.Int("worker_id", 1))
			l.Warn("session aborted")
			l.Error("spawn failed")

			entries := decodeLines(t, output)
			levels := make([]string, 0, len(entries))
			for _, e := range entries {
				levels = append(levels, e["level"].(string))
			}
			assert.Equal(t, tt.wantLevel, levels)
		})
	}
}

func TestNew_ConsoleFormat(t *testing.T) {
	tests := []struct {
		name      string
		noColor   bool
		wantColor bool
	}{
		{name: "colored for terminals", noColor: false, wantColor: true},
		{name: "plain for redirected worker output", noColor: true, wantColor: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, output := newBuffered(t, Config{Level: "info", Format: "console", NoColor: tt.noColor})

			l.Info("worker started", slog.Int("worker_id", 3))

			// tint abbreviates levels
			out := output.String()
			assert.Contains(t, out, "INF")
			assert.Contains(t, out, "worker started")
			assert.Contains(t, out, "worker_id=")
			assert.Equal(t, tt.wantColor, strings.Contains(out, "\x1b["))
		})
	}
}

func TestNew_SourceLocation(t *testing.T) {
	l, output := newBuffered(t, Config{Level: "info", Format: "json", EnableSource: true})

	l.Info("message with source")

	entries := decodeLines(t, output)
	require.Len(t, entries, 1)
	source, ok := entries[0]["source"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, source, "file")
	assert.Contains(t, source, "line")
}

func TestNewDefault(t *testing.T) {
	l := NewDefault()
	require.NotNil(t, l)
	assert.NotNil(t, l.Logger)
	assert.NoError(t, l.Close())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		expected slog.Level
	}{
		{name: "trace", level: "trace", expected: LevelTrace},
		{name: "debug", level: "debug", expected: slog.LevelDebug},
		{name: "info", level: "info", expected: slog.LevelInfo},
		{name: "warn", level: "warn", expected: slog.LevelWarn},
		{name: "warning alias", level: "warning", expected: slog.LevelWarn},
		{name: "error", level: "error", expected: slog.LevelError},
		{name: "relayed uppercase trace", level: "TRACE", expected: LevelTrace},
		{name: "case insensitive", level: "DEBUG", expected: slog.LevelDebug},
		{name: "mixed case warn", level: "Warn", expected: slog.LevelWarn},
		{name: "unknown", level: "verbose", expected: slog.LevelInfo},
		{name: "empty", level: "", expected: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.level))
		})
	}
}

func TestLogger_Derived(t *testing.T) {
	tests := []struct {
		name   string
		derive func(l *Logger) *Logger
		check  func(t *testing.T, entry map[string]interface{})
	}{
		{
			name:   "with group",
			derive: func(l *Logger) *Logger { return l.WithGroup("session") },
			check: func(t *testing.T, entry map[string]interface{}) {
				group, ok := entry["session"].(map[string]interface{})
				require.True(t, ok)
				assert.Equal(t, "abc123", group["job_id"])
			},
		},
		{
			name: "with attrs",
			derive: func(l *Logger) *Logger {
				return l.WithAttrs(slog.String("run_id", "run-1"), slog.Int("worker_id", 2))
			},
			check: func(t *testing.T, entry map[string]interface{}) {
				assert.Equal(t, "run-1", entry["run_id"])
				assert.Equal(t, float64(2), entry["worker_id"])
				assert.Equal(t, "abc123", entry["job_id"])
			},
		},
		{
			name:   "with key values",
			derive: func(l *Logger) *Logger { return l.With("component", "listener") },
			check: func(t *testing.T, entry map[string]interface{}) {
				assert.Equal(t, "listener", entry["component"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, output := newBuffered(t, Config{Level: "info", Format: "json"})

			derived := tt.derive(l)
			require.NotNil(t, derived)
			derived.Info("download finished", slog.String("job_id", "abc123"))

			entries := decodeLines(t, output)
			require.Len(t, entries, 1)
			assert.Equal(t, "download finished", entries[0]["msg"])
			tt.check(t, entries[0])
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "master.log")

	l, err := New(&Config{
		Level:      "info",
		Format:     "json",
		Output:     path,
		MaxSizeMB:  1,
		MaxBackups: 2,
	})
	require.NoError(t, err)

	// derived loggers share the file
	l.With("worker_id", 0).Info("written to file", slog.String("key", "value"))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "written to file", entry["msg"])
	assert.Equal(t, "value", entry["key"])
	assert.Equal(t, float64(0), entry["worker_id"])
}

func TestNew_FileOutputUnwritableDirectory(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	l, err := New(&Config{Level: "info", Output: filepath.Join(blocker, "master.log"), TimeFormat: time.RFC3339})
	require.Error(t, err)
	assert.Nil(t, l)
}

func TestLogger_CloseWithoutFile(t *testing.T) {
	l, _ := newBuffered(t, Config{Level: "info", Format: "json"})
	assert.NoError(t, l.Close())
}
