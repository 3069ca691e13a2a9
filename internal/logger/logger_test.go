package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{
			name:   "default config",
			config: nil,
		},
		{
			name: "custom json config",
			config: &Config{
				Level:  "debug",
				Format: "json",
			},
		},
		{
			name: "console config",
			config: &Config{
				Level:  "info",
				Format: "console",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.config)
			assert.NotNil(t, logger)
		})
	}
}

func TestLogger_JSONOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(&Config{
		Level:  "info",
		Format: "json",
		Output: buf,
	})

	logger.Info("test message")

	var logEntry map[string]interface{}
	err := json.Unmarshal(buf.Bytes(), &logEntry)
	require.NoError(t, err)

	assert.Equal(t, "info", logEntry["level"])
	assert.Equal(t, "test message", logEntry["message"])
	assert.NotEmpty(t, logEntry["time"])
}

func TestLogger_WithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(&Config{
		Level:  "info",
		Format: "json",
		Output: buf,
	})

	childLogger := logger.With().
		Str("component", "filestore").
		Int("attempt", 1).
		Logger()

	childLogger.Info("bucket listed")

	var logEntry map[string]interface{}
	err := json.Unmarshal(buf.Bytes(), &logEntry)
	require.NoError(t, err)

	assert.Equal(t, "filestore", logEntry["component"])
	assert.Equal(t, float64(1), logEntry["attempt"])
	assert.Equal(t, "bucket listed", logEntry["message"])
}

func TestLogger_ErrorWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(&Config{
		Level:  "error",
		Format: "json",
		Output: buf,
	})

	testErr := errors.New("connection refused")
	logger.ErrorWith("operation failed", testErr, map[string]interface{}{
		"op":     "list_buckets",
		"bucket": "demo",
	})

	var logEntry map[string]interface{}
	err := json.Unmarshal(buf.Bytes(), &logEntry)
	require.NoError(t, err)

	assert.Equal(t, "error", logEntry["level"])
	assert.Equal(t, "operation failed", logEntry["message"])
	assert.Equal(t, "connection refused", logEntry["error"])
	assert.Equal(t, "list_buckets", logEntry["op"])
	assert.Equal(t, "demo", logEntry["bucket"])
}

func TestLogger_Context(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(&Config{
		Level:  "info",
		Format: "json",
		Output: buf,
	})

	ctx := logger.WithContext(context.Background())
	retrievedLogger := FromContext(ctx)

	retrievedLogger.Info("from context")

	var logEntry map[string]interface{}
	err := json.Unmarshal(buf.Bytes(), &logEntry)
	require.NoError(t, err)

	assert.Equal(t, "from context", logEntry["message"])
}

func TestFromContext_FallsBackToGlobal(t *testing.T) {
	buf := &bytes.Buffer{}
	SetGlobal(New(&Config{Level: "info", Format: "json", Output: buf}))
	t.Cleanup(func() { SetGlobal(nil) })

	FromContext(context.Background()).Info("no logger attached")
	assert.Contains(t, buf.String(), "no logger attached")

	SetGlobal(nil)
	buf.Reset()
	FromContext(context.Background()).Info("dropped")
	assert.Empty(t, buf.String())
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		logFunc  func(*Logger)
		expected bool // should log or not
	}{
		{
			name:  "debug level logs debug",
			level: "debug",
			logFunc: func(l *Logger) {
				l.Debug("debug message")
			},
			expected: true,
		},
		{
			name:  "info level skips debug",
			level: "info",
			logFunc: func(l *Logger) {
				l.Debug("debug message")
			},
			expected: false,
		},
		{
			name:  "warning alias logs warn",
			level: "warning",
			logFunc: func(l *Logger) {
				l.Warn("warn message")
			},
			expected: true,
		},
		{
			name:  "error level skips info",
			level: "error",
			logFunc: func(l *Logger) {
				l.Info("info message")
			},
			expected: false,
		},
		{
			name:  "disabled skips error",
			level: "disabled",
			logFunc: func(l *Logger) {
				l.Error("error message")
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := New(&Config{
				Level:  tt.level,
				Format: "json",
				Output: buf,
			})

			tt.logFunc(logger)

			if tt.expected {
				assert.NotEmpty(t, buf.String(), "expected log output")
			} else {
				assert.Empty(t, buf.String(), "expected no log output")
			}
		})
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Error("nothing")
	l.ErrorWith("nothing", errors.New("x"), nil)
}

func TestOpenLogFile_PrunesOldFiles(t *testing.T) {
	dir := t.TempDir()
	old := []string{
		"s3nav-2024-01-01-00-00-00.log",
		"s3nav-2024-01-02-00-00-00.log",
		"s3nav-2024-01-03-00-00-00.log",
		"s3nav-2024-01-04-00-00-00.log",
		"s3nav-2024-01-05-00-00-00.log",
		"s3nav-2024-01-06-00-00-00.log",
	}
	for _, name := range old {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0o644))

	now := time.Date(2024, 2, 1, 10, 30, 0, 0, time.UTC)
	f, err := OpenLogFile(dir, now)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, filepath.Join(dir, "s3nav-2024-02-01-10-30-00.log"), f.Name())

	logs, err := filepath.Glob(filepath.Join(dir, "*.log"))
	require.NoError(t, err)
	assert.Len(t, logs, MaxLogFiles)
	assert.NoFileExists(t, filepath.Join(dir, old[0]))
	assert.NoFileExists(t, filepath.Join(dir, old[1]))
	assert.FileExists(t, filepath.Join(dir, old[5]))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}

func TestOpenLogFile_RotatesAcrossHoursAndDays(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	var names []string
	for i := 0; i < 8; i++ {
		f, err := OpenLogFile(dir, start.Add(time.Duration(i)*25*time.Hour))
		require.NoError(t, err)
		names = append(names, filepath.Base(f.Name()))
		require.NoError(t, f.Close())
	}

	assert.Equal(t, "s3nav-2024-01-01-09-00-00.log", names[0])
	assert.Equal(t, "s3nav-2024-01-02-10-00-00.log", names[1])
	assert.Equal(t, "s3nav-2024-01-04-12-00-00.log", names[3])

	logs, err := filepath.Glob(filepath.Join(dir, "*.log"))
	require.NoError(t, err)
	for i := range logs {
		logs[i] = filepath.Base(logs[i])
	}
	assert.Equal(t, names[len(names)-MaxLogFiles:], logs)
}

func TestOpenLogFile_WritesThroughLogger(t *testing.T) {
	dir := t.TempDir()
	f, err := OpenLogFile(filepath.Join(dir, "nested"), time.Now())
	require.NoError(t, err)

	l := New(&Config{Level: "debug", Format: "json", Output: f})
	l.Debug("to file")
	require.NoError(t, f.Close())

	data, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestRedact(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"abc", "***"},
		{"AKIAIOSFODNN7", "AKIA*********"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Redact(tt.in))
	}
}

func BenchmarkLogger_Info(b *testing.B) {
	logger := New(&Config{
		Level:  "info",
		Format: "json",
		Output: io.Discard,
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("benchmark message")
	}
}

func BenchmarkLogger_WithFields(b *testing.B) {
	logger := New(&Config{
		Level:  "info",
		Format: "json",
		Output: io.Discard,
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.With().
			Str("op", "get_object").
			Int("attempt", i).
			Logger().
			Info("benchmark message")
	}
}
