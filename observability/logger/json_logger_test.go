package logger

import (
	"bytes"
	"context"
	stdjson "encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitystore/observability/types"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"debug", DebugLevel},
		{"info", InfoLevel},
		{"warn", WarnLevel},
		{"WARNING", WarnLevel},
		{"error", ErrorLevel},
		{"unknown", InfoLevel},
		{"", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "debug", DebugLevel.String())
	assert.Equal(t, "error", ErrorLevel.String())
	assert.Equal(t, "unknown", LogLevel(99).String())
}

func TestJSONLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name      string
		logLevel  string
		logMethod func(*JSONLogger, context.Context)
		shouldLog bool
	}{
		{
			name:      "debug level logs debug",
			logLevel:  "debug",
			logMethod: func(l *JSONLogger, ctx context.Context) { l.Debug(ctx, "test", nil) },
			shouldLog: true,
		},
		{
			name:      "info level skips debug",
			logLevel:  "info",
			logMethod: func(l *JSONLogger, ctx context.Context) { l.Debug(ctx, "test", nil) },
			shouldLog: false,
		},
		{
			name:      "error level skips warn",
			logLevel:  "error",
			logMethod: func(l *JSONLogger, ctx context.Context) { l.Warn(ctx, "test", nil) },
			shouldLog: false,
		},
		{
			name:      "error level logs error",
			logLevel:  "error",
			logMethod: func(l *JSONLogger, ctx context.Context) { l.Error(ctx, "test", errors.New("boom"), nil) },
			shouldLog: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New("test", "test", tt.logLevel, &buf, nil)

			tt.logMethod(logger, context.Background())

			if tt.shouldLog {
				assert.NotEmpty(t, buf.String())
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestJSONLogger_StructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New("entity-service.adapter", "prod", "info", &buf, types.Fields{
		"version": "1.0.0",
	})

	ctx := context.WithValue(context.Background(), types.RequestIDKey, "req-123")
	ctx = context.WithValue(ctx, types.TraceIDKey, "trace-456")
	ctx = context.WithValue(ctx, types.ActionKey, "save")

	logger.Info(ctx, "entity saved", types.Fields{
		"collection": "avatars",
		"key":        "a.png",
	})

	var entry map[string]interface{}
	require.NoError(t, stdjson.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "entity-service.adapter", entry["service"])
	assert.Equal(t, "prod", entry["env"])
	assert.Equal(t, "entity saved", entry["message"])
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "trace-456", entry["trace_id"])
	assert.Equal(t, "save", entry["action"])
	assert.Equal(t, "1.0.0", entry["version"])
	assert.Equal(t, "avatars", entry["collection"])
	assert.Equal(t, "a.png", entry["key"])
	assert.NotEmpty(t, entry["timestamp"])
	assert.NotEmpty(t, entry["hostname"])
}

func TestJSONLogger_Error(t *testing.T) {
	var buf bytes.Buffer
	logger := New("test", "test", "error", &buf, nil)

	logger.Error(context.Background(), "S3 error", errors.New("connection refused"), types.Fields{
		"bucket": "avatars",
	})

	var entry map[string]interface{}
	require.NoError(t, stdjson.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "S3 error", entry["message"])
	assert.Equal(t, "connection refused", entry["error"])
	assert.Equal(t, "*errors.errorString", entry["error_type"])
	assert.Equal(t, "avatars", entry["bucket"])
}

func TestJSONLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	base := New("test", "test", "info", &buf, types.Fields{"component": "adapter"})

	child := base.WithFields(types.Fields{"collection": "avatars"})
	child.Info(context.Background(), "child", types.Fields{"extra": "field"})
	base.Info(context.Background(), "base", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var childEntry, baseEntry map[string]interface{}
	require.NoError(t, stdjson.Unmarshal([]byte(lines[0]), &childEntry))
	require.NoError(t, stdjson.Unmarshal([]byte(lines[1]), &baseEntry))

	assert.Equal(t, "adapter", childEntry["component"])
	assert.Equal(t, "avatars", childEntry["collection"])
	assert.Equal(t, "field", childEntry["extra"])

	_, leaked := baseEntry["collection"]
	assert.False(t, leaked, "WithFields must not mutate the parent logger")
}

func TestJSONLogger_ConcurrentWritesStayLineDelimited(t *testing.T) {
	var buf bytes.Buffer
	logger := New("test", "test", "info", &buf, nil)
	child := logger.WithFields(types.Fields{"child": true})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			logger.Info(context.Background(), "parent", nil)
		}()
		go func() {
			defer wg.Done()
			child.Info(context.Background(), "child", nil)
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 100)
	for _, line := range lines {
		assert.True(t, stdjson.Valid([]byte(line)), line)
	}
}
