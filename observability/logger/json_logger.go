// Package logger provides the JSON line logger used by every component.
// Each entry is a single JSON object so log aggregators (Loki, CloudWatch)
// can index the fields directly.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"entitystore/observability/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LogLevel represents the severity level of a log message.
type LogLevel int

// Log level constants ordered by severity (lowest to highest).
const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// ParseLevel converts a string representation to a LogLevel.
// Unrecognized levels default to InfoLevel.
func ParseLevel(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// String returns the string representation of a LogLevel.
func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "unknown"
	}
}

// JSONLogger implements types.Logger, writing one JSON object per line.
type JSONLogger struct {
	// mu serialises writes; loggers derived with WithFields share it
	mu               *sync.Mutex
	output           io.Writer
	serviceName      string
	environment      string
	hostname         string
	minLevel         LogLevel
	persistentFields types.Fields
}

// New creates a JSONLogger. A nil output defaults to os.Stdout.
func New(serviceName, environment, logLevel string, output io.Writer, additionalFields types.Fields) *JSONLogger {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	if output == nil {
		output = os.Stdout
	}

	return &JSONLogger{
		mu:               &sync.Mutex{},
		output:           output,
		serviceName:      serviceName,
		environment:      environment,
		hostname:         hostname,
		minLevel:         ParseLevel(logLevel),
		persistentFields: additionalFields,
	}
}

// Info logs at INFO level.
func (l *JSONLogger) Info(ctx context.Context, msg string, fields types.Fields) {
	l.log(ctx, InfoLevel, msg, nil, fields)
}

// Error logs at ERROR level. The error message and its dynamic type are
// included as "error" and "error_type".
func (l *JSONLogger) Error(ctx context.Context, msg string, err error, fields types.Fields) {
	l.log(ctx, ErrorLevel, msg, err, fields)
}

// Warn logs at WARN level.
func (l *JSONLogger) Warn(ctx context.Context, msg string, fields types.Fields) {
	l.log(ctx, WarnLevel, msg, nil, fields)
}

// Debug logs at DEBUG level.
func (l *JSONLogger) Debug(ctx context.Context, msg string, fields types.Fields) {
	l.log(ctx, DebugLevel, msg, nil, fields)
}

// WithFields returns a logger that adds fields to every entry.
// The receiver is left unchanged.
func (l *JSONLogger) WithFields(fields types.Fields) types.Logger {
	newFields := make(types.Fields, len(l.persistentFields)+len(fields))
	for k, v := range l.persistentFields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}

	return &JSONLogger{
		mu:               l.mu,
		output:           l.output,
		serviceName:      l.serviceName,
		environment:      l.environment,
		hostname:         l.hostname,
		minLevel:         l.minLevel,
		persistentFields: newFields,
	}
}

// log builds the entry. Precedence, lowest first: standard fields,
// context values, persistent fields, call fields.
func (l *JSONLogger) log(ctx context.Context, level LogLevel, msg string, err error, fields types.Fields) {
	if level < l.minLevel {
		return
	}

	entry := make(types.Fields, 8+len(l.persistentFields)+len(fields))

	entry["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level.String()
	entry["service"] = l.serviceName
	entry["env"] = l.environment
	entry["hostname"] = l.hostname
	entry["message"] = msg

	if ctx != nil {
		for _, key := range []types.ContextKey{types.TraceIDKey, types.RequestIDKey, types.ActionKey} {
			if v, ok := ctx.Value(key).(string); ok && v != "" {
				entry[string(key)] = v
			}
		}
	}

	if err != nil {
		entry["error"] = err.Error()
		entry["error_type"] = fmt.Sprintf("%T", err)
	}

	for k, v := range l.persistentFields {
		entry[k] = v
	}
	for k, v := range fields {
		entry[k] = v
	}

	line, marshalErr := json.Marshal(entry)
	if marshalErr != nil {
		line, _ = json.Marshal(types.Fields{
			"timestamp": entry["timestamp"],
			"level":     ErrorLevel.String(),
			"service":   l.serviceName,
			"message":   "unserializable log entry",
			"error":     marshalErr.Error(),
		})
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.output.Write(line)
}
