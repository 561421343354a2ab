// Package types holds the observability contracts shared by the logger,
// metrics and provider packages.
package types

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"
)

// ContextKey is the type of context keys read by loggers
type ContextKey string

// Context keys copied into log entries when present
const (
	TraceIDKey   ContextKey = "trace_id"
	RequestIDKey ContextKey = "request_id"
	ActionKey    ContextKey = "action"
)

// Logger defines the contract for structured logging.
// All methods are context-aware to support request tracing and correlation.
type Logger interface {
	// Info logs an informational message.
	Info(ctx context.Context, msg string, fields Fields)

	// Error logs an error message with the associated error.
	Error(ctx context.Context, msg string, err error, fields Fields)

	// Warn logs a warning message.
	Warn(ctx context.Context, msg string, fields Fields)

	// Debug logs a debug message. Typically filtered out in production.
	Debug(ctx context.Context, msg string, fields Fields)

	// WithFields returns a new Logger that adds fields to every entry.
	WithFields(fields Fields) Logger
}

// Metrics defines the contract for metrics collection.
type Metrics interface {
	// RecordSuccess increments the success counter for an operation.
	RecordSuccess(operation string)

	// RecordError increments the error counters for an operation and error category.
	RecordError(operation string, errorType string)

	// RecordDuration records the duration of an operation in seconds.
	RecordDuration(operation string, seconds float64)

	// RecordObjectSize records the size in bytes of an object moved by an operation.
	RecordObjectSize(operation string, bytes int64)

	// StartOperation increments the in-progress gauge for an operation.
	// Must be paired with EndOperation.
	StartOperation(operation string)

	// EndOperation decrements the in-progress gauge for an operation.
	EndOperation(operation string)
}

// Fields represents structured logging fields as key-value pairs.
// Values must be JSON-serializable.
type Fields map[string]interface{}

// Config holds observability configuration for the provider.
type Config struct {
	// ServiceName identifies the service in logs and metrics.
	ServiceName string

	// Environment is the deployment environment ("development", "production", ...).
	Environment string

	// LogLevel is the minimum level written: "debug", "info", "warn" or "error".
	LogLevel string

	// LogOutput receives log lines. Defaults to os.Stdout.
	LogOutput io.Writer

	// AdditionalFields are included in every log entry.
	AdditionalFields Fields

	// Registerer receives the metric collectors. Defaults to
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// Provider manages the lifecycle of observability components.
// Repeated calls with the same component name return the same instance.
type Provider interface {
	Logger(component string) Logger
	Metrics(component string) Metrics
	Close() error
}
