// Package metrics provides the Prometheus and CloudWatch metrics backends.
package metrics

import (
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements types.Metrics using the Prometheus client library.
// All metric names are prefixed with the sanitised component name.
//
// Exposed metrics:
//   - {prefix}_processed_total{status,type}
//   - {prefix}_errors_total{error_type,operation}
//   - {prefix}_duration_seconds{operation}
//   - {prefix}_object_size_bytes{operation}
//   - {prefix}_in_progress{operation}
type PrometheusMetrics struct {
	prefix string

	processedTotal  *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	durationSeconds *prometheus.HistogramVec
	objectSizeBytes *prometheus.HistogramVec
	inProgress      *prometheus.GaugeVec
}

// New creates metrics registered with the default Prometheus registry.
func New(prefix string) *PrometheusMetrics {
	return NewWithRegisterer(prefix, prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates metrics registered with reg. Creating metrics
// twice for the same prefix reuses the collectors already registered, so
// two providers in one process do not panic.
func NewWithRegisterer(prefix string, reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	name := SanitizeName(prefix)
	m := &PrometheusMetrics{prefix: name}

	m.processedTotal = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: name + "_processed_total",
			Help: "Total processed operations by " + prefix,
		},
		[]string{"status", "type"},
	))

	m.errorsTotal = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: name + "_errors_total",
			Help: "Total errors in " + prefix,
		},
		[]string{"error_type", "operation"},
	))

	m.durationSeconds = register(reg, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    name + "_duration_seconds",
			Help:    "Operation duration in " + prefix,
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	))

	// 1KB .. 1GB
	m.objectSizeBytes = register(reg, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    name + "_object_size_bytes",
			Help:    "Object sizes moved by " + prefix,
			Buckets: prometheus.ExponentialBuckets(1024, 10, 7),
		},
		[]string{"operation"},
	))

	m.inProgress = register(reg, prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: name + "_in_progress",
			Help: "Operations in progress in " + prefix,
		},
		[]string{"operation"},
	))

	return m
}

// register returns the collector already registered under the same
// descriptor when there is one.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// SanitizeName maps a component name to a valid Prometheus metric prefix.
// Anything outside [a-zA-Z0-9_] becomes '_', and a leading digit is prefixed.
func SanitizeName(name string) string {
	if name == "" {
		return "unnamed"
	}

	var b strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// Prefix returns the sanitised metric name prefix.
func (m *PrometheusMetrics) Prefix() string {
	return m.prefix
}

// RecordSuccess increments processed_total with status="success".
func (m *PrometheusMetrics) RecordSuccess(operation string) {
	m.processedTotal.WithLabelValues("success", operation).Inc()
}

// RecordError increments processed_total with status="error" and the
// detailed errors_total counter.
func (m *PrometheusMetrics) RecordError(operation string, errorType string) {
	m.processedTotal.WithLabelValues("error", operation).Inc()
	m.errorsTotal.WithLabelValues(errorType, operation).Inc()
}

// RecordDuration observes an operation duration in seconds.
func (m *PrometheusMetrics) RecordDuration(operation string, seconds float64) {
	m.durationSeconds.WithLabelValues(operation).Observe(seconds)
}

// RecordObjectSize observes the size of an object read or written.
// Unknown sizes (negative) are skipped.
func (m *PrometheusMetrics) RecordObjectSize(operation string, bytes int64) {
	if bytes < 0 {
		return
	}
	m.objectSizeBytes.WithLabelValues(operation).Observe(float64(bytes))
}

// StartOperation increments the in-progress gauge. Pair with EndOperation.
func (m *PrometheusMetrics) StartOperation(operation string) {
	m.inProgress.WithLabelValues(operation).Inc()
}

// EndOperation decrements the in-progress gauge.
func (m *PrometheusMetrics) EndOperation(operation string) {
	m.inProgress.WithLabelValues(operation).Dec()
}
