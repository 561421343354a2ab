package observability

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"entitystore/observability/logger"
	"entitystore/observability/metrics"
	"entitystore/observability/types"
)

// Logger is the structured logging contract.
type Logger = types.Logger

// Metrics is the metrics collection contract.
type Metrics = types.Metrics

// Fields are structured log fields.
type Fields = types.Fields

// Config is the observability configuration.
type Config = types.Config

// Provider hands out per-component loggers and metrics.
type Provider = types.Provider

// DefaultProvider implements Provider. Loggers and metrics are created
// lazily and memoised per component.
type DefaultProvider struct {
	config  *Config
	loggers map[string]Logger
	metrics map[string]Metrics
	sink    *metrics.CloudWatchSink
	mu      sync.RWMutex
}

// NewProvider creates a provider. LogOutput defaults to os.Stdout and
// Registerer to prometheus.DefaultRegisterer.
func NewProvider(config *Config) *DefaultProvider {
	if config.LogOutput == nil {
		config.LogOutput = os.Stdout
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.DefaultRegisterer
	}

	return &DefaultProvider{
		config:  config,
		loggers: make(map[string]Logger),
		metrics: make(map[string]Metrics),
	}
}

// Logger returns the logger for component. Entries carry a "component"
// field and the service name "{ServiceName}.{component}".
func (p *DefaultProvider) Logger(component string) Logger {
	p.mu.RLock()
	if l, exists := p.loggers[component]; exists {
		p.mu.RUnlock()
		return l
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if l, exists := p.loggers[component]; exists {
		return l
	}

	fields := make(Fields, len(p.config.AdditionalFields)+1)
	for k, v := range p.config.AdditionalFields {
		fields[k] = v
	}
	fields["component"] = component

	l := logger.New(
		p.serviceName(component, "."),
		p.config.Environment,
		p.config.LogLevel,
		p.config.LogOutput,
		fields,
	)
	p.loggers[component] = l

	return l
}

// Metrics returns the metrics for component, prefixed with
// "{ServiceName}_{component}" after sanitisation.
func (p *DefaultProvider) Metrics(component string) Metrics {
	p.mu.RLock()
	if m, exists := p.metrics[component]; exists {
		p.mu.RUnlock()
		return m
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if m, exists := p.metrics[component]; exists {
		return m
	}

	var m Metrics
	if p.sink != nil {
		m = metrics.NewCloudWatch(component, p.sink)
	} else {
		m = metrics.NewWithRegisterer(p.serviceName(component, "_"), p.config.Registerer)
	}
	p.metrics[component] = m

	return m
}

// UseCloudWatch routes metrics created from now on to sink instead of
// Prometheus. Call it before handing out any Metrics.
func (p *DefaultProvider) UseCloudWatch(sink *metrics.CloudWatchSink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink = sink
}

func (p *DefaultProvider) serviceName(component, sep string) string {
	parts := make([]string, 0, 2)
	if p.config.ServiceName != "" {
		parts = append(parts, p.config.ServiceName)
	}
	if component != "" {
		parts = append(parts, component)
	}
	return strings.Join(parts, sep)
}

// Close closes LogOutput when it is an io.Closer other than stdout/stderr.
func (p *DefaultProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if closer, ok := p.config.LogOutput.(io.Closer); ok {
		if closer != os.Stdout && closer != os.Stderr {
			return closer.Close()
		}
	}

	return nil
}
