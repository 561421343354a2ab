package config

import "time"

// DefaultHandlerConfig returns sensible defaults for handler configuration
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		Timeout:        30 * time.Second,
		MaxRequestSize: 32 * 1024 * 1024, // 32MB, entities travel base64 encoded
		EnableMetrics:  true,
		Platform:       "", // Auto-detect
	}
}

// DefaultHTTPConfig returns sensible defaults for the HTTP server
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Addr:            ":8080",
		ReadTimeout:     60 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultLambdaConfig returns sensible defaults for Lambda configuration
func DefaultLambdaConfig() LambdaConfig {
	return LambdaConfig{
		ProcessingTimeout:         30 * time.Second,
		EnablePartialBatchFailure: true,
	}
}

// DefaultStorageConfig returns sensible defaults for storage configuration
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Provider:      "minio",
		Region:        "us-east-1",
		PartSize:      16 * 1024 * 1024,
		EnableMetrics: true,
		MaxRetries:    3,
		Timeout:       30 * time.Second,
	}
}

// DefaultEventsConfig returns sensible defaults for event publishing
func DefaultEventsConfig() EventsConfig {
	return EventsConfig{
		Enabled:  false,
		Broker:   "rabbitmq",
		Exchange: "entities",
	}
}

// DefaultMetricsConfig returns sensible defaults for metrics export
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Backend:       "prometheus",
		FlushInterval: 10 * time.Second,
	}
}

// DefaultConfig returns a complete configuration with sensible defaults
// This is useful for testing or when you want to start with defaults and override specific parts
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		ServiceName: "entity-service",
		LogLevel:    "info",
		Version:     "1.0.0",

		Storage: DefaultStorageConfig(),
		HTTP:    DefaultHTTPConfig(),
		Handler: DefaultHandlerConfig(),
		Lambda:  DefaultLambdaConfig(),
		Events:  DefaultEventsConfig(),
		Metrics: DefaultMetricsConfig(),
	}
}
