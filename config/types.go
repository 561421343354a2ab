package config

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Core settings
	Environment string
	ServiceName string
	LogLevel    string
	Version     string

	// Component configurations
	Storage StorageConfig
	HTTP    HTTPConfig
	Handler HandlerConfig
	Lambda  LambdaConfig
	Events  EventsConfig
	Metrics MetricsConfig
}

// StorageConfig holds the object store connection settings shared by every backend
type StorageConfig struct {
	// Provider selects the backend: "s3", "minio" or "fs"
	Provider string

	Endpoint     string
	Port         int
	UseSSL       bool
	AccessKey    string
	SecretKey    string
	SessionToken string
	Region       string
	PartSize     uint64
	PathStyle    bool

	// Bucket is the default bucket used when callers pass an empty bucket name
	Bucket       string
	CreateBucket bool

	// Compression applied to stored entities: "", "gzip" or "zstd"
	Compression string

	// BasePath is the root directory of the fs provider
	BasePath string

	Timeout       time.Duration
	MaxRetries    int
	EnableMetrics bool

	// Transport overrides the HTTP transport of the s3 and minio clients
	Transport http.RoundTripper
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// HandlerConfig holds handler configuration
type HandlerConfig struct {
	Timeout        time.Duration
	MaxRequestSize int64
	EnableMetrics  bool
	Platform       string // auto-detected if empty
}

// LambdaConfig holds Lambda-specific configuration
type LambdaConfig struct {
	ProcessingTimeout         time.Duration
	EnablePartialBatchFailure bool
}

// EventsConfig holds entity event publishing configuration
type EventsConfig struct {
	Enabled bool

	// Broker selects the publisher: "rabbitmq" or "sqs"
	Broker string

	RabbitMQURL string
	Exchange    string

	SQSQueueURL string
	SQSRegion   string
}

// MetricsConfig selects where metrics are exported
type MetricsConfig struct {
	// Backend is "prometheus" (scraped from /metrics) or "cloudwatch"
	Backend string

	CloudWatchNamespace string
	CloudWatchRegion    string
	FlushInterval       time.Duration
}

// Validate validates the entire configuration
func (c *Config) Validate() error {
	var errors []string

	if c.ServiceName == "" {
		errors = append(errors, "SERVICE_NAME is required")
	}

	errors = append(errors, c.Storage.problems()...)

	if c.Handler.Timeout <= 0 {
		errors = append(errors, "HANDLER_TIMEOUT must be positive")
	}
	if c.Handler.MaxRequestSize <= 0 {
		errors = append(errors, "HANDLER_MAX_REQUEST_SIZE must be positive")
	}
	if c.HTTP.Addr == "" && c.Handler.Platform == "http" {
		errors = append(errors, "HTTP_ADDR is required for the http platform")
	}
	if c.Events.Enabled {
		switch c.Events.Broker {
		case "rabbitmq":
			if c.Events.RabbitMQURL == "" {
				errors = append(errors, "RABBITMQ_URL is required when EVENTS_ENABLED is set")
			}
		case "sqs":
			if c.Events.SQSQueueURL == "" {
				errors = append(errors, "EVENTS_SQS_QUEUE_URL is required for the sqs broker")
			}
		default:
			errors = append(errors, fmt.Sprintf("EVENTS_BROKER %q is not supported", c.Events.Broker))
		}
	}

	switch c.Metrics.Backend {
	case "prometheus":
	case "cloudwatch":
		if c.Metrics.FlushInterval <= 0 {
			errors = append(errors, "METRICS_FLUSH_INTERVAL must be positive")
		}
	default:
		errors = append(errors, fmt.Sprintf("METRICS_BACKEND %q is not supported", c.Metrics.Backend))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// Validate validates the storage configuration on its own.
// Backends call it before dialing.
func (s *StorageConfig) Validate() error {
	if problems := s.problems(); len(problems) > 0 {
		return fmt.Errorf("invalid storage configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (s *StorageConfig) problems() []string {
	var errors []string

	switch s.Provider {
	case "s3":
	case "minio":
		if s.Endpoint == "" {
			errors = append(errors, "STORAGE_ENDPOINT is required for the minio provider")
		}
	case "fs":
		if s.BasePath == "" {
			errors = append(errors, "STORAGE_BASE_PATH is required for the fs provider")
		}
	case "":
		errors = append(errors, "STORAGE_PROVIDER is required")
	default:
		errors = append(errors, fmt.Sprintf("unsupported STORAGE_PROVIDER %q", s.Provider))
	}

	if s.Port < 0 || s.Port > 65535 {
		errors = append(errors, "STORAGE_PORT must be between 0 and 65535")
	}
	if s.MaxRetries < 0 {
		errors = append(errors, "STORAGE_MAX_RETRIES cannot be negative")
	}
	if s.Timeout <= 0 {
		errors = append(errors, "STORAGE_TIMEOUT must be positive")
	}
	switch s.Compression {
	case "", "gzip", "zstd":
	default:
		errors = append(errors, fmt.Sprintf("unsupported STORAGE_COMPRESSION %q", s.Compression))
	}

	return errors
}

// EndpointURL returns the endpoint as a URL, adding the scheme and port when missing.
// An empty endpoint yields an empty string.
func (s *StorageConfig) EndpointURL() string {
	if s.Endpoint == "" {
		return ""
	}
	if strings.Contains(s.Endpoint, "://") {
		return s.Endpoint
	}
	scheme := "http"
	if s.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, s.HostPort())
}

// HostPort returns endpoint[:port] without a scheme, as the minio client expects it
func (s *StorageConfig) HostPort() string {
	host := s.Endpoint
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	host = strings.TrimSuffix(host, "/")
	if s.Port > 0 && !strings.Contains(host, ":") {
		host = fmt.Sprintf("%s:%d", host, s.Port)
	}
	return host
}

// applyDefaults applies environment-specific defaults
func (c *Config) applyDefaults() {
	if c.Storage.Bucket == "" && c.ServiceName != "" {
		c.Storage.Bucket = strings.ToLower(c.ServiceName)
	}
	if c.Storage.Region == "" {
		c.Storage.Region = "us-east-1"
	}
	if c.Metrics.CloudWatchNamespace == "" {
		c.Metrics.CloudWatchNamespace = fmt.Sprintf("%s/%s", c.ServiceName, c.Environment)
	}
	if c.Metrics.CloudWatchRegion == "" {
		c.Metrics.CloudWatchRegion = c.Storage.Region
	}
	if c.Handler.Platform == "" || c.Handler.Platform == "auto" {
		if IsLambda() {
			c.Handler.Platform = "lambda"
		} else {
			c.Handler.Platform = "http"
		}
	}

	if c.IsProduction() {
		c.Handler.EnableMetrics = true
		if c.LogLevel == "debug" {
			c.LogLevel = "info"
		}
	}

	if c.IsLocal() && c.Storage.Provider == "" {
		c.Storage.Provider = "fs"
	}
}
