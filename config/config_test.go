package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(*Config)
		expectedError string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:          "missing service name",
			mutate:        func(c *Config) { c.ServiceName = "" },
			expectedError: "SERVICE_NAME is required",
		},
		{
			name:          "unknown provider",
			mutate:        func(c *Config) { c.Storage.Provider = "gcs" },
			expectedError: `unsupported STORAGE_PROVIDER "gcs"`,
		},
		{
			name: "minio without endpoint",
			mutate: func(c *Config) {
				c.Storage.Provider = "minio"
				c.Storage.Endpoint = ""
			},
			expectedError: "STORAGE_ENDPOINT is required",
		},
		{
			name: "fs without base path",
			mutate: func(c *Config) {
				c.Storage.Provider = "fs"
				c.Storage.BasePath = ""
			},
			expectedError: "STORAGE_BASE_PATH is required",
		},
		{
			name:          "bad compression",
			mutate:        func(c *Config) { c.Storage.Compression = "brotli" },
			expectedError: "unsupported STORAGE_COMPRESSION",
		},
		{
			name:          "negative retries",
			mutate:        func(c *Config) { c.Storage.MaxRetries = -1 },
			expectedError: "STORAGE_MAX_RETRIES cannot be negative",
		},
		{
			name:          "non positive handler timeout",
			mutate:        func(c *Config) { c.Handler.Timeout = 0 },
			expectedError: "HANDLER_TIMEOUT must be positive",
		},
		{
			name: "events without broker url",
			mutate: func(c *Config) {
				c.Events.Enabled = true
				c.Events.RabbitMQURL = ""
			},
			expectedError: "RABBITMQ_URL is required",
		},
		{
			name: "sqs events without queue url",
			mutate: func(c *Config) {
				c.Events.Enabled = true
				c.Events.Broker = "sqs"
			},
			expectedError: "EVENTS_SQS_QUEUE_URL is required",
		},
		{
			name: "sqs events with queue url",
			mutate: func(c *Config) {
				c.Events.Enabled = true
				c.Events.Broker = "sqs"
				c.Events.SQSQueueURL = "https://sqs.us-east-1.amazonaws.com/123456789012/entities"
			},
		},
		{
			name: "unknown broker",
			mutate: func(c *Config) {
				c.Events.Enabled = true
				c.Events.Broker = "kafka"
			},
			expectedError: `EVENTS_BROKER "kafka" is not supported`,
		},
		{
			name:          "unknown metrics backend",
			mutate:        func(c *Config) { c.Metrics.Backend = "statsd" },
			expectedError: `METRICS_BACKEND "statsd" is not supported`,
		},
		{
			name: "cloudwatch without flush interval",
			mutate: func(c *Config) {
				c.Metrics.Backend = "cloudwatch"
				c.Metrics.FlushInterval = 0
			},
			expectedError: "METRICS_FLUSH_INTERVAL must be positive",
		},
		{
			name:   "cloudwatch backend",
			mutate: func(c *Config) { c.Metrics.Backend = "cloudwatch" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Storage.Endpoint = "localhost"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.expectedError == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedError)
		})
	}
}

func TestConfig_ValidateAggregatesErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ServiceName = ""
	cfg.Storage.Provider = ""

	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "SERVICE_NAME is required")
	assert.Contains(t, err.Error(), "STORAGE_PROVIDER is required")
}

func TestStorageConfig_EndpointURL(t *testing.T) {
	tests := []struct {
		name     string
		cfg      StorageConfig
		expected string
		hostPort string
	}{
		{"empty", StorageConfig{}, "", ""},
		{"plain host", StorageConfig{Endpoint: "minio.local"}, "http://minio.local", "minio.local"},
		{"with port", StorageConfig{Endpoint: "minio.local", Port: 9000}, "http://minio.local:9000", "minio.local:9000"},
		{"tls", StorageConfig{Endpoint: "s3.example.com", UseSSL: true}, "https://s3.example.com", "s3.example.com"},
		{"explicit scheme", StorageConfig{Endpoint: "http://localhost:4566", Port: 9000}, "http://localhost:4566", "localhost:4566"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.cfg.EndpointURL())
			assert.Equal(t, tt.hostPort, tt.cfg.HostPort())
		})
	}
}

func TestProvider_LoadFromEnvironment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "staging")
	t.Setenv("SERVICE_NAME", "Avatars")
	t.Setenv("STORAGE_PROVIDER", "minio")
	t.Setenv("STORAGE_ENDPOINT", "play.min.io")
	t.Setenv("STORAGE_PORT", "9000")
	t.Setenv("STORAGE_USE_SSL", "true")
	t.Setenv("STORAGE_ACCESS_KEY", "ak")
	t.Setenv("STORAGE_SECRET_KEY", "sk")
	t.Setenv("STORAGE_CREATE_BUCKET", "true")
	t.Setenv("STORAGE_TIMEOUT", "5s")
	t.Setenv("HANDLER_PLATFORM", "http")
	t.Setenv("STORAGE_COLLECTION", "")
	t.Setenv("STORAGE_REGION", "")
	t.Setenv("AWS_REGION", "")
	t.Setenv("CLOUDWATCH_NAMESPACE", "")
	t.Setenv("CLOUDWATCH_REGION", "")

	p := NewProvider(false)
	require.NoError(t, p.Load())
	assert.True(t, p.IsLoaded())

	cfg := p.MustGet()
	assert.Equal(t, "minio", cfg.Storage.Provider)
	assert.Equal(t, "play.min.io", cfg.Storage.Endpoint)
	assert.Equal(t, 9000, cfg.Storage.Port)
	assert.True(t, cfg.Storage.UseSSL)
	assert.True(t, cfg.Storage.CreateBucket)
	assert.Equal(t, 5*time.Second, cfg.Storage.Timeout)
	assert.Equal(t, "avatars", cfg.Storage.Bucket, "bucket defaults to the lower-cased service name")
	assert.Equal(t, "us-east-1", cfg.Storage.Region)
	assert.Equal(t, "Avatars/staging", cfg.Metrics.CloudWatchNamespace)
	assert.Equal(t, "us-east-1", cfg.Metrics.CloudWatchRegion)
	assert.True(t, cfg.IsStaging())
}

func TestProvider_LocalDefaultsToFilesystem(t *testing.T) {
	t.Setenv("ENVIRONMENT", "local")
	t.Setenv("STORAGE_PROVIDER", "")
	t.Setenv("HANDLER_PLATFORM", "http")

	p := NewProvider(false)
	require.NoError(t, p.Load())
	assert.Equal(t, "fs", p.MustGet().Storage.Provider)
}

func TestProvider_LoadInvalid(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("STORAGE_PROVIDER", "minio")
	t.Setenv("STORAGE_ENDPOINT", "")

	p := NewProvider(false)
	err := p.Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
	assert.False(t, p.IsLoaded())

	_, err = p.Get()
	assert.Error(t, err)
	assert.Panics(t, func() { p.MustGet() })
}

func TestProvider_EnvFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("STORAGE_PROVIDER=fs\nSTORAGE_BASE_PATH=/from-env\nSERVICE_NAME=files\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.local"), []byte("STORAGE_BASE_PATH=/from-local\n"), 0o644))
	t.Chdir(dir)

	// Register the variables with t.Setenv so they are restored after the test,
	// then clear them so the files provide the values.
	for _, key := range []string{"STORAGE_PROVIDER", "STORAGE_BASE_PATH", "SERVICE_NAME", "ENVIRONMENT", "ENV"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	t.Setenv("HANDLER_PLATFORM", "http")

	p := NewProvider(true)
	require.NoError(t, p.Load())

	cfg := p.MustGet()
	assert.Equal(t, "fs", cfg.Storage.Provider)
	assert.Equal(t, "/from-local", cfg.Storage.BasePath)
	assert.Equal(t, "files", cfg.ServiceName)
}

func TestProvider_Reload(t *testing.T) {
	t.Setenv("ENVIRONMENT", "local")
	t.Setenv("HANDLER_PLATFORM", "http")
	t.Setenv("STORAGE_COLLECTION", "first")

	p := NewProvider(false)
	require.NoError(t, p.Load())
	assert.Equal(t, "first", p.MustGet().Storage.Bucket)

	t.Setenv("STORAGE_COLLECTION", "second")
	require.NoError(t, p.Load(), "second Load is a no-op")
	assert.Equal(t, "first", p.MustGet().Storage.Bucket)

	require.NoError(t, p.Reload())
	assert.Equal(t, "second", p.MustGet().Storage.Bucket)

	p.Reset()
	assert.False(t, p.IsLoaded())
}
