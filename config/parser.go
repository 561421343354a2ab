package config

// parse reads configuration from environment variables
func parse() *Config {
	cfg := &Config{
		// Core
		Environment: getEnv("ENVIRONMENT", "local"),
		ServiceName: getEnv("SERVICE_NAME", "entity-service"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Version:     getEnv("SERVICE_VERSION", "1.0.0"),

		// Storage
		Storage: StorageConfig{
			Provider:      getEnv("STORAGE_PROVIDER", ""),
			Endpoint:      getEnv("STORAGE_ENDPOINT", ""),
			Port:          getInt("STORAGE_PORT", 0),
			UseSSL:        getBool("STORAGE_USE_SSL", false),
			AccessKey:     getEnv("STORAGE_ACCESS_KEY", getEnv("AWS_ACCESS_KEY_ID", "")),
			SecretKey:     getEnv("STORAGE_SECRET_KEY", getEnv("AWS_SECRET_ACCESS_KEY", "")),
			SessionToken:  getEnv("STORAGE_SESSION_TOKEN", getEnv("AWS_SESSION_TOKEN", "")),
			Region:        getEnv("STORAGE_REGION", getEnv("AWS_REGION", "")),
			PartSize:      getUint64("STORAGE_PART_SIZE", 16*1024*1024),
			PathStyle:     getBool("STORAGE_PATH_STYLE", true),
			Bucket:        getEnv("STORAGE_COLLECTION", ""),
			CreateBucket:  getBool("STORAGE_CREATE_BUCKET", false),
			Compression:   getEnv("STORAGE_COMPRESSION", ""),
			BasePath:      getEnv("STORAGE_BASE_PATH", "./data"),
			Timeout:       getDuration("STORAGE_TIMEOUT", "30s"),
			MaxRetries:    getInt("STORAGE_MAX_RETRIES", 3),
			EnableMetrics: getBool("STORAGE_ENABLE_METRICS", true),
		},

		// HTTP server
		HTTP: HTTPConfig{
			Addr:            getEnv("HTTP_ADDR", ":8080"),
			ReadTimeout:     getDuration("HTTP_READ_TIMEOUT", "60s"),
			WriteTimeout:    getDuration("HTTP_WRITE_TIMEOUT", "60s"),
			ShutdownTimeout: getDuration("HTTP_SHUTDOWN_TIMEOUT", "15s"),
		},

		// Handler
		Handler: HandlerConfig{
			Timeout:        getDuration("HANDLER_TIMEOUT", "30s"),
			MaxRequestSize: int64(getInt("HANDLER_MAX_REQUEST_SIZE", 32*1024*1024)),
			EnableMetrics:  getBool("HANDLER_ENABLE_METRICS", true),
			Platform:       getEnv("HANDLER_PLATFORM", ""),
		},

		// Lambda
		Lambda: LambdaConfig{
			ProcessingTimeout:         getDuration("LAMBDA_PROCESSING_TIMEOUT", "30s"),
			EnablePartialBatchFailure: getBool("LAMBDA_PARTIAL_BATCH_FAILURE", true),
		},

		// Events
		Events: EventsConfig{
			Enabled:     getBool("EVENTS_ENABLED", false),
			Broker:      getEnv("EVENTS_BROKER", "rabbitmq"),
			RabbitMQURL: getEnv("RABBITMQ_URL", ""),
			Exchange:    getEnv("RABBITMQ_EXCHANGE", "entities"),
			SQSQueueURL: getEnv("EVENTS_SQS_QUEUE_URL", ""),
			SQSRegion:   getEnv("EVENTS_SQS_REGION", getEnv("STORAGE_REGION", "us-east-1")),
		},

		// Metrics
		Metrics: MetricsConfig{
			Backend:             getEnv("METRICS_BACKEND", "prometheus"),
			CloudWatchNamespace: getEnv("CLOUDWATCH_NAMESPACE", ""),
			CloudWatchRegion:    getEnv("CLOUDWATCH_REGION", ""),
			FlushInterval:       getDuration("METRICS_FLUSH_INTERVAL", "10s"),
		},
	}

	cfg.applyDefaults()

	return cfg
}
