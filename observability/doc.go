/*
Package observability provides structured logging and metrics collection
for the entity service and its storage backends.

	Provider (memoises instances per component)
	    ├── Logger  (JSON lines, one object per entry)
	    └── Metrics (Prometheus collectors, or a shared CloudWatch sink)

Each component (adapter, storage.s3, storage.minio, handler, ...) asks the
provider for its own logger and metrics. Loggers carry a "component" field;
Prometheus metric names are prefixed with the sanitised component name.
After UseCloudWatch, metrics are pushed with a Component dimension instead.

Initialize the provider once at application startup:

	provider := observability.NewProvider(&observability.Config{
	    ServiceName: "entity-service",
	    Environment: "production",
	    LogLevel:    "info",
	})
	defer provider.Close()

	logger := provider.Logger("adapter")
	logger.Info(ctx, "entity saved", observability.Fields{"key": key})

Context values stored under types.TraceIDKey and types.RequestIDKey are
copied into every log entry.
*/
package observability
