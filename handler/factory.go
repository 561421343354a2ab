package handler

import (
	"os"

	"entitystore/config"
	"entitystore/observability"
)

// Platform names accepted in config.HandlerConfig.Platform.
const (
	PlatformHTTP   = "http"
	PlatformLambda = "lambda"
)

// Factory builds handlers with the default middleware stack.
type Factory struct {
	worker     Worker
	provider   observability.Provider
	handlerCfg config.HandlerConfig
}

// NewFactory creates a handler factory using config.DefaultHandlerConfig.
func NewFactory(worker Worker, provider observability.Provider) *Factory {
	return &Factory{
		worker:     worker,
		provider:   provider,
		handlerCfg: config.DefaultHandlerConfig(),
	}
}

// WithHandlerConfig sets custom handler configuration.
func (f *Factory) WithHandlerConfig(config config.HandlerConfig) *Factory {
	f.handlerCfg = config
	return f
}

// Create builds a handler for the configured platform, detecting it from
// the environment when unset or "auto".
func (f *Factory) Create() *Handler {
	if f.handlerCfg.Platform == "" || f.handlerCfg.Platform == "auto" {
		f.handlerCfg.Platform = DetectPlatform()
	}

	cfg := f.handlerCfg
	handler := NewHandler(f.worker, f.provider, &cfg)
	f.applyDefaultMiddleware(handler)

	return handler
}

// CreateHTTP creates a handler for the HTTP platform.
func (f *Factory) CreateHTTP() *Handler {
	f.handlerCfg.Platform = PlatformHTTP
	return f.Create()
}

// CreateLambda creates a handler for AWS Lambda.
func (f *Factory) CreateLambda() *Handler {
	f.handlerCfg.Platform = PlatformLambda
	return f.Create()
}

func (f *Factory) applyDefaultMiddleware(handler *Handler) {
	// outermost, catches panics from everything below
	handler.Use(RecoveryMiddleware(f.provider))

	if f.handlerCfg.Timeout > 0 {
		handler.Use(TimeoutMiddleware(f.handlerCfg.Timeout))
	}

	handler.Use(TracingMiddleware())

	if f.handlerCfg.EnableMetrics {
		handler.Use(MetricsMiddleware(f.provider))
	}

	handler.Use(LoggingMiddleware(f.provider))
	handler.Use(ValidationMiddleware())
}

// DetectPlatform returns "lambda" inside the Lambda runtime and "http"
// otherwise.
func DetectPlatform() string {
	if _, exists := os.LookupEnv("AWS_LAMBDA_FUNCTION_NAME"); exists {
		return PlatformLambda
	}
	if _, exists := os.LookupEnv("AWS_LAMBDA_RUNTIME_API"); exists {
		return PlatformLambda
	}
	return PlatformHTTP
}
