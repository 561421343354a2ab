package handler

import (
	"context"
	"errors"
	"time"

	"entitystore/config"
	"entitystore/observability"
	"entitystore/observability/types"
)

type contextKey string

const (
	workerKey   contextKey = "worker"
	platformKey contextKey = "platform"
)

// Handler wraps a Worker with a middleware chain. Platform adapters feed
// it requests and translate its responses.
type Handler struct {
	worker      Worker
	obs         observability.Provider
	middlewares []Middleware
	config      *config.HandlerConfig
}

// Middleware wraps a HandlerFunc to add a cross-cutting concern.
type Middleware func(next HandlerFunc) HandlerFunc

// HandlerFunc is the function signature for handling requests.
type HandlerFunc func(ctx context.Context, req Request) (Response, error)

// NewHandler creates a handler without middleware. Most callers should
// use the Factory instead.
func NewHandler(worker Worker, provider observability.Provider, config *config.HandlerConfig) *Handler {
	return &Handler{
		worker:      worker,
		obs:         provider,
		config:      config,
		middlewares: []Middleware{},
	}
}

// Use adds middleware to the handler chain.
// Middleware is executed in the order it's added.
func (h *Handler) Use(middleware Middleware) {
	h.middlewares = append(h.middlewares, middleware)
}

// Handle processes a request through the middleware chain and worker.
func (h *Handler) Handle(ctx context.Context, req Request) (Response, error) {
	handler := h.buildHandlerChain()

	ctx = context.WithValue(ctx, types.RequestIDKey, req.ID)
	ctx = context.WithValue(ctx, types.ActionKey, req.Action)
	ctx = context.WithValue(ctx, workerKey, h.worker.Name())
	ctx = context.WithValue(ctx, platformKey, h.config.Platform)

	return handler(ctx, req)
}

// Shutdown runs closers in order under the context deadline, records
// shutdown metrics and returns every closer error joined.
func Shutdown(ctx context.Context, logger observability.Logger, metrics observability.Metrics, startTime time.Time, closers ...func(context.Context) error) error {
	metrics.RecordSuccess("shutdown_initiated")

	logger.Info(ctx, "Shutting down gracefully", observability.Fields{
		"uptime_seconds": time.Since(startTime).Seconds(),
	})

	var errs []error
	for _, closer := range closers {
		if err := closer(ctx); err != nil {
			logger.Error(ctx, "Shutdown step failed", err, nil)
			errs = append(errs, err)
		}
	}

	metrics.RecordDuration("service_uptime", time.Since(startTime).Seconds())
	if len(errs) > 0 {
		metrics.RecordError("shutdown", "close_failed")
		return errors.Join(errs...)
	}

	metrics.RecordSuccess("shutdown_complete")
	logger.Info(ctx, "Shutdown complete", nil)
	return nil
}

// buildHandlerChain applies middleware in reverse so the first one added
// is the outermost layer.
func (h *Handler) buildHandlerChain() HandlerFunc {
	handler := h.workerHandler

	for i := len(h.middlewares) - 1; i >= 0; i-- {
		handler = h.middlewares[i](handler)
	}

	return handler
}

func (h *Handler) workerHandler(ctx context.Context, req Request) (Response, error) {
	return h.worker.Process(ctx, req)
}

// Health checks the health of the worker.
func (h *Handler) Health(ctx context.Context) error {
	return h.worker.Health(ctx)
}

// Config returns the handler configuration.
func (h *Handler) Config() *config.HandlerConfig {
	return h.config
}

// Worker returns the underlying worker.
func (h *Handler) Worker() Worker {
	return h.worker
}
