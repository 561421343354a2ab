package handler

import (
	"context"
)

// Worker is the platform-agnostic business logic behind a Handler.
// Workers never see the transport a request arrived on.
type Worker interface {
	// Name identifies the worker in logs and metrics.
	Name() string

	// Process runs the request's action and returns its response. Domain
	// failures are reported through Response.Error; a non-nil error means
	// the request could not be processed at all.
	Process(ctx context.Context, request Request) (Response, error)

	// Health reports whether the worker's dependencies are reachable.
	Health(ctx context.Context) error
}
