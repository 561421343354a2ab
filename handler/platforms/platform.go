// Package platforms adapts handler.Handler to concrete runtimes: a plain
// HTTP server and AWS Lambda (API Gateway proxy and SQS events).
package platforms

import (
	"context"
	"net/http"
	"strings"

	"entitystore/config"
	"entitystore/handler"
)

// RequestHandler is the part of *handler.Handler the adapters rely on.
type RequestHandler interface {
	Handle(ctx context.Context, req handler.Request) (handler.Response, error)
	Health(ctx context.Context) error
	Config() *config.HandlerConfig
	Worker() handler.Worker
}

var _ RequestHandler = (*handler.Handler)(nil)

var healthPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/ready":   true,
	"/readyz":  true,
	"/live":    true,
	"/livez":   true,
}

func isHealthCheck(path string) bool {
	return healthPaths[path]
}

// StatusCode maps a response to an HTTP status code.
func StatusCode(resp handler.Response) int {
	if resp.Success {
		return http.StatusOK
	}
	if resp.Error == nil {
		return http.StatusInternalServerError
	}

	switch resp.Error.Code {
	case handler.CodeValidation, handler.CodeBadRequest:
		return http.StatusBadRequest
	case handler.CodeNotFound:
		return http.StatusNotFound
	case handler.CodeTimeout:
		return http.StatusGatewayTimeout
	case handler.CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// actionFromPath returns the first segment of path.
func actionFromPath(path string) string {
	path = strings.Trim(path, "/")
	if idx := strings.Index(path, "/"); idx >= 0 {
		return path[:idx]
	}
	return path
}

// redact hides credentials in an Authorization header value.
func redact(value string) string {
	if strings.HasPrefix(value, "Bearer ") {
		return "Bearer [REDACTED]"
	}
	return "[REDACTED]"
}
