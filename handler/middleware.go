package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"entitystore/observability"
	"entitystore/observability/types"
)

// LoggingMiddleware logs the start and outcome of every request.
func LoggingMiddleware(provider observability.Provider) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req Request) (Response, error) {
			workerName, _ := ctx.Value(workerKey).(string)
			platform, _ := ctx.Value(platformKey).(string)

			requestLogger := provider.Logger("handler").WithFields(types.Fields{
				"request_id": req.ID,
				"action":     req.Action,
				"source":     req.Source,
				"worker":     workerName,
				"platform":   platform,
			})

			requestLogger.Info(ctx, "Processing request", types.Fields{
				"payload_size": len(req.Payload),
			})

			start := time.Now()
			resp, err := next(ctx, req)
			duration := time.Since(start)

			switch {
			case err != nil:
				requestLogger.Error(ctx, "Request failed with error", err, types.Fields{
					"duration_ms": duration.Milliseconds(),
				})
			case !resp.Success && resp.Error != nil:
				requestLogger.Warn(ctx, "Request completed with failure", types.Fields{
					"error_code":  resp.Error.Code,
					"error_msg":   resp.Error.Message,
					"duration_ms": duration.Milliseconds(),
				})
			default:
				requestLogger.Info(ctx, "Request completed successfully", types.Fields{
					"duration_ms": duration.Milliseconds(),
				})
			}

			resp.Duration = duration
			return resp, err
		}
	}
}

// MetricsMiddleware records per-action counters and durations.
func MetricsMiddleware(provider observability.Provider) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req Request) (Response, error) {
			metrics := provider.Metrics("handler")

			operation := req.Action
			if operation == "" {
				operation = "unknown"
			}

			metrics.StartOperation(operation)
			defer metrics.EndOperation(operation)

			start := time.Now()
			resp, err := next(ctx, req)
			metrics.RecordDuration(operation, time.Since(start).Seconds())

			switch {
			case err != nil:
				metrics.RecordError(operation, "processing_error")
			case !resp.Success:
				errorType := "unknown_error"
				if resp.Error != nil {
					errorType = resp.Error.Code
				}
				metrics.RecordError(operation, errorType)
			default:
				metrics.RecordSuccess(operation)
			}

			return resp, err
		}
	}
}

// RecoveryMiddleware turns worker panics into INTERNAL_ERROR responses.
// It must be the outermost middleware.
func RecoveryMiddleware(provider observability.Provider) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req Request) (resp Response, err error) {
			defer func() {
				if r := recover(); r != nil {
					provider.Logger("handler").Error(ctx, "Panic recovered", fmt.Errorf("%v", r), types.Fields{
						"request_id": req.ID,
						"worker":     ctx.Value(workerKey),
						"stack":      string(debug.Stack()),
					})
					provider.Metrics("handler").RecordError("panic", "panic_recovered")

					// panic details stay out of the response
					resp = NewErrorResponse(req.ID, CodeInternal, "An internal error occurred", "")
					err = fmt.Errorf("panic recovered: %v", r)
				}
			}()

			return next(ctx, req)
		}
	}
}

// TracingMiddleware makes sure every request carries a trace ID, taken
// from request metadata when the caller supplied one.
func TracingMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req Request) (Response, error) {
			traceID := extractTraceID(req)
			if traceID == "" {
				traceID = uuid.New().String()
			}
			spanID := uuid.New().String()

			ctx = context.WithValue(ctx, types.TraceIDKey, traceID)

			req.SetMeta("trace_id", traceID)
			req.SetMeta("span_id", spanID)

			resp, err := next(ctx, req)

			if resp.Meta == nil {
				resp.Meta = make(map[string]string)
			}
			resp.Meta["trace_id"] = traceID
			resp.Meta["span_id"] = spanID

			return resp, err
		}
	}
}

// TimeoutMiddleware bounds request processing. When the deadline passes
// first it returns a TIMEOUT response with the context error.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req Request) (Response, error) {
			timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			type result struct {
				resp Response
				err  error
			}
			resultChan := make(chan result, 1)

			go func() {
				resp, err := next(timeoutCtx, req)
				resultChan <- result{resp, err}
			}()

			select {
			case res := <-resultChan:
				return res.resp, res.err

			case <-timeoutCtx.Done():
				return NewErrorResponse(
					req.ID,
					CodeTimeout,
					"Request processing timed out",
					fmt.Sprintf("Exceeded timeout of %v", timeout),
				), timeoutCtx.Err()
			}
		}
	}
}

// ValidationMiddleware rejects requests without an action or with a
// malformed payload and fills in missing IDs and timestamps. An empty
// payload is treated as an empty JSON object.
func ValidationMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req Request) (Response, error) {
			if req.ID == "" {
				req.ID = uuid.New().String()
			}
			if req.Timestamp.IsZero() {
				req.Timestamp = time.Now().UTC()
			}

			if req.Action == "" {
				return NewErrorResponse(
					req.ID,
					CodeValidation,
					"Request action is required",
					"Missing 'action' field in request",
				), nil
			}

			if len(req.Payload) == 0 {
				req.Payload = json.RawMessage("{}")
			}
			if !json.Valid(req.Payload) {
				return NewErrorResponse(
					req.ID,
					CodeValidation,
					"Invalid JSON payload",
					"Payload must be valid JSON",
				), nil
			}

			req.SetMeta("validated_at", time.Now().UTC().Format(time.RFC3339))

			return next(ctx, req)
		}
	}
}

func extractTraceID(req Request) string {
	traceKeys := []string{
		"trace_id",
		"x-trace-id",
		"x-b3-traceid",
		"x-request-id",
		"correlation-id",
	}

	for _, key := range traceKeys {
		if val, ok := req.Meta[key]; ok && val != "" {
			return val
		}
	}

	return ""
}
