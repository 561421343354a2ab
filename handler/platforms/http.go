package platforms

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"entitystore/handler"
	"entitystore/observability"
)

const defaultMaxRequestSize = 10 * 1024 * 1024

// HTTPAdapter serves a handler over plain HTTP. Actions are invoked with
// POST /{action}; the X-Action header overrides the path.
type HTTPAdapter struct {
	handler RequestHandler
	logger  observability.Logger
}

// NewHTTPAdapter creates a new HTTP adapter with the provided handler.
func NewHTTPAdapter(h RequestHandler, logger observability.Logger) *HTTPAdapter {
	return &HTTPAdapter{handler: h, logger: logger}
}

// ServeHTTP implements http.Handler.
func (a *HTTPAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if isHealthCheck(r.URL.Path) {
		a.handleHealth(w, r)
		return
	}

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		a.writeJSON(w, r, http.StatusMethodNotAllowed, handler.NewErrorResponse(
			uuid.New().String(),
			handler.CodeValidation,
			"Method not allowed",
			r.Method,
		))
		return
	}

	body, err := a.readBody(w, r)
	if err != nil {
		status := http.StatusBadRequest
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			status = http.StatusRequestEntityTooLarge
		}
		a.writeJSON(w, r, status, handler.NewErrorResponse(
			uuid.New().String(),
			handler.CodeValidation,
			"Failed to read request body",
			err.Error(),
		))
		return
	}

	req := a.buildRequest(r, body)

	resp, err := a.handler.Handle(r.Context(), req)
	if resp.ID == "" {
		resp.ID = req.ID
	}
	if err != nil && resp.Error == nil {
		resp = handler.NewErrorResponse(req.ID, handler.CodeInternal, "Request processing failed", err.Error())
	}

	for key, value := range resp.Meta {
		w.Header().Set("X-"+key, value)
	}
	a.writeJSON(w, r, StatusCode(resp), resp)
}

func (a *HTTPAdapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := a.handler.Health(r.Context()); err != nil {
		a.writeJSON(w, r, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	a.writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"worker": a.handler.Worker().Name(),
		"time":   time.Now().UTC(),
	})
}

func (a *HTTPAdapter) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	maxSize := a.handler.Config().MaxRequestSize
	if maxSize <= 0 {
		maxSize = defaultMaxRequestSize
	}

	defer r.Body.Close()
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxSize))
}

func (a *HTTPAdapter) buildRequest(r *http.Request, body []byte) handler.Request {
	requestID := extractRequestID(r)
	if requestID == "" {
		requestID = uuid.New().String()
	}

	action := r.Header.Get("X-Action")
	if action == "" {
		action = actionFromPath(r.URL.Path)
	}

	return handler.Request{
		ID:        requestID,
		Source:    "http",
		Action:    action,
		Payload:   json.RawMessage(body),
		Meta:      extractMeta(r),
		Timestamp: time.Now().UTC(),
	}
}

func extractRequestID(r *http.Request) string {
	for _, header := range []string{"X-Request-ID", "X-Correlation-ID", "Request-ID"} {
		if id := r.Header.Get(header); id != "" {
			return id
		}
	}
	return ""
}

func extractMeta(r *http.Request) map[string]string {
	meta := map[string]string{
		"http_method": r.Method,
		"http_path":   r.URL.Path,
		"http_host":   r.Host,
	}

	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			meta["query_"+key] = values[0]
		}
	}

	relevantHeaders := []string{
		"Content-Type",
		"User-Agent",
		"X-Forwarded-For",
		"X-Real-IP",
		"Authorization",
	}
	for _, header := range relevantHeaders {
		value := r.Header.Get(header)
		if value == "" {
			continue
		}
		if header == "Authorization" {
			value = redact(value)
		}
		meta["header_"+strings.ToLower(strings.ReplaceAll(header, "-", "_"))] = value
	}

	if traceID := r.Header.Get("X-Trace-ID"); traceID != "" {
		meta["trace_id"] = traceID
	}

	return meta
}

func (a *HTTPAdapter) writeJSON(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if resp, ok := body.(handler.Response); ok {
		w.Header().Set("X-Request-ID", resp.ID)
	}
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.logger.Error(r.Context(), "Failed to write response", err, observability.Fields{
			"status": status,
		})
	}
}
