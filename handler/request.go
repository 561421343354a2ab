package handler

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Error codes shared by workers and platform adapters.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeBadRequest         = "BAD_REQUEST"
	CodeNotFound           = "NOT_FOUND"
	CodeTimeout            = "TIMEOUT"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
)

// Request is a platform-agnostic request to a worker. Platform adapters
// build it from HTTP requests, API Gateway events or SQS messages.
type Request struct {
	// ID is a unique identifier for the request (for tracing)
	ID string `json:"id"`

	// Source identifies where the request came from (http, apigateway, sqs)
	Source string `json:"source"`

	// Action names the operation to run, e.g. "save" or "get"
	Action string `json:"action"`

	// Payload contains the action arguments as raw JSON
	Payload json.RawMessage `json:"payload"`

	// Meta carries transport context such as headers or message attributes
	Meta map[string]string `json:"meta,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Response is a platform-agnostic result of a worker.
type Response struct {
	// ID correlates with the request ID
	ID string `json:"id"`

	Success bool `json:"success"`

	// Data contains the response payload (only if Success is true)
	Data json.RawMessage `json:"data,omitempty"`

	// Error contains error information if Success is false
	Error *ErrorResponse `json:"error,omitempty"`

	Meta map[string]string `json:"meta,omitempty"`

	ProcessedAt time.Time `json:"processed_at"`

	Duration time.Duration `json:"duration,omitempty"`
}

// ErrorResponse represents structured error information.
type ErrorResponse struct {
	// Code is a machine-readable error code (e.g., "VALIDATION_ERROR")
	Code string `json:"code"`

	// Message is a human-readable error message
	Message string `json:"message"`

	// Details provides additional error context (optional)
	Details string `json:"details,omitempty"`

	// Retryable indicates if the operation can be retried
	Retryable bool `json:"retryable,omitempty"`
}

// NewRequest creates a request for action with a generated ID and timestamp.
func NewRequest(action string, payload interface{}) (Request, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return Request{}, err
	}

	return Request{
		ID:        uuid.New().String(),
		Action:    action,
		Payload:   payloadBytes,
		Meta:      make(map[string]string),
		Timestamp: time.Now().UTC(),
	}, nil
}

// Unmarshal decodes the request payload into v.
func (r *Request) Unmarshal(v interface{}) error {
	return json.Unmarshal(r.Payload, v)
}

// Marshal encodes v as the response data.
func (r *Response) Marshal(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	r.Data = data
	return nil
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, code string, message string, details string) Response {
	return Response{
		ID:      id,
		Success: false,
		Error: &ErrorResponse{
			Code:      code,
			Message:   message,
			Details:   details,
			Retryable: isRetryableError(code),
		},
		ProcessedAt: time.Now().UTC(),
	}
}

// NewSuccessResponse creates a success response carrying data.
func NewSuccessResponse(id string, data interface{}) (Response, error) {
	resp := Response{
		ID:          id,
		Success:     true,
		ProcessedAt: time.Now().UTC(),
		Meta:        make(map[string]string),
	}

	if data != nil {
		if err := resp.Marshal(data); err != nil {
			return Response{}, err
		}
	}

	return resp, nil
}

func isRetryableError(code string) bool {
	switch code {
	case CodeTimeout, CodeServiceUnavailable:
		return true
	}
	return false
}

// SetMeta adds or updates request metadata.
func (r *Request) SetMeta(key, value string) {
	if r.Meta == nil {
		r.Meta = make(map[string]string)
	}
	r.Meta[key] = value
}

// GetMeta retrieves request metadata.
func (r *Request) GetMeta(key string) (string, bool) {
	if r.Meta == nil {
		return "", false
	}
	val, ok := r.Meta[key]
	return val, ok
}
