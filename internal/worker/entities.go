// Package worker exposes the entity adapter as handler actions.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"entitystore/adapter"
	"entitystore/handler"
	"entitystore/observability/types"
)

// Actions understood by EntityWorker.
const (
	ActionSave       = "save"
	ActionUpdate     = "update"
	ActionGet        = "get"
	ActionRemove     = "remove"
	ActionFind       = "find"
	ActionFindOne    = "find_one"
	ActionCount      = "count"
	ActionRemoveMany = "remove_many"
	ActionClear      = "clear"
)

// CodeStorage is reported for backend failures that are not otherwise classified.
const CodeStorage = "STORAGE_ERROR"

// EntityStore is the adapter surface the worker drives.
type EntityStore interface {
	Save(ctx context.Context, entity interface{}, meta adapter.Meta) (*adapter.UploadInfo, error)
	UpdateByID(ctx context.Context, id string, entity interface{}, meta adapter.Meta) (*adapter.UploadInfo, error)
	FindByID(ctx context.Context, id string) (io.ReadCloser, error)
	RemoveByID(ctx context.Context, id string) error
	Find(ctx context.Context, q *adapter.Query) ([]adapter.ObjectInfo, error)
	FindOne(ctx context.Context, q *adapter.Query) (*adapter.ObjectInfo, error)
	Count(ctx context.Context, q *adapter.Query) (int, error)
	RemoveMany(ctx context.Context, q *adapter.Query) (int, error)
	Clear(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

var _ EntityStore = (*adapter.Adapter)(nil)

// SavePayload is the payload of save and update. Data is base64 in JSON.
type SavePayload struct {
	ID          string            `json:"id,omitempty"`
	Filename    string            `json:"filename,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Data        []byte            `json:"data"`
}

// IDPayload is the payload of get and remove.
type IDPayload struct {
	ID string `json:"id"`
}

// QueryPayload is the payload of find, find_one, count and remove_many.
type QueryPayload struct {
	Prefix  string                 `json:"prefix,omitempty"`
	Limit   int                    `json:"limit,omitempty"`
	Filters map[string]interface{} `json:"filters,omitempty"`
}

// EntityResult is returned by get.
type EntityResult struct {
	ID   string `json:"id"`
	Size int    `json:"size"`
	Data []byte `json:"data"`
}

// FindResult is returned by find.
type FindResult struct {
	Entities []adapter.ObjectInfo `json:"entities"`
	Count    int                  `json:"count"`
}

// CountResult is returned by count, remove_many and clear.
type CountResult struct {
	Count int `json:"count"`
}

// RemoveResult is returned by remove.
type RemoveResult struct {
	ID      string `json:"id"`
	Removed bool   `json:"removed"`
}

// requestError is a failure detected before reaching the store.
type requestError struct {
	message string
	details string
}

func (e *requestError) Error() string {
	if e.details == "" {
		return e.message
	}
	return e.message + ": " + e.details
}

// EntityWorker implements handler.Worker on top of an EntityStore.
type EntityWorker struct {
	store   EntityStore
	logger  types.Logger
	metrics types.Metrics
}

// NewEntityWorker creates a worker bound to store.
func NewEntityWorker(store EntityStore, logger types.Logger, metrics types.Metrics) *EntityWorker {
	return &EntityWorker{
		store:   store,
		logger:  logger,
		metrics: metrics,
	}
}

// Name returns the worker name
func (w *EntityWorker) Name() string {
	return "entities"
}

// Process runs the request's action against the store. Failures are
// reported in the response; the returned error is always nil.
func (w *EntityWorker) Process(ctx context.Context, request handler.Request) (handler.Response, error) {
	w.metrics.StartOperation("worker_process")
	defer w.metrics.EndOperation("worker_process")

	startTime := time.Now()
	defer func() {
		w.metrics.RecordDuration("worker_process", time.Since(startTime).Seconds())
	}()

	result, err := w.dispatch(ctx, request)
	if err != nil {
		return w.errorResponse(ctx, request, err), nil
	}

	response, err := handler.NewSuccessResponse(request.ID, result)
	if err != nil {
		w.metrics.RecordError("worker_process", "response_creation")
		w.logger.Error(ctx, "Failed to create response", err, types.Fields{
			"request_id": request.ID,
		})
		return handler.NewErrorResponse(request.ID, handler.CodeInternal, "Failed to create response", err.Error()), nil
	}

	w.metrics.RecordSuccess("worker_process")
	return response, nil
}

func (w *EntityWorker) dispatch(ctx context.Context, request handler.Request) (interface{}, error) {
	switch request.Action {
	case ActionSave, ActionUpdate:
		var p SavePayload
		if err := decode(request, &p); err != nil {
			return nil, err
		}
		return w.save(ctx, request.Action, p)

	case ActionGet:
		var p IDPayload
		if err := decodeID(request, &p); err != nil {
			return nil, err
		}
		return w.get(ctx, p.ID)

	case ActionRemove:
		var p IDPayload
		if err := decodeID(request, &p); err != nil {
			return nil, err
		}
		if err := w.store.RemoveByID(ctx, p.ID); err != nil {
			return nil, err
		}
		return RemoveResult{ID: p.ID, Removed: true}, nil

	case ActionFind, ActionFindOne, ActionCount, ActionRemoveMany:
		var p QueryPayload
		if err := decode(request, &p); err != nil {
			return nil, err
		}
		return w.query(ctx, request.Action, &adapter.Query{Prefix: p.Prefix, Limit: p.Limit, Filters: p.Filters})

	case ActionClear:
		n, err := w.store.Clear(ctx)
		if err != nil {
			return nil, err
		}
		return CountResult{Count: n}, nil
	}

	return nil, &requestError{message: "Unsupported action", details: request.Action}
}

func (w *EntityWorker) save(ctx context.Context, action string, p SavePayload) (*adapter.UploadInfo, error) {
	meta := adapter.Meta{
		ID:          p.ID,
		Filename:    p.Filename,
		ContentType: p.ContentType,
		Metadata:    p.Metadata,
	}
	body := bytes.NewReader(p.Data)

	if action == ActionUpdate {
		if p.ID == "" {
			return nil, &requestError{message: "Entity id is required"}
		}
		return w.store.UpdateByID(ctx, p.ID, body, meta)
	}
	return w.store.Save(ctx, body, meta)
}

func (w *EntityWorker) get(ctx context.Context, id string) (*EntityResult, error) {
	rc, err := w.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read entity %q: %w", id, err)
	}
	w.metrics.RecordObjectSize("get", int64(len(data)))

	return &EntityResult{ID: id, Size: len(data), Data: data}, nil
}

func (w *EntityWorker) query(ctx context.Context, action string, q *adapter.Query) (interface{}, error) {
	switch action {
	case ActionFind:
		entities, err := w.store.Find(ctx, q)
		if err != nil {
			return nil, err
		}
		return FindResult{Entities: entities, Count: len(entities)}, nil

	case ActionFindOne:
		return w.store.FindOne(ctx, q)

	case ActionCount:
		n, err := w.store.Count(ctx, q)
		if err != nil {
			return nil, err
		}
		return CountResult{Count: n}, nil

	default:
		n, err := w.store.RemoveMany(ctx, q)
		if err != nil {
			return nil, err
		}
		return CountResult{Count: n}, nil
	}
}

func decode(request handler.Request, v interface{}) error {
	if err := request.Unmarshal(v); err != nil {
		return &requestError{message: "Invalid payload", details: err.Error()}
	}
	return nil
}

func decodeID(request handler.Request, p *IDPayload) error {
	if err := decode(request, p); err != nil {
		return err
	}
	if p.ID == "" {
		return &requestError{message: "Entity id is required"}
	}
	return nil
}

// errorResponse classifies err into a response code and records it.
func (w *EntityWorker) errorResponse(ctx context.Context, request handler.Request, err error) handler.Response {
	var (
		reqErr *requestError
		code   string
		msg    string
	)

	switch {
	case errors.As(err, &reqErr):
		code, msg = handler.CodeBadRequest, reqErr.message
	case adapter.IsBadRequest(err):
		code, msg = handler.CodeBadRequest, "Invalid entity"
	case adapter.IsNotFound(err):
		code, msg = handler.CodeNotFound, "Entity not found"
	case errors.Is(err, adapter.ErrNotConnected):
		code, msg = handler.CodeServiceUnavailable, "Entity store is not connected"
	default:
		code, msg = CodeStorage, "Entity store operation failed"
	}

	w.metrics.RecordError("worker_process", code)
	fields := types.Fields{
		"request_id": request.ID,
		"action":     request.Action,
		"error_code": code,
	}
	if code == CodeStorage || code == handler.CodeServiceUnavailable {
		w.logger.Error(ctx, "Entity action failed", err, fields)
	} else {
		w.logger.Warn(ctx, "Entity action rejected", fields)
	}

	return handler.NewErrorResponse(request.ID, code, msg, err.Error())
}

// Health reports whether the store is connected and its bucket reachable.
func (w *EntityWorker) Health(ctx context.Context) error {
	w.metrics.RecordSuccess("health_check")

	if err := w.store.Ping(ctx); err != nil {
		w.metrics.RecordError("health_check", "ping")
		return err
	}
	return nil
}
