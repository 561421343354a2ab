package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"entitystore/config"
	"entitystore/handler"
)

// MockHandler is a mock of the handler surface used by platform adapters.
type MockHandler struct {
	mock.Mock
	config *config.HandlerConfig
	worker handler.Worker
}

// NewMockHandler creates a mock handler. A nil config falls back to
// config.DefaultHandlerConfig and a nil worker to an empty MockWorker.
func NewMockHandler(cfg *config.HandlerConfig, worker handler.Worker) *MockHandler {
	if cfg == nil {
		defaults := config.DefaultHandlerConfig()
		cfg = &defaults
	}
	if worker == nil {
		worker = &MockWorker{}
	}
	return &MockHandler{
		config: cfg,
		worker: worker,
	}
}

// Handle mocks the request handling
func (m *MockHandler) Handle(ctx context.Context, req handler.Request) (handler.Response, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(handler.Response), args.Error(1)
}

// Health mocks the health check
func (m *MockHandler) Health(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Config returns the handler configuration
func (m *MockHandler) Config() *config.HandlerConfig {
	return m.config
}

// Worker returns the underlying worker
func (m *MockHandler) Worker() handler.Worker {
	return m.worker
}
