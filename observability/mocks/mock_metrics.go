package mocks

import (
	"github.com/stretchr/testify/mock"
)

// MockMetrics is a mock implementation of types.Metrics
type MockMetrics struct {
	mock.Mock
}

// NewNopMetrics returns a MockMetrics that accepts any call.
func NewNopMetrics() *MockMetrics {
	m := &MockMetrics{}
	m.On("RecordSuccess", mock.Anything).Maybe()
	m.On("RecordError", mock.Anything, mock.Anything).Maybe()
	m.On("RecordDuration", mock.Anything, mock.Anything).Maybe()
	m.On("RecordObjectSize", mock.Anything, mock.Anything).Maybe()
	m.On("StartOperation", mock.Anything).Maybe()
	m.On("EndOperation", mock.Anything).Maybe()
	return m
}

// RecordSuccess mocks the RecordSuccess method
func (m *MockMetrics) RecordSuccess(operation string) {
	m.Called(operation)
}

// RecordError mocks the RecordError method
func (m *MockMetrics) RecordError(operation string, errorType string) {
	m.Called(operation, errorType)
}

// RecordDuration mocks the RecordDuration method
func (m *MockMetrics) RecordDuration(operation string, seconds float64) {
	m.Called(operation, seconds)
}

// RecordObjectSize mocks the RecordObjectSize method
func (m *MockMetrics) RecordObjectSize(operation string, bytes int64) {
	m.Called(operation, bytes)
}

// StartOperation mocks the StartOperation method
func (m *MockMetrics) StartOperation(operation string) {
	m.Called(operation)
}

// EndOperation mocks the EndOperation method
func (m *MockMetrics) EndOperation(operation string) {
	m.Called(operation)
}
