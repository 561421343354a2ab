// Package storage owns the lifecycle of the object storage backend.
package storage

import (
	"fmt"
	"sync"

	"entitystore/config"
	"entitystore/observability"
	"entitystore/storage/types"
)

// Provider owns one backend instance
type Provider struct {
	factory     Factory
	storage     types.ObjectStorage
	config      *config.StorageConfig
	logger      observability.Logger
	metrics     observability.Metrics
	mu          sync.RWMutex
	initialized bool
}

// NewProvider creates a provider. A nil factory selects DefaultFactory.
func NewProvider(factory Factory) *Provider {
	if factory == nil {
		factory = DefaultFactory
	}
	return &Provider{factory: factory}
}

// Initialize builds the backend. Calling it again after success is a no-op.
func (p *Provider) Initialize(cfg *config.StorageConfig, logger observability.Logger, metrics observability.Metrics) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return nil
	}

	if cfg == nil || cfg.Provider == "" {
		return fmt.Errorf("storage is not configured")
	}

	factory := p.factory
	if factory == nil {
		factory = DefaultFactory
	}

	storage, err := factory(cfg, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}

	p.storage = storage
	p.config = cfg
	p.logger = logger
	p.metrics = metrics
	p.initialized = true

	return nil
}

// MustInitialize initializes the provider and panics on error
func (p *Provider) MustInitialize(cfg *config.StorageConfig, logger observability.Logger, metrics observability.Metrics) {
	if err := p.Initialize(cfg, logger, metrics); err != nil {
		panic(fmt.Sprintf("failed to initialize storage: %v", err))
	}
}

// GetStorage returns the backend, or an error before Initialize
func (p *Provider) GetStorage() (types.ObjectStorage, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.initialized || p.storage == nil {
		return nil, fmt.Errorf("storage not initialized; call Initialize() first")
	}

	return p.storage, nil
}

// MustGetStorage returns the backend or panics if not initialized
func (p *Provider) MustGetStorage() types.ObjectStorage {
	storage, err := p.GetStorage()
	if err != nil {
		panic(fmt.Sprintf("failed to get storage: %v", err))
	}
	return storage
}

// IsInitialized returns whether storage has been initialized
func (p *Provider) IsInitialized() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.initialized
}

// Close releases the backend. The SDK clients hold no resources that need
// explicit cleanup, so this only drops the reference.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil
	}

	p.storage = nil
	p.initialized = false

	return nil
}

// Reset clears all state, keeping the factory
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.storage = nil
	p.config = nil
	p.logger = nil
	p.metrics = nil
	p.initialized = false
}
