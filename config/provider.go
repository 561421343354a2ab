package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/joho/godotenv"
)

// Provider manages configuration lifecycle and ensures singleton behavior
type Provider struct {
	config *Config
	mu     sync.RWMutex
	loaded bool

	// envFiles toggles .env file loading; tests turn it off
	envFiles bool
}

var (
	instance *Provider
	once     sync.Once
)

// GetProvider returns the singleton configuration provider instance
func GetProvider() *Provider {
	once.Do(func() {
		instance = NewProvider(true)
	})
	return instance
}

// NewProvider creates a standalone provider. loadEnvFiles controls whether
// .env files are read before parsing the environment.
func NewProvider(loadEnvFiles bool) *Provider {
	return &Provider{envFiles: loadEnvFiles}
}

// Load loads configuration from environment variables and .env files
// This should be called once at application startup
func (p *Provider) Load() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.loaded {
		return nil
	}

	if p.envFiles {
		if err := loadEnvFiles(); err != nil {
			return fmt.Errorf("failed to load env files: %w", err)
		}
	}

	return p.parseLocked()
}

// parseLocked parses and validates the environment, replacing the held
// configuration only on success. p.mu must be held.
func (p *Provider) parseLocked() error {
	cfg := parse()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	p.config = cfg
	p.loaded = true
	return nil
}

// MustLoad loads configuration and panics on error
// Use this for application initialization where errors are fatal
func (p *Provider) MustLoad() {
	if err := p.Load(); err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
}

// Get returns the current configuration
// Returns error if configuration hasn't been loaded
func (p *Provider) Get() (*Config, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.loaded || p.config == nil {
		return nil, fmt.Errorf("configuration not loaded; call Load() first")
	}

	return p.config, nil
}

// MustGet returns the configuration or panics if not loaded
func (p *Provider) MustGet() *Config {
	cfg, err := p.Get()
	if err != nil {
		panic(fmt.Sprintf("failed to get configuration: %v", err))
	}
	return cfg
}

// Reload re-parses configuration from the current environment.
// The previous configuration stays in place if the new one is invalid.
func (p *Provider) Reload() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.parseLocked()
}

// IsLoaded returns whether configuration has been loaded
func (p *Provider) IsLoaded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loaded
}

// Reset clears the configuration (useful for testing)
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.config = nil
	p.loaded = false
}

// loadEnvFiles loads .env files in order of precedence:
// .env, then .env.<ENVIRONMENT>, then .env.local. Missing files are skipped.
func loadEnvFiles() error {
	if _, err := os.Stat(".env"); err == nil {
		// Load never overrides variables already present in the process environment
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("failed to load .env: %w", err)
		}
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = os.Getenv("ENV")
	}
	if env != "" {
		envFile := fmt.Sprintf(".env.%s", env)
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Overload(envFile); err != nil {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}
	}

	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Overload(".env.local"); err != nil {
			return fmt.Errorf("failed to load .env.local: %w", err)
		}
	}

	return nil
}
