package adapter

import (
	"context"
	"net/http"
	"time"

	"entitystore/observability"
	"entitystore/storage"
)

// Options tune the backend connection. Zero values select defaults.
type Options struct {
	// Provider selects the backend: "minio" (default), "s3" or "fs"
	Provider string

	Port         int
	UseSSL       bool
	SessionToken string
	Region       string
	Transport    http.RoundTripper
	PartSize     uint64
	PathStyle    bool

	// CreateBucket creates the collection bucket on Connect when missing
	CreateBucket bool

	// Compression applied to saved entities: "", "gzip" or "zstd"
	Compression string

	Timeout    time.Duration
	MaxRetries int

	// BasePath is the root directory of the fs provider
	BasePath string

	// Factory overrides backend construction
	Factory storage.Factory
}

// Service is the host service definition the adapter is bound to
type Service struct {
	// Collection names the bucket holding the service's entities
	Collection string

	Logger    observability.Logger
	Metrics   observability.Metrics
	Publisher EventPublisher
}

// Meta describes an entity being saved
type Meta struct {
	ID          string
	Filename    string
	ContentType string
	Metadata    map[string]string
}

// Query selects entities of the collection. Only Prefix and Limit are
// applied; other filters are accepted and ignored.
type Query struct {
	Prefix  string
	Limit   int
	Filters map[string]interface{}
}

// Event names
const (
	EventSaved = "entity.saved"

	// EventRemoved follows every successful RemoveByID, including removals
	// of keys that did not exist, since deletes are idempotent.
	EventRemoved = "entity.removed"
)

// Event is emitted after an entity changes
type Event struct {
	Name       string    `json:"event"`
	Collection string    `json:"collection"`
	Key        string    `json:"key"`
	// Size is the entity size before compression
	Size       int64     `json:"size,omitempty"`
	ETag       string    `json:"etag,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// EventPublisher delivers entity events
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
