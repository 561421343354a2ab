// Package types defines the object storage contract implemented by every
// storage backend.
package types

import (
	"context"
	"io"
	"time"
)

// ObjectStorage is the backend contract. An empty bucket argument selects
// the backend's configured default bucket.
type ObjectStorage interface {
	// Put stores an object, replacing any object under the same key.
	Put(ctx context.Context, bucket, key string, reader io.Reader, metadata ObjectMetadata) (*UploadInfo, error)

	// Get returns the object body. Missing keys yield ErrObjectNotFound.
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// GetWithMetadata returns the object body and its metadata.
	GetWithMetadata(ctx context.Context, bucket, key string) (io.ReadCloser, *ObjectMetadata, error)

	// Delete removes an object. Deleting a missing key is not an error.
	Delete(ctx context.Context, bucket, key string) error

	// Exists reports whether an object exists.
	Exists(ctx context.Context, bucket, key string) (bool, error)

	// List returns every object under prefix, recursively.
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)

	// BucketExists reports whether a bucket exists.
	BucketExists(ctx context.Context, bucket string) (bool, error)

	// CreateBucket creates a bucket. Creating an existing bucket succeeds.
	CreateBucket(ctx context.Context, bucket string) error

	// DeleteBucket removes an empty bucket.
	DeleteBucket(ctx context.Context, bucket string) error
}

// ObjectMetadata describes a stored object
type ObjectMetadata struct {
	ContentType     string            `json:"content_type,omitempty"`
	ContentLength   int64             `json:"content_length"`
	ContentEncoding string            `json:"content_encoding,omitempty"`
	CacheControl    string            `json:"cache_control,omitempty"`
	LastModified    time.Time         `json:"last_modified"`
	ETag            string            `json:"etag,omitempty"`
	UserMetadata    map[string]string `json:"user_metadata,omitempty"`
}

// ObjectInfo is a single listing entry
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ETag         string    `json:"etag,omitempty"`
}

// UploadInfo is the result of a successful Put
type UploadInfo struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	ETag   string `json:"etag,omitempty"`
	Size   int64  `json:"size"`
}
