// Package minio implements types.ObjectStorage with the MinIO Go client.
package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"entitystore/config"
	"entitystore/observability"
	"entitystore/storage/types"
)

// objectAPI is the subset of *minio.Client the backend uses
type objectAPI interface {
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	RemoveBucket(ctx context.Context, bucket string) error
}

// clientAdapter narrows GetObject to io.ReadCloser
type clientAdapter struct {
	*minio.Client
}

func (a clientAdapter) GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	obj, err := a.Client.GetObject(ctx, bucket, key, opts)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// Client implements the ObjectStorage interface for MinIO and other
// S3-compatible servers
type Client struct {
	api     objectAPI
	config  *config.StorageConfig
	logger  observability.Logger
	metrics observability.Metrics
}

// NewClient creates a MinIO storage client. No request is made until the
// first operation.
func NewClient(cfg *config.StorageConfig, logger observability.Logger, metrics observability.Metrics) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid MinIO configuration: %w", err)
	}

	lookup := minio.BucketLookupAuto
	if cfg.PathStyle {
		lookup = minio.BucketLookupPath
	}

	opts := &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: lookup,
	}
	if cfg.Transport != nil {
		opts.Transport = cfg.Transport
	}

	mc, err := minio.New(cfg.HostPort(), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return newClient(clientAdapter{mc}, cfg, logger, metrics), nil
}

func newClient(api objectAPI, cfg *config.StorageConfig, logger observability.Logger, metrics observability.Metrics) *Client {
	return &Client{
		api:     api,
		config:  cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// Put streams an object with multipart upload of PartSize parts
func (c *Client) Put(ctx context.Context, bucket, key string, reader io.Reader, metadata types.ObjectMetadata) (*types.UploadInfo, error) {
	defer c.track("put")()

	bucket = c.bucket(bucket)

	info, err := c.api.PutObject(ctx, bucket, key, reader, -1, minio.PutObjectOptions{
		ContentType:     metadata.ContentType,
		ContentEncoding: metadata.ContentEncoding,
		CacheControl:    metadata.CacheControl,
		UserMetadata:    metadata.UserMetadata,
		PartSize:        c.config.PartSize,
	})
	if err != nil {
		c.metrics.RecordError("put", errorCode(err))
		c.logger.Error(ctx, "failed to put object", err, observability.Fields{
			"bucket": bucket,
			"key":    key,
		})
		if isBucketNotFoundError(err) {
			return nil, fmt.Errorf("failed to put object: %w: %s", types.ErrBucketNotFound, bucket)
		}
		return nil, fmt.Errorf("failed to put object: %w", err)
	}

	c.metrics.RecordSuccess("put")
	c.metrics.RecordObjectSize("put", info.Size)
	c.logger.Debug(ctx, "object stored successfully", observability.Fields{
		"bucket": bucket,
		"key":    key,
		"size":   info.Size,
	})

	return &types.UploadInfo{
		Bucket: bucket,
		Key:    key,
		ETag:   info.ETag,
		Size:   info.Size,
	}, nil
}

// Get retrieves an object
func (c *Client) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	body, _, err := c.GetWithMetadata(ctx, bucket, key)
	return body, err
}

// GetWithMetadata stats the object before opening it. GetObject is lazy,
// so the stat is what surfaces a missing key.
func (c *Client) GetWithMetadata(ctx context.Context, bucket, key string) (io.ReadCloser, *types.ObjectMetadata, error) {
	defer c.track("get")()

	bucket = c.bucket(bucket)

	info, err := c.api.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, nil, c.getError(ctx, bucket, key, err)
	}

	body, err := c.api.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, c.getError(ctx, bucket, key, err)
	}

	c.metrics.RecordSuccess("get")
	c.metrics.RecordObjectSize("get", info.Size)

	return body, toMetadata(info), nil
}

func (c *Client) getError(ctx context.Context, bucket, key string, err error) error {
	c.metrics.RecordError("get", errorCode(err))
	if isNotFoundError(err) {
		c.logger.Debug(ctx, "object not found", observability.Fields{
			"bucket": bucket,
			"key":    key,
		})
		return types.ErrObjectNotFound
	}
	c.logger.Error(ctx, "failed to get object", err, observability.Fields{
		"bucket": bucket,
		"key":    key,
	})
	if isBucketNotFoundError(err) {
		return fmt.Errorf("failed to get object: %w: %s", types.ErrBucketNotFound, bucket)
	}
	return fmt.Errorf("failed to get object: %w", err)
}

// Delete removes an object
func (c *Client) Delete(ctx context.Context, bucket, key string) error {
	defer c.track("delete")()

	bucket = c.bucket(bucket)

	if err := c.api.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if isNotFoundError(err) {
			return nil
		}
		c.metrics.RecordError("delete", errorCode(err))
		c.logger.Error(ctx, "failed to delete object", err, observability.Fields{
			"bucket": bucket,
			"key":    key,
		})
		return fmt.Errorf("failed to delete object: %w", err)
	}

	c.metrics.RecordSuccess("delete")
	c.logger.Debug(ctx, "object deleted successfully", observability.Fields{
		"bucket": bucket,
		"key":    key,
	})

	return nil
}

// Exists checks if an object exists
func (c *Client) Exists(ctx context.Context, bucket, key string) (bool, error) {
	bucket = c.bucket(bucket)

	if _, err := c.api.StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNotFoundError(err) {
			return false, nil
		}
		c.metrics.RecordError("exists", errorCode(err))
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}

	return true, nil
}

// List drains a recursive listing. The first listing error aborts it.
func (c *Client) List(ctx context.Context, bucket, prefix string) ([]types.ObjectInfo, error) {
	defer c.track("list")()

	bucket = c.bucket(bucket)

	// cancelling stops the listing goroutine when we return early
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := make([]types.ObjectInfo, 0)
	for obj := range c.api.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			c.metrics.RecordError("list", errorCode(obj.Err))
			c.logger.Error(ctx, "failed to list objects", obj.Err, observability.Fields{
				"bucket": bucket,
				"prefix": prefix,
			})
			if isBucketNotFoundError(obj.Err) {
				return nil, fmt.Errorf("failed to list objects: %w: %s", types.ErrBucketNotFound, bucket)
			}
			return nil, fmt.Errorf("failed to list objects: %w", obj.Err)
		}

		objects = append(objects, types.ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
			ETag:         obj.ETag,
		})
	}

	c.metrics.RecordSuccess("list")
	c.logger.Debug(ctx, "objects listed successfully", observability.Fields{
		"bucket": bucket,
		"prefix": prefix,
		"count":  len(objects),
	})

	return objects, nil
}

// BucketExists checks whether a bucket exists
func (c *Client) BucketExists(ctx context.Context, bucket string) (bool, error) {
	bucket = c.bucket(bucket)

	exists, err := c.api.BucketExists(ctx, bucket)
	if err != nil {
		c.metrics.RecordError("bucket_exists", errorCode(err))
		return false, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	return exists, nil
}

// CreateBucket creates a bucket in the configured region
func (c *Client) CreateBucket(ctx context.Context, bucket string) error {
	bucket = c.bucket(bucket)

	err := c.api.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: c.config.Region})
	if err != nil {
		switch errorCode(err) {
		case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
			c.logger.Debug(ctx, "bucket already exists", observability.Fields{
				"bucket": bucket,
			})
			return nil
		}

		c.metrics.RecordError("create_bucket", errorCode(err))
		c.logger.Error(ctx, "failed to create bucket", err, observability.Fields{
			"bucket": bucket,
		})
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	c.logger.Info(ctx, "bucket created successfully", observability.Fields{
		"bucket": bucket,
	})

	return nil
}

// DeleteBucket removes an empty bucket
func (c *Client) DeleteBucket(ctx context.Context, bucket string) error {
	bucket = c.bucket(bucket)

	if err := c.api.RemoveBucket(ctx, bucket); err != nil {
		c.metrics.RecordError("delete_bucket", errorCode(err))
		c.logger.Error(ctx, "failed to delete bucket", err, observability.Fields{
			"bucket": bucket,
		})
		return fmt.Errorf("failed to delete bucket: %w", err)
	}

	c.logger.Info(ctx, "bucket deleted successfully", observability.Fields{
		"bucket": bucket,
	})

	return nil
}

func (c *Client) bucket(bucket string) string {
	if bucket == "" {
		return c.config.Bucket
	}
	return bucket
}

func (c *Client) track(operation string) func() {
	start := time.Now()
	c.metrics.StartOperation(operation)
	return func() {
		c.metrics.EndOperation(operation)
		c.metrics.RecordDuration(operation, time.Since(start).Seconds())
	}
}

func toMetadata(info minio.ObjectInfo) *types.ObjectMetadata {
	meta := &types.ObjectMetadata{
		ContentType:   info.ContentType,
		ContentLength: info.Size,
		LastModified:  info.LastModified,
		ETag:          info.ETag,
	}
	if info.Metadata != nil {
		meta.ContentEncoding = info.Metadata.Get("Content-Encoding")
		meta.CacheControl = info.Metadata.Get("Cache-Control")
	}
	if len(info.UserMetadata) > 0 {
		// the server returns canonical header casing
		meta.UserMetadata = make(map[string]string, len(info.UserMetadata))
		for k, v := range info.UserMetadata {
			meta.UserMetadata[strings.ToLower(k)] = v
		}
	}
	return meta
}

func errorCode(err error) string {
	if code := minio.ToErrorResponse(err).Code; code != "" {
		return code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "unknown"
}

// isNotFoundError reports a missing key
func isNotFoundError(err error) bool {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NotFound":
		return true
	case "NoSuchBucket":
		return false
	}
	return resp.StatusCode == http.StatusNotFound
}

// isBucketNotFoundError reports a missing bucket
func isBucketNotFoundError(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchBucket"
}
