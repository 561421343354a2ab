// Package fs implements types.ObjectStorage on a local directory tree.
// Objects live at <base>/<bucket>/<key>. Each object has a JSON sidecar
// holding its metadata.
//
// Unlike S3, a key cannot be both an object and a prefix of another key:
// with "a" stored, "a/b" is rejected, and the reverse. Such keys fail with
// types.ErrInvalidKey.
package fs

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/afero"

	"entitystore/config"
	"entitystore/observability"
	"entitystore/storage/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	metadataSuffix = ".metadata.json"
	partialSuffix  = ".partial"
)

// Option configures a Client
type Option func(*Client)

// WithFs sets the filesystem, an in-memory one in tests
func WithFs(fs afero.Fs) Option {
	return func(c *Client) {
		c.fs = fs
	}
}

// Client implements the ObjectStorage interface on an afero filesystem
type Client struct {
	fs      afero.Fs
	baseDir string
	config  *config.StorageConfig
	logger  observability.Logger
	metrics observability.Metrics
}

// NewClient creates a filesystem storage client rooted at cfg.BasePath
func NewClient(cfg *config.StorageConfig, logger observability.Logger, metrics observability.Metrics, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid filesystem configuration: %w", err)
	}

	c := &Client{
		fs:      afero.NewOsFs(),
		baseDir: filepath.Clean(cfg.BasePath),
		config:  cfg,
		logger:  logger,
		metrics: metrics,
	}
	for _, apply := range opts {
		apply(c)
	}

	if err := c.fs.MkdirAll(c.baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory %q: %w", c.baseDir, err)
	}

	return c, nil
}

// Put writes the object to a partial file and renames it into place
func (c *Client) Put(ctx context.Context, bucket, key string, reader io.Reader, metadata types.ObjectMetadata) (*types.UploadInfo, error) {
	defer c.track("put")()

	bucket = c.bucket(bucket)

	fp, err := c.objectPath(bucket, key)
	if err != nil {
		c.metrics.RecordError("put", "invalid_key")
		return nil, err
	}
	if err := c.requireBucket(bucket); err != nil {
		c.metrics.RecordError("put", "bucket_not_found")
		return nil, fmt.Errorf("failed to put object: %w", err)
	}

	if err := c.checkConflict(bucket, fp, key); err != nil {
		c.metrics.RecordError("put", "invalid_key")
		return nil, err
	}
	if err := c.fs.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return nil, fmt.Errorf("ensuring directories for %q: %w", key, err)
	}

	tmp := fp + partialSuffix
	f, err := c.fs.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create object %q: %w", key, err)
	}

	hash := md5.New()
	size, err := io.Copy(io.MultiWriter(f, hash), reader)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = c.fs.Remove(tmp)
		c.metrics.RecordError("put", "write")
		c.logger.Error(ctx, "failed to write object", err, observability.Fields{
			"bucket": bucket,
			"key":    key,
		})
		return nil, fmt.Errorf("write object %q: %w", key, err)
	}

	etag := hex.EncodeToString(hash.Sum(nil))
	metadata.ContentLength = size
	metadata.ETag = etag
	metadata.LastModified = time.Now().UTC()

	if err := c.writeMetadata(fp, metadata); err != nil {
		_ = c.fs.Remove(tmp)
		return nil, err
	}
	if err := c.fs.Rename(tmp, fp); err != nil {
		_ = c.fs.Remove(tmp)
		return nil, fmt.Errorf("commit object %q: %w", key, err)
	}

	c.metrics.RecordSuccess("put")
	c.metrics.RecordObjectSize("put", size)
	c.logger.Debug(ctx, "object stored successfully", observability.Fields{
		"bucket": bucket,
		"key":    key,
		"size":   size,
	})

	return &types.UploadInfo{Bucket: bucket, Key: key, ETag: etag, Size: size}, nil
}

// Get opens the object file
func (c *Client) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	body, _, err := c.GetWithMetadata(ctx, bucket, key)
	return body, err
}

// GetWithMetadata opens the object file and reads its sidecar
func (c *Client) GetWithMetadata(ctx context.Context, bucket, key string) (io.ReadCloser, *types.ObjectMetadata, error) {
	defer c.track("get")()

	bucket = c.bucket(bucket)

	fp, err := c.objectPath(bucket, key)
	if err != nil {
		return nil, nil, err
	}

	f, err := c.fs.Open(fp)
	if err != nil {
		if os.IsNotExist(err) {
			c.metrics.RecordError("get", "not_found")
			if bucketErr := c.requireBucket(bucket); bucketErr != nil {
				return nil, nil, fmt.Errorf("failed to get object: %w", bucketErr)
			}
			c.logger.Debug(ctx, "object not found", observability.Fields{
				"bucket": bucket,
				"key":    key,
			})
			return nil, nil, types.ErrObjectNotFound
		}
		c.metrics.RecordError("get", "open")
		return nil, nil, fmt.Errorf("failed to get object: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to stat object: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, types.ErrObjectNotFound
	}

	metadata, err := c.readMetadata(fp)
	if err != nil {
		c.logger.Warn(ctx, "unreadable object metadata", observability.Fields{
			"bucket": bucket,
			"key":    key,
			"error":  err.Error(),
		})
		metadata = &types.ObjectMetadata{}
	}
	metadata.ContentLength = info.Size()
	if metadata.LastModified.IsZero() {
		metadata.LastModified = info.ModTime()
	}

	c.metrics.RecordSuccess("get")
	c.metrics.RecordObjectSize("get", info.Size())

	return f, metadata, nil
}

// Delete removes the object and its sidecar. Missing keys are ignored.
func (c *Client) Delete(ctx context.Context, bucket, key string) error {
	defer c.track("delete")()

	bucket = c.bucket(bucket)

	fp, err := c.objectPath(bucket, key)
	if err != nil {
		return err
	}

	for _, p := range []string{fp, fp + metadataSuffix} {
		if err := c.fs.Remove(p); err != nil && !os.IsNotExist(err) {
			c.metrics.RecordError("delete", "remove")
			c.logger.Error(ctx, "failed to delete object", err, observability.Fields{
				"bucket": bucket,
				"key":    key,
			})
			return fmt.Errorf("removing %q: %w", key, err)
		}
	}

	c.metrics.RecordSuccess("delete")
	c.logger.Debug(ctx, "object deleted successfully", observability.Fields{
		"bucket": bucket,
		"key":    key,
	})

	return nil
}

// Exists checks if the object file exists
func (c *Client) Exists(_ context.Context, bucket, key string) (bool, error) {
	fp, err := c.objectPath(c.bucket(bucket), key)
	if err != nil {
		return false, err
	}

	info, err := c.fs.Stat(fp)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
	return !info.IsDir(), nil
}

// List walks the bucket directory in lexical order
func (c *Client) List(ctx context.Context, bucket, prefix string) ([]types.ObjectInfo, error) {
	defer c.track("list")()

	bucket = c.bucket(bucket)
	if err := c.requireBucket(bucket); err != nil {
		c.metrics.RecordError("list", "bucket_not_found")
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	root := filepath.Join(c.baseDir, bucket)
	objects := make([]types.ObjectInfo, 0)

	err := afero.Walk(c.fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() {
			return nil
		}
		name := info.Name()
		if strings.HasSuffix(name, metadataSuffix) || strings.HasSuffix(name, partialSuffix) {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		obj := types.ObjectInfo{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime(),
		}
		if meta, err := c.readMetadata(p); err == nil {
			obj.ETag = meta.ETag
		}
		objects = append(objects, obj)
		return nil
	})
	if err != nil {
		c.metrics.RecordError("list", "walk")
		c.logger.Error(ctx, "failed to list objects", err, observability.Fields{
			"bucket": bucket,
			"prefix": prefix,
		})
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	c.metrics.RecordSuccess("list")
	return objects, nil
}

// BucketExists reports whether the bucket directory exists
func (c *Client) BucketExists(_ context.Context, bucket string) (bool, error) {
	dir, err := c.bucketPath(c.bucket(bucket))
	if err != nil {
		return false, err
	}
	return afero.DirExists(c.fs, dir)
}

// CreateBucket creates the bucket directory
func (c *Client) CreateBucket(ctx context.Context, bucket string) error {
	bucket = c.bucket(bucket)
	dir, err := c.bucketPath(bucket)
	if err != nil {
		return err
	}
	if err := c.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	c.logger.Info(ctx, "bucket created successfully", observability.Fields{
		"bucket": bucket,
	})
	return nil
}

// DeleteBucket removes an empty bucket directory
func (c *Client) DeleteBucket(ctx context.Context, bucket string) error {
	bucket = c.bucket(bucket)
	if err := c.requireBucket(bucket); err != nil {
		return fmt.Errorf("failed to delete bucket: %w", err)
	}

	dir := filepath.Join(c.baseDir, bucket)
	empty, err := afero.IsEmpty(c.fs, dir)
	if err != nil {
		return fmt.Errorf("failed to delete bucket: %w", err)
	}
	if !empty {
		return fmt.Errorf("failed to delete bucket: bucket %q is not empty", bucket)
	}
	if err := c.fs.Remove(dir); err != nil {
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

func (c *Client) bucketPath(bucket string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", fmt.Errorf("invalid bucket name %q", bucket)
	}
	return filepath.Join(c.baseDir, bucket), nil
}

func (c *Client) requireBucket(bucket string) error {
	dir, err := c.bucketPath(bucket)
	if err != nil {
		return err
	}
	ok, err := afero.DirExists(c.fs, dir)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrBucketNotFound, bucket)
	}
	return nil
}

// objectPath maps a key to its file. Keys may not leave the bucket or
// collide with sidecar and partial files.
func (c *Client) objectPath(bucket, key string) (string, error) {
	dir, err := c.bucketPath(bucket)
	if err != nil {
		return "", err
	}

	slashed := strings.ReplaceAll(key, `\`, "/")
	cleaned := path.Clean("/" + slashed)
	if key == "" || cleaned == "/" || hasParentSegment(slashed) ||
		strings.HasSuffix(key, metadataSuffix) || strings.HasSuffix(key, partialSuffix) {
		return "", fmt.Errorf("%w: %q", types.ErrInvalidKey, key)
	}

	return filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(cleaned, "/"))), nil
}

func hasParentSegment(key string) bool {
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return true
		}
	}
	return false
}

// checkConflict rejects a key whose file would sit under an existing
// object, or on top of a directory holding other keys.
func (c *Client) checkConflict(bucket, objectPath, key string) error {
	if info, err := c.fs.Stat(objectPath); err == nil && info.IsDir() {
		return fmt.Errorf("%w: %q is a prefix of existing keys", types.ErrInvalidKey, key)
	}

	bucketDir, err := c.bucketPath(bucket)
	if err != nil {
		return err
	}
	for dir := filepath.Dir(objectPath); dir != bucketDir && strings.HasPrefix(dir, bucketDir); dir = filepath.Dir(dir) {
		info, err := c.fs.Stat(dir)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			return fmt.Errorf("%w: %q is nested under an existing object", types.ErrInvalidKey, key)
		}
	}
	return nil
}

func (c *Client) writeMetadata(objectPath string, metadata types.ObjectMetadata) error {
	data, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := afero.WriteFile(c.fs, objectPath+metadataSuffix, data, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

func (c *Client) readMetadata(objectPath string) (*types.ObjectMetadata, error) {
	data, err := afero.ReadFile(c.fs, objectPath+metadataSuffix)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &types.ObjectMetadata{}, nil
		}
		return nil, err
	}

	var metadata types.ObjectMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &metadata, nil
}

func (c *Client) track(operation string) func() {
	start := time.Now()
	c.metrics.StartOperation(operation)
	return func() {
		c.metrics.EndOperation(operation)
		c.metrics.RecordDuration(operation, time.Since(start).Seconds())
	}
}
