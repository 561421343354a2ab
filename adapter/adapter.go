// Package adapter persists binary entities in an S3-compatible object
// store. One Adapter serves one collection, stored as one bucket.
//
// Lifecycle: New stores connection settings, Init binds the adapter to a
// service definition and validates it, Connect builds the storage backend
// and ensures the bucket. Every other operation fails with ErrNotConnected
// until Connect succeeds.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"entitystore/config"
	"entitystore/observability"
	"entitystore/observability/logger"
	"entitystore/observability/metrics"
	"entitystore/storage"
	"entitystore/storage/types"
)

const (
	defaultProvider = "minio"
	defaultRegion   = "us-east-1"
	defaultTimeout  = 30 * time.Second
	defaultPartSize = 16 * 1024 * 1024
)

// ObjectInfo is a listed entity
type ObjectInfo = types.ObjectInfo

// UploadInfo is the result of a save. Adapter saves report the entity's
// size before compression.
type UploadInfo = types.UploadInfo

// Adapter is the entity store adapter
type Adapter struct {
	endpoint  string
	accessKey string
	secretKey string
	opts      Options

	collection string
	logger     observability.Logger
	metrics    observability.Metrics
	publisher  EventPublisher

	mu       sync.RWMutex
	provider *storage.Provider
	store    types.ObjectStorage
}

// New creates an adapter. It only records its arguments.
func New(endpoint, accessKey, secretKey string, opts Options) *Adapter {
	if opts.Provider == "" {
		opts.Provider = defaultProvider
	}
	if opts.Region == "" {
		opts.Region = defaultRegion
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.PartSize == 0 {
		opts.PartSize = defaultPartSize
	}

	return &Adapter{
		endpoint:  endpoint,
		accessKey: accessKey,
		secretKey: secretKey,
		opts:      opts,
		logger:    logger.New("entitystore.adapter", "", "info", os.Stderr, observability.Fields{"component": "adapter"}),
		metrics:   metrics.NewWithRegisterer("adapter", prometheus.NewRegistry()),
	}
}

// Init validates the adapter settings and binds it to svc. The fs
// provider needs no endpoint or credentials.
func (a *Adapter) Init(svc Service) error {
	if a.opts.Provider != "fs" {
		if a.endpoint == "" {
			return &ServiceSchemaError{Message: "Missing `endpoint` definition!"}
		}
		if a.accessKey == "" {
			return &ServiceSchemaError{Message: "Missing S3 access key!"}
		}
		if a.secretKey == "" {
			return &ServiceSchemaError{Message: "Missing S3 secret key!"}
		}
	}
	if svc.Collection == "" {
		return &ServiceSchemaError{Message: "Missing `collection` definition in schema of service!"}
	}

	switch a.opts.Compression {
	case "", EncodingGzip, EncodingZstd:
	default:
		return &ServiceSchemaError{Message: fmt.Sprintf("Unsupported compression %q!", a.opts.Compression)}
	}

	a.collection = svc.Collection
	if svc.Logger != nil {
		a.logger = svc.Logger
	}
	if svc.Metrics != nil {
		a.metrics = svc.Metrics
	}
	a.publisher = svc.Publisher
	a.logger = a.logger.WithFields(observability.Fields{"collection": a.collection})

	return nil
}

// Collection returns the bound collection name
func (a *Adapter) Collection() string {
	return a.collection
}

// StorageConfig returns the backend configuration derived from the adapter settings
func (a *Adapter) StorageConfig() *config.StorageConfig {
	return &config.StorageConfig{
		Provider:     a.opts.Provider,
		Endpoint:     a.endpoint,
		Port:         a.opts.Port,
		UseSSL:       a.opts.UseSSL,
		AccessKey:    a.accessKey,
		SecretKey:    a.secretKey,
		SessionToken: a.opts.SessionToken,
		Region:       a.opts.Region,
		PartSize:     a.opts.PartSize,
		PathStyle:    a.opts.PathStyle,
		Bucket:       a.collection,
		CreateBucket: a.opts.CreateBucket,
		Compression:  a.opts.Compression,
		BasePath:     a.opts.BasePath,
		Timeout:      a.opts.Timeout,
		MaxRetries:   a.opts.MaxRetries,
		Transport:    a.opts.Transport,
	}
}

// Connect builds the backend and ensures the collection bucket exists.
// A missing bucket is created only with Options.CreateBucket.
func (a *Adapter) Connect(ctx context.Context) error {
	if a.collection == "" {
		return errors.New("adapter is not initialized; call Init() first")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.store != nil {
		return nil
	}

	provider := storage.NewProvider(a.opts.Factory)
	if err := provider.Initialize(a.StorageConfig(), a.logger, a.metrics); err != nil {
		a.logger.Error(ctx, "S3 error", err, observability.Fields{"operation": "connect"})
		return err
	}
	store := provider.MustGetStorage()

	exists, err := store.BucketExists(ctx, a.collection)
	if err != nil {
		a.logger.Error(ctx, "S3 error", err, observability.Fields{"operation": "connect"})
		_ = provider.Close()
		return err
	}

	if !exists {
		if a.opts.CreateBucket {
			if err := store.CreateBucket(ctx, a.collection); err != nil {
				a.logger.Error(ctx, "S3 error", err, observability.Fields{"operation": "connect"})
				_ = provider.Close()
				return err
			}
		} else {
			a.logger.Warn(ctx, "bucket does not exist and createBucket is disabled", observability.Fields{
				"bucket": a.collection,
			})
		}
	}

	a.provider = provider
	a.store = store

	a.logger.Info(ctx, "connected to object storage", observability.Fields{
		"provider": a.opts.Provider,
		"endpoint": a.endpoint,
	})

	return nil
}

// Disconnect releases the backend and the event publisher. It never fails
// when not connected.
func (a *Adapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	if a.provider != nil {
		errs = append(errs, a.provider.Close())
	}
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
		a.publisher = nil
	}
	a.provider = nil
	a.store = nil

	a.logger.Info(ctx, "disconnected from object storage", nil)

	return errors.Join(errs...)
}

// IsConnected reports whether Connect has succeeded
func (a *Adapter) IsConnected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.store != nil
}

// Ping checks that the collection bucket is reachable
func (a *Adapter) Ping(ctx context.Context) error {
	store, err := a.storage()
	if err != nil {
		return err
	}

	exists, err := store.BucketExists(ctx, a.collection)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", types.ErrBucketNotFound, a.collection)
	}
	return nil
}

// Find lists the entities of the collection matching q
func (a *Adapter) Find(ctx context.Context, q *Query) ([]ObjectInfo, error) {
	defer a.track("find")()

	store, err := a.storage()
	if err != nil {
		return nil, err
	}

	prefix, limit := "", 0
	if q != nil {
		if len(q.Filters) > 0 {
			a.logger.Warn(ctx, "filters not yet implemented", observability.Fields{
				"filters": q.Filters,
			})
		}
		prefix, limit = q.Prefix, q.Limit
	}

	objects, err := store.List(ctx, a.collection, prefix)
	if err != nil {
		a.metrics.RecordError("find", "storage")
		a.logger.Error(ctx, "error during find operation", err, observability.Fields{
			"prefix": prefix,
		})
		return nil, err
	}
	if objects == nil {
		objects = make([]ObjectInfo, 0)
	}
	if limit > 0 && len(objects) > limit {
		objects = objects[:limit]
	}

	a.metrics.RecordSuccess("find")
	return objects, nil
}

// FindOne returns the first entity matching q
func (a *Adapter) FindOne(ctx context.Context, q *Query) (*ObjectInfo, error) {
	limited := Query{Limit: 1}
	if q != nil {
		limited = *q
		limited.Limit = 1
	}

	objects, err := a.Find(ctx, &limited)
	if err != nil {
		return nil, err
	}
	if len(objects) == 0 {
		return nil, NewNotFoundError(map[string]interface{}{"prefix": limited.Prefix})
	}
	return &objects[0], nil
}

// FindByID opens the entity stored under id. Compressed entities are
// decoded transparently.
func (a *Adapter) FindByID(ctx context.Context, id string) (io.ReadCloser, error) {
	defer a.track("find_by_id")()

	store, err := a.storage()
	if err != nil {
		return nil, err
	}

	body, meta, err := store.GetWithMetadata(ctx, a.collection, id)
	if err != nil {
		if errors.Is(err, types.ErrObjectNotFound) {
			a.metrics.RecordError("find_by_id", "not_found")
			return nil, NewNotFoundError(map[string]interface{}{"id": id})
		}
		if errors.Is(err, types.ErrInvalidKey) {
			a.metrics.RecordError("find_by_id", "bad_request")
			return nil, NewBadRequestError(err.Error())
		}
		a.metrics.RecordError("find_by_id", "storage")
		a.logger.Error(ctx, "S3 error", err, observability.Fields{
			"operation": "find_by_id",
			"id":        id,
		})
		return nil, err
	}

	encoding := ""
	if meta != nil {
		encoding = meta.ContentEncoding
	}

	rc, err := decompress(body, encoding)
	if err != nil {
		body.Close()
		a.metrics.RecordError("find_by_id", "decode")
		return nil, err
	}

	a.metrics.RecordSuccess("find_by_id")
	return rc, nil
}

// Count returns the number of entities matching q
func (a *Adapter) Count(ctx context.Context, q *Query) (int, error) {
	objects, err := a.Find(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(objects), nil
}

// Save stores entity, which must be a non-nil io.Reader. The key is
// meta.ID, else meta.Filename, else a generated UUID. The returned Size
// counts the bytes read from entity, before any compression.
func (a *Adapter) Save(ctx context.Context, entity interface{}, meta Meta) (*UploadInfo, error) {
	defer a.track("save")()

	reader, ok := entity.(io.Reader)
	if !ok || isNilReader(reader) {
		a.metrics.RecordError("save", "bad_request")
		return nil, NewBadRequestError("Entity is not a stream")
	}

	store, err := a.storage()
	if err != nil {
		return nil, err
	}

	key := entityKey(meta)

	objectMeta := types.ObjectMetadata{
		ContentType:  meta.ContentType,
		UserMetadata: make(map[string]string, len(meta.Metadata)+1),
	}
	if objectMeta.ContentType == "" {
		objectMeta.ContentType = "application/octet-stream"
	}
	for k, v := range meta.Metadata {
		objectMeta.UserMetadata[k] = v
	}
	if meta.Filename != "" {
		objectMeta.UserMetadata["filename"] = meta.Filename
	}

	var source *countingReader
	if a.opts.Compression != "" {
		source = &countingReader{r: reader}
		compressed, err := compress(source, a.opts.Compression)
		if err != nil {
			return nil, err
		}
		defer compressed.Close()
		reader = compressed
		objectMeta.ContentEncoding = a.opts.Compression
	}

	info, err := store.Put(ctx, a.collection, key, reader, objectMeta)
	if err != nil {
		if errors.Is(err, types.ErrInvalidKey) {
			a.metrics.RecordError("save", "bad_request")
			a.logger.Warn(ctx, "invalid entity key", observability.Fields{"key": key})
			return nil, NewBadRequestError(err.Error())
		}
		a.metrics.RecordError("save", "storage")
		a.logger.Error(ctx, "S3 error", err, observability.Fields{
			"operation": "save",
			"key":       key,
		})
		return nil, err
	}
	if source != nil {
		entityInfo := *info
		entityInfo.Size = source.n.Load()
		info = &entityInfo
	}

	a.metrics.RecordSuccess("save")
	a.logger.Debug(ctx, "entity saved", observability.Fields{
		"key":  key,
		"size": info.Size,
	})
	a.publish(ctx, Event{
		Name:       EventSaved,
		Collection: a.collection,
		Key:        key,
		Size:       info.Size,
		ETag:       info.ETag,
	})

	return info, nil
}

// UpdateByID replaces the entity stored under id. An empty id is a bad
// request rather than a save under a generated key.
func (a *Adapter) UpdateByID(ctx context.Context, id string, entity interface{}, meta Meta) (*UploadInfo, error) {
	if id == "" {
		a.metrics.RecordError("update_by_id", "bad_request")
		return nil, NewBadRequestError("Entity id is required")
	}
	meta.ID = id
	return a.Save(ctx, entity, meta)
}

// RemoveByID deletes the entity stored under id
func (a *Adapter) RemoveByID(ctx context.Context, id string) error {
	defer a.track("remove_by_id")()

	store, err := a.storage()
	if err != nil {
		return err
	}

	if err := store.Delete(ctx, a.collection, id); err != nil {
		if errors.Is(err, types.ErrInvalidKey) {
			a.metrics.RecordError("remove_by_id", "bad_request")
			return NewBadRequestError(err.Error())
		}
		a.metrics.RecordError("remove_by_id", "storage")
		a.logger.Error(ctx, "S3 error", err, observability.Fields{
			"operation": "remove_by_id",
			"id":        id,
		})
		return err
	}

	a.metrics.RecordSuccess("remove_by_id")
	a.publish(ctx, Event{Name: EventRemoved, Collection: a.collection, Key: id})
	return nil
}

// RemoveMany deletes every entity matching q and returns how many were
// removed. Failures do not stop the sweep; they are joined into the error.
func (a *Adapter) RemoveMany(ctx context.Context, q *Query) (int, error) {
	objects, err := a.Find(ctx, q)
	if err != nil {
		return 0, err
	}

	removed := 0
	var errs []error
	for _, obj := range objects {
		if err := a.RemoveByID(ctx, obj.Key); err != nil {
			errs = append(errs, fmt.Errorf("remove %q: %w", obj.Key, err))
			continue
		}
		removed++
	}

	return removed, errors.Join(errs...)
}

// Clear deletes every entity of the collection
func (a *Adapter) Clear(ctx context.Context) (int, error) {
	return a.RemoveMany(ctx, nil)
}

func (a *Adapter) storage() (types.ObjectStorage, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.store == nil {
		return nil, ErrNotConnected
	}
	return a.store, nil
}

func (a *Adapter) publish(ctx context.Context, event Event) {
	a.mu.RLock()
	publisher := a.publisher
	a.mu.RUnlock()

	if publisher == nil {
		return
	}

	event.Timestamp = time.Now().UTC()
	if err := publisher.Publish(ctx, event); err != nil {
		a.metrics.RecordError("publish", "events")
		a.logger.Warn(ctx, "failed to publish entity event", observability.Fields{
			"event": event.Name,
			"key":   event.Key,
			"error": err.Error(),
		})
	}
}

func (a *Adapter) track(operation string) func() {
	start := time.Now()
	a.metrics.StartOperation(operation)
	return func() {
		a.metrics.EndOperation(operation)
		a.metrics.RecordDuration(operation, time.Since(start).Seconds())
	}
}

// isNilReader catches typed nils such as a nil *bytes.Buffer, which pass
// the interface nil check but panic on Read.
func isNilReader(r io.Reader) bool {
	if r == nil {
		return true
	}
	v := reflect.ValueOf(r)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// countingReader counts the entity bytes fed to the compressor
type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

func entityKey(meta Meta) string {
	switch {
	case meta.ID != "":
		return meta.ID
	case meta.Filename != "":
		return meta.Filename
	default:
		return uuid.NewString()
	}
}
