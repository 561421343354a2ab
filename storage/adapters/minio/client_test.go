package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitystore/config"
	mockObservability "entitystore/observability/mocks"
	"entitystore/storage/types"
)

type storedObject struct {
	data []byte
	opts minio.PutObjectOptions
}

// fakeAPI is an in-memory objectAPI
type fakeAPI struct {
	mu       sync.Mutex
	buckets  map[string]map[string]storedObject
	listErr  error
	putCalls []minio.PutObjectOptions
}

func newFakeAPI(buckets ...string) *fakeAPI {
	f := &fakeAPI{buckets: make(map[string]map[string]storedObject)}
	for _, b := range buckets {
		f.buckets[b] = make(map[string]storedObject)
	}
	return f
}

func noSuchKey() error {
	return minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}
}

func noSuchBucket() error {
	return minio.ErrorResponse{Code: "NoSuchBucket", StatusCode: http.StatusNotFound}
}

func (f *fakeAPI) PutObject(_ context.Context, bucket, key string, reader io.Reader, _ int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	objects, ok := f.buckets[bucket]
	if !ok {
		return minio.UploadInfo{}, noSuchBucket()
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	objects[key] = storedObject{data: data, opts: opts}
	f.putCalls = append(f.putCalls, opts)
	return minio.UploadInfo{Bucket: bucket, Key: key, ETag: "etag-" + key, Size: int64(len(data))}, nil
}

func (f *fakeAPI) GetObject(_ context.Context, bucket, key string, _ minio.GetObjectOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	obj, ok := f.buckets[bucket][key]
	if !ok {
		return nil, noSuchKey()
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (f *fakeAPI) StatObject(_ context.Context, bucket, key string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	objects, ok := f.buckets[bucket]
	if !ok {
		return minio.ObjectInfo{}, noSuchBucket()
	}
	obj, ok := objects[key]
	if !ok {
		return minio.ObjectInfo{}, noSuchKey()
	}

	header := http.Header{}
	if obj.opts.ContentEncoding != "" {
		header.Set("Content-Encoding", obj.opts.ContentEncoding)
	}
	user := minio.StringMap{}
	for k, v := range obj.opts.UserMetadata {
		user[http.CanonicalHeaderKey(k)] = v
	}

	return minio.ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		ContentType:  obj.opts.ContentType,
		ETag:         "etag-" + key,
		LastModified: time.Unix(1700000000, 0),
		Metadata:     header,
		UserMetadata: user,
	}, nil
}

func (f *fakeAPI) RemoveObject(_ context.Context, bucket, key string, _ minio.RemoveObjectOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	objects, ok := f.buckets[bucket]
	if !ok {
		return noSuchBucket()
	}
	delete(objects, key)
	return nil
}

func (f *fakeAPI) ListObjects(_ context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listErr != nil {
		ch := make(chan minio.ObjectInfo, 1)
		ch <- minio.ObjectInfo{Err: f.listErr}
		close(ch)
		return ch
	}

	objects := f.buckets[bucket]
	keys := make([]string, 0, len(objects))
	for k := range objects {
		if strings.HasPrefix(k, opts.Prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	ch := make(chan minio.ObjectInfo, len(keys))
	for _, k := range keys {
		ch <- minio.ObjectInfo{Key: k, Size: int64(len(objects[k].data)), ETag: "etag-" + k}
	}
	close(ch)
	return ch
}

func (f *fakeAPI) BucketExists(_ context.Context, bucket string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.buckets[bucket]
	return ok, nil
}

func (f *fakeAPI) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.buckets[bucket]; ok {
		return minio.ErrorResponse{Code: "BucketAlreadyOwnedByYou", StatusCode: http.StatusConflict}
	}
	f.buckets[bucket] = make(map[string]storedObject)
	return nil
}

func (f *fakeAPI) RemoveBucket(_ context.Context, bucket string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.buckets, bucket)
	return nil
}

func newTestClient(api objectAPI) *Client {
	cfg := &config.StorageConfig{
		Provider: "minio",
		Bucket:   "entities",
		Region:   "us-east-1",
		PartSize: 16 << 20,
	}
	return newClient(api, cfg, mockObservability.NewNopLogger(), mockObservability.NewNopMetrics())
}

func TestNewClient(t *testing.T) {
	t.Run("valid configuration", func(t *testing.T) {
		cfg := &config.StorageConfig{
			Provider:   "minio",
			Endpoint:   "localhost",
			Port:       9000,
			AccessKey:  "minioadmin",
			SecretKey:  "minioadmin",
			Timeout:    time.Second,
			MaxRetries: 1,
		}

		client, err := NewClient(cfg, mockObservability.NewNopLogger(), mockObservability.NewNopMetrics())
		require.NoError(t, err)
		assert.NotNil(t, client)
	})

	t.Run("missing endpoint", func(t *testing.T) {
		cfg := &config.StorageConfig{Provider: "minio", Timeout: time.Second}

		client, err := NewClient(cfg, mockObservability.NewNopLogger(), mockObservability.NewNopMetrics())
		assert.Nil(t, client)
		assert.ErrorContains(t, err, "STORAGE_ENDPOINT is required")
	})
}

func TestClient_PutAndGet(t *testing.T) {
	api := newFakeAPI("entities")
	client := newTestClient(api)
	ctx := context.Background()

	info, err := client.Put(ctx, "", "a.bin", strings.NewReader("payload"), types.ObjectMetadata{
		ContentType:     "application/octet-stream",
		ContentEncoding: "gzip",
		UserMetadata:    map[string]string{"filename": "a.bin"},
	})
	require.NoError(t, err)
	assert.Equal(t, &types.UploadInfo{Bucket: "entities", Key: "a.bin", ETag: "etag-a.bin", Size: 7}, info)

	require.Len(t, api.putCalls, 1)
	assert.Equal(t, uint64(16<<20), api.putCalls[0].PartSize)

	body, meta, err := client.GetWithMetadata(ctx, "", "a.bin")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.Equal(t, "gzip", meta.ContentEncoding)
	assert.Equal(t, "application/octet-stream", meta.ContentType)
	assert.Equal(t, "a.bin", meta.UserMetadata["filename"])
}

func TestClient_GetErrors(t *testing.T) {
	client := newTestClient(newFakeAPI("entities"))
	ctx := context.Background()

	_, err := client.Get(ctx, "", "missing")
	assert.ErrorIs(t, err, types.ErrObjectNotFound)

	_, err = client.Get(ctx, "nope", "key")
	assert.ErrorIs(t, err, types.ErrBucketNotFound)
}

func TestClient_PutMissingBucket(t *testing.T) {
	client := newTestClient(newFakeAPI())

	_, err := client.Put(context.Background(), "", "k", strings.NewReader("v"), types.ObjectMetadata{})

	assert.ErrorIs(t, err, types.ErrBucketNotFound)
}

func TestClient_DeleteAndExists(t *testing.T) {
	client := newTestClient(newFakeAPI("entities"))
	ctx := context.Background()

	_, err := client.Put(ctx, "", "k", strings.NewReader("v"), types.ObjectMetadata{})
	require.NoError(t, err)

	exists, err := client.Exists(ctx, "", "k")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, client.Delete(ctx, "", "k"))

	exists, err = client.Exists(ctx, "", "k")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestClient_List(t *testing.T) {
	api := newFakeAPI("entities")
	client := newTestClient(api)
	ctx := context.Background()

	for _, key := range []string{"x/1", "x/2", "y"} {
		_, err := client.Put(ctx, "", key, strings.NewReader(key), types.ObjectMetadata{})
		require.NoError(t, err)
	}

	objects, err := client.List(ctx, "", "x/")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "x/1", objects[0].Key)

	api.listErr = errors.New("connection reset")
	objects, err = client.List(ctx, "", "")
	assert.Nil(t, objects)
	assert.ErrorContains(t, err, "connection reset")
}

func TestClient_Buckets(t *testing.T) {
	client := newTestClient(newFakeAPI())
	ctx := context.Background()

	exists, err := client.BucketExists(ctx, "")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, client.CreateBucket(ctx, ""))
	require.NoError(t, client.CreateBucket(ctx, ""))

	exists, err = client.BucketExists(ctx, "entities")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, client.DeleteBucket(ctx, ""))
}

func TestIsNotFoundError(t *testing.T) {
	assert.True(t, isNotFoundError(noSuchKey()))
	assert.True(t, isNotFoundError(minio.ErrorResponse{StatusCode: http.StatusNotFound}))
	assert.False(t, isNotFoundError(noSuchBucket()))
	assert.False(t, isNotFoundError(errors.New("boom")))
	assert.True(t, isBucketNotFoundError(noSuchBucket()))
}
