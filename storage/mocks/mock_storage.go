// Package mocks provides a testify mock of types.ObjectStorage.
package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"entitystore/storage/types"
)

// MockObjectStorage is a mock implementation of types.ObjectStorage
type MockObjectStorage struct {
	mock.Mock
}

// Put mocks the Put method
func (m *MockObjectStorage) Put(ctx context.Context, bucket, key string, reader io.Reader, metadata types.ObjectMetadata) (*types.UploadInfo, error) {
	args := m.Called(ctx, bucket, key, reader, metadata)
	info, _ := args.Get(0).(*types.UploadInfo)
	return info, args.Error(1)
}

// Get mocks the Get method
func (m *MockObjectStorage) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, bucket, key)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

// GetWithMetadata mocks the GetWithMetadata method
func (m *MockObjectStorage) GetWithMetadata(ctx context.Context, bucket, key string) (io.ReadCloser, *types.ObjectMetadata, error) {
	args := m.Called(ctx, bucket, key)
	rc, _ := args.Get(0).(io.ReadCloser)
	meta, _ := args.Get(1).(*types.ObjectMetadata)
	return rc, meta, args.Error(2)
}

// Delete mocks the Delete method
func (m *MockObjectStorage) Delete(ctx context.Context, bucket, key string) error {
	args := m.Called(ctx, bucket, key)
	return args.Error(0)
}

// Exists mocks the Exists method
func (m *MockObjectStorage) Exists(ctx context.Context, bucket, key string) (bool, error) {
	args := m.Called(ctx, bucket, key)
	return args.Bool(0), args.Error(1)
}

// List mocks the List method
func (m *MockObjectStorage) List(ctx context.Context, bucket, prefix string) ([]types.ObjectInfo, error) {
	args := m.Called(ctx, bucket, prefix)
	objects, _ := args.Get(0).([]types.ObjectInfo)
	return objects, args.Error(1)
}

// BucketExists mocks the BucketExists method
func (m *MockObjectStorage) BucketExists(ctx context.Context, bucket string) (bool, error) {
	args := m.Called(ctx, bucket)
	return args.Bool(0), args.Error(1)
}

// CreateBucket mocks the CreateBucket method
func (m *MockObjectStorage) CreateBucket(ctx context.Context, bucket string) error {
	args := m.Called(ctx, bucket)
	return args.Error(0)
}

// DeleteBucket mocks the DeleteBucket method
func (m *MockObjectStorage) DeleteBucket(ctx context.Context, bucket string) error {
	args := m.Called(ctx, bucket)
	return args.Error(0)
}
