package services

import (
	"context"
	"fmt"

	"s3-archive-lambda/internal/adapters/storage"
)

// ObjectService performs the direct get/put operations of the handler
type ObjectService struct {
	storage storage.ObjectStorage
}

// NewObjectService creates a new object service instance
func NewObjectService(store storage.ObjectStorage) *ObjectService {
	return &ObjectService{storage: store}
}

// Put writes body to bucket/key and returns the content read back from storage
func (s *ObjectService) Put(ctx context.Context, bucket, key string, body []byte) ([]byte, error) {
	if err := s.storage.Put(ctx, bucket, key, body, nil); err != nil {
		return nil, fmt.Errorf("failed to store object: %w", err)
	}

	stored, err := s.storage.Get(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read back object: %w", err)
	}
	return stored, nil
}

// Get returns the content of bucket/key
func (s *ObjectService) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	data, err := s.storage.Get(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}
