package storage

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryObjectStorage is an in-memory implementation of ObjectStorage.
// Buckets are created on first write.
type MemoryObjectStorage struct {
	mu       sync.RWMutex
	buckets  map[string]map[string]*memoryObject
	failures map[string]error
}

type memoryObject struct {
	data         []byte
	metadata     map[string]string
	contentType  string
	lastModified time.Time
	etag         string
}

// NewMemoryObjectStorage creates a new MemoryObjectStorage instance
func NewMemoryObjectStorage() *MemoryObjectStorage {
	return &MemoryObjectStorage{
		buckets:  make(map[string]map[string]*memoryObject),
		failures: make(map[string]error),
	}
}

// Put implements ObjectStorage.Put
func (m *MemoryObjectStorage) Put(ctx context.Context, bucket, key string, data []byte, opts *PutOptions) error {
	if err := validateAddress(bucket, key); err != nil {
		return NewObjectError("Put", bucket, key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failures["Put"]; err != nil {
		return NewObjectError("Put", bucket, key, err)
	}

	contentType := defaultContentType
	if opts != nil && opts.ContentType != "" {
		contentType = opts.ContentType
	} else if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		contentType = ct
	}

	var metadata map[string]string
	if opts != nil && opts.Metadata != nil {
		metadata = copyMetadata(opts.Metadata)
	}

	objects, ok := m.buckets[bucket]
	if !ok {
		objects = make(map[string]*memoryObject)
		m.buckets[bucket] = objects
	}

	now := time.Now()
	objects[key] = &memoryObject{
		data:         append([]byte(nil), data...),
		metadata:     metadata,
		contentType:  contentType,
		lastModified: now,
		etag:         fmt.Sprintf("%d-%d", len(data), now.UnixNano()),
	}

	return nil
}

// Get implements ObjectStorage.Get
func (m *MemoryObjectStorage) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := validateAddress(bucket, key); err != nil {
		return nil, NewObjectError("Get", bucket, key, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.failures["Get"]; err != nil {
		return nil, NewObjectError("Get", bucket, key, err)
	}

	object, err := m.lookup(bucket, key)
	if err != nil {
		return nil, NewObjectError("Get", bucket, key, err)
	}
	return append([]byte(nil), object.data...), nil
}

// Delete implements ObjectStorage.Delete
func (m *MemoryObjectStorage) Delete(ctx context.Context, bucket, key string) error {
	if err := validateAddress(bucket, key); err != nil {
		return NewObjectError("Delete", bucket, key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failures["Delete"]; err != nil {
		return NewObjectError("Delete", bucket, key, err)
	}

	if _, err := m.lookup(bucket, key); err != nil {
		return NewObjectError("Delete", bucket, key, err)
	}
	delete(m.buckets[bucket], key)
	return nil
}

// Exists implements ObjectStorage.Exists
func (m *MemoryObjectStorage) Exists(ctx context.Context, bucket, key string) (bool, error) {
	if err := validateAddress(bucket, key); err != nil {
		return false, NewObjectError("Exists", bucket, key, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.failures["Exists"]; err != nil {
		return false, NewObjectError("Exists", bucket, key, err)
	}

	_, err := m.lookup(bucket, key)
	return err == nil, nil
}

// Stat implements ObjectStorage.Stat
func (m *MemoryObjectStorage) Stat(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	if err := validateAddress(bucket, key); err != nil {
		return nil, NewObjectError("Stat", bucket, key, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	object, err := m.lookup(bucket, key)
	if err != nil {
		return nil, NewObjectError("Stat", bucket, key, err)
	}

	info := object.info(bucket, key)
	return &info, nil
}

// List implements ObjectStorage.List
func (m *MemoryObjectStorage) List(ctx context.Context, bucket string, opts *ListOptions) (*ListResult, error) {
	if bucket == "" {
		return nil, NewObjectError("List", bucket, "", ErrInvalidBucket)
	}
	if opts == nil {
		opts = &ListOptions{}
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	objects, ok := m.buckets[bucket]
	if !ok {
		return nil, NewObjectError("List", bucket, "", ErrBucketNotFound)
	}

	keys := make([]string, 0, len(objects))
	for key := range objects {
		if opts.Prefix != "" && !strings.HasPrefix(key, opts.Prefix) {
			continue
		}
		if opts.Marker != "" && key <= opts.Marker {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := &ListResult{}
	if len(keys) > maxResults {
		keys = keys[:maxResults]
		result.IsTruncated = true
		result.NextMarker = keys[len(keys)-1]
	}
	for _, key := range keys {
		result.Objects = append(result.Objects, objects[key].info(bucket, key))
	}

	return result, nil
}

// Close implements ObjectStorage.Close
func (m *MemoryObjectStorage) Close() error {
	return nil
}

// Additional methods for testing

// FailOn makes every subsequent call of op ("Put", "Get", "Delete", "Exists") fail with err.
// A nil err clears the failure.
func (m *MemoryObjectStorage) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// ObjectCount returns the number of objects stored in bucket
func (m *MemoryObjectStorage) ObjectCount(bucket string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.buckets[bucket])
}

func (m *MemoryObjectStorage) lookup(bucket, key string) (*memoryObject, error) {
	objects, ok := m.buckets[bucket]
	if !ok {
		return nil, ErrObjectNotFound
	}
	object, ok := objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return object, nil
}

func (o *memoryObject) info(bucket, key string) ObjectInfo {
	return ObjectInfo{
		Bucket:       bucket,
		Key:          key,
		Size:         int64(len(o.data)),
		ContentType:  o.contentType,
		LastModified: o.lastModified,
		ETag:         o.etag,
		Metadata:     copyMetadata(o.metadata),
	}
}

func copyMetadata(metadata map[string]string) map[string]string {
	if metadata == nil {
		return nil
	}
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
