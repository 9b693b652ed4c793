package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioObjectStorage implements ObjectStorage against an S3-compatible MinIO server
type MinioObjectStorage struct {
	client *minio.Client
}

// NewMinioObjectStorage creates a new MinioObjectStorage. The endpoint may carry an
// http:// or https:// scheme, which overrides useSSL.
func NewMinioObjectStorage(cfg *Config) (*MinioObjectStorage, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio storage requires an endpoint")
	}

	endpoint, secure := splitEndpoint(cfg.Endpoint, cfg.UseSSL)
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioObjectStorage{client: client}, nil
}

// Put implements ObjectStorage.Put
func (m *MinioObjectStorage) Put(ctx context.Context, bucket, key string, data []byte, opts *PutOptions) error {
	if err := validateAddress(bucket, key); err != nil {
		return NewObjectError("Put", bucket, key, err)
	}

	putOpts := minio.PutObjectOptions{ContentType: defaultContentType}
	if opts != nil {
		if opts.ContentType != "" {
			putOpts.ContentType = opts.ContentType
		}
		putOpts.UserMetadata = copyMetadata(opts.Metadata)
	}

	_, err := m.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), putOpts)
	if err != nil {
		return NewObjectError("Put", bucket, key, translateMinioError(err))
	}
	return nil
}

// Get implements ObjectStorage.Get
func (m *MinioObjectStorage) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := validateAddress(bucket, key); err != nil {
		return nil, NewObjectError("Get", bucket, key, err)
	}

	object, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, NewObjectError("Get", bucket, key, translateMinioError(err))
	}
	defer object.Close()

	// GetObject is lazy; missing keys surface on the first read
	data, err := io.ReadAll(object)
	if err != nil {
		return nil, NewObjectError("Get", bucket, key, translateMinioError(err))
	}
	return data, nil
}

// Delete implements ObjectStorage.Delete
func (m *MinioObjectStorage) Delete(ctx context.Context, bucket, key string) error {
	if err := validateAddress(bucket, key); err != nil {
		return NewObjectError("Delete", bucket, key, err)
	}

	if err := m.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return NewObjectError("Delete", bucket, key, translateMinioError(err))
	}
	return nil
}

// Exists implements ObjectStorage.Exists
func (m *MinioObjectStorage) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := m.Stat(ctx, bucket, key)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Stat implements ObjectStorage.Stat
func (m *MinioObjectStorage) Stat(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	if err := validateAddress(bucket, key); err != nil {
		return nil, NewObjectError("Stat", bucket, key, err)
	}

	info, err := m.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, NewObjectError("Stat", bucket, key, translateMinioError(err))
	}

	contentType := info.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}

	return &ObjectInfo{
		Bucket:       bucket,
		Key:          info.Key,
		Size:         info.Size,
		ContentType:  contentType,
		LastModified: info.LastModified,
		ETag:         info.ETag,
		Metadata:     copyMetadata(map[string]string(info.UserMetadata)),
	}, nil
}

// List implements ObjectStorage.List
func (m *MinioObjectStorage) List(ctx context.Context, bucket string, opts *ListOptions) (*ListResult, error) {
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

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := m.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:     opts.Prefix,
		StartAfter: opts.Marker,
		Recursive:  true,
	})

	result := &ListResult{}
	for object := range objects {
		if object.Err != nil {
			return nil, NewObjectError("List", bucket, "", translateMinioError(object.Err))
		}
		if len(result.Objects) == maxResults {
			result.IsTruncated = true
			break
		}
		result.Objects = append(result.Objects, ObjectInfo{
			Bucket:       bucket,
			Key:          object.Key,
			Size:         object.Size,
			ContentType:  object.ContentType,
			LastModified: object.LastModified,
			ETag:         object.ETag,
		})
	}

	sort.Slice(result.Objects, func(i, j int) bool {
		return result.Objects[i].Key < result.Objects[j].Key
	})
	if result.IsTruncated {
		result.NextMarker = result.Objects[len(result.Objects)-1].Key
	}

	return result, nil
}

// Close implements ObjectStorage.Close
func (m *MinioObjectStorage) Close() error {
	return nil
}

func splitEndpoint(endpoint string, useSSL bool) (string, bool) {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "https://"), "/"), true
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "http://"), "/"), false
	default:
		return strings.TrimSuffix(endpoint, "/"), useSSL
	}
}

func translateMinioError(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey":
		return fmt.Errorf("%w: %w", ErrObjectNotFound, err)
	case "NoSuchBucket":
		return fmt.Errorf("%w: %w", ErrBucketNotFound, err)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return fmt.Errorf("%w: %w", ErrAccessDenied, err)
	default:
		return err
	}
}
