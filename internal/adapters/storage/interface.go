package storage

import (
	"context"
	"time"
)

// ObjectInfo represents metadata about a stored object
type ObjectInfo struct {
	Bucket       string            `json:"bucket"`
	Key          string            `json:"key"`
	Size         int64             `json:"size"`
	ContentType  string            `json:"content_type"`
	LastModified time.Time         `json:"last_modified"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ListOptions provides options for listing objects
type ListOptions struct {
	Prefix     string `json:"prefix,omitempty"`
	MaxResults int    `json:"max_results,omitempty"`
	Marker     string `json:"marker,omitempty"` // For pagination
}

// ListResult represents the result of a list operation
type ListResult struct {
	Objects     []ObjectInfo `json:"objects"`
	NextMarker  string       `json:"next_marker,omitempty"`
	IsTruncated bool         `json:"is_truncated"`
}

// PutOptions provides options for writing objects
type PutOptions struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ObjectStorage is a blob store addressed by bucket and key.
// Writes overwrite any existing object at the same address.
type ObjectStorage interface {
	// Put writes data to bucket/key
	Put(ctx context.Context, bucket, key string, data []byte, opts *PutOptions) error

	// Get reads the object at bucket/key
	Get(ctx context.Context, bucket, key string) ([]byte, error)

	// Delete removes the object at bucket/key
	Delete(ctx context.Context, bucket, key string) error

	// Exists checks if an object exists at bucket/key
	Exists(ctx context.Context, bucket, key string) (bool, error)

	// Stat returns metadata for an object
	Stat(ctx context.Context, bucket, key string) (*ObjectInfo, error)

	// List returns objects in bucket matching the given options
	List(ctx context.Context, bucket string, opts *ListOptions) (*ListResult, error)

	// Close cleans up any resources used by the storage implementation
	Close() error
}

// Config represents configuration for storage providers
type Config struct {
	Type            string `json:"type" yaml:"type"`           // "s3", "minio", "local", "memory"
	BasePath        string `json:"base_path" yaml:"base_path"` // For local storage
	Endpoint        string `json:"endpoint" yaml:"endpoint"`   // For S3-compatible endpoints
	Region          string `json:"region" yaml:"region"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
	UseSSL          bool   `json:"use_ssl" yaml:"use_ssl"`
}

const defaultContentType = "application/octet-stream"

const defaultMaxResults = 1000
