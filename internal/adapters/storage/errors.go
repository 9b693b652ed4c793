package storage

import (
	"errors"
	"fmt"
)

// Common storage error types
var (
	ErrObjectNotFound     = errors.New("object not found")
	ErrBucketNotFound     = errors.New("bucket not found")
	ErrAccessDenied       = errors.New("access denied")
	ErrInvalidKey         = errors.New("invalid object key")
	ErrInvalidBucket      = errors.New("invalid bucket name")
	ErrStorageUnavailable = errors.New("storage service unavailable")
)

// ObjectError represents a storage operation error with additional context
type ObjectError struct {
	Op     string // Operation that failed (e.g., "Put", "Get")
	Bucket string
	Key    string
	Err    error
}

func (e *ObjectError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s failed for s3://%s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	if e.Bucket != "" {
		return fmt.Sprintf("storage %s failed for bucket '%s': %v", e.Op, e.Bucket, e.Err)
	}
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *ObjectError) Unwrap() error {
	return e.Err
}

// NewObjectError creates a new ObjectError
func NewObjectError(op, bucket, key string, err error) *ObjectError {
	return &ObjectError{
		Op:     op,
		Bucket: bucket,
		Key:    key,
		Err:    err,
	}
}

// IsNotFound returns true if the error indicates a missing object or bucket
func IsNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound) || errors.Is(err, ErrBucketNotFound)
}

// IsAccessDenied returns true if the storage service rejected the credentials
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsInvalid returns true if the bucket or key was rejected before any I/O
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalidKey) || errors.Is(err, ErrInvalidBucket)
}

func validateAddress(bucket, key string) error {
	if bucket == "" {
		return ErrInvalidBucket
	}
	if key == "" {
		return ErrInvalidKey
	}
	return nil
}
