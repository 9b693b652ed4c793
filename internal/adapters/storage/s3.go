package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3API is the subset of the S3 client used by S3ObjectStorage
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3ObjectStorage implements ObjectStorage on Amazon S3
type S3ObjectStorage struct {
	client S3API
}

// NewS3ObjectStorage creates an S3ObjectStorage from an SDK config.
// A non-empty endpoint switches the client to path-style addressing against that endpoint.
func NewS3ObjectStorage(cfg aws.Config, endpoint string) *S3ObjectStorage {
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3ObjectStorageWithClient(client)
}

// NewS3ObjectStorageWithClient wraps an existing S3 client
func NewS3ObjectStorageWithClient(client S3API) *S3ObjectStorage {
	return &S3ObjectStorage{client: client}
}

// Put implements ObjectStorage.Put
func (s *S3ObjectStorage) Put(ctx context.Context, bucket, key string, data []byte, opts *PutOptions) error {
	if err := validateAddress(bucket, key); err != nil {
		return NewObjectError("Put", bucket, key, err)
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if opts != nil {
		if opts.ContentType != "" {
			input.ContentType = aws.String(opts.ContentType)
		}
		input.Metadata = copyMetadata(opts.Metadata)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return NewObjectError("Put", bucket, key, translateS3Error(err))
	}
	return nil
}

// Get implements ObjectStorage.Get
func (s *S3ObjectStorage) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := validateAddress(bucket, key); err != nil {
		return nil, NewObjectError("Get", bucket, key, err)
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, NewObjectError("Get", bucket, key, translateS3Error(err))
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, NewObjectError("Get", bucket, key, err)
	}
	return data, nil
}

// Delete implements ObjectStorage.Delete. S3 reports success for keys that do not exist.
func (s *S3ObjectStorage) Delete(ctx context.Context, bucket, key string) error {
	if err := validateAddress(bucket, key); err != nil {
		return NewObjectError("Delete", bucket, key, err)
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return NewObjectError("Delete", bucket, key, translateS3Error(err))
	}
	return nil
}

// Exists implements ObjectStorage.Exists
func (s *S3ObjectStorage) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.Stat(ctx, bucket, key)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Stat implements ObjectStorage.Stat
func (s *S3ObjectStorage) Stat(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	if err := validateAddress(bucket, key); err != nil {
		return nil, NewObjectError("Stat", bucket, key, err)
	}

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, NewObjectError("Stat", bucket, key, translateS3Error(err))
	}

	contentType := aws.ToString(out.ContentType)
	if contentType == "" {
		contentType = defaultContentType
	}

	return &ObjectInfo{
		Bucket:       bucket,
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  contentType,
		LastModified: aws.ToTime(out.LastModified),
		ETag:         aws.ToString(out.ETag),
		Metadata:     out.Metadata,
	}, nil
}

// List implements ObjectStorage.List
func (s *S3ObjectStorage) List(ctx context.Context, bucket string, opts *ListOptions) (*ListResult, error) {
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

	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		MaxKeys: aws.Int32(int32(maxResults)),
	}
	if opts.Prefix != "" {
		input.Prefix = aws.String(opts.Prefix)
	}
	if opts.Marker != "" {
		input.StartAfter = aws.String(opts.Marker)
	}

	out, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, NewObjectError("List", bucket, "", translateS3Error(err))
	}

	result := &ListResult{IsTruncated: aws.ToBool(out.IsTruncated)}
	for _, object := range out.Contents {
		result.Objects = append(result.Objects, ObjectInfo{
			Bucket:       bucket,
			Key:          aws.ToString(object.Key),
			Size:         aws.ToInt64(object.Size),
			LastModified: aws.ToTime(object.LastModified),
			ETag:         aws.ToString(object.ETag),
		})
	}
	if result.IsTruncated && len(result.Objects) > 0 {
		result.NextMarker = result.Objects[len(result.Objects)-1].Key
	}

	return result, nil
}

// Close implements ObjectStorage.Close
func (s *S3ObjectStorage) Close() error {
	return nil
}

// translateS3Error maps SDK errors onto the storage sentinels, keeping the raw error in the chain
func translateS3Error(err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket

	switch {
	case errors.As(err, &noSuchKey), errors.As(err, &notFound):
		return fmt.Errorf("%w: %w", ErrObjectNotFound, err)
	case errors.As(err, &noSuchBucket):
		return fmt.Errorf("%w: %w", ErrBucketNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%w: %w", ErrObjectNotFound, err)
		case "NoSuchBucket":
			return fmt.Errorf("%w: %w", ErrBucketNotFound, err)
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch", "AllAccessDisabled":
			return fmt.Errorf("%w: %w", ErrAccessDenied, err)
		}
	}

	return err
}
