package storage

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	metadataSuffix = ".metadata"
	tempPrefix     = ".put-"
)

// LocalObjectStorage implements ObjectStorage on the local filesystem.
// Objects live at <basePath>/<bucket>/<key>.
type LocalObjectStorage struct {
	basePath string
}

// NewLocalObjectStorage creates a new LocalObjectStorage instance
func NewLocalObjectStorage(basePath string) (*LocalObjectStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, NewObjectError("NewLocalObjectStorage", "", "", err)
	}

	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, NewObjectError("NewLocalObjectStorage", "", "", err)
	}

	return &LocalObjectStorage{basePath: absPath}, nil
}

// Put implements ObjectStorage.Put
func (l *LocalObjectStorage) Put(ctx context.Context, bucket, key string, data []byte, opts *PutOptions) error {
	if err := l.validate(bucket, key); err != nil {
		return NewObjectError("Put", bucket, key, err)
	}

	filePath := l.objectPath(bucket, key)
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return NewObjectError("Put", bucket, key, err)
	}

	// Write to a unique temp file first so readers never see a partial object
	tempFile, err := os.CreateTemp(filepath.Dir(filePath), tempPrefix+"*")
	if err != nil {
		return NewObjectError("Put", bucket, key, translateFSError(err))
	}
	tempPath := tempFile.Name()
	_, err = tempFile.Write(data)
	if closeErr := tempFile.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tempPath, 0644)
	}
	if err == nil {
		err = os.Rename(tempPath, filePath)
	}
	if err != nil {
		os.Remove(tempPath)
		return NewObjectError("Put", bucket, key, translateFSError(err))
	}

	metadataPath := filePath + metadataSuffix
	if opts != nil && len(opts.Metadata) > 0 {
		if err := writeMetadata(metadataPath, opts.Metadata); err != nil {
			return NewObjectError("Put", bucket, key, err)
		}
	} else {
		os.Remove(metadataPath)
	}

	return nil
}

// Get implements ObjectStorage.Get
func (l *LocalObjectStorage) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := l.validate(bucket, key); err != nil {
		return nil, NewObjectError("Get", bucket, key, err)
	}

	data, err := os.ReadFile(l.objectPath(bucket, key))
	if err != nil {
		return nil, NewObjectError("Get", bucket, key, translateFSError(err))
	}
	return data, nil
}

// Delete implements ObjectStorage.Delete
func (l *LocalObjectStorage) Delete(ctx context.Context, bucket, key string) error {
	if err := l.validate(bucket, key); err != nil {
		return NewObjectError("Delete", bucket, key, err)
	}

	filePath := l.objectPath(bucket, key)
	if err := os.Remove(filePath); err != nil {
		return NewObjectError("Delete", bucket, key, translateFSError(err))
	}
	os.Remove(filePath + metadataSuffix)

	return nil
}

// Exists implements ObjectStorage.Exists
func (l *LocalObjectStorage) Exists(ctx context.Context, bucket, key string) (bool, error) {
	if err := l.validate(bucket, key); err != nil {
		return false, NewObjectError("Exists", bucket, key, err)
	}

	_, err := os.Stat(l.objectPath(bucket, key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, NewObjectError("Exists", bucket, key, translateFSError(err))
	}
	return true, nil
}

// Stat implements ObjectStorage.Stat
func (l *LocalObjectStorage) Stat(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	if err := l.validate(bucket, key); err != nil {
		return nil, NewObjectError("Stat", bucket, key, err)
	}

	filePath := l.objectPath(bucket, key)
	stat, err := os.Stat(filePath)
	if err != nil {
		return nil, NewObjectError("Stat", bucket, key, translateFSError(err))
	}

	info := l.objectInfo(bucket, key, stat)
	return &info, nil
}

// List implements ObjectStorage.List
func (l *LocalObjectStorage) List(ctx context.Context, bucket string, opts *ListOptions) (*ListResult, error) {
	if err := validateSegment(bucket); err != nil {
		return nil, NewObjectError("List", bucket, "", ErrInvalidBucket)
	}
	if opts == nil {
		opts = &ListOptions{}
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	root := filepath.Join(l.basePath, bucket)
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return nil, NewObjectError("List", bucket, "", ErrBucketNotFound)
		}
		return nil, NewObjectError("List", bucket, "", translateFSError(err))
	}

	var keys []string
	infos := make(map[string]os.FileInfo)
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.HasSuffix(path, metadataSuffix) || strings.HasPrefix(info.Name(), tempPrefix) {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(relPath)

		if opts.Prefix != "" && !strings.HasPrefix(key, opts.Prefix) {
			return nil
		}
		if opts.Marker != "" && key <= opts.Marker {
			return nil
		}

		keys = append(keys, key)
		infos[key] = info
		return nil
	})
	if err != nil {
		return nil, NewObjectError("List", bucket, "", err)
	}

	sort.Strings(keys)

	result := &ListResult{}
	if len(keys) > maxResults {
		keys = keys[:maxResults]
		result.IsTruncated = true
	}
	for _, key := range keys {
		result.Objects = append(result.Objects, l.objectInfo(bucket, key, infos[key]))
	}
	if result.IsTruncated {
		result.NextMarker = keys[len(keys)-1]
	}

	return result, nil
}

// Close implements ObjectStorage.Close
func (l *LocalObjectStorage) Close() error {
	return nil
}

func (l *LocalObjectStorage) validate(bucket, key string) error {
	if err := validateAddress(bucket, key); err != nil {
		return err
	}
	if validateSegment(bucket) != nil {
		return ErrInvalidBucket
	}

	// Prevent directory traversal
	if strings.HasPrefix(key, "/") || strings.HasSuffix(key, metadataSuffix) {
		return ErrInvalidKey
	}
	// Names starting with the temp prefix are reserved for in-flight writes
	for _, part := range strings.Split(key, "/") {
		if part == ".." || strings.HasPrefix(part, tempPrefix) {
			return ErrInvalidKey
		}
	}
	return nil
}

func validateSegment(bucket string) error {
	if bucket == "" || bucket == "." || bucket == ".." || strings.ContainsAny(bucket, `/\`) {
		return ErrInvalidBucket
	}
	return nil
}

func (l *LocalObjectStorage) objectPath(bucket, key string) string {
	return filepath.Join(l.basePath, bucket, filepath.FromSlash(key))
}

func (l *LocalObjectStorage) objectInfo(bucket, key string, stat os.FileInfo) ObjectInfo {
	contentType := mime.TypeByExtension(filepath.Ext(key))
	if contentType == "" {
		contentType = defaultContentType
	}

	info := ObjectInfo{
		Bucket:       bucket,
		Key:          key,
		Size:         stat.Size(),
		ContentType:  contentType,
		LastModified: stat.ModTime(),
		ETag:         fmt.Sprintf("%d-%d", stat.Size(), stat.ModTime().UnixNano()),
	}
	if metadata, err := readMetadata(l.objectPath(bucket, key) + metadataSuffix); err == nil {
		info.Metadata = metadata
	}
	return info
}

func translateFSError(err error) error {
	switch {
	case os.IsNotExist(err):
		return ErrObjectNotFound
	case os.IsPermission(err):
		return ErrAccessDenied
	default:
		return err
	}
}

// Metadata sidecars use a simple key=value line format
func writeMetadata(path string, metadata map[string]string) error {
	lines := make([]string, 0, len(metadata))
	for k, v := range metadata {
		lines = append(lines, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(lines)
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0644)
}

func readMetadata(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	metadata := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		}
	}
	return metadata, nil
}
