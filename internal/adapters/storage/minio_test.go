package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeMinio serves the subset of the S3 REST API the MinIO client uses, path-style
type fakeMinio struct {
	mu       sync.Mutex
	buckets  map[string]map[string][]byte
	denied   bool
	modified time.Time
}

func newFakeMinio(buckets ...string) *fakeMinio {
	f := &fakeMinio{
		buckets:  make(map[string]map[string][]byte),
		modified: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, bucket := range buckets {
		f.buckets[bucket] = make(map[string][]byte)
	}
	return f
}

func (f *fakeMinio) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	bucket := parts[0]
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}

	if f.denied {
		writeS3Error(w, http.StatusForbidden, "AccessDenied", bucket, key)
		return
	}

	objects, ok := f.buckets[bucket]
	if !ok {
		writeS3Error(w, http.StatusNotFound, "NoSuchBucket", bucket, key)
		return
	}

	if key == "" && r.Method == http.MethodGet {
		f.list(w, bucket, r.URL.Query().Get("prefix"))
		return
	}

	switch r.Method {
	case http.MethodPut:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			writeS3Error(w, http.StatusInternalServerError, "InternalError", bucket, key)
			return
		}
		objects[key] = data
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet, http.MethodHead:
		data, ok := objects[key]
		if !ok {
			writeS3Error(w, http.StatusNotFound, "NoSuchKey", bucket, key)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Content-Length", fmt.Sprint(len(data)))
		w.Header().Set("Last-Modified", f.modified.Format(http.TimeFormat))
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			w.Write(data)
		}
	case http.MethodDelete:
		delete(objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeS3Error(w, http.StatusMethodNotAllowed, "MethodNotAllowed", bucket, key)
	}
}

func (f *fakeMinio) list(w http.ResponseWriter, bucket, prefix string) {
	var keys []string
	for key := range f.buckets[bucket] {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var body strings.Builder
	body.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	body.WriteString(`<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`)
	fmt.Fprintf(&body, "<Name>%s</Name><Prefix>%s</Prefix><KeyCount>%d</KeyCount>", bucket, prefix, len(keys))
	body.WriteString("<MaxKeys>1000</MaxKeys><IsTruncated>false</IsTruncated>")
	for _, key := range keys {
		fmt.Fprintf(&body, "<Contents><Key>%s</Key><LastModified>%s</LastModified><ETag>&quot;etag&quot;</ETag><Size>%d</Size><StorageClass>STANDARD</StorageClass></Contents>",
			key, f.modified.Format("2006-01-02T15:04:05.000Z"), len(f.buckets[bucket][key]))
	}
	body.WriteString("</ListBucketResult>")

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, body.String())
}

func writeS3Error(w http.ResponseWriter, status int, code, bucket, key string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code><Message>%s</Message><BucketName>%s</BucketName><Key>%s</Key><RequestId>test-request</RequestId></Error>`,
		code, code, bucket, key)
}

func newTestMinioStorage(t *testing.T, fake *fakeMinio) *MinioObjectStorage {
	t.Helper()

	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	// Empty keys make the client send unsigned requests with plain bodies
	storage, err := NewMinioObjectStorage(&Config{
		Type:     "minio",
		Endpoint: server.URL,
		Region:   "us-east-1",
	})
	if err != nil {
		t.Fatalf("Failed to create minio storage: %v", err)
	}
	return storage
}

func TestMinioObjectStorage_PutGetStat(t *testing.T) {
	fake := newFakeMinio("demo-bucket")
	storage := newTestMinioStorage(t, fake)
	ctx := context.Background()

	if err := storage.Put(ctx, "demo-bucket", "hello.txt", []byte("Hello, World!"), nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	data, err := storage.Get(ctx, "demo-bucket", "hello.txt")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(data) != "Hello, World!" {
		t.Errorf("Get returned %q, want %q", data, "Hello, World!")
	}

	info, err := storage.Stat(ctx, "demo-bucket", "hello.txt")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size != int64(len("Hello, World!")) {
		t.Errorf("Stat size = %d, want %d", info.Size, len("Hello, World!"))
	}
	if info.Bucket != "demo-bucket" {
		t.Errorf("Stat bucket = %q, want demo-bucket", info.Bucket)
	}
}

func TestMinioObjectStorage_ErrorTranslation(t *testing.T) {
	tests := []struct {
		name    string
		denied  bool
		bucket  string
		call    func(ctx context.Context, s *MinioObjectStorage, bucket string) error
		wantErr error
	}{
		{
			name:   "get missing key",
			bucket: "demo-bucket",
			call: func(ctx context.Context, s *MinioObjectStorage, bucket string) error {
				_, err := s.Get(ctx, bucket, "missing.txt")
				return err
			},
			wantErr: ErrObjectNotFound,
		},
		{
			name:   "stat missing key",
			bucket: "demo-bucket",
			call: func(ctx context.Context, s *MinioObjectStorage, bucket string) error {
				_, err := s.Stat(ctx, bucket, "missing.txt")
				return err
			},
			wantErr: ErrObjectNotFound,
		},
		{
			name:   "get denied",
			denied: true,
			bucket: "demo-bucket",
			call: func(ctx context.Context, s *MinioObjectStorage, bucket string) error {
				_, err := s.Get(ctx, bucket, "hello.txt")
				return err
			},
			wantErr: ErrAccessDenied,
		},
		{
			name:   "put denied",
			denied: true,
			bucket: "demo-bucket",
			call: func(ctx context.Context, s *MinioObjectStorage, bucket string) error {
				return s.Put(ctx, bucket, "hello.txt", []byte("data"), nil)
			},
			wantErr: ErrAccessDenied,
		},
		{
			name:   "stat denied",
			denied: true,
			bucket: "demo-bucket",
			call: func(ctx context.Context, s *MinioObjectStorage, bucket string) error {
				_, err := s.Stat(ctx, bucket, "hello.txt")
				return err
			},
			wantErr: ErrAccessDenied,
		},
		{
			name:   "list missing bucket",
			bucket: "missing-bucket",
			call: func(ctx context.Context, s *MinioObjectStorage, bucket string) error {
				_, err := s.List(ctx, bucket, nil)
				return err
			},
			wantErr: ErrBucketNotFound,
		},
		{
			name:   "empty key",
			bucket: "demo-bucket",
			call: func(ctx context.Context, s *MinioObjectStorage, bucket string) error {
				_, err := s.Get(ctx, bucket, "")
				return err
			},
			wantErr: ErrInvalidKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeMinio("demo-bucket")
			fake.denied = tt.denied
			storage := newTestMinioStorage(t, fake)

			err := tt.call(context.Background(), storage, tt.bucket)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}

			var objectErr *ObjectError
			if !errors.As(err, &objectErr) {
				t.Errorf("Expected *ObjectError, got %T", err)
			}
		})
	}
}

func TestMinioObjectStorage_ExistsAndDelete(t *testing.T) {
	fake := newFakeMinio("demo-bucket")
	storage := newTestMinioStorage(t, fake)
	ctx := context.Background()

	exists, err := storage.Exists(ctx, "demo-bucket", "archive/data.parquet")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("Exists = true for a missing object")
	}

	if err := storage.Put(ctx, "demo-bucket", "archive/data.parquet", []byte("PAR1"), nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	exists, err = storage.Exists(ctx, "demo-bucket", "archive/data.parquet")
	if err != nil || !exists {
		t.Fatalf("Exists = %v, %v; want true, nil", exists, err)
	}

	if err := storage.Delete(ctx, "demo-bucket", "archive/data.parquet"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	exists, err = storage.Exists(ctx, "demo-bucket", "archive/data.parquet")
	if err != nil || exists {
		t.Errorf("Exists after delete = %v, %v; want false, nil", exists, err)
	}

	fake.mu.Lock()
	fake.denied = true
	fake.mu.Unlock()
	if _, err := storage.Exists(ctx, "demo-bucket", "archive/data.parquet"); !IsAccessDenied(err) {
		t.Errorf("Exists while denied = %v, want access denied", err)
	}
}

func TestMinioObjectStorage_List(t *testing.T) {
	fake := newFakeMinio("demo-bucket")
	storage := newTestMinioStorage(t, fake)
	ctx := context.Background()

	for _, key := range []string{"incoming/b.csv", "incoming/a.csv", "archive/a.parquet"} {
		if err := storage.Put(ctx, "demo-bucket", key, []byte("data"), nil); err != nil {
			t.Fatalf("Put %s failed: %v", key, err)
		}
	}

	result, err := storage.List(ctx, "demo-bucket", &ListOptions{Prefix: "incoming/"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(result.Objects) != 2 {
		t.Fatalf("List returned %d objects, want 2", len(result.Objects))
	}
	if result.Objects[0].Key != "incoming/a.csv" || result.Objects[1].Key != "incoming/b.csv" {
		t.Errorf("List keys = %q, %q", result.Objects[0].Key, result.Objects[1].Key)
	}
	if result.IsTruncated {
		t.Error("List should not be truncated")
	}
}
