package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
)

func TestFactory(t *testing.T) {
	factory := NewFactory(nil)
	ctx := context.Background()

	t.Run("CreateMemoryStorage", func(t *testing.T) {
		storage, err := factory.Create(&Config{Type: "memory"})
		if err != nil {
			t.Fatalf("Failed to create memory storage: %v", err)
		}
		defer storage.Close()

		if _, ok := storage.(*MemoryObjectStorage); !ok {
			t.Errorf("Expected *MemoryObjectStorage, got %T", storage)
		}
	})

	t.Run("CreateLocalStorage", func(t *testing.T) {
		tempDir := t.TempDir()

		storage, err := factory.Create(&Config{Type: "LOCAL", BasePath: tempDir})
		if err != nil {
			t.Fatalf("Failed to create local storage: %v", err)
		}
		defer storage.Close()

		if err := storage.Put(ctx, "demo-bucket", "test.txt", []byte("test"), nil); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if _, err := os.Stat(filepath.Join(tempDir, "demo-bucket", "test.txt")); err != nil {
			t.Errorf("Object not found on disk: %v", err)
		}
	})

	t.Run("CreateS3StorageWithoutAWSConfig", func(t *testing.T) {
		if _, err := factory.Create(&Config{Type: "s3"}); err == nil {
			t.Error("Expected error without aws config")
		}
	})

	t.Run("CreateS3Storage", func(t *testing.T) {
		awsCfg := aws.Config{Region: "us-east-1"}
		storage, err := NewFactory(&awsCfg).Create(&Config{Type: "s3", Endpoint: "http://localhost:4566"})
		if err != nil {
			t.Fatalf("Failed to create s3 storage: %v", err)
		}
		if _, ok := storage.(*S3ObjectStorage); !ok {
			t.Errorf("Expected *S3ObjectStorage, got %T", storage)
		}
	})

	t.Run("CreateMinioStorageRequiresEndpoint", func(t *testing.T) {
		if _, err := factory.Create(&Config{Type: "minio"}); err == nil {
			t.Error("Expected error without endpoint")
		}
	})

	t.Run("CreateMinioStorage", func(t *testing.T) {
		storage, err := factory.Create(&Config{
			Type:            "minio",
			Endpoint:        "http://localhost:9000",
			AccessKeyID:     "minioadmin",
			SecretAccessKey: "minioadmin",
		})
		if err != nil {
			t.Fatalf("Failed to create minio storage: %v", err)
		}
		if _, ok := storage.(*MinioObjectStorage); !ok {
			t.Errorf("Expected *MinioObjectStorage, got %T", storage)
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := factory.Create(&Config{Type: "gcs"}); err == nil {
			t.Error("Expected error for unsupported type")
		}
	})

	t.Run("NilConfig", func(t *testing.T) {
		if _, err := factory.Create(nil); err == nil {
			t.Error("Expected error for nil config")
		}
	})
}

func TestSplitEndpoint(t *testing.T) {
	tests := []struct {
		endpoint   string
		useSSL     bool
		wantHost   string
		wantSecure bool
	}{
		{"https://minio.example.com/", false, "minio.example.com", true},
		{"http://localhost:9000", true, "localhost:9000", false},
		{"localhost:9000", true, "localhost:9000", true},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			host, secure := splitEndpoint(tt.endpoint, tt.useSSL)
			if host != tt.wantHost || secure != tt.wantSecure {
				t.Errorf("splitEndpoint(%q) = %q, %v; want %q, %v", tt.endpoint, host, secure, tt.wantHost, tt.wantSecure)
			}
		})
	}
}
