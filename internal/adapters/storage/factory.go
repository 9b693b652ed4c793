package storage

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// StorageType represents the type of storage implementation
type StorageType string

const (
	StorageTypeS3     StorageType = "s3"
	StorageTypeMinio  StorageType = "minio"
	StorageTypeLocal  StorageType = "local"
	StorageTypeMemory StorageType = "memory"
)

// Factory creates ObjectStorage instances based on configuration
type Factory struct {
	awsConfig *aws.Config
}

// NewFactory creates a new storage factory. awsConfig is only required for S3 storage.
func NewFactory(awsConfig *aws.Config) *Factory {
	return &Factory{
		awsConfig: awsConfig,
	}
}

// Create creates an ObjectStorage instance based on the provided configuration
func (f *Factory) Create(config *Config) (ObjectStorage, error) {
	if config == nil {
		return nil, fmt.Errorf("storage config is required")
	}

	var storage ObjectStorage
	var err error

	switch StorageType(strings.ToLower(config.Type)) {
	case StorageTypeS3:
		storage, err = f.createS3Storage(config)
	case StorageTypeMinio:
		storage, err = NewMinioObjectStorage(config)
	case StorageTypeLocal:
		storage, err = f.createLocalStorage(config)
	case StorageTypeMemory:
		storage = NewMemoryObjectStorage()
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create %s storage: %w", config.Type, err)
	}

	return storage, nil
}

func (f *Factory) createS3Storage(config *Config) (ObjectStorage, error) {
	if f.awsConfig == nil {
		return nil, fmt.Errorf("aws config is required for s3 storage")
	}
	cfg := f.awsConfig.Copy()
	if config.Region != "" {
		cfg.Region = config.Region
	}
	return NewS3ObjectStorage(cfg, config.Endpoint), nil
}

func (f *Factory) createLocalStorage(config *Config) (ObjectStorage, error) {
	basePath := config.BasePath
	if basePath == "" {
		basePath = "./data/objects"
	}
	return NewLocalObjectStorage(basePath)
}
