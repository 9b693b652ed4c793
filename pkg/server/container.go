package server

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/sirupsen/logrus"

	"s3-archive-lambda/internal/adapters/storage"
	"s3-archive-lambda/internal/config"
	"s3-archive-lambda/internal/handlers"
	"s3-archive-lambda/internal/services"
)

// Container holds all application dependencies
type Container struct {
	Settings *config.Settings
	Runtime  config.RuntimeInfo
	Logger   *logrus.Logger
	Storage  storage.ObjectStorage
	Handler  *handlers.ObjectHandler
}

// NewContainer wires storage, services and the handler from settings
func NewContainer(ctx context.Context, settings *config.Settings, logger *logrus.Logger) (*Container, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings cannot be nil")
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	var awsConfig *aws.Config
	if storage.StorageType(settings.Storage.Type) == storage.StorageTypeS3 {
		cfg, err := config.LoadAWSConfig(ctx, settings)
		if err != nil {
			return nil, err
		}
		awsConfig = &cfg
	}

	store, err := storage.NewFactory(awsConfig).Create(&storage.Config{
		Type:            settings.Storage.Type,
		BasePath:        settings.Storage.LocalPath,
		Endpoint:        settings.Storage.Endpoint,
		Region:          settings.AWS.Region,
		AccessKeyID:     settings.Storage.AccessKeyID,
		SecretAccessKey: settings.Storage.SecretAccessKey,
		UseSSL:          settings.Storage.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	return NewContainerWithStorage(settings, store, logger), nil
}

// NewContainerWithStorage wires the handler over an existing storage backend
func NewContainerWithStorage(settings *config.Settings, store storage.ObjectStorage, logger *logrus.Logger) *Container {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	objectService := services.NewObjectService(store)
	archiveService := services.NewArchiveService(store, settings.Storage.IncomingPrefix, settings.Storage.ArchivePrefix, logger)

	return &Container{
		Settings: settings,
		Runtime:  config.DetectRuntime(),
		Logger:   logger,
		Storage:  store,
		Handler:  handlers.NewObjectHandler(objectService, archiveService, settings.Storage, logger),
	}
}

// Close cleans up all resources
func (c *Container) Close() error {
	if c.Storage != nil {
		if err := c.Storage.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
	}
	return nil
}
