package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"s3-archive-lambda/internal/adapters/storage"
)

// ArchiveOutcome describes what happened to a single source object
type ArchiveOutcome string

const (
	OutcomeSkipped          ArchiveOutcome = "skipped"
	OutcomeAlreadyProcessed ArchiveOutcome = "already_processed"
	OutcomeProcessed        ArchiveOutcome = "processed"
)

const (
	sourceExtension      = ".csv"
	destinationExtension = ".parquet"
	parquetContentType   = "application/vnd.apache.parquet"
)

// ArchiveResult is the per-object result reported back to the caller
type ArchiveResult struct {
	Bucket         string         `json:"bucket"`
	SourceKey      string         `json:"source_key"`
	DestinationKey string         `json:"destination_key,omitempty"`
	Outcome        ArchiveOutcome `json:"outcome"`
	Rows           int            `json:"rows,omitempty"`
}

// ArchiveService moves CSV uploads from the incoming prefix to Parquet objects under the archive prefix
type ArchiveService struct {
	storage        storage.ObjectStorage
	incomingPrefix string
	archivePrefix  string
	logger         *logrus.Logger
}

// NewArchiveService creates a new archive service instance
func NewArchiveService(store storage.ObjectStorage, incomingPrefix, archivePrefix string, logger *logrus.Logger) *ArchiveService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ArchiveService{
		storage:        store,
		incomingPrefix: incomingPrefix,
		archivePrefix:  archivePrefix,
		logger:         logger,
	}
}

// DestinationKey maps a source key to its archive key. The second value is false
// for keys outside the incoming prefix or without a .csv extension.
func (s *ArchiveService) DestinationKey(sourceKey string) (string, bool) {
	if !strings.HasPrefix(sourceKey, s.incomingPrefix) || !strings.HasSuffix(sourceKey, sourceExtension) {
		return "", false
	}

	name := strings.TrimPrefix(sourceKey, s.incomingPrefix)
	name = strings.TrimSuffix(name, sourceExtension)
	return s.archivePrefix + name + destinationExtension, true
}

// Archive converts one source object. Rerunning it after a successful conversion only removes the source.
func (s *ArchiveService) Archive(ctx context.Context, bucket, sourceKey string) (*ArchiveResult, error) {
	result := &ArchiveResult{Bucket: bucket, SourceKey: sourceKey}

	destinationKey, ok := s.DestinationKey(sourceKey)
	if !ok {
		result.Outcome = OutcomeSkipped
		return result, nil
	}
	result.DestinationKey = destinationKey

	logger := s.logger.WithFields(logrus.Fields{
		"bucket":          bucket,
		"source_key":      sourceKey,
		"destination_key": destinationKey,
	})

	exists, err := s.storage.Exists(ctx, bucket, destinationKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check archive object: %w", err)
	}

	if exists {
		if err := s.storage.Delete(ctx, bucket, sourceKey); err != nil {
			return nil, fmt.Errorf("failed to delete source object: %w", err)
		}
		result.Outcome = OutcomeAlreadyProcessed
		logger.Info("Source already archived")
		return result, nil
	}

	data, err := s.storage.Get(ctx, bucket, sourceKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read source object: %w", err)
	}

	converted, rows, err := ConvertCSVToParquet(data)
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s: %w", sourceKey, err)
	}

	if err := s.storage.Put(ctx, bucket, destinationKey, converted, &storage.PutOptions{
		ContentType: parquetContentType,
		Metadata:    map[string]string{"source-key": sourceKey},
	}); err != nil {
		return nil, fmt.Errorf("failed to write archive object: %w", err)
	}

	if err := s.storage.Delete(ctx, bucket, sourceKey); err != nil {
		return nil, fmt.Errorf("failed to delete source object: %w", err)
	}

	result.Outcome = OutcomeProcessed
	result.Rows = rows
	logger.WithField("rows", rows).Info("Source archived")
	return result, nil
}
