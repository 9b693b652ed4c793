package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"s3-archive-lambda/internal/config"
	"s3-archive-lambda/internal/services"
	"s3-archive-lambda/pkg/lambda"
)

const maxKeyLength = 1024

// ObjectOperations is the direct get/put surface used by the handler
type ObjectOperations interface {
	Put(ctx context.Context, bucket, key string, body []byte) ([]byte, error)
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}

// Archiver processes objects announced by S3 notifications
type Archiver interface {
	Archive(ctx context.Context, bucket, key string) (*services.ArchiveResult, error)
}

// ObjectHandler handles function invocations
type ObjectHandler struct {
	objects   ObjectOperations
	archiver  Archiver
	settings  config.StorageSettings
	logger    *logrus.Logger
	validator *validator.Validate
}

// EventSummary is the response body for S3 notification events
type EventSummary struct {
	Results []*services.ArchiveResult `json:"results"`
}

// invocation carries the values logged for a single call
type invocation struct {
	operation string
	bucket    string
	key       string
}

// NewObjectHandler creates a new object handler
func NewObjectHandler(objects ObjectOperations, archiver Archiver, settings config.StorageSettings, logger *logrus.Logger) *ObjectHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ObjectHandler{
		objects:   objects,
		archiver:  archiver,
		settings:  settings,
		logger:    logger,
		validator: validator.New(),
	}
}

// Handle processes a raw event payload. Failures are reported in the response, never as an error.
func (h *ObjectHandler) Handle(ctx context.Context, payload json.RawMessage) (lambda.Response, error) {
	start := time.Now()
	call := &invocation{}

	resp, err := h.dispatch(ctx, payload, call)
	if err != nil {
		resp = errorResponse(err)
	}

	fields := logrus.Fields{
		"request_id":  requestID(ctx),
		"operation":   call.operation,
		"bucket":      call.bucket,
		"key":         call.key,
		"status_code": resp.StatusCode,
		"latency_ms":  float64(time.Since(start).Nanoseconds()) / 1000000,
	}
	entry := h.logger.WithFields(fields)

	switch {
	case resp.StatusCode >= 500:
		entry.WithError(err).Error("Invocation failed")
	case resp.StatusCode >= 400:
		entry.WithError(err).Warn("Invocation rejected")
	default:
		entry.Info("Invocation completed")
	}

	return resp, nil
}

func (h *ObjectHandler) dispatch(ctx context.Context, payload json.RawMessage, call *invocation) (lambda.Response, error) {
	req, err := h.decode(payload)
	if err != nil {
		return lambda.Response{}, err
	}

	if len(req.Records) > 0 {
		call.operation = "archive"
		return h.handleRecords(ctx, req.Records, call)
	}

	call.operation = req.Operation
	if call.operation == "" {
		call.operation = lambda.OperationPut
	}

	call.bucket = req.Bucket
	if call.bucket == "" {
		call.bucket = h.settings.Bucket
	}
	call.key = req.Key
	if call.key == "" {
		call.key = h.settings.DefaultKey
	}

	if call.bucket == "" {
		return lambda.Response{}, fmt.Errorf("%w: bucket is required", ErrMalformedRequest)
	}
	if call.key == "" {
		return lambda.Response{}, fmt.Errorf("%w: key is required", ErrMalformedRequest)
	}
	if len(call.key) > maxKeyLength {
		return lambda.Response{}, fmt.Errorf("%w: key exceeds %d bytes", ErrMalformedRequest, maxKeyLength)
	}

	var content []byte
	switch call.operation {
	case lambda.OperationGet:
		content, err = h.objects.Get(ctx, call.bucket, call.key)
	default:
		body := h.settings.DefaultBody
		if req.Body != nil {
			body = *req.Body
		}
		content, err = h.objects.Put(ctx, call.bucket, call.key, []byte(body))
	}
	if err != nil {
		return lambda.Response{}, err
	}

	return lambda.Response{StatusCode: http.StatusOK, Body: string(content)}, nil
}

func (h *ObjectHandler) handleRecords(ctx context.Context, records []events.S3EventRecord, call *invocation) (lambda.Response, error) {
	summary := EventSummary{Results: make([]*services.ArchiveResult, 0, len(records))}

	for _, record := range records {
		bucket := record.S3.Bucket.Name
		if bucket == "" {
			bucket = h.settings.Bucket
		}
		key, err := url.QueryUnescape(record.S3.Object.Key)
		if err != nil {
			return lambda.Response{}, fmt.Errorf("%w: invalid record key %q: %v", ErrMalformedRequest, record.S3.Object.Key, err)
		}

		call.bucket = bucket
		call.key = key

		result, err := h.archiver.Archive(ctx, bucket, key)
		if err != nil {
			return lambda.Response{}, err
		}
		summary.Results = append(summary.Results, result)
	}

	body, err := json.Marshal(summary)
	if err != nil {
		return lambda.Response{}, fmt.Errorf("failed to encode summary: %w", err)
	}
	return lambda.Response{StatusCode: http.StatusOK, Body: string(body)}, nil
}

func (h *ObjectHandler) decode(payload json.RawMessage) (*lambda.Request, error) {
	req := &lambda.Request{}

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return req, nil
	}

	if err := json.Unmarshal(trimmed, req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	return req, nil
}

// requestID returns the runtime request id, or a fresh uuid outside Lambda
func requestID(ctx context.Context) string {
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		return lc.AwsRequestID
	}
	return uuid.New().String()
}
