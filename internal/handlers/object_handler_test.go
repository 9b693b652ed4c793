package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/sirupsen/logrus"

	"s3-archive-lambda/internal/adapters/storage"
	"s3-archive-lambda/internal/config"
	"s3-archive-lambda/internal/services"
	"s3-archive-lambda/pkg/lambda"
)

func newTestHandler(t *testing.T, settings config.StorageSettings) (*ObjectHandler, *storage.MemoryObjectStorage, *bytes.Buffer) {
	t.Helper()

	store := storage.NewMemoryObjectStorage()
	var logs bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&logs)
	logger.SetFormatter(&logrus.JSONFormatter{})

	handler := NewObjectHandler(
		services.NewObjectService(store),
		services.NewArchiveService(store, settings.IncomingPrefix, settings.ArchivePrefix, logger),
		settings,
		logger,
	)
	return handler, store, &logs
}

func defaultStorageSettings() config.StorageSettings {
	return config.StorageSettings{
		Type:           "memory",
		Bucket:         "demo-bucket",
		DefaultKey:     "hello.txt",
		DefaultBody:    "Hello, World!",
		IncomingPrefix: "incoming/",
		ArchivePrefix:  "archive/",
	}
}

func decodeErrorBody(t *testing.T, resp lambda.Response) lambda.ErrorBody {
	t.Helper()
	var body lambda.ErrorBody
	if err := json.Unmarshal([]byte(resp.Body), &body); err != nil {
		t.Fatalf("Error body is not JSON: %q", resp.Body)
	}
	return body
}

func TestObjectHandler_EmptyEventWritesDefaultObject(t *testing.T) {
	handler, store, _ := newTestHandler(t, defaultStorageSettings())
	ctx := context.Background()

	resp, err := handler.Handle(ctx, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Handle returned an error: %v", err)
	}
	if resp.StatusCode != 200 || resp.Body != "Hello, World!" {
		t.Errorf("Response = %+v, want {200 Hello, World!}", resp)
	}

	data, err := store.Get(ctx, "demo-bucket", "hello.txt")
	if err != nil {
		t.Fatalf("Object was not written: %v", err)
	}
	if string(data) != "Hello, World!" {
		t.Errorf("Stored %q", data)
	}

	encoded, _ := json.Marshal(resp)
	if string(encoded) != `{"statusCode":200,"body":"Hello, World!"}` {
		t.Errorf("Encoded response = %s", encoded)
	}
}

func TestObjectHandler_Direct(t *testing.T) {
	tests := []struct {
		name       string
		seed       map[string]string
		failOn     string
		event      string
		wantStatus int
		wantBody   string
		wantKind   ErrorKind
	}{
		{
			name:       "null payload uses defaults",
			event:      `null`,
			wantStatus: 200,
			wantBody:   "Hello, World!",
		},
		{
			name:       "put with explicit key and body",
			event:      `{"operation":"put","key":"notes/today.txt","body":"buy flour"}`,
			wantStatus: 200,
			wantBody:   "buy flour",
		},
		{
			name:       "empty body is stored as empty",
			event:      `{"key":"empty.txt","body":""}`,
			wantStatus: 200,
			wantBody:   "",
		},
		{
			name:       "get returns stored content",
			seed:       map[string]string{"report.txt": "quarterly"},
			event:      `{"operation":"get","key":"report.txt"}`,
			wantStatus: 200,
			wantBody:   "quarterly",
		},
		{
			name:       "get missing key is not found",
			event:      `{"operation":"get","key":"missing.txt"}`,
			wantStatus: 404,
			wantKind:   KindNotFound,
		},
		{
			name:       "denied read is forbidden",
			failOn:     "Get",
			event:      `{"operation":"get","key":"hello.txt"}`,
			wantStatus: 403,
			wantKind:   KindAccessDenied,
		},
		{
			name:       "denied write is forbidden",
			failOn:     "Put",
			event:      `{}`,
			wantStatus: 403,
			wantKind:   KindAccessDenied,
		},
		{
			name:       "malformed json",
			event:      `{"key":`,
			wantStatus: 400,
			wantKind:   KindMalformed,
		},
		{
			name:       "non-object payload",
			event:      `"hello"`,
			wantStatus: 400,
			wantKind:   KindMalformed,
		},
		{
			name:       "unknown operation",
			event:      `{"operation":"delete"}`,
			wantStatus: 400,
			wantKind:   KindMalformed,
		},
		{
			name:       "bucket name too short",
			event:      `{"bucket":"ab"}`,
			wantStatus: 400,
			wantKind:   KindMalformed,
		},
		{
			name:       "key too long",
			event:      `{"key":"` + strings.Repeat("k", maxKeyLength+1) + `"}`,
			wantStatus: 400,
			wantKind:   KindMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, store, _ := newTestHandler(t, defaultStorageSettings())
			ctx := context.Background()

			for key, value := range tt.seed {
				if err := store.Put(ctx, "demo-bucket", key, []byte(value), nil); err != nil {
					t.Fatalf("Seed failed: %v", err)
				}
			}
			if tt.failOn != "" {
				store.FailOn(tt.failOn, storage.ErrAccessDenied)
			}

			resp, err := handler.Handle(ctx, json.RawMessage(tt.event))
			if err != nil {
				t.Fatalf("Handle returned an error: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("StatusCode = %d, want %d (body %s)", resp.StatusCode, tt.wantStatus, resp.Body)
			}

			if tt.wantKind == "" {
				if resp.Body != tt.wantBody {
					t.Errorf("Body = %q, want %q", resp.Body, tt.wantBody)
				}
				return
			}

			body := decodeErrorBody(t, resp)
			if body.Error != string(tt.wantKind) {
				t.Errorf("Error kind = %q, want %q", body.Error, tt.wantKind)
			}
			if body.Message == "" {
				t.Error("Error message should not be empty")
			}
		})
	}
}

func TestObjectHandler_MissingDefaults(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.StorageSettings)
		wantMsg string
	}{
		{name: "no bucket", mutate: func(s *config.StorageSettings) { s.Bucket = "" }, wantMsg: "bucket is required"},
		{name: "no key", mutate: func(s *config.StorageSettings) { s.DefaultKey = "" }, wantMsg: "key is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := defaultStorageSettings()
			tt.mutate(&settings)
			handler, _, _ := newTestHandler(t, settings)

			resp, _ := handler.Handle(context.Background(), json.RawMessage(`{}`))
			if resp.StatusCode != 400 {
				t.Fatalf("StatusCode = %d, want 400", resp.StatusCode)
			}
			if body := decodeErrorBody(t, resp); !strings.Contains(body.Message, tt.wantMsg) {
				t.Errorf("Message = %q, want it to mention %q", body.Message, tt.wantMsg)
			}
		})
	}
}

func TestObjectHandler_S3Event(t *testing.T) {
	handler, store, _ := newTestHandler(t, defaultStorageSettings())
	ctx := context.Background()

	if err := store.Put(ctx, "demo-bucket", "incoming/daily sales.csv", []byte("item,qty\nbread,2\n"), nil); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	event := `{"Records":[
		{"eventSource":"aws:s3","eventName":"ObjectCreated:Put","s3":{"bucket":{"name":"demo-bucket"},"object":{"key":"incoming/daily+sales.csv"}}},
		{"eventSource":"aws:s3","eventName":"ObjectCreated:Put","s3":{"bucket":{"name":"demo-bucket"},"object":{"key":"incoming/readme.txt"}}}
	]}`

	resp, err := handler.Handle(ctx, json.RawMessage(event))
	if err != nil {
		t.Fatalf("Handle returned an error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("StatusCode = %d, body %s", resp.StatusCode, resp.Body)
	}

	var summary EventSummary
	if err := json.Unmarshal([]byte(resp.Body), &summary); err != nil {
		t.Fatalf("Summary is not JSON: %v", err)
	}
	if len(summary.Results) != 2 {
		t.Fatalf("Results = %+v", summary.Results)
	}
	if summary.Results[0].Outcome != services.OutcomeProcessed || summary.Results[0].Rows != 1 {
		t.Errorf("First result = %+v", summary.Results[0])
	}
	if summary.Results[1].Outcome != services.OutcomeSkipped {
		t.Errorf("Second result = %+v", summary.Results[1])
	}

	if exists, _ := store.Exists(ctx, "demo-bucket", "archive/daily sales.parquet"); !exists {
		t.Error("Archive object was not written under the decoded key")
	}
}

func TestObjectHandler_S3EventFailure(t *testing.T) {
	handler, _, _ := newTestHandler(t, defaultStorageSettings())

	event := `{"Records":[{"s3":{"bucket":{"name":"demo-bucket"},"object":{"key":"incoming/missing.csv"}}}]}`

	resp, _ := handler.Handle(context.Background(), json.RawMessage(event))
	if resp.StatusCode != 404 {
		t.Errorf("StatusCode = %d, want 404", resp.StatusCode)
	}
}

func TestObjectHandler_LogsRequestID(t *testing.T) {
	handler, _, logs := newTestHandler(t, defaultStorageSettings())

	ctx := lambdacontext.NewContext(context.Background(), &lambdacontext.LambdaContext{AwsRequestID: "req-123"})
	if _, err := handler.Handle(ctx, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("Handle returned an error: %v", err)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(logs.Bytes(), &entry); err != nil {
		t.Fatalf("Expected a single JSON log entry, got %q", logs.String())
	}
	if entry["request_id"] != "req-123" {
		t.Errorf("request_id = %v", entry["request_id"])
	}
	if entry["key"] != "hello.txt" || entry["operation"] != "put" {
		t.Errorf("Unexpected log entry: %v", entry)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "object not found", err: storage.NewObjectError("Get", "b", "k", storage.ErrObjectNotFound), want: KindNotFound},
		{name: "bucket not found", err: storage.NewObjectError("Get", "b", "k", storage.ErrBucketNotFound), want: KindNotFound},
		{name: "access denied", err: storage.NewObjectError("Put", "b", "k", storage.ErrAccessDenied), want: KindAccessDenied},
		{name: "invalid key", err: storage.NewObjectError("Put", "b", "", storage.ErrInvalidKey), want: KindMalformed},
		{name: "malformed csv", err: services.ErrMalformedCSV, want: KindMalformed},
		{name: "unavailable", err: storage.ErrStorageUnavailable, want: KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyError(tt.err); got != tt.want {
				t.Errorf("classifyError() = %s, want %s", got, tt.want)
			}
		})
	}
}
