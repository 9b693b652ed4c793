package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"s3-archive-lambda/internal/adapters/storage"
	"s3-archive-lambda/internal/services"
	"s3-archive-lambda/pkg/lambda"
)

// ErrMalformedRequest marks events that cannot be decoded or fail validation
var ErrMalformedRequest = errors.New("malformed request")

// ErrorKind classifies handler failures for the response status
type ErrorKind string

const (
	KindNotFound     ErrorKind = "NotFound"
	KindAccessDenied ErrorKind = "AccessDenied"
	KindMalformed    ErrorKind = "Malformed"
	KindInternal     ErrorKind = "Internal"
)

// StatusCode returns the HTTP-style status reported for the kind
func (k ErrorKind) StatusCode() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindAccessDenied:
		return http.StatusForbidden
	case KindMalformed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// classifyError maps service and storage errors to an ErrorKind
func classifyError(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrMalformedRequest),
		errors.Is(err, services.ErrMalformedCSV),
		storage.IsInvalid(err):
		return KindMalformed
	case storage.IsNotFound(err):
		return KindNotFound
	case storage.IsAccessDenied(err):
		return KindAccessDenied
	default:
		return KindInternal
	}
}

// errorResponse builds the response for a failed invocation
func errorResponse(err error) lambda.Response {
	kind := classifyError(err)

	body, marshalErr := json.Marshal(lambda.ErrorBody{
		Error:   string(kind),
		Message: err.Error(),
	})
	if marshalErr != nil {
		body = []byte(`{"error":"Internal","message":"failed to encode error"}`)
	}

	return lambda.Response{
		StatusCode: kind.StatusCode(),
		Body:       string(body),
	}
}
