package lambda

import "github.com/aws/aws-lambda-go/events"

// Operations accepted in direct mode
const (
	OperationPut = "put"
	OperationGet = "get"
)

// Request is the event payload accepted by the handler. Records holds S3
// notifications; without records the request addresses a single object.
type Request struct {
	Operation string                 `json:"operation,omitempty" validate:"omitempty,oneof=put get"`
	Bucket    string                 `json:"bucket,omitempty" validate:"omitempty,min=3,max=63"`
	Key       string                 `json:"key,omitempty"`
	Body      *string                `json:"body,omitempty"`
	Records   []events.S3EventRecord `json:"Records,omitempty"`
}

// Response is returned to the runtime for every invocation
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// ErrorBody is the JSON body of a non-200 response
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
