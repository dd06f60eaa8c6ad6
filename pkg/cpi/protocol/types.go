// Package protocol defines the JSON-over-stdio envelope exchanged between the
// director and an external CPI executable.
//
// A call is exactly one request document written to the CPI's standard input
// followed by EOF, and exactly one response document read back from its
// standard output.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Response field names. All three must be present in every response.
const (
	FieldResult = "result"
	FieldError  = "error"
	FieldLog    = "log"
)

// ErrMissingField is returned when a response lacks one of the required keys.
var ErrMissingField = errors.New("response is missing required field")

// RequestContext is the context block sent with every request.
type RequestContext struct {
	// DirectorUUID identifies the director instance making the call.
	DirectorUUID string `json:"director_uuid"`

	// RequestID correlates the call with director logs. Omitted when empty.
	RequestID string `json:"request_id,omitempty"`
}

// Request is the document written to the CPI's standard input.
// Field order is part of the wire contract.
type Request struct {
	Method    string         `json:"method"`
	Arguments []interface{}  `json:"arguments"`
	Context   RequestContext `json:"context"`
}

// NewRequest builds a request. A nil argument list is sent as an empty array.
func NewRequest(method string, args []interface{}, ctx RequestContext) *Request {
	if args == nil {
		args = []interface{}{}
	}
	return &Request{
		Method:    method,
		Arguments: args,
		Context:   ctx,
	}
}

// RawRequest is a request as seen by a CPI implementation, with arguments
// left undecoded until the handler knows their types.
type RawRequest struct {
	Method    string            `json:"method"`
	Arguments []json.RawMessage `json:"arguments"`
	Context   RequestContext    `json:"context"`
}

// Argument decodes the i-th positional argument into target.
func (r *RawRequest) Argument(i int, target interface{}) error {
	if i < 0 || i >= len(r.Arguments) {
		return fmt.Errorf("argument %d out of range (have %d)", i, len(r.Arguments))
	}
	if err := json.Unmarshal(r.Arguments[i], target); err != nil {
		return fmt.Errorf("failed to parse argument %d: %w", i, err)
	}
	return nil
}

// ResponseError is the structured error object a CPI reports.
type ResponseError struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	OkToRetry bool   `json:"ok_to_retry"`
}

// Response is the document read from the CPI's standard output.
type Response struct {
	// Result is opaque to the director and passed through untouched.
	Result json.RawMessage `json:"result"`

	// Error is nil on success.
	Error *ResponseError `json:"error"`

	// Log is free-form diagnostic text emitted by the CPI.
	Log string `json:"log"`
}

// NewResultResponse builds a successful response around result.
func NewResultResponse(result interface{}, log string) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &Response{Result: raw, Log: log}, nil
}

// NewErrorResponse builds a failed response.
func NewErrorResponse(errType, message string, okToRetry bool, log string) *Response {
	return &Response{
		Error: &ResponseError{
			Type:      errType,
			Message:   message,
			OkToRetry: okToRetry,
		},
		Log: log,
	}
}
