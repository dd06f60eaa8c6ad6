package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// EncodeRequest renders the request exactly as it goes on the wire:
// compact, HTML characters unescaped, no trailing newline.
func EncodeRequest(req *Request) ([]byte, error) {
	if req.Arguments == nil {
		req = NewRequest(req.Method, nil, req.Context)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(req); err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// DecodeResponse parses a CPI response. It fails when data is not a single
// JSON object or when any of result, error or log is absent. Null values are
// accepted.
func DecodeResponse(data []byte) (*Response, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	for _, key := range []string{FieldResult, FieldError, FieldLog} {
		if _, ok := fields[key]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, key)
		}
	}

	resp := &Response{Result: fields[FieldResult]}

	if !isNull(fields[FieldError]) {
		respErr, err := decodeResponseError(fields[FieldError])
		if err != nil {
			return nil, err
		}
		resp.Error = respErr
	}

	if !isNull(fields[FieldLog]) {
		if err := json.Unmarshal(fields[FieldLog], &resp.Log); err != nil {
			// log is diagnostic only; keep whatever the CPI sent
			resp.Log = string(fields[FieldLog])
		}
	}

	return resp, nil
}

// decodeResponseError reads the error object leniently. Only the object
// shape is required: a type or message that is not a string is kept as its
// JSON text, and an ok_to_retry that is not a boolean counts as absent.
func decodeResponseError(raw json.RawMessage) (*ResponseError, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to parse error field: %w", err)
	}

	respErr := &ResponseError{
		Type:    textOf(fields["type"]),
		Message: textOf(fields["message"]),
	}
	if raw, ok := fields["ok_to_retry"]; ok {
		var retry bool
		if json.Unmarshal(raw, &retry) == nil {
			respErr.OkToRetry = retry
		}
	}
	return respErr, nil
}

// textOf returns a JSON string's value, or the compact JSON text of any other
// value. Absent and null values yield "".
func textOf(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// DecodeRequest parses a request document on the CPI side.
func DecodeRequest(data []byte) (*RawRequest, error) {
	var req RawRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request: %w", err)
	}
	if req.Method == "" {
		return nil, fmt.Errorf("request method is required")
	}
	return &req, nil
}

// ReadRequest reads a whole request document from r, typically stdin.
func ReadRequest(r io.Reader) (*RawRequest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read request: %w", err)
	}
	return DecodeRequest(data)
}

// EncodeResponse writes resp to w. All three fields are always emitted.
func EncodeResponse(w io.Writer, resp *Response) error {
	out := *resp
	if len(out.Result) == 0 {
		out.Result = json.RawMessage("null")
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(&out); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
