package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestEncodeRequest(t *testing.T) {
	ctx := RequestContext{DirectorUUID: "fake-director-uuid"}

	tests := []struct {
		name   string
		method string
		args   []interface{}
		ctx    RequestContext
		want   string
	}{
		{
			name:   "no arguments",
			method: "current_vm_id",
			ctx:    ctx,
			want:   `{"method":"current_vm_id","arguments":[],"context":{"director_uuid":"fake-director-uuid"}}`,
		},
		{
			name:   "string and object arguments",
			method: "create_stemcell",
			args:   []interface{}{"fake-stemcell-image-path", map[string]interface{}{"cloud": "props"}},
			ctx:    ctx,
			want:   `{"method":"create_stemcell","arguments":["fake-stemcell-image-path",{"cloud":"props"}],"context":{"director_uuid":"fake-director-uuid"}}`,
		},
		{
			name:   "create_vm keeps argument order",
			method: "create_vm",
			args: []interface{}{
				"fake-agent-id",
				"fake-stemcell-cid",
				map[string]interface{}{"cloud": "props"},
				map[string]interface{}{"net": "props"},
				[]string{"fake-disk-cid"},
				map[string]interface{}{"env": "props"},
			},
			ctx:  ctx,
			want: `{"method":"create_vm","arguments":["fake-agent-id","fake-stemcell-cid",{"cloud":"props"},{"net":"props"},["fake-disk-cid"],{"env":"props"}],"context":{"director_uuid":"fake-director-uuid"}}`,
		},
		{
			name:   "integer and null arguments",
			method: "create_disk",
			args:   []interface{}{100000, nil},
			ctx:    ctx,
			want:   `{"method":"create_disk","arguments":[100000,null],"context":{"director_uuid":"fake-director-uuid"}}`,
		},
		{
			name:   "html characters are not escaped",
			method: "set_vm_metadata",
			args:   []interface{}{"vm-1", map[string]string{"deployment": "a<b>&c"}},
			ctx:    ctx,
			want:   `{"method":"set_vm_metadata","arguments":["vm-1",{"deployment":"a<b>&c"}],"context":{"director_uuid":"fake-director-uuid"}}`,
		},
		{
			name:   "request id is added to context",
			method: "ping",
			ctx:    RequestContext{DirectorUUID: "fake-director-uuid", RequestID: "req-1"},
			want:   `{"method":"ping","arguments":[],"context":{"director_uuid":"fake-director-uuid","request_id":"req-1"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeRequest(NewRequest(tt.method, tt.args, tt.ctx))
			if err != nil {
				t.Fatalf("EncodeRequest() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("EncodeRequest() =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestEncodeRequestNilArguments(t *testing.T) {
	got, err := EncodeRequest(&Request{Method: "ping", Context: RequestContext{DirectorUUID: "u"}})
	if err != nil {
		t.Fatalf("EncodeRequest() error = %v", err)
	}
	if !strings.Contains(string(got), `"arguments":[]`) {
		t.Errorf("expected empty arguments array, got %s", got)
	}
}

func TestEncodeRequestUnmarshalable(t *testing.T) {
	_, err := EncodeRequest(NewRequest("create_vm", []interface{}{make(chan int)}, RequestContext{}))
	if err == nil {
		t.Fatal("expected error for unmarshalable argument")
	}
}

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantErr     bool
		wantMissing bool
		wantResult  string
		wantError   *ResponseError
		wantLog     string
	}{
		{
			name:       "string result",
			input:      `{"result":"fake-result","error":null,"log":"fake-log"}`,
			wantResult: `"fake-result"`,
			wantLog:    "fake-log",
		},
		{
			name:       "null result",
			input:      `{"result":null,"error":null,"log":""}`,
			wantResult: `null`,
		},
		{
			name:       "object result passes through",
			input:      `{"result":{"a":[1,2,{"b":null}]},"error":null,"log":""}`,
			wantResult: `{"a":[1,2,{"b":null}]}`,
		},
		{
			name:       "number result",
			input:      `{"result":12.5,"error":null,"log":""}`,
			wantResult: `12.5`,
		},
		{
			name:       "error payload",
			input:      `{"result":null,"error":{"type":"Bosh::Clouds::NoDiskSpace","message":"Not enough disk space","ok_to_retry":true},"log":"fake-log"}`,
			wantResult: `null`,
			wantError:  &ResponseError{Type: "Bosh::Clouds::NoDiskSpace", Message: "Not enough disk space", OkToRetry: true},
			wantLog:    "fake-log",
		},
		{
			name:       "number type kept as text",
			input:      `{"result":null,"error":{"type":42,"message":"Something went wrong","ok_to_retry":true},"log":""}`,
			wantResult: `null`,
			wantError:  &ResponseError{Type: "42", Message: "Something went wrong", OkToRetry: true},
		},
		{
			name:       "object type kept as compact text",
			input:      `{"result":null,"error":{"type":{"code": 7},"message":"bad"},"log":""}`,
			wantResult: `null`,
			wantError:  &ResponseError{Type: `{"code":7}`, Message: "bad"},
		},
		{
			name:       "non-bool ok_to_retry counts as absent",
			input:      `{"result":null,"error":{"type":"Bosh::Clouds::DiskNotFound","message":"gone","ok_to_retry":"yes"},"log":""}`,
			wantResult: `null`,
			wantError:  &ResponseError{Type: "Bosh::Clouds::DiskNotFound", Message: "gone"},
		},
		{
			name:       "empty error object",
			input:      `{"result":null,"error":{},"log":""}`,
			wantResult: `null`,
			wantError:  &ResponseError{},
		},
		{
			name:       "null log",
			input:      `{"result":true,"error":null,"log":null}`,
			wantResult: `true`,
		},
		{
			name:       "non-string log is kept verbatim",
			input:      `{"result":true,"error":null,"log":["a"]}`,
			wantResult: `true`,
			wantLog:    `["a"]`,
		},
		{
			name:    "invalid json",
			input:   `invalid-json`,
			wantErr: true,
		},
		{
			name:    "empty output",
			input:   ``,
			wantErr: true,
		},
		{
			name:    "trailing garbage",
			input:   `{"result":null,"error":null,"log":""} extra`,
			wantErr: true,
		},
		{
			name:    "not an object",
			input:   `["result","error","log"]`,
			wantErr: true,
		},
		{
			name:        "json null",
			input:       `null`,
			wantErr:     true,
			wantMissing: true,
		},
		{
			name:        "incorrect format",
			input:       `{"some_key":"some_value"}`,
			wantErr:     true,
			wantMissing: true,
		},
		{
			name:        "missing log",
			input:       `{"result":null,"error":null}`,
			wantErr:     true,
			wantMissing: true,
		},
		{
			name:        "missing error",
			input:       `{"result":null,"log":""}`,
			wantErr:     true,
			wantMissing: true,
		},
		{
			name:    "error is not an object",
			input:   `{"result":null,"error":"boom","log":""}`,
			wantErr: true,
		},
		{
			name:    "error is an array",
			input:   `{"result":null,"error":[1,2],"log":""}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := DecodeResponse([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantMissing && !errors.Is(err, ErrMissingField) {
				t.Errorf("expected ErrMissingField, got %v", err)
			}
			if tt.wantErr {
				return
			}

			if string(resp.Result) != tt.wantResult {
				t.Errorf("Result = %s, want %s", resp.Result, tt.wantResult)
			}
			if resp.Log != tt.wantLog {
				t.Errorf("Log = %q, want %q", resp.Log, tt.wantLog)
			}
			if tt.wantError == nil {
				if resp.Error != nil {
					t.Errorf("Error = %+v, want nil", resp.Error)
				}
				return
			}
			if resp.Error == nil || *resp.Error != *tt.wantError {
				t.Errorf("Error = %+v, want %+v", resp.Error, tt.wantError)
			}
		})
	}
}

func TestDecodeRequest(t *testing.T) {
	input := `{"method":"attach_disk","arguments":["vm-1","disk-1"],"context":{"director_uuid":"u"}}`

	req, err := ReadRequest(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadRequest() error = %v", err)
	}
	if req.Method != "attach_disk" {
		t.Errorf("Method = %s, want attach_disk", req.Method)
	}
	if req.Context.DirectorUUID != "u" {
		t.Errorf("DirectorUUID = %s, want u", req.Context.DirectorUUID)
	}

	var vmCID, diskCID string
	if err := req.Argument(0, &vmCID); err != nil {
		t.Fatalf("Argument(0) error = %v", err)
	}
	if err := req.Argument(1, &diskCID); err != nil {
		t.Fatalf("Argument(1) error = %v", err)
	}
	if vmCID != "vm-1" || diskCID != "disk-1" {
		t.Errorf("arguments = %s, %s", vmCID, diskCID)
	}

	var extra string
	if err := req.Argument(2, &extra); err == nil {
		t.Error("expected out of range error")
	}

	var wrong int
	if err := req.Argument(0, &wrong); err == nil {
		t.Error("expected type error")
	}

	if _, err := DecodeRequest([]byte(`{"arguments":[]}`)); err == nil {
		t.Error("expected error for missing method")
	}
	if _, err := DecodeRequest([]byte(`nope`)); err == nil {
		t.Error("expected error for invalid json")
	}
}

func TestEncodeResponseRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		resp *Response
	}{
		{
			name: "empty result",
			resp: &Response{},
		},
		{
			name: "error",
			resp: NewErrorResponse("Bosh::Clouds::DiskNotFound", "disk missing", false, "trace"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := EncodeResponse(&buf, tt.resp); err != nil {
				t.Fatalf("EncodeResponse() error = %v", err)
			}

			var fields map[string]json.RawMessage
			if err := json.Unmarshal(buf.Bytes(), &fields); err != nil {
				t.Fatalf("output is not valid JSON: %v", err)
			}
			for _, key := range []string{FieldResult, FieldError, FieldLog} {
				if _, ok := fields[key]; !ok {
					t.Errorf("output missing %s: %s", key, buf.String())
				}
			}

			if _, err := DecodeResponse(buf.Bytes()); err != nil {
				t.Errorf("DecodeResponse() error = %v", err)
			}
		})
	}
}

func TestNewResultResponse(t *testing.T) {
	resp, err := NewResultResponse([]string{"disk-1"}, "")
	if err != nil {
		t.Fatalf("NewResultResponse() error = %v", err)
	}
	if string(resp.Result) != `["disk-1"]` {
		t.Errorf("Result = %s", resp.Result)
	}

	if _, err := NewResultResponse(func() {}, ""); err == nil {
		t.Error("expected marshal error")
	}
}
