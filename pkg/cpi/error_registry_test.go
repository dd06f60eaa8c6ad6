package cpi

import (
	"errors"
	"testing"

	"github.com/openfroyo/externalcpi/pkg/cpi/protocol"
)

func TestTranslateRetryableKinds(t *testing.T) {
	tests := []struct {
		errType  string
		kind     Kind
		sentinel error
	}{
		{TypeNoDiskSpace, KindNoDiskSpace, ErrNoDiskSpace},
		{TypeDiskNotAttached, KindDiskNotAttached, ErrDiskNotAttached},
		{TypeDiskNotFound, KindDiskNotFound, ErrDiskNotFound},
		{TypeVMCreationFailed, KindVMCreationFailed, ErrVMCreationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.errType, func(t *testing.T) {
			for _, okToRetry := range []bool{true, false} {
				err := DefaultErrorRegistry().Translate(&protocol.ResponseError{
					Type:      tt.errType,
					Message:   "Not enough disk space",
					OkToRetry: okToRetry,
				})

				if err.Kind != tt.kind {
					t.Errorf("Kind = %s, want %s", err.Kind, tt.kind)
				}
				if !errors.Is(err, tt.sentinel) {
					t.Errorf("errors.Is(%v, sentinel) = false", err)
				}
				if err.Error() != "Not enough disk space" {
					t.Errorf("Error() = %q", err.Error())
				}
				if !err.CarriesRetryFlag() {
					t.Error("expected kind to carry the retry flag")
				}
				if err.OkToRetry != okToRetry {
					t.Errorf("OkToRetry = %v, want %v", err.OkToRetry, okToRetry)
				}
				if IsRetryable(err) != okToRetry {
					t.Errorf("IsRetryable() = %v, want %v", IsRetryable(err), okToRetry)
				}
			}
		})
	}
}

func TestTranslateNonRetryableKinds(t *testing.T) {
	tests := []struct {
		errType  string
		kind     Kind
		sentinel error
	}{
		{TypeCloudError, KindCloudError, ErrCloudError},
		{TypeCpiError, KindCpiError, ErrCpiError},
		{TypeNotImplemented, KindNotImplemented, ErrNotImplemented},
		{TypeVMNotFound, KindVMNotFound, ErrVMNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.errType, func(t *testing.T) {
			err := DefaultErrorRegistry().Translate(&protocol.ResponseError{
				Type:      tt.errType,
				Message:   "Something went wrong",
				OkToRetry: true,
			})

			if err.Kind != tt.kind {
				t.Errorf("Kind = %s, want %s", err.Kind, tt.kind)
			}
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("errors.Is(%v, sentinel) = false", err)
			}
			if err.Error() != "Something went wrong" {
				t.Errorf("Error() = %q", err.Error())
			}
			if err.CarriesRetryFlag() || err.OkToRetry {
				t.Error("non-retryable kind must not expose a retry flag")
			}
			if IsRetryable(err) {
				t.Error("IsRetryable() = true for non-retryable kind")
			}
		})
	}
}

func TestTranslateUnknownType(t *testing.T) {
	tests := []struct {
		name    string
		payload protocol.ResponseError
		want    string
	}{
		{
			name:    "unrecognizable type",
			payload: protocol.ResponseError{Type: "FakeUnrecognizableError", Message: "Something went wrong", OkToRetry: true},
			want:    "Received unknown error from cpi: FakeUnrecognizableError with message Something went wrong",
		},
		{
			name:    "empty type",
			payload: protocol.ResponseError{Message: "boom"},
			want:    "Received unknown error from cpi:  with message boom",
		},
		{
			name:    "registry kind name is not a type",
			payload: protocol.ResponseError{Type: "cloud_error", Message: "x"},
			want:    "Received unknown error from cpi: cloud_error with message x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := DefaultErrorRegistry().Translate(&tt.payload)
			if err.Kind != KindUnknown {
				t.Errorf("Kind = %s, want %s", err.Kind, KindUnknown)
			}
			if !errors.Is(err, ErrUnknown) {
				t.Error("expected errors.Is(err, ErrUnknown)")
			}
			if err.Error() != tt.want {
				t.Errorf("Error() = %q, want %q", err.Error(), tt.want)
			}
			if IsRetryable(err) {
				t.Error("unknown errors are never retryable")
			}
		})
	}
}

func TestDefaultRegistryCompleteness(t *testing.T) {
	want := map[string]Kind{
		TypeNoDiskSpace:      KindNoDiskSpace,
		TypeDiskNotAttached:  KindDiskNotAttached,
		TypeDiskNotFound:     KindDiskNotFound,
		TypeVMCreationFailed: KindVMCreationFailed,
		TypeCloudError:       KindCloudError,
		TypeCpiError:         KindCpiError,
		TypeNotImplemented:   KindNotImplemented,
		TypeVMNotFound:       KindVMNotFound,
	}

	entries := DefaultErrorRegistry().Entries()
	if len(entries) != len(want) {
		t.Fatalf("registry has %d entries, want %d", len(entries), len(want))
	}
	for i, e := range entries {
		if want[e.Type] != e.Kind {
			t.Errorf("entry %s has kind %s, want %s", e.Type, e.Kind, want[e.Type])
		}
		if i > 0 && entries[i-1].Type >= e.Type {
			t.Errorf("entries not sorted at %d", i)
		}
	}

	for _, retryable := range []string{TypeNoDiskSpace, TypeDiskNotAttached, TypeDiskNotFound, TypeVMCreationFailed} {
		e, ok := DefaultErrorRegistry().Lookup(retryable)
		if !ok || !e.CarriesRetryFlag {
			t.Errorf("%s should carry the retry flag", retryable)
		}
	}
}

func TestNewErrorRegistryRejectsBadEntries(t *testing.T) {
	tests := []struct {
		name    string
		entries []RegistryEntry
	}{
		{"empty type", []RegistryEntry{{Kind: KindCloudError}}},
		{"empty kind", []RegistryEntry{{Type: "X"}}},
		{"unknown kind", []RegistryEntry{{Type: "X", Kind: KindUnknown}}},
		{"protocol kind", []RegistryEntry{{Type: "X", Kind: KindInvalidResponse}}},
		{"duplicate", []RegistryEntry{{Type: "X", Kind: KindCloudError}, {Type: "X", Kind: KindCpiError}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewErrorRegistry(tt.entries); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestProtocolErrors(t *testing.T) {
	nonExec := NewNonExecutableError("/path/to/fake-cpi/bin/cpi", nil)
	if nonExec.Error() != "Failed to run cpi: `/path/to/fake-cpi/bin/cpi' is not executable" {
		t.Errorf("unexpected message %q", nonExec.Error())
	}
	if !IsProtocolError(nonExec) || IsRetryable(nonExec) {
		t.Error("non-executable must be a non-retryable protocol error")
	}

	cause := errors.New("bad json")
	invalid := NewInvalidResponseError(cause)
	if !errors.Is(invalid, ErrInvalidResponse) {
		t.Error("expected errors.Is(invalid, ErrInvalidResponse)")
	}
	if !errors.Is(invalid, cause) {
		t.Error("expected cause to be unwrapped")
	}
	if !IsProtocolError(invalid) || IsRetryable(invalid) {
		t.Error("invalid response must be a non-retryable protocol error")
	}

	if KindOf(errors.New("plain")) != "" {
		t.Error("KindOf(plain error) should be empty")
	}
	if IsProtocolError(nil) {
		t.Error("IsProtocolError(nil) = true")
	}
}
