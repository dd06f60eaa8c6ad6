package cpi

import (
	"errors"
	"fmt"
)

// Kind classifies an error raised by a CPI call.
type Kind string

const (
	// KindNoDiskSpace reports resource exhaustion on the infrastructure.
	KindNoDiskSpace Kind = "no_disk_space"

	// KindDiskNotAttached reports a stale disk to VM association.
	KindDiskNotAttached Kind = "disk_not_attached"

	// KindDiskNotFound reports a disk that no longer exists.
	KindDiskNotFound Kind = "disk_not_found"

	// KindVMCreationFailed reports a failed, possibly transient, VM creation.
	KindVMCreationFailed Kind = "vm_creation_failed"

	// KindCloudError is a non-specific failure reported by the cloud.
	KindCloudError Kind = "cloud_error"

	// KindCpiError is a non-specific failure inside the CPI itself.
	KindCpiError Kind = "cpi_error"

	// KindNotImplemented reports a method the CPI does not support.
	KindNotImplemented Kind = "not_implemented"

	// KindVMNotFound reports a VM that no longer exists.
	KindVMNotFound Kind = "vm_not_found"

	// KindUnknown is used for error types this director does not recognize.
	KindUnknown Kind = "unknown"

	// KindNonExecutable reports a CPI path that cannot be executed.
	KindNonExecutable Kind = "non_executable"

	// KindInvalidResponse reports output that breaks the response contract.
	KindInvalidResponse Kind = "invalid_response"
)

// Error is the typed error returned by every failed CPI call.
type Error struct {
	// Kind is the local classification.
	Kind Kind

	// Type is the identifier reported by the CPI, if any.
	Type string

	// Message is the CPI supplied text, unmodified.
	Message string

	// OkToRetry is the CPI's assertion that the call can be re-issued.
	// Only meaningful when CarriesRetryFlag reports true.
	OkToRetry bool

	// Err is the underlying cause for protocol level failures.
	Err error

	carriesRetryFlag bool
}

// Error returns the message verbatim.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same kind, so errors.Is(err, ErrDiskNotFound) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// CarriesRetryFlag reports whether this kind of error exposes OkToRetry.
func (e *Error) CarriesRetryFlag() bool {
	return e.carriesRetryFlag
}

// Sentinels for errors.Is.
var (
	ErrNoDiskSpace      = &Error{Kind: KindNoDiskSpace}
	ErrDiskNotAttached  = &Error{Kind: KindDiskNotAttached}
	ErrDiskNotFound     = &Error{Kind: KindDiskNotFound}
	ErrVMCreationFailed = &Error{Kind: KindVMCreationFailed}
	ErrCloudError       = &Error{Kind: KindCloudError}
	ErrCpiError         = &Error{Kind: KindCpiError}
	ErrNotImplemented   = &Error{Kind: KindNotImplemented}
	ErrVMNotFound       = &Error{Kind: KindVMNotFound}
	ErrUnknown          = &Error{Kind: KindUnknown}
	ErrNonExecutable    = &Error{Kind: KindNonExecutable}
	ErrInvalidResponse  = &Error{Kind: KindInvalidResponse}
)

// NewNonExecutableError reports that path cannot be run.
func NewNonExecutableError(path string, err error) *Error {
	return &Error{
		Kind:    KindNonExecutable,
		Message: fmt.Sprintf("Failed to run cpi: `%s' is not executable", path),
		Err:     err,
	}
}

// NewInvalidResponseError reports a response that breaks the protocol.
func NewInvalidResponseError(err error) *Error {
	return &Error{
		Kind:    KindInvalidResponse,
		Message: fmt.Sprintf("Received invalid response from cpi with error: %v", err),
		Err:     err,
	}
}

// KindOf returns the kind of a CPI error, or "" when err is not one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether the CPI declared the failed call safe to
// re-issue. Only kinds that carry the flag can be retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.carriesRetryFlag && e.OkToRetry
	}
	return false
}

// IsProtocolError reports a broken contract rather than an infrastructure failure.
func IsProtocolError(err error) bool {
	k := KindOf(err)
	return k == KindNonExecutable || k == KindInvalidResponse
}
