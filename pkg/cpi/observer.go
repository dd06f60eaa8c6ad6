package cpi

import (
	"context"
	"errors"
	"time"
)

// Call outcomes, used as a low cardinality label.
const (
	OutcomeOK               = "ok"
	OutcomeCPIError         = "cpi_error"
	OutcomeProtocolError    = "protocol_error"
	OutcomeInvalidArguments = "invalid_arguments"
	OutcomeFailed           = "failed"
)

// CallRecord describes one finished CPI call.
type CallRecord struct {
	CPI       string
	Method    string
	RequestID string
	Arguments []interface{}
	StartedAt time.Time
	Duration  time.Duration

	// ExitStatus is -1 when no process was started.
	ExitStatus int

	// StderrBytes is the number of bytes the CPI wrote to standard error.
	StderrBytes int

	// Err is nil for successful calls.
	Err error
}

// Outcome summarizes how the call ended.
func (r *CallRecord) Outcome() string {
	var argErr *ArgumentError
	switch {
	case r.Err == nil:
		return OutcomeOK
	case IsProtocolError(r.Err):
		return OutcomeProtocolError
	case KindOf(r.Err) != "":
		return OutcomeCPIError
	case errors.As(r.Err, &argErr):
		return OutcomeInvalidArguments
	default:
		return OutcomeFailed
	}
}

// CallObserver is notified after every CPI call. Implementations must be
// safe for concurrent use.
type CallObserver interface {
	ObserveCall(ctx context.Context, rec *CallRecord)
}

// Observers fans a call record out to several observers.
type Observers []CallObserver

// ObserveCall implements CallObserver.
func (o Observers) ObserveCall(ctx context.Context, rec *CallRecord) {
	for _, obs := range o {
		if obs != nil {
			obs.ObserveCall(ctx, rec)
		}
	}
}

type nopObserver struct{}

func (nopObserver) ObserveCall(context.Context, *CallRecord) {}
