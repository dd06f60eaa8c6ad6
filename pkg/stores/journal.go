package stores

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/openfroyo/externalcpi/pkg/cpi"
)

// Journal records every CPI call in the store. It implements
// cpi.CallObserver; write failures go to OnError and never affect the call.
type Journal struct {
	store   *SQLiteStore
	OnError func(err error)
}

var _ cpi.CallObserver = (*Journal)(nil)

// NewJournal creates a journal backed by store.
func NewJournal(store *SQLiteStore) *Journal {
	return &Journal{store: store}
}

// ObserveCall implements cpi.CallObserver.
func (j *Journal) ObserveCall(ctx context.Context, rec *cpi.CallRecord) {
	// a cancelled caller must not lose its journal entry
	ctx = context.WithoutCancel(ctx)
	if err := j.store.RecordCall(ctx, EntryFromRecord(rec)); err != nil && j.OnError != nil {
		j.OnError(err)
	}
}

// EntryFromRecord converts a finished call into a journal entry.
func EntryFromRecord(rec *cpi.CallRecord) *CallEntry {
	entry := &CallEntry{
		RequestID:   rec.RequestID,
		CPI:         rec.CPI,
		Method:      rec.Method,
		Arguments:   "[]",
		StartedAt:   rec.StartedAt,
		Duration:    rec.Duration,
		ExitStatus:  rec.ExitStatus,
		StderrBytes: rec.StderrBytes,
		Outcome:     rec.Outcome(),
	}

	if len(rec.Arguments) > 0 {
		if b, err := json.Marshal(rec.Arguments); err == nil {
			entry.Arguments = string(b)
		}
	}

	if rec.Err != nil {
		entry.ErrorMessage = rec.Err.Error()
	}
	var cpiErr *cpi.Error
	if errors.As(rec.Err, &cpiErr) {
		entry.ErrorKind = string(cpiErr.Kind)
		entry.ErrorType = cpiErr.Type
		entry.OkToRetry = cpi.IsRetryable(cpiErr)
	}

	return entry
}

// Identity resolves the director UUID once. A non-empty configured value
// is stored and wins over any previously generated one.
func (s *SQLiteStore) Identity(ctx context.Context, configured string) (cpi.StaticIdentity, error) {
	if configured != "" {
		if err := s.SetAttribute(ctx, AttributeDirectorUUID, configured); err != nil {
			return "", err
		}
		return cpi.StaticIdentity(configured), nil
	}

	id, err := s.DirectorUUID(ctx)
	if err != nil {
		return "", err
	}
	return cpi.StaticIdentity(id), nil
}
