package cpi

import (
	"fmt"
	"sort"

	"github.com/openfroyo/externalcpi/pkg/cpi/protocol"
)

// Wire identifiers CPIs use in error.type.
const (
	TypeNoDiskSpace      = "Bosh::Clouds::NoDiskSpace"
	TypeDiskNotAttached  = "Bosh::Clouds::DiskNotAttached"
	TypeDiskNotFound     = "Bosh::Clouds::DiskNotFound"
	TypeVMCreationFailed = "Bosh::Clouds::VMCreationFailed"
	TypeCloudError       = "Bosh::Clouds::CloudError"
	TypeCpiError         = "Bosh::Clouds::CpiError"
	TypeNotImplemented   = "Bosh::Clouds::NotImplemented"
	TypeVMNotFound       = "Bosh::Clouds::VMNotFound"
)

// RegistryEntry maps a wire type to a kind.
type RegistryEntry struct {
	Type             string
	Kind             Kind
	CarriesRetryFlag bool
}

// ErrorRegistry is a closed, read-only mapping from wire error types to
// kinds. It is safe for concurrent use once built.
type ErrorRegistry struct {
	entries map[string]RegistryEntry
}

var defaultEntries = []RegistryEntry{
	{Type: TypeNoDiskSpace, Kind: KindNoDiskSpace, CarriesRetryFlag: true},
	{Type: TypeDiskNotAttached, Kind: KindDiskNotAttached, CarriesRetryFlag: true},
	{Type: TypeDiskNotFound, Kind: KindDiskNotFound, CarriesRetryFlag: true},
	{Type: TypeVMCreationFailed, Kind: KindVMCreationFailed, CarriesRetryFlag: true},
	{Type: TypeCloudError, Kind: KindCloudError},
	{Type: TypeCpiError, Kind: KindCpiError},
	{Type: TypeNotImplemented, Kind: KindNotImplemented},
	{Type: TypeVMNotFound, Kind: KindVMNotFound},
}

var defaultRegistry = mustNewErrorRegistry(defaultEntries)

// DefaultErrorRegistry returns the registry of error types this director knows.
func DefaultErrorRegistry() *ErrorRegistry {
	return defaultRegistry
}

// NewErrorRegistry builds a registry. Duplicate types and entries claiming
// the reserved unknown or protocol kinds are rejected.
func NewErrorRegistry(entries []RegistryEntry) (*ErrorRegistry, error) {
	r := &ErrorRegistry{entries: make(map[string]RegistryEntry, len(entries))}
	for _, e := range entries {
		if e.Type == "" {
			return nil, fmt.Errorf("registry entry for kind %s has no type", e.Kind)
		}
		switch e.Kind {
		case "", KindUnknown, KindNonExecutable, KindInvalidResponse:
			return nil, fmt.Errorf("registry entry %s uses reserved kind %q", e.Type, e.Kind)
		}
		if _, exists := r.entries[e.Type]; exists {
			return nil, fmt.Errorf("duplicate registry entry %s", e.Type)
		}
		r.entries[e.Type] = e
	}
	return r, nil
}

func mustNewErrorRegistry(entries []RegistryEntry) *ErrorRegistry {
	r, err := NewErrorRegistry(entries)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the entry registered for errType.
func (r *ErrorRegistry) Lookup(errType string) (RegistryEntry, bool) {
	e, ok := r.entries[errType]
	return e, ok
}

// Entries returns all entries ordered by type.
func (r *ErrorRegistry) Entries() []RegistryEntry {
	out := make([]RegistryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Translate turns a wire error payload into exactly one typed error.
// Unrecognized types fall back to KindUnknown.
func (r *ErrorRegistry) Translate(payload *protocol.ResponseError) *Error {
	entry, ok := r.entries[payload.Type]
	if !ok {
		return &Error{
			Kind:    KindUnknown,
			Type:    payload.Type,
			Message: fmt.Sprintf("Received unknown error from cpi: %s with message %s", payload.Type, payload.Message),
		}
	}

	e := &Error{
		Kind:             entry.Kind,
		Type:             payload.Type,
		Message:          payload.Message,
		carriesRetryFlag: entry.CarriesRetryFlag,
	}
	if entry.CarriesRetryFlag {
		e.OkToRetry = payload.OkToRetry
	}
	return e
}
