// Package statestore persists per-session admission records so throttling
// decisions survive process restarts and can be shared across replicas.
package statestore

import (
	"context"
	"errors"

	"github.com/AltairaLabs/SightRelay/admission"
)

// Common errors returned by store implementations.
var (
	// ErrNotFound is returned when the requested session has no record.
	ErrNotFound = errors.New("session record not found")

	// ErrInvalidID is returned when the session ID is empty.
	ErrInvalidID = errors.New("invalid session ID")

	// ErrInvalidRecord is returned when attempting to save a nil record.
	ErrInvalidRecord = errors.New("invalid record")
)

// Store persists admission records keyed by session ID.
//
// The store holds only the persistable Record; the caller rebuilds the full
// admission state on load. Implementations must be safe for concurrent use,
// but the caller owns check-and-update atomicity per session.
type Store interface {
	// Load retrieves the admission record for a session.
	// Returns ErrNotFound if the session has no record.
	Load(ctx context.Context, sessionID string) (*admission.Record, error)

	// Save persists the admission record for a session, overwriting any
	// previous record.
	Save(ctx context.Context, sessionID string, rec *admission.Record) error

	// Delete removes a session's record. Deleting an absent record returns
	// ErrNotFound.
	Delete(ctx context.Context, sessionID string) error

	// Close releases resources held by the store.
	Close() error
}
