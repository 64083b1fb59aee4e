package statestore

import (
	"context"
	"sync"
	"time"

	"github.com/AltairaLabs/SightRelay/admission"
)

// MemoryStore is an in-memory Store for single-process deployments and tests.
// Records live until deleted or the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]admission.Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]admission.Record),
	}
}

// Load retrieves a session's admission record.
func (s *MemoryStore) Load(_ context.Context, sessionID string) (*admission.Record, error) {
	if sessionID == "" {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[sessionID]
	if !ok {
		return nil, ErrNotFound
	}

	// Copy so callers cannot mutate stored state through the shared slice.
	out := rec
	out.Timestamps = append([]time.Time(nil), rec.Timestamps...)
	return &out, nil
}

// Save persists a session's admission record.
func (s *MemoryStore) Save(_ context.Context, sessionID string, rec *admission.Record) error {
	if sessionID == "" {
		return ErrInvalidID
	}
	if rec == nil {
		return ErrInvalidRecord
	}

	stored := *rec
	stored.Timestamps = append(stored.Timestamps[:0:0], rec.Timestamps...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[sessionID] = stored
	return nil
}

// Delete removes a session's record.
func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[sessionID]; !ok {
		return ErrNotFound
	}
	delete(s.records, sessionID)
	return nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
