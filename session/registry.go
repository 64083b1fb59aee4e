// Package session tracks connected client sessions and their admission
// state. A session is one WebSocket connection's lifetime; the registry
// hands out IDs, guards per-session state, and evicts idle entries.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AltairaLabs/SightRelay/admission"
	"github.com/AltairaLabs/SightRelay/logger"
	"github.com/AltairaLabs/SightRelay/statestore"
	"github.com/AltairaLabs/SightRelay/types"
)

// ErrSessionNotFound is returned when operating on an unregistered session.
var ErrSessionNotFound = errors.New("session not found")

// Session is one client's registered state. All mutable fields are guarded
// by mu; the registry exposes them only through locked methods.
type Session struct {
	id        string
	createdAt time.Time

	mu               sync.Mutex
	state            *admission.State
	lastSeen         time.Time
	lastFingerprint  string
	framesSeen       uint64
	inferenceRunning bool
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// CreatedAt returns the session's registration time.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// FramesSeen returns the number of frames received over this session's
// lifetime, admitted or not.
func (s *Session) FramesSeen() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.framesSeen
}

// LastFingerprint returns the digest of the most recently received frame.
func (s *Session) LastFingerprint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFingerprint
}

// TryBeginInference marks the session as having an inference in flight.
// Returns false if one is already running; the caller should drop the frame.
func (s *Session) TryBeginInference() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inferenceRunning {
		return false
	}
	s.inferenceRunning = true
	return true
}

// EndInference clears the in-flight marker.
func (s *Session) EndInference() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inferenceRunning = false
}

// Fingerprint computes the digest used for frame bookkeeping.
func Fingerprint(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// Registry owns all live sessions. It lazily restores admission records from
// the state store so a reconnecting client resumes its quota window instead
// of getting a fresh one.
type Registry struct {
	store       statestore.Store
	controller  *admission.Controller
	minInterval time.Duration
	idleTTL     time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Store       statestore.Store
	Controller  *admission.Controller
	MinInterval time.Duration

	// IdleTTL is how long a session may go without frames before the
	// eviction sweep removes it. Zero disables eviction.
	IdleTTL time.Duration
}

// NewRegistry creates a session registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	return &Registry{
		store:       cfg.Store,
		controller:  cfg.Controller,
		minInterval: cfg.MinInterval,
		idleTTL:     cfg.IdleTTL,
		sessions:    make(map[string]*Session),
		stopSweep:   make(chan struct{}),
	}
}

// Register creates a session with a fresh unique ID.
func (r *Registry) Register(ctx context.Context) *Session {
	return r.RegisterWithID(ctx, uuid.NewString())
}

// RegisterWithID creates or resumes a session under a caller-supplied ID.
// If the state store holds an admission record for the ID, the session
// resumes with that record's quota window.
func (r *Registry) RegisterWithID(ctx context.Context, id string) *Session {
	now := time.Now()

	sess := &Session{
		id:        id,
		createdAt: now,
		lastSeen:  now,
	}

	if rec, err := r.store.Load(ctx, id); err == nil {
		sess.state = admission.Restore(*rec, r.minInterval, now)
		logger.DebugContext(ctx, "Resumed session admission state",
			"session_id", id, "recorded_admissions", len(rec.Timestamps))
	} else {
		if !errors.Is(err, statestore.ErrNotFound) {
			logger.WarnContext(ctx, "Failed to load admission record, starting fresh",
				"session_id", id, "error", err)
		}
		sess.state = admission.NewState(r.minInterval)
	}

	r.mu.Lock()
	r.sessions[id] = sess
	r.mu.Unlock()

	return sess
}

// Get returns a registered session.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CheckFrame runs the admission gates for one incoming frame and persists
// the updated record. The per-session lock makes check-and-update atomic
// even when a client pipelines frames over the wire.
func (r *Registry) CheckFrame(ctx context.Context, sess *Session, frame types.Frame) admission.Decision {
	now := frame.ReceivedAt
	if now.IsZero() {
		now = time.Now()
	}

	sess.mu.Lock()

	sess.framesSeen++
	sess.lastSeen = now
	sess.lastFingerprint = Fingerprint(frame.Data)

	decision := r.controller.Check(sess.state, now)
	var rec *admission.Record
	if decision == admission.Admitted {
		snapshot := sess.state.Record
		snapshot.Timestamps = append([]time.Time(nil), snapshot.Timestamps...)
		rec = &snapshot
	}
	sess.mu.Unlock()

	// Persist outside the session lock; the store write is bookkeeping and
	// must not stall the read loop on a slow backend.
	if rec != nil {
		if err := r.store.Save(ctx, sess.id, rec); err != nil {
			logger.WarnContext(ctx, "Failed to persist admission record",
				"session_id", sess.id, "error", err)
		}
	}

	return decision
}

// Unregister removes a session and deletes its persisted record.
func (r *Registry) Unregister(ctx context.Context, id string) error {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	if err := r.store.Delete(ctx, id); err != nil && !errors.Is(err, statestore.ErrNotFound) {
		logger.WarnContext(ctx, "Failed to delete admission record",
			"session_id", id, "error", err)
	}
	return nil
}

// StartEvictionSweep launches a background loop that removes sessions idle
// longer than IdleTTL. No-op if IdleTTL is zero.
func (r *Registry) StartEvictionSweep(ctx context.Context) {
	if r.idleTTL <= 0 {
		return
	}

	interval := r.idleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopSweep:
				return
			case <-ticker.C:
				r.evictIdle(ctx, time.Now())
			}
		}
	}()
}

// StopEvictionSweep stops the background eviction loop.
func (r *Registry) StopEvictionSweep() {
	r.sweepOnce.Do(func() { close(r.stopSweep) })
}

// evictIdle removes every session whose last frame is older than IdleTTL.
func (r *Registry) evictIdle(ctx context.Context, now time.Time) {
	cutoff := now.Add(-r.idleTTL)

	r.mu.RLock()
	var idle []string
	for id, sess := range r.sessions {
		sess.mu.Lock()
		if sess.lastSeen.Before(cutoff) {
			idle = append(idle, id)
		}
		sess.mu.Unlock()
	}
	r.mu.RUnlock()

	for _, id := range idle {
		if err := r.Unregister(ctx, id); err == nil {
			logger.InfoContext(ctx, "Evicted idle session", "session_id", id)
		}
	}
}
