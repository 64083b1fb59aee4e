// Package admission decides, per session, whether a camera frame is worth
// paying inference cost for. Two gates are evaluated in order: a sliding
// window quota that bounds absolute request volume, and a minimum-interval
// gate that bounds frame cadence regardless of quota headroom.
package admission

import (
	"time"

	"golang.org/x/time/rate"
)

// Decision is the outcome of an admission check.
type Decision int

const (
	// Admitted means the frame proceeds to normalization and relay.
	Admitted Decision = iota

	// RejectedQuota means the session exhausted its sliding-window quota.
	// Surfaced to the client: repeated quota rejection indicates client
	// misbehavior or overload worth reporting.
	RejectedQuota

	// RejectedInterval means the frame arrived too soon after the previous
	// admitted frame. Silent: this is expected steady-state behavior when a
	// client streams faster than the admitted cadence.
	RejectedInterval
)

// String returns a label for metrics and logs.
func (d Decision) String() string {
	switch d {
	case Admitted:
		return "admitted"
	case RejectedQuota:
		return "quota"
	case RejectedInterval:
		return "interval"
	default:
		return "unknown"
	}
}

// Silent reports whether the rejection is dropped without notifying the client.
func (d Decision) Silent() bool {
	return d == RejectedInterval
}

// Record is the persistable part of a session's admission state. It is
// mutated only by Controller.Check, only under the owning session's lock.
type Record struct {
	// Timestamps holds the admission times inside the trailing quota window,
	// oldest first. Entries older than the window are purged on each check,
	// never retroactively.
	Timestamps []time.Time `json:"timestamps"`

	// LastAdmittedAt is the time of the most recent admission, zero if none.
	LastAdmittedAt time.Time `json:"last_admitted_at"`
}

// State is a session's complete admission state: the persistable Record plus
// the interval-gate limiter, which is cheap to rebuild and never persisted.
type State struct {
	Record

	interval *rate.Limiter
}

// NewState returns a fresh State that admits its first frame immediately.
func NewState(minInterval time.Duration) *State {
	return &State{
		interval: rate.NewLimiter(rate.Every(minInterval), 1),
	}
}

// Restore returns a State seeded from a previously persisted Record. The
// interval limiter is rebuilt empty if the last admission is recent enough
// that a fresh token would violate the minimum spacing.
func Restore(rec Record, minInterval time.Duration, now time.Time) *State {
	s := NewState(minInterval)
	s.Record = rec
	if !rec.LastAdmittedAt.IsZero() {
		// Drain the initial token as of the last admission so the rebuilt
		// limiter refills on the original schedule.
		s.interval.AllowN(rec.LastAdmittedAt, 1)
	}
	return s
}

// Controller evaluates the admission gates. It is pure bookkeeping with no
// I/O; the caller must hold the owning session's lock so that no two checks
// for the same session interleave.
type Controller struct {
	rateLimit  int
	rateWindow time.Duration
}

// NewController creates a Controller with the given quota bounds.
func NewController(rateLimit int, rateWindow time.Duration) *Controller {
	return &Controller{
		rateLimit:  rateLimit,
		rateWindow: rateWindow,
	}
}

// Check runs both gates in order and records the admission when both pass.
// A session with no prior record is always admitted.
//
// Admission timestamps are recorded only for admitted frames, so a burst
// rejected by the interval gate consumes no quota and stays silent.
func (c *Controller) Check(s *State, now time.Time) Decision {
	// Quota gate. The sequence is time-ordered, so the purge is a prefix
	// trim. Half-open comparison: a clock running backward shrinks the
	// window but never rejects everything.
	windowStart := now.Add(-c.rateWindow)
	trim := 0
	for trim < len(s.Timestamps) && s.Timestamps[trim].Before(windowStart) {
		trim++
	}
	if trim > 0 {
		s.Timestamps = append(s.Timestamps[:0], s.Timestamps[trim:]...)
	}

	if len(s.Timestamps) >= c.rateLimit {
		return RejectedQuota
	}

	// Interval gate: a token bucket with burst 1 refilling every
	// minInterval admits at most one frame per interval.
	if !s.interval.AllowN(now, 1) {
		return RejectedInterval
	}

	s.Timestamps = append(s.Timestamps, now)
	s.LastAdmittedAt = now
	return Admitted
}
