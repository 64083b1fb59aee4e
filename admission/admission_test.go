package admission

import (
	"math/rand"
	"testing"
	"time"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestCheck_FreshSessionAdmitted(t *testing.T) {
	c := NewController(25, 50*time.Second)
	s := NewState(time.Second)

	if d := c.Check(s, base); d != Admitted {
		t.Fatalf("fresh session decision = %v, want Admitted", d)
	}
	if len(s.Timestamps) != 1 {
		t.Errorf("timestamps = %d, want 1", len(s.Timestamps))
	}
	if !s.LastAdmittedAt.Equal(base) {
		t.Errorf("LastAdmittedAt = %v, want %v", s.LastAdmittedAt, base)
	}
}

func TestCheck_BurstWithinOneSecond(t *testing.T) {
	// 30 frames within 1 second: exactly 1 admitted, the rest silently
	// dropped by the interval gate, no quota error.
	c := NewController(25, 50*time.Second)
	s := NewState(time.Second)

	admitted, silent, quota := 0, 0, 0
	for i := 0; i < 30; i++ {
		now := base.Add(time.Duration(i) * 33 * time.Millisecond)
		switch c.Check(s, now) {
		case Admitted:
			admitted++
		case RejectedInterval:
			silent++
		case RejectedQuota:
			quota++
		}
	}

	if admitted != 1 {
		t.Errorf("admitted = %d, want 1", admitted)
	}
	if silent != 29 {
		t.Errorf("silent drops = %d, want 29", silent)
	}
	if quota != 0 {
		t.Errorf("quota errors = %d, want 0", quota)
	}
}

func TestCheck_QuotaRejectsThenWindowRolls(t *testing.T) {
	// 25 admissions recorded within the last 50 seconds: the 26th at second
	// 51 is a quota rejection; at second 101 the window has rolled and a new
	// frame is admitted.
	c := NewController(25, 50*time.Second)
	s := NewState(2 * time.Second)

	for i := 0; i < 25; i++ {
		now := base.Add(time.Duration(i*2+1) * time.Second) // t=1s..49s
		if d := c.Check(s, now); d != Admitted {
			t.Fatalf("admission %d decision = %v, want Admitted", i, d)
		}
	}

	if d := c.Check(s, base.Add(51*time.Second)); d != RejectedQuota {
		t.Fatalf("26th frame decision = %v, want RejectedQuota", d)
	}

	if d := c.Check(s, base.Add(101*time.Second)); d != Admitted {
		t.Fatalf("post-roll frame decision = %v, want Admitted", d)
	}
}

func TestCheck_QuotaRejectionDoesNotRecord(t *testing.T) {
	c := NewController(1, 50*time.Second)
	s := NewState(time.Millisecond)

	c.Check(s, base)
	for i := 1; i <= 5; i++ {
		now := base.Add(time.Duration(i) * time.Second)
		if d := c.Check(s, now); d != RejectedQuota {
			t.Fatalf("decision = %v, want RejectedQuota", d)
		}
	}
	if len(s.Timestamps) != 1 {
		t.Errorf("rejections were recorded: %d timestamps", len(s.Timestamps))
	}
}

func TestCheck_ClockBackwardDoesNotWedge(t *testing.T) {
	c := NewController(25, 50*time.Second)
	s := NewState(time.Second)

	if d := c.Check(s, base); d != Admitted {
		t.Fatalf("first decision = %v, want Admitted", d)
	}

	// Clock jumps backward past the window start. The half-open purge must
	// not produce a negative-length window that rejects everything.
	earlier := base.Add(-2 * time.Minute)
	if d := c.Check(s, earlier); d == RejectedQuota {
		t.Fatalf("backward clock caused quota rejection")
	}
}

func TestCheck_QuotaBoundHoldsUnderRandomTraffic(t *testing.T) {
	// Property: at most rateLimit admissions succeed within any trailing
	// window, regardless of call pattern.
	const (
		rateLimit = 10
		window    = 5 * time.Second
		interval  = 50 * time.Millisecond
	)
	rng := rand.New(rand.NewSource(1))
	c := NewController(rateLimit, window)
	s := NewState(interval)

	var admittedAt []time.Time
	now := base
	for i := 0; i < 5000; i++ {
		now = now.Add(time.Duration(rng.Intn(200)) * time.Millisecond)
		if c.Check(s, now) == Admitted {
			admittedAt = append(admittedAt, now)
		}
	}

	for i := range admittedAt {
		count := 1
		for j := i - 1; j >= 0; j-- {
			if admittedAt[i].Sub(admittedAt[j]) < window {
				count++
			} else {
				break
			}
		}
		if count > rateLimit {
			t.Fatalf("window ending at %v holds %d admissions, limit %d",
				admittedAt[i], count, rateLimit)
		}
	}
}

func TestCheck_IntervalSpacingHoldsUnderRandomTraffic(t *testing.T) {
	// Property: two admitted frames are never less than the minimum
	// interval apart.
	const interval = 300 * time.Millisecond
	rng := rand.New(rand.NewSource(7))
	c := NewController(1000, time.Hour)
	s := NewState(interval)

	var admittedAt []time.Time
	now := base
	for i := 0; i < 3000; i++ {
		now = now.Add(time.Duration(rng.Intn(100)) * time.Millisecond)
		if c.Check(s, now) == Admitted {
			admittedAt = append(admittedAt, now)
		}
	}

	if len(admittedAt) < 2 {
		t.Fatal("expected multiple admissions")
	}
	for i := 1; i < len(admittedAt); i++ {
		if gap := admittedAt[i].Sub(admittedAt[i-1]); gap < interval {
			t.Fatalf("admissions %d and %d only %v apart, min %v", i-1, i, gap, interval)
		}
	}
}

func TestRestore_RespectsLastAdmission(t *testing.T) {
	const interval = time.Second
	rec := Record{
		Timestamps:     []time.Time{base},
		LastAdmittedAt: base,
	}

	c := NewController(25, 50*time.Second)

	// Restored immediately after the admission: still throttled.
	s := Restore(rec, interval, base.Add(100*time.Millisecond))
	if d := c.Check(s, base.Add(100*time.Millisecond)); d != RejectedInterval {
		t.Errorf("decision right after restore = %v, want RejectedInterval", d)
	}

	// Restored well past the interval: admitted.
	s = Restore(rec, interval, base.Add(5*time.Second))
	if d := c.Check(s, base.Add(5*time.Second)); d != Admitted {
		t.Errorf("decision after interval elapsed = %v, want Admitted", d)
	}
}

func TestDecision_Labels(t *testing.T) {
	if Admitted.String() != "admitted" || RejectedQuota.String() != "quota" || RejectedInterval.String() != "interval" {
		t.Error("unexpected decision labels")
	}
	if !RejectedInterval.Silent() {
		t.Error("interval rejection must be silent")
	}
	if RejectedQuota.Silent() {
		t.Error("quota rejection must be surfaced")
	}
}
