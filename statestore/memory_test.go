package statestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AltairaLabs/SightRelay/admission"
)

func testRecord(at time.Time) *admission.Record {
	return &admission.Record{
		Timestamps:     []time.Time{at.Add(-2 * time.Second), at},
		LastAdmittedAt: at,
	}
}

func TestMemoryStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	at := time.Now().UTC().Truncate(time.Millisecond)

	if err := store.Save(ctx, "s1", testRecord(at)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got.Timestamps) != 2 {
		t.Errorf("timestamps = %d, want 2", len(got.Timestamps))
	}
	if !got.LastAdmittedAt.Equal(at) {
		t.Errorf("LastAdmittedAt = %v, want %v", got.LastAdmittedAt, at)
	}
}

func TestMemoryStore_LoadMissing(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Load(context.Background(), "absent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_InvalidInput(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.Load(ctx, ""); !errors.Is(err, ErrInvalidID) {
		t.Errorf("Load(\"\") error = %v, want ErrInvalidID", err)
	}
	if err := store.Save(ctx, "", testRecord(time.Now())); !errors.Is(err, ErrInvalidID) {
		t.Errorf("Save(\"\") error = %v, want ErrInvalidID", err)
	}
	if err := store.Save(ctx, "s1", nil); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("Save(nil) error = %v, want ErrInvalidRecord", err)
	}
	if err := store.Delete(ctx, ""); !errors.Is(err, ErrInvalidID) {
		t.Errorf("Delete(\"\") error = %v, want ErrInvalidID", err)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_ = store.Save(ctx, "s1", testRecord(time.Now()))
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Load(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("record survived deletion: %v", err)
	}
	if err := store.Delete(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_LoadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	at := time.Now()

	_ = store.Save(ctx, "s1", testRecord(at))

	first, _ := store.Load(ctx, "s1")
	first.Timestamps[0] = at.Add(time.Hour)
	first.Timestamps = append(first.Timestamps, at.Add(2*time.Hour))

	second, _ := store.Load(ctx, "s1")
	if len(second.Timestamps) != 2 {
		t.Errorf("stored record mutated through loaded copy: %d timestamps", len(second.Timestamps))
	}
	if second.Timestamps[0].Equal(at.Add(time.Hour)) {
		t.Error("stored timestamp mutated through loaded copy")
	}
}
