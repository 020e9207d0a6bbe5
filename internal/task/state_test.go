package task

import (
	"testing"
	"time"
)

func TestStateStoreRecordBoundsHistory(t *testing.T) {
	store := NewStateStore(3)

	for _, cmd := range []string{"a", "b", "c", "d", "e"} {
		store.Record("wf-1", cmd)
	}

	state, ok := store.Get("wf-1")
	if !ok {
		t.Fatal("expected state for wf-1")
	}
	if state.ExecutionCount != 5 {
		t.Errorf("ExecutionCount = %d, want 5", state.ExecutionCount)
	}
	if len(state.CommandHistory) != 3 {
		t.Fatalf("history length = %d, want 3", len(state.CommandHistory))
	}
	for i, want := range []string{"c", "d", "e"} {
		if state.CommandHistory[i] != want {
			t.Errorf("history[%d] = %q, want %q", i, state.CommandHistory[i], want)
		}
	}
}

func TestStateStoreSnapshotIsolated(t *testing.T) {
	store := NewStateStore(0)
	store.Record("wf-1", "first")

	state, _ := store.Get("wf-1")
	state.CommandHistory[0] = "mutated"

	fresh, _ := store.Get("wf-1")
	if fresh.CommandHistory[0] != "first" {
		t.Error("mutating a snapshot must not affect the store")
	}
}

func TestStateStoreEvictIdle(t *testing.T) {
	store := NewStateStore(0)
	current := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	store.Record("wf-old", "cmd")

	current = current.Add(time.Hour)
	store.Record("wf-fresh", "cmd")

	evicted := store.EvictIdle(30 * time.Minute)
	if evicted != 1 {
		t.Fatalf("evicted = %d, want 1", evicted)
	}
	if _, ok := store.Get("wf-old"); ok {
		t.Error("idle workflow should have been evicted")
	}
	if _, ok := store.Get("wf-fresh"); !ok {
		t.Error("fresh workflow should survive eviction")
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1", store.Len())
	}
}
