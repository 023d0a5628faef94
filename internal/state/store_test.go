package state

import (
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func TestActualStateRoundTrip(t *testing.T) {
	s := testStore(t)
	now := time.Now()

	states, err := s.ActualStates()
	if err != nil {
		t.Fatal(err)
	}
	if len(states) != 0 {
		t.Errorf("fresh database should have no states, got %v", states)
	}

	if err := s.SetActual("Porch", true, now); err != nil {
		t.Fatal(err)
	}
	if err := s.SetActual("Hall", false, now); err != nil {
		t.Fatal(err)
	}
	// Upsert overwrites.
	if err := s.SetActual("Porch", false, now.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}

	states, err = s.ActualStates()
	if err != nil {
		t.Fatal(err)
	}
	if len(states) != 2 {
		t.Fatalf("states = %v, want 2 entries", states)
	}
	if states["Porch"] {
		t.Error("Porch should be off after upsert")
	}
	if states["Hall"] {
		t.Error("Hall should be off")
	}
}

func TestHistoryAppendAndRead(t *testing.T) {
	s := testStore(t)
	base := time.Date(2025, 9, 3, 20, 0, 0, 0, time.UTC)

	entries := []HistoryEntry{
		{Timestamp: base, Switch: "Porch", OldState: false, NewState: true, Cause: CauseSchedule, Schedule: "Evenings"},
		{Timestamp: base.Add(time.Hour), Switch: "Porch", OldState: true, NewState: false, Cause: CauseManual},
		{Timestamp: base.Add(2 * time.Hour), Switch: "Hall", OldState: false, NewState: true, Cause: CauseOverride, Input: "Hall Button"},
	}
	for _, e := range entries {
		if err := s.AppendHistory(e); err != nil {
			t.Fatal(err)
		}
	}

	recent, err := s.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 3 {
		t.Fatalf("Recent = %d entries, want 3", len(recent))
	}
	// Most recent first.
	if recent[0].Switch != "Hall" || recent[0].Cause != CauseOverride || recent[0].Input != "Hall Button" {
		t.Errorf("newest entry = %+v", recent[0])
	}
	if recent[0].ID == "" {
		t.Error("entry should get a generated ID")
	}
	if recent[2].Schedule != "Evenings" {
		t.Errorf("oldest entry schedule = %q", recent[2].Schedule)
	}
	if recent[1].Schedule != "" || recent[1].Input != "" {
		t.Errorf("manual entry should have empty schedule and input: %+v", recent[1])
	}

	forPorch, err := s.RecentFor("Porch", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(forPorch) != 2 {
		t.Fatalf("RecentFor(Porch) = %d entries, want 2", len(forPorch))
	}
	if forPorch[0].NewState {
		t.Error("newest Porch entry should be the OFF change")
	}
}

func TestPruneBefore(t *testing.T) {
	s := testStore(t)
	base := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	for day := 0; day < 10; day++ {
		err := s.AppendHistory(HistoryEntry{
			Timestamp: base.AddDate(0, 0, day),
			Switch:    "Porch",
			NewState:  day%2 == 0,
			OldState:  day%2 != 0,
			Cause:     CauseSchedule,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	removed, err := s.PruneBefore(base.AddDate(0, 0, 7))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 7 {
		t.Errorf("removed = %d, want 7", removed)
	}

	remaining, err := s.Recent(100)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 3 {
		t.Errorf("remaining = %d entries, want 3", len(remaining))
	}
	for _, e := range remaining {
		if e.Timestamp.Before(base.AddDate(0, 0, 7)) {
			t.Errorf("entry %s survived the prune", e.Timestamp)
		}
	}
}

func TestClearHistory(t *testing.T) {
	s := testStore(t)

	err := s.AppendHistory(HistoryEntry{Timestamp: time.Now(), Switch: "Porch", NewState: true, Cause: CauseSchedule})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.ClearHistory(); err != nil {
		t.Fatal(err)
	}

	recent, err := s.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 0 {
		t.Errorf("history should be empty, got %d entries", len(recent))
	}
}
