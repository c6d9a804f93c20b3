package logsink

import (
	"testing"
	"time"

	"github.com/cuemby/warrenflow/pkg/types"
)

func TestRunMaintenance_CompressesOldEntriesIntoArchive(t *testing.T) {
	s, store := newTestSink(t, Config{
		CompressAfter:   24 * time.Hour,
		RetentionPeriod: 7 * 24 * time.Hour,
	})

	old := time.Now().Add(-3 * 24 * time.Hour)
	seedEntries(t, s, []*types.LogEntry{
		{Project: "a", Level: types.LevelInfo, Timestamp: old, Message: "old entry"},
		{Project: "a", Level: types.LevelInfo, Timestamp: time.Now(), Message: "fresh entry"},
	})

	if err := s.RunMaintenance(); err != nil {
		t.Fatalf("RunMaintenance() error = %v", err)
	}

	live, err := store.ListLogEntries()
	if err != nil {
		t.Fatalf("ListLogEntries() error = %v", err)
	}
	if len(live) != 1 || live[0].Message != "fresh entry" {
		t.Fatalf("live entries = %+v, want only fresh entry", live)
	}

	ptrs, err := store.ListArchivePointers()
	if err != nil {
		t.Fatalf("ListArchivePointers() error = %v", err)
	}
	if len(ptrs) != 1 {
		t.Fatalf("ListArchivePointers() len = %d, want 1", len(ptrs))
	}

	// Scenario: querying the compressed range serves results from the
	// archive segment, not the (now-emptied) live table.
	got, err := s.List(Query{StartDate: old.Add(-time.Hour), EndDate: old.Add(time.Hour), Limit: 10})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 1 || got[0].Message != "old entry" {
		t.Fatalf("List() over archived range = %+v, want the archived old entry", got)
	}
}

func TestRunMaintenance_CleanupRemovesEntriesPastRetention(t *testing.T) {
	s, store := newTestSink(t, Config{
		RetentionPeriod: 24 * time.Hour,
	})

	seedEntries(t, s, []*types.LogEntry{
		{Project: "a", Level: types.LevelInfo, Timestamp: time.Now().Add(-48 * time.Hour), Message: "expired"},
		{Project: "a", Level: types.LevelInfo, Timestamp: time.Now(), Message: "fresh"},
	})

	if err := s.RunMaintenance(); err != nil {
		t.Fatalf("RunMaintenance() error = %v", err)
	}

	live, err := store.ListLogEntries()
	if err != nil {
		t.Fatalf("ListLogEntries() error = %v", err)
	}
	if len(live) != 1 || live[0].Message != "fresh" {
		t.Fatalf("live entries = %+v, want only fresh entry after retention cleanup", live)
	}
}

func TestRunMaintenance_NoLiveRowOlderThanRetentionAfterPass(t *testing.T) {
	s, store := newTestSink(t, Config{
		CompressAfter:   time.Hour,
		RetentionPeriod: 7 * 24 * time.Hour,
	})

	cutoff := time.Now().Add(-7 * 24 * time.Hour)
	seedEntries(t, s, []*types.LogEntry{
		{Project: "a", Level: types.LevelInfo, Timestamp: cutoff.Add(-time.Hour), Message: "ancient"},
		{Project: "a", Level: types.LevelInfo, Timestamp: time.Now(), Message: "fresh"},
	})

	if err := s.RunMaintenance(); err != nil {
		t.Fatalf("RunMaintenance() error = %v", err)
	}

	live, err := store.ListLogEntries()
	if err != nil {
		t.Fatalf("ListLogEntries() error = %v", err)
	}
	for _, e := range live {
		if e.Timestamp.Before(cutoff) {
			t.Errorf("found live entry %+v older than retention cutoff", e)
		}
	}
}

func TestRunMaintenance_ExpireRemovesOldArchiveSegments(t *testing.T) {
	s, store := newTestSink(t, Config{
		CompressAfter:    time.Hour,
		RetentionPeriod:  7 * 24 * time.Hour,
		ArchiveRetention: 24 * time.Hour,
	})

	seedEntries(t, s, []*types.LogEntry{
		{Project: "a", Level: types.LevelInfo, Timestamp: time.Now().Add(-3 * time.Hour), Message: "old"},
	})

	if err := s.RunMaintenance(); err != nil {
		t.Fatalf("RunMaintenance() error = %v", err)
	}
	ptrs, err := store.ListArchivePointers()
	if err != nil {
		t.Fatalf("ListArchivePointers() error = %v", err)
	}
	if len(ptrs) != 1 {
		t.Fatalf("ListArchivePointers() len = %d, want 1 right after compression", len(ptrs))
	}

	// Backdate the pointer's CreatedAt past ArchiveRetention and rerun.
	ptrs[0].CreatedAt = time.Now().Add(-48 * time.Hour).Unix()
	if err := store.PutArchivePointer(ptrs[0]); err != nil {
		t.Fatalf("PutArchivePointer() error = %v", err)
	}

	if err := s.expire(); err != nil {
		t.Fatalf("expire() error = %v", err)
	}

	got, err := s.List(Query{StartDate: time.Now().Add(-5 * time.Hour), EndDate: time.Now(), Limit: 10})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	for _, e := range got {
		if e.Message == "old" {
			t.Error("expired archive segment still served by List()")
		}
	}

	remaining, err := store.ListArchivePointers()
	if err != nil {
		t.Fatalf("ListArchivePointers() error = %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("ListArchivePointers() len = %d after expire, want 0 (pointer row should be removed)", len(remaining))
	}
}
