package logsink

import (
	"testing"
	"time"

	"github.com/cuemby/warrenflow/pkg/types"
)

func seedEntries(t *testing.T, s *Sink, entries []*types.LogEntry) {
	t.Helper()
	for _, e := range entries {
		if e.ID == "" {
			e.ID = NewID()
		}
		if err := s.store.PutLogEntry(e); err != nil {
			t.Fatalf("PutLogEntry() error = %v", err)
		}
	}
}

func TestList_LimitZeroReturnsEmpty(t *testing.T) {
	s, _ := newTestSink(t, Config{})
	seedEntries(t, s, []*types.LogEntry{{Project: "a", Level: types.LevelInfo, Timestamp: time.Now()}})

	got, err := s.List(Query{Limit: 0})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("List() len = %d, want 0 for limit=0", len(got))
	}
}

func TestList_LimitOverThousandClamps(t *testing.T) {
	s, _ := newTestSink(t, Config{})
	var entries []*types.LogEntry
	for i := 0; i < 5; i++ {
		entries = append(entries, &types.LogEntry{Project: "a", Level: types.LevelInfo, Timestamp: time.Now()})
	}
	seedEntries(t, s, entries)

	got, err := s.List(Query{Limit: 5000})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 5 {
		t.Errorf("List() len = %d, want 5", len(got))
	}
}

func TestList_InvalidLevelErrors(t *testing.T) {
	s, _ := newTestSink(t, Config{})
	if _, err := s.List(Query{Level: "bogus", Limit: 10}); err == nil {
		t.Fatal("List() expected error for invalid level")
	}
}

func TestList_FiltersAreANDCombined(t *testing.T) {
	s, _ := newTestSink(t, Config{})
	seedEntries(t, s, []*types.LogEntry{
		{Project: "a", Level: types.LevelInfo, Module: "watcher", Timestamp: time.Now()},
		{Project: "a", Level: types.LevelError, Module: "watcher", Timestamp: time.Now()},
		{Project: "b", Level: types.LevelInfo, Module: "watcher", Timestamp: time.Now()},
	})

	got, err := s.List(Query{Project: "a", Level: string(types.LevelInfo), Limit: 10})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("List() len = %d, want 1", len(got))
	}
	if got[0].Project != "a" || got[0].Level != types.LevelInfo {
		t.Errorf("got[0] = %+v, want project=a level=info", got[0])
	}
}

func TestList_DefaultSortTimestampDesc(t *testing.T) {
	s, _ := newTestSink(t, Config{})
	now := time.Now()
	seedEntries(t, s, []*types.LogEntry{
		{Project: "a", Level: types.LevelInfo, Timestamp: now.Add(-time.Hour), Message: "older"},
		{Project: "a", Level: types.LevelInfo, Timestamp: now, Message: "newer"},
	})

	got, err := s.List(Query{Limit: 10})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 || got[0].Message != "newer" {
		t.Fatalf("List() = %+v, want newer first", got)
	}
}

func TestList_OffsetPastEndReturnsEmpty(t *testing.T) {
	s, _ := newTestSink(t, Config{})
	seedEntries(t, s, []*types.LogEntry{{Project: "a", Level: types.LevelInfo, Timestamp: time.Now()}})

	got, err := s.List(Query{Limit: 10, Offset: 50})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("List() len = %d, want 0", len(got))
	}
}

func TestByDocumentID_CorrelatesAcrossProjects(t *testing.T) {
	s, _ := newTestSink(t, Config{})
	seedEntries(t, s, []*types.LogEntry{
		{Project: "a", Level: types.LevelInfo, Timestamp: time.Now(), Context: map[string]any{"document_id": "doc-1"}},
		{Project: "b", Level: types.LevelInfo, Timestamp: time.Now().Add(time.Minute), Context: map[string]any{"document_id": "doc-1"}},
		{Project: "c", Level: types.LevelInfo, Timestamp: time.Now(), Context: map[string]any{"document_id": "doc-2"}},
	})

	got, err := s.ByDocumentID("doc-1")
	if err != nil {
		t.Fatalf("ByDocumentID() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ByDocumentID() len = %d, want 2", len(got))
	}
	if got[0].Project != "a" || got[1].Project != "b" {
		t.Errorf("ByDocumentID() order = %+v, want ascending timestamp a,b", got)
	}
}

func TestGet_ReturnsEntryByID(t *testing.T) {
	s, _ := newTestSink(t, Config{})
	entries := []*types.LogEntry{{ID: "fixed-id", Project: "a", Level: types.LevelInfo, Timestamp: time.Now()}}
	seedEntries(t, s, entries)

	got, err := s.Get("fixed-id")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != "fixed-id" {
		t.Errorf("Get() = %+v, want id fixed-id", got)
	}
}

func TestStats_CountsByProjectAndLevel(t *testing.T) {
	s, _ := newTestSink(t, Config{})
	seedEntries(t, s, []*types.LogEntry{
		{Project: "a", Level: types.LevelInfo, Timestamp: time.Now()},
		{Project: "a", Level: types.LevelError, Timestamp: time.Now()},
		{Project: "b", Level: types.LevelInfo, Timestamp: time.Now()},
	})

	st, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if st.TotalLive != 3 {
		t.Errorf("TotalLive = %d, want 3", st.TotalLive)
	}
	if st.ByProject["a"] != 2 || st.ByProject["b"] != 1 {
		t.Errorf("ByProject = %+v, want a=2 b=1", st.ByProject)
	}
}
