package storage

import (
	"testing"
	"time"

	"github.com/cuemby/warrenflow/pkg/types"
)

func newTestEventStore(t *testing.T) *BoltEventStore {
	t.Helper()
	store, err := NewBoltEventStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltEventStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBoltEventStore_PutGetEvent(t *testing.T) {
	store := newTestEventStore(t)

	event := &types.Event{
		ID:         "evt-1",
		Kind:       types.EventCreated,
		Path:       "/docs/a.txt",
		DetectedAt: time.Now(),
		Status:     types.EventPending,
	}

	if err := store.PutEvent(event); err != nil {
		t.Fatalf("PutEvent() error = %v", err)
	}

	got, err := store.GetEvent("evt-1")
	if err != nil {
		t.Fatalf("GetEvent() error = %v", err)
	}
	if got.Path != event.Path {
		t.Errorf("Path = %v, want %v", got.Path, event.Path)
	}
}

func TestBoltEventStore_GetEvent_NotFound(t *testing.T) {
	store := newTestEventStore(t)

	if _, err := store.GetEvent("missing"); err == nil {
		t.Error("GetEvent() for missing id expected error, got nil")
	}
}

func TestBoltEventStore_ListEventsByStatus_OrdersByKindThenDetectedAt(t *testing.T) {
	store := newTestEventStore(t)

	base := time.Now()
	events := []*types.Event{
		{ID: "1", Kind: types.EventCreated, Path: "/a", Status: types.EventPending, DetectedAt: base},
		{ID: "2", Kind: types.EventDeleted, Path: "/b", Status: types.EventPending, DetectedAt: base},
		{ID: "3", Kind: types.EventModified, Path: "/c", Status: types.EventPending, DetectedAt: base.Add(-time.Second)},
	}
	for _, e := range events {
		if err := store.PutEvent(e); err != nil {
			t.Fatalf("PutEvent() error = %v", err)
		}
	}

	got, err := store.ListEventsByStatus(types.EventPending)
	if err != nil {
		t.Fatalf("ListEventsByStatus() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(got) = %d, want 3", len(got))
	}
	// deleted (priority 0) first, although modified was detected earlier
	if got[0].ID != "2" {
		t.Errorf("got[0].ID = %v, want 2 (deleted has the highest kind priority)", got[0].ID)
	}
	// then modified (priority 2) before created (priority 3)
	if got[1].ID != "3" || got[2].ID != "1" {
		t.Errorf("remaining order = [%s %s], want [3 1]", got[1].ID, got[2].ID)
	}
}

func TestBoltEventStore_CountEventsByStatus(t *testing.T) {
	store := newTestEventStore(t)

	_ = store.PutEvent(&types.Event{ID: "1", Status: types.EventPending, Kind: types.EventCreated, DetectedAt: time.Now()})
	_ = store.PutEvent(&types.Event{ID: "2", Status: types.EventPending, Kind: types.EventCreated, DetectedAt: time.Now()})
	_ = store.PutEvent(&types.Event{ID: "3", Status: types.EventDone, Kind: types.EventCreated, DetectedAt: time.Now()})

	counts, err := store.CountEventsByStatus()
	if err != nil {
		t.Fatalf("CountEventsByStatus() error = %v", err)
	}
	if counts["pending"] != 2 {
		t.Errorf("counts[pending] = %d, want 2", counts["pending"])
	}
	if counts["done"] != 1 {
		t.Errorf("counts[done] = %d, want 1", counts["done"])
	}
}

func TestBoltEventStore_DocumentByPath(t *testing.T) {
	store := newTestEventStore(t)

	doc := &types.DocumentRecord{
		DocumentID:  "doc-1",
		CurrentPath: "/docs/report.pdf",
		ContentHash: "abc123",
	}
	if err := store.PutDocument(doc); err != nil {
		t.Fatalf("PutDocument() error = %v", err)
	}

	got, err := store.GetDocumentByPath("/docs/report.pdf")
	if err != nil {
		t.Fatalf("GetDocumentByPath() error = %v", err)
	}
	if got.DocumentID != "doc-1" {
		t.Errorf("DocumentID = %v, want doc-1", got.DocumentID)
	}

	if err := store.DeleteDocument("doc-1"); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	if _, err := store.GetDocument("doc-1"); err == nil {
		t.Error("GetDocument() after delete expected error, got nil")
	}
}

func TestBoltEventStore_ScanSince(t *testing.T) {
	store := newTestEventStore(t)

	old := time.Now().Add(-time.Hour)
	recent := time.Now()

	_ = store.PutEvent(&types.Event{ID: "old", Kind: types.EventCreated, Status: types.EventDone, DetectedAt: old})
	_ = store.PutEvent(&types.Event{ID: "new", Kind: types.EventCreated, Status: types.EventDone, DetectedAt: recent})

	got, err := store.ScanSince(recent.Add(-time.Minute).UnixNano())
	if err != nil {
		t.Fatalf("ScanSince() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "new" {
		t.Errorf("ScanSince() = %v, want only [new]", got)
	}
}
