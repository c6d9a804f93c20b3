package reconciler

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/warrenflow/pkg/eventstore"
	"github.com/cuemby/warrenflow/pkg/storage"
	"github.com/cuemby/warrenflow/pkg/types"
)

type fakeIndex struct {
	entries []IndexedDoc
}

func (f *fakeIndex) ListIndexed() ([]IndexedDoc, error) { return f.entries, nil }

func newTestReconciler(t *testing.T, roots []string, index VectorIndex) (*Reconciler, *eventstore.EventStore, *storage.BoltEventStore) {
	t.Helper()
	bolt, err := storage.NewBoltEventStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltEventStore() error = %v", err)
	}
	t.Cleanup(func() { bolt.Close() })

	es := eventstore.New(bolt, 2*time.Second, 3)
	cfg := Config{Roots: roots, Interval: time.Hour}
	return New(cfg, es, bolt, index), es, bolt
}

func TestReconcile_SynthesizesExistingForUntrackedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	r, es, _ := newTestReconciler(t, []string{dir}, nil)
	if err := r.reconcile(); err != nil {
		t.Fatalf("reconcile() error = %v", err)
	}

	events, err := es.ScanSince(0)
	if err != nil {
		t.Fatalf("ScanSince() error = %v", err)
	}
	found := false
	for _, e := range events {
		if e.Kind == types.EventExisting && e.Path == path {
			found = true
		}
	}
	if !found {
		t.Error("expected a synthesized existing event for the untracked file")
	}
}

func TestReconcile_SynthesizesDeletedForMissingDocument(t *testing.T) {
	dir := t.TempDir()

	r, es, bolt := newTestReconciler(t, []string{dir}, nil)

	if err := bolt.PutDocument(&types.DocumentRecord{
		DocumentID:  "doc-1",
		CurrentPath: filepath.Join(dir, "gone.txt"),
		ContentHash: "abc",
	}); err != nil {
		t.Fatalf("PutDocument() error = %v", err)
	}

	if err := r.reconcile(); err != nil {
		t.Fatalf("reconcile() error = %v", err)
	}

	pending, err := es.ScanSince(0)
	if err != nil {
		t.Fatalf("ScanSince() error = %v", err)
	}
	found := false
	for _, e := range pending {
		if e.Kind == types.EventDeleted && e.Path == filepath.Join(dir, "gone.txt") {
			found = true
		}
	}
	if !found {
		t.Error("expected a synthesized deleted event for the missing document's path")
	}
}

func TestReconcile_SynthesizesModifiedOnHashMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("new content"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	r, es, bolt := newTestReconciler(t, []string{dir}, nil)
	if err := bolt.PutDocument(&types.DocumentRecord{
		DocumentID:  "doc-1",
		CurrentPath: path,
		ContentHash: "stale-hash-does-not-match",
	}); err != nil {
		t.Fatalf("PutDocument() error = %v", err)
	}

	if err := r.reconcile(); err != nil {
		t.Fatalf("reconcile() error = %v", err)
	}

	events, err := es.ScanSince(0)
	if err != nil {
		t.Fatalf("ScanSince() error = %v", err)
	}
	found := false
	for _, e := range events {
		if e.Kind == types.EventModified && e.Path == path {
			found = true
		}
	}
	if !found {
		t.Error("expected a synthesized modified event for the hash mismatch")
	}
}

func TestReconcile_SynthesizesDeletedForOrphanIndexEntry(t *testing.T) {
	dir := t.TempDir()
	index := &fakeIndex{entries: []IndexedDoc{
		{DocumentID: "orphan-1", Path: filepath.Join(dir, "orphan.txt"), ContentHash: "x"},
	}}

	r, es, _ := newTestReconciler(t, []string{dir}, index)
	if err := r.reconcile(); err != nil {
		t.Fatalf("reconcile() error = %v", err)
	}

	events, err := es.ScanSince(0)
	if err != nil {
		t.Fatalf("ScanSince() error = %v", err)
	}
	found := false
	for _, e := range events {
		if e.Kind == types.EventDeleted && e.Path == filepath.Join(dir, "orphan.txt") {
			found = true
		}
	}
	if !found {
		t.Error("expected a synthesized deleted event for the orphaned index entry")
	}
}

func TestReconcile_CreatesDocumentRecordForCompletedEvent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	r, es, bolt := newTestReconciler(t, []string{dir}, nil)

	id, err := es.Append(&types.Event{Kind: types.EventExisting, Path: path, ContentHash: "hash-1"})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := es.Claim(10, "h1"); err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if err := es.Complete(id, true, nil); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if err := r.reconcile(); err != nil {
		t.Fatalf("reconcile() error = %v", err)
	}

	doc, err := bolt.GetDocumentByPath(path)
	if err != nil {
		t.Fatalf("GetDocumentByPath() error = %v, want a document record created from the completed event", err)
	}
	if doc.ContentHash != "hash-1" {
		t.Errorf("ContentHash = %q, want %q", doc.ContentHash, "hash-1")
	}
}

func TestReconcile_DeletesDocumentRecordForCompletedDeleteEvent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.txt")

	r, es, bolt := newTestReconciler(t, []string{dir}, nil)
	if err := bolt.PutDocument(&types.DocumentRecord{
		DocumentID:  "doc-1",
		CurrentPath: path,
		ContentHash: "abc",
	}); err != nil {
		t.Fatalf("PutDocument() error = %v", err)
	}

	id, err := es.Append(&types.Event{Kind: types.EventDeleted, Path: path})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := es.Claim(10, "h1"); err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if err := es.Complete(id, true, nil); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if err := r.reconcile(); err != nil {
		t.Fatalf("reconcile() error = %v", err)
	}

	if _, err := bolt.GetDocumentByPath(path); err == nil {
		t.Error("expected document record to be deleted once its deleted event completed")
	}
}

func TestReconcile_SkipsOnBackpressure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	bolt, err := storage.NewBoltEventStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltEventStore() error = %v", err)
	}
	t.Cleanup(func() { bolt.Close() })
	es := eventstore.New(bolt, 2*time.Second, 3)

	// Fill the pending queue past the watermark.
	// Distinct paths, so the 2s debounce does not coalesce them into one.
	for _, name := range []string{"pre-1", "pre-2", "pre-3"} {
		es.Append(&types.Event{Kind: types.EventCreated, Path: filepath.Join(dir, name)})
	}

	r := New(Config{Roots: []string{dir}, Interval: time.Hour, PendingHighWatermark: 2}, es, bolt, nil)
	if err := r.reconcile(); err != nil {
		t.Fatalf("reconcile() error = %v", err)
	}

	events, _ := es.ScanSince(0)
	if len(events) != 3 {
		t.Errorf("expected reconcile to skip and leave exactly the 3 pre-existing events, got %d", len(events))
	}
}
