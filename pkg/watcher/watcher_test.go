package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cuemby/warrenflow/pkg/types"
)

type recordingAppend struct {
	mu     sync.Mutex
	events []*types.Event
}

func (r *recordingAppend) append(event *types.Event) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event.ID = "evt-test"
	r.events = append(r.events, event)
	return event.ID, nil
}

func (r *recordingAppend) snapshot() []*types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*types.Event, len(r.events))
	copy(out, r.events)
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestWatcher_DetectsCreatedFile(t *testing.T) {
	dir := t.TempDir()
	rec := &recordingAppend{}

	w := New([]string{dir}, Filters{}, 50*time.Millisecond, rec.append, nil)
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return len(rec.snapshot()) > 0 })

	events := rec.snapshot()
	if events[0].Path != path {
		t.Errorf("Path = %v, want %v", events[0].Path, path)
	}
}

func TestWatcher_FiltersByExtension(t *testing.T) {
	dir := t.TempDir()
	rec := &recordingAppend{}

	w := New([]string{dir}, Filters{IncludeExtensions: []string{".md"}}, 50*time.Millisecond, rec.append, nil)
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "skip.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	time.Sleep(300 * time.Millisecond)
	if len(rec.snapshot()) != 0 {
		t.Errorf("expected .txt file to be filtered out, got %d events", len(rec.snapshot()))
	}

	if err := os.WriteFile(filepath.Join(dir, "keep.md"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return len(rec.snapshot()) > 0 })
}

func TestWatcher_NonexistentRootIsNotFatal(t *testing.T) {
	rec := &recordingAppend{}
	w := New([]string{"/path/does/not/exist"}, Filters{}, 50*time.Millisecond, rec.append, nil)

	if err := w.Start(); err != nil {
		t.Fatalf("Start() with a missing root should not fail, got %v", err)
	}
	w.Stop()
}

func TestMapKind(t *testing.T) {
	cases := []struct {
		op   fsnotify.Op
		want types.EventKind
	}{
		{fsnotify.Create, types.EventCreated},
		{fsnotify.Write, types.EventModified},
		{fsnotify.Remove, types.EventDeleted},
		{fsnotify.Rename, types.EventDeleted},
	}
	for _, c := range cases {
		got, ok := mapKind(fsnotify.Event{Name: "/x", Op: c.op})
		if !ok || got != c.want {
			t.Errorf("mapKind(%v) = (%v, %v), want (%v, true)", c.op, got, ok, c.want)
		}
	}

	if _, ok := mapKind(fsnotify.Event{Name: "/x", Op: fsnotify.Chmod}); ok {
		t.Error("mapKind(Chmod) expected ok=false")
	}
}
