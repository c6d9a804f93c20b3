package watcher

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/cuemby/warrenflow/pkg/log"
	"github.com/cuemby/warrenflow/pkg/metrics"
	"github.com/cuemby/warrenflow/pkg/types"
)

// SourceName is the event_source the Watcher stamps on every event it
// emits, the lookup key half the trigger router matches against
// alongside event kind.
const SourceName = "filesystem"

// Filters controls which filesystem entries the Watcher forwards.
type Filters struct {
	// IncludeExtensions, if non-empty, only forwards files with one of
	// these extensions (including the leading dot, e.g. ".pdf").
	IncludeExtensions []string
	IgnoreHidden      bool
	MaxSizeBytes      int64
}

func (f Filters) allows(path string, info os.FileInfo) bool {
	if f.IgnoreHidden && strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	if f.MaxSizeBytes > 0 && info != nil && info.Size() > f.MaxSizeBytes {
		return false
	}
	if len(f.IncludeExtensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, allowed := range f.IncludeExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// AppendFunc enqueues a synthesized event into the event store and
// returns its event_id, mirroring eventstore.EventStore.Append without
// creating an import-cycle-prone dependency on that package.
type AppendFunc func(event *types.Event) (string, error)

// Watcher recursively observes one or more root directories and
// forwards debounced filesystem events to an AppendFunc. Built on
// fsnotify, with a per-path debounce timer, in the shape of
// pkg/reconciler's Start()/Stop()/stopCh worker lifecycle.
type Watcher struct {
	roots   []string
	filters Filters
	append  AppendFunc
	// onOverflow is invoked when the fsnotify channel is dropped or
	// closed unexpectedly; the caller (normally the reconciler) should
	// schedule an immediate reconciliation pass rather than trust
	// cached state.
	onOverflow func()

	debounceWindow time.Duration

	fsw    *fsnotify.Watcher
	logger zerolog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a Watcher over the given root directories.
func New(roots []string, filters Filters, debounceWindow time.Duration, appendFn AppendFunc, onOverflow func()) *Watcher {
	return &Watcher{
		roots:          roots,
		filters:        filters,
		append:         appendFn,
		onOverflow:     onOverflow,
		debounceWindow: debounceWindow,
		logger:         log.WithComponent("watcher"),
		timers:         make(map[string]*time.Timer),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// Start creates the underlying fsnotify watcher, registers every root
// recursively, and begins the background event loop. Non-existent
// roots are logged as warnings, not fatal.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw

	for _, root := range w.roots {
		if err := w.addRecursive(root); err != nil {
			w.logger.Warn().Err(err).Str("root", root).Msg("root not watchable at startup")
		}
	}

	go w.run()
	return nil
}

// Stop halts the event loop, stops any pending debounce timers (their
// events are not emitted), and closes the underlying fsnotify watcher.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) run() {
	defer close(w.doneCh)
	defer w.fsw.Close()

	w.logger.Info().Strs("roots", w.roots).Msg("watcher started")

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				w.logger.Warn().Msg("fsnotify events channel closed, triggering reconciliation")
				if w.onOverflow != nil {
					w.onOverflow()
				}
				return
			}
			w.safeHandleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("fsnotify error, triggering reconciliation")
			metrics.WatcherOverflowsTotal.Inc()
			if w.onOverflow != nil {
				w.onOverflow()
			}

		case <-w.stopCh:
			w.mu.Lock()
			for _, timer := range w.timers {
				timer.Stop()
			}
			w.mu.Unlock()
			w.logger.Info().Msg("watcher stopped")
			return
		}
	}
}

// safeHandleEvent isolates one fsnotify event from a panic in
// handleEvent (e.g. a transient stat race), logging critical and
// letting the event loop continue rather than exiting, matching
// pkg/nodehost.Host.invoke's per-call recover pattern.
func (w *Watcher) safeHandleEvent(event fsnotify.Event) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().Interface("panic", r).Str("path", event.Name).Msg("critical: watcher event handling panicked, continuing")
		}
	}()
	w.handleEvent(event)
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.fsw.Add(event.Name); err != nil {
				w.logger.Warn().Err(err).Str("path", event.Name).Msg("failed to watch new directory")
			}
			return
		}
	}

	kind, ok := mapKind(event)
	if !ok {
		return
	}

	var info os.FileInfo
	if kind != types.EventDeleted {
		var err error
		info, err = os.Stat(event.Name)
		if err != nil {
			return
		}
		if !w.filters.allows(event.Name, info) {
			return
		}
	}

	w.debounce(event.Name, kind, info)
}

// mapKind translates an fsnotify op set into an EventKind. fsnotify
// reports a rename as a Remove on the old path (the new path arrives
// separately as a Create); "moved" in the data-model sense is
// synthesized by the reconciler from a delete/create pair with a
// matching content hash, not detected directly here.
func mapKind(event fsnotify.Event) (types.EventKind, bool) {
	switch {
	case event.Has(fsnotify.Create):
		return types.EventCreated, true
	case event.Has(fsnotify.Write):
		return types.EventModified, true
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return types.EventDeleted, true
	default:
		return "", false
	}
}

// debounce resets a per-path timer; the event is only forwarded to
// AppendFunc once no further notification arrives for that path within
// the debounce window.
func (w *Watcher) debounce(path string, kind types.EventKind, info os.FileInfo) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if existing, ok := w.timers[path]; ok {
		existing.Stop()
	}

	w.timers[path] = time.AfterFunc(w.debounceWindow, func() {
		w.emit(path, kind, info)

		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
	})
}

func (w *Watcher) emit(path string, kind types.EventKind, info os.FileInfo) {
	event := &types.Event{
		Kind:       kind,
		Source:     SourceName,
		Path:       path,
		DetectedAt: time.Now(),
	}
	if info != nil {
		event.SizeBytes = info.Size()
		event.MTime = info.ModTime()
		if hash, err := hashFile(path); err == nil {
			event.ContentHash = hash
		}
	}

	metrics.WatchEventsTotal.WithLabelValues(string(kind)).Inc()

	if _, err := w.append(event); err != nil {
		w.logger.Error().Err(err).Str("path", path).Msg("failed to append watched event")
	}
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
