package reconciler

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/warrenflow/pkg/eventstore"
	"github.com/cuemby/warrenflow/pkg/log"
	"github.com/cuemby/warrenflow/pkg/metrics"
	"github.com/cuemby/warrenflow/pkg/types"
)

// SourceName is the event_source the reconciler stamps on every event
// it synthesizes, distinguishing drift-correction events from ones the
// watcher observed directly.
const SourceName = "reconciliation"

// IndexedDoc is one entry the vector store reports as indexed, the
// "ground truth C" of the three-way diff.
type IndexedDoc struct {
	DocumentID  string
	Path        string
	ContentHash string
}

// VectorIndex is the narrow read surface the reconciler needs from
// whatever vector store backend a deployment wires in. Kept separate
// from eventstore/storage so the reconciler never depends on a
// specific vector database client.
type VectorIndex interface {
	ListIndexed() ([]IndexedDoc, error)
}

// DocumentStore is the subset of pkg/storage.EventStore the reconciler
// needs for the document index (ground truth B's completed-event view
// is derived from eventstore directly; DocumentRecord bookkeeping is
// the reconciler's own).
type DocumentStore interface {
	PutDocument(doc *types.DocumentRecord) error
	GetDocumentByPath(path string) (*types.DocumentRecord, error)
	ListDocuments() ([]*types.DocumentRecord, error)
	DeleteDocument(documentID string) error
}

// Config controls the reconciler's schedule and filters.
type Config struct {
	Roots              []string
	IncludeExtensions  []string
	Interval           time.Duration
	DailyTime          string // "HH:MM", empty disables the daily pass
	PendingHighWatermark int
}

// Reconciler periodically diffs disk state, the event store's
// completed-event view, and the vector index, synthesizing events to
// close any gap. Adapted from teacher's pkg/reconciler/reconciler.go:
// same ticker-loop skeleton, mutex-guarded single-flight cycle, and
// zerolog field-rich per-aspect logging; reconcileNodes/
// reconcileContainers are replaced with reconcileDiskVsStore,
// reconcileIndexOrphans, and reconcileHashMismatch.
type Reconciler struct {
	cfg     Config
	events  *eventstore.EventStore
	docs    DocumentStore
	index   VectorIndex
	logger  zerolog.Logger

	mu     sync.Mutex
	stopCh chan struct{}
}

// New builds a Reconciler.
func New(cfg Config, events *eventstore.EventStore, docs DocumentStore, index VectorIndex) *Reconciler {
	return &Reconciler{
		cfg:    cfg,
		events: events,
		docs:   docs,
		index:  index,
		logger: log.WithComponent("reconciler"),
		stopCh: make(chan struct{}),
	}
}

// Start begins the reconciliation loop.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop stops the reconciler.
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run() {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	dailyTimer := r.nextDailyTimer()

	r.logger.Info().Dur("interval", r.cfg.Interval).Str("daily_time", r.cfg.DailyTime).Msg("reconciler started")

	for {
		select {
		case <-ticker.C:
			if err := r.safeReconcile(); err != nil {
				r.logger.Error().Err(err).Msg("reconciliation cycle failed")
			}
		case <-r.dailyChannel(dailyTimer):
			if err := r.safeReconcile(); err != nil {
				r.logger.Error().Err(err).Msg("daily reconciliation cycle failed")
			}
			dailyTimer = r.nextDailyTimer()
		case <-r.stopCh:
			if dailyTimer != nil {
				dailyTimer.Stop()
			}
			r.logger.Info().Msg("reconciler stopped")
			return
		}
	}
}

// safeReconcile isolates one reconciliation cycle from a panic in
// reconcile (or any of its three diff passes), converting it to a
// logged critical error so the ticker loop survives to the next
// cycle, matching pkg/nodehost.Host.invoke's per-call recover pattern.
func (r *Reconciler) safeReconcile() (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Msg("critical: reconciliation cycle panicked")
			err = fmt.Errorf("reconciliation cycle panicked: %v", rec)
		}
	}()
	return r.reconcile()
}

func (r *Reconciler) dailyChannel(timer *time.Timer) <-chan time.Time {
	if timer == nil {
		return nil
	}
	return timer.C
}

// nextDailyTimer returns a timer firing at the next occurrence of
// cfg.DailyTime ("HH:MM"), or nil if no daily schedule is configured.
func (r *Reconciler) nextDailyTimer() *time.Timer {
	if r.cfg.DailyTime == "" {
		return nil
	}
	parts := strings.SplitN(r.cfg.DailyTime, ":", 2)
	if len(parts) != 2 {
		r.logger.Warn().Str("daily_time", r.cfg.DailyTime).Msg("invalid RECONCILE_DAILY_TIME, disabling daily schedule")
		return nil
	}
	hour, err1 := time.Parse("15", parts[0])
	minute, err2 := time.Parse("04", parts[1])
	if err1 != nil || err2 != nil {
		r.logger.Warn().Str("daily_time", r.cfg.DailyTime).Msg("invalid RECONCILE_DAILY_TIME, disabling daily schedule")
		return nil
	}

	now := time.Now()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour.Hour(), minute.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return time.NewTimer(next.Sub(now))
}

// reconcile performs one reconciliation pass: backpressure check, then
// the three-way diff in delete-before-create order.
func (r *Reconciler) reconcile() error {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cfg.PendingHighWatermark > 0 {
		pending, err := r.events.PendingCount()
		if err != nil {
			return err
		}
		if pending > r.cfg.PendingHighWatermark {
			r.logger.Warn().Int("pending", pending).Int("high_watermark", r.cfg.PendingHighWatermark).Msg("skipping reconciliation pass, event backlog too deep")
			return nil
		}
	}

	disk, err := r.scanDisk()
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to scan disk")
		return err
	}

	doneByPath, err := r.events.LatestDoneByPath()
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to load latest done events")
		return err
	}

	// The reconciler is the sole owner of DocumentRecord (spec's
	// Ownership section): sync it to the latest done event per path
	// before diffing, so ground truth B and the document index it feeds
	// never drift apart.
	if err := r.syncDocumentIndex(doneByPath, disk); err != nil {
		r.logger.Error().Err(err).Msg("failed to sync document index")
	}

	// Deletes before creates so moved-file churn converges: index orphans
	// only yield deletes, so they run ahead of reconcileDiskVsStore's
	// deletes-then-creates. syncDocumentIndex just brought DocumentRecord
	// in line with doneByPath, so it is a faithful ground truth B for
	// this diff.
	if err := r.reconcileIndexOrphans(disk); err != nil {
		r.logger.Error().Err(err).Msg("failed to reconcile index orphans")
	}
	if err := r.reconcileDiskVsStore(disk); err != nil {
		r.logger.Error().Err(err).Msg("failed to reconcile disk vs store")
	}
	if err := r.reconcileHashMismatch(disk); err != nil {
		r.logger.Error().Err(err).Msg("failed to reconcile hash mismatches")
	}

	return nil
}

// syncDocumentIndex is how the reconciler discharges its ownership of
// DocumentRecord (spec's Ownership section: "owned by the Reconciler,
// creator and deleter"). On every pass it walks the latest done event
// of each path (there is no cursor over earlier passes): a completed
// deleted event retires the record for its path, and any other
// completed kind creates or refreshes it so content_hash tracks the
// event that produced it; a record whose hash already matches is left
// as it is.
// Records with no corresponding done event yet — including ones the
// disk/index diff passes below are about to react to — are left alone.
func (r *Reconciler) syncDocumentIndex(doneByPath map[string]*types.Event, disk map[string]diskEntry) error {
	docs, err := r.docs.ListDocuments()
	if err != nil {
		return err
	}
	byPath := make(map[string]*types.DocumentRecord, len(docs))
	for _, doc := range docs {
		byPath[doc.CurrentPath] = doc
	}

	for path, event := range doneByPath {
		if event.Kind == types.EventDeleted {
			if doc, known := byPath[path]; known {
				if err := r.docs.DeleteDocument(doc.DocumentID); err != nil {
					r.logger.Error().Err(err).Str("document_id", doc.DocumentID).Msg("failed to delete document record")
				}
			}
			continue
		}

		contentHash := event.ContentHash
		if contentHash == "" {
			if entry, onDisk := disk[path]; onDisk {
				contentHash = entry.hash
			}
		}
		doc, known := byPath[path]
		if known && doc.ContentHash == contentHash {
			continue
		}

		documentID := types.DeriveDocumentID(path)
		if known {
			documentID = doc.DocumentID
		}
		if err := r.docs.PutDocument(&types.DocumentRecord{
			DocumentID:  documentID,
			CurrentPath: path,
			ContentHash: contentHash,
			IndexedAt:   time.Now(),
		}); err != nil {
			r.logger.Error().Err(err).Str("path", path).Msg("failed to upsert document record")
		}
	}
	return nil
}

type diskEntry struct {
	path string
	hash string
	info os.FileInfo
}

func (r *Reconciler) scanDisk() (map[string]diskEntry, error) {
	disk := make(map[string]diskEntry)
	for _, root := range r.cfg.Roots {
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil // skip unreadable entries, don't abort the whole scan
			}
			if info.IsDir() {
				return nil
			}
			if !r.allowed(path) {
				return nil
			}
			hash, hashErr := hashFile(path)
			if hashErr != nil {
				return nil
			}
			disk[path] = diskEntry{path: path, hash: hash, info: info}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return disk, nil
}

func (r *Reconciler) allowed(path string) bool {
	if len(r.cfg.IncludeExtensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, allowed := range r.cfg.IncludeExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// reconcileDiskVsStore covers A−B (file on disk, no completed document
// record → synthesize existing) and B−A (document record for a path
// that's gone from disk → synthesize deleted), deletes first.
func (r *Reconciler) reconcileDiskVsStore(disk map[string]diskEntry) error {
	docs, err := r.docs.ListDocuments()
	if err != nil {
		return err
	}

	// B−A: deletes first.
	for _, doc := range docs {
		if _, onDisk := disk[doc.CurrentPath]; onDisk {
			continue
		}
		r.logger.Info().Str("document_id", doc.DocumentID).Str("path", doc.CurrentPath).Msg("document missing from disk, synthesizing deleted event")
		if _, err := r.events.Append(&types.Event{
			Kind:       types.EventDeleted,
			Source:     SourceName,
			Path:       doc.CurrentPath,
			DetectedAt: time.Now(),
		}); err != nil {
			r.logger.Error().Err(err).Str("path", doc.CurrentPath).Msg("failed to append synthesized deleted event")
		}
	}

	// A−B: creates after.
	byPath := make(map[string]*types.DocumentRecord, len(docs))
	for _, doc := range docs {
		byPath[doc.CurrentPath] = doc
	}
	paths := make([]string, 0, len(disk))
	for path := range disk {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		if _, known := byPath[path]; known {
			continue
		}
		r.logger.Info().Str("path", path).Msg("file on disk with no completed document record, synthesizing existing event")
		if _, err := r.events.Append(&types.Event{
			Kind:        types.EventExisting,
			Source:      SourceName,
			Path:        path,
			SizeBytes:   disk[path].info.Size(),
			MTime:       disk[path].info.ModTime(),
			ContentHash: disk[path].hash,
			DetectedAt:  time.Now(),
		}); err != nil {
			r.logger.Error().Err(err).Str("path", path).Msg("failed to append synthesized existing event")
		}
	}

	return nil
}

// reconcileIndexOrphans covers C−{A∪B}: indexed document_id with
// neither a file on disk nor a document record → synthesize deleted
// for the orphan.
func (r *Reconciler) reconcileIndexOrphans(disk map[string]diskEntry) error {
	if r.index == nil {
		return nil
	}
	indexed, err := r.index.ListIndexed()
	if err != nil {
		return err
	}

	for _, entry := range indexed {
		if _, onDisk := disk[entry.Path]; onDisk {
			continue
		}
		if _, err := r.docs.GetDocumentByPath(entry.Path); err == nil {
			continue
		}
		r.logger.Info().Str("document_id", entry.DocumentID).Str("path", entry.Path).Msg("orphaned index entry, synthesizing deleted event")
		if _, err := r.events.Append(&types.Event{
			Kind:       types.EventDeleted,
			Source:     SourceName,
			Path:       entry.Path,
			DetectedAt: time.Now(),
		}); err != nil {
			r.logger.Error().Err(err).Str("document_id", entry.DocumentID).Msg("failed to append synthesized deleted event for orphan")
		}
	}
	return nil
}

// reconcileHashMismatch detects files whose current hash differs from
// the latest indexed content_hash and synthesizes a modified event.
func (r *Reconciler) reconcileHashMismatch(disk map[string]diskEntry) error {
	docs, err := r.docs.ListDocuments()
	if err != nil {
		return err
	}

	for _, doc := range docs {
		entry, onDisk := disk[doc.CurrentPath]
		if !onDisk {
			continue
		}
		if entry.hash == doc.ContentHash {
			continue
		}
		r.logger.Info().Str("document_id", doc.DocumentID).Str("path", doc.CurrentPath).Msg("content hash mismatch, synthesizing modified event")
		if _, err := r.events.Append(&types.Event{
			Kind:        types.EventModified,
			Source:      SourceName,
			Path:        doc.CurrentPath,
			ContentHash: entry.hash,
			SizeBytes:   entry.info.Size(),
			MTime:       entry.info.ModTime(),
			DetectedAt:  time.Now(),
		}); err != nil {
			r.logger.Error().Err(err).Str("path", doc.CurrentPath).Msg("failed to append synthesized modified event")
		}
	}
	return nil
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
