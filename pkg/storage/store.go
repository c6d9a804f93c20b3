package storage

import "github.com/cuemby/warrenflow/pkg/types"

// EventStore defines the persistence surface for the durable event store
// and its companion document index. Backed by a single BoltDB file
// (events.db) so both buckets share one WAL.
type EventStore interface {
	PutEvent(event *types.Event) error
	GetEvent(id string) (*types.Event, error)
	// ListEventsByPath returns every event recorded against path, in
	// detected_at order, used for debounce coalescing and scans.
	ListEventsByPath(path string) ([]*types.Event, error)
	// ListEventsByStatus returns events in a given status ordered by
	// kind priority, then by detected_at within each kind, used by claim.
	ListEventsByStatus(status types.EventStatus) ([]*types.Event, error)
	// ScanSince returns every event with detected_at unix-nanos >= cursor,
	// in detected_at order, used by the reconciler's catch-up scans.
	ScanSince(cursor int64) ([]*types.Event, error)
	DeleteEvent(id string) error
	CountEventsByStatus() (map[string]int, error)

	PutDocument(doc *types.DocumentRecord) error
	GetDocument(documentID string) (*types.DocumentRecord, error)
	GetDocumentByPath(path string) (*types.DocumentRecord, error)
	ListDocuments() ([]*types.DocumentRecord, error)
	DeleteDocument(documentID string) error

	Close() error
}

// LogStore defines the persistence surface for the log sink: entries and
// pointers to compressed archive segments. Backed by a separate BoltDB
// file (logs.db) so log write pressure never contends with event-store
// fsyncs. API keys live in a flat JSON file (pkg/authgate), not here,
// matching the on-disk layout the rest of the stack expects.
type LogStore interface {
	PutLogEntry(entry *types.LogEntry) error
	GetLogEntry(id string) (*types.LogEntry, error)
	// ListLogEntries returns every stored (uncompressed) entry in
	// timestamp order; callers filter/paginate in memory.
	ListLogEntries() ([]*types.LogEntry, error)
	DeleteLogEntry(id string) error

	// PutArchivePointer records that the entries in a batch were
	// compressed into the zip at Path.
	PutArchivePointer(ptr *ArchivePointer) error
	ListArchivePointers() ([]*ArchivePointer, error)
	DeleteArchivePointer(archiveID string) error

	Close() error
}

// ArchivePointer records where a batch of compressed log entries live
// on disk, so the retention pipeline and query path can find them
// without re-scanning the archive directory.
type ArchivePointer struct {
	ArchiveID string   `json:"archive_id"`
	Path      string   `json:"path"`
	EntryIDs  []string `json:"entry_ids"`
	FromTime  int64    `json:"from_time_unix"`
	ToTime    int64    `json:"to_time_unix"`
	CreatedAt int64    `json:"created_at_unix"`
}
