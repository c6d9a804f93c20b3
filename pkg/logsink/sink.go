package logsink

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/warrenflow/pkg/errs"
	"github.com/cuemby/warrenflow/pkg/log"
	"github.com/cuemby/warrenflow/pkg/metrics"
	"github.com/cuemby/warrenflow/pkg/storage"
	"github.com/cuemby/warrenflow/pkg/types"
)

// Config controls the sink's ring buffer and background flusher.
type Config struct {
	BatchSize            int
	FlushInterval        time.Duration
	RingMax              int
	CompressAfter        time.Duration
	RetentionPeriod      time.Duration
	ArchiveRetention     time.Duration
	ArchiveDir           string
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	if c.RingMax <= 0 {
		c.RingMax = 10000
	}
}

// Sink is the log ingestion, retention, and query component. Producers
// push to an in-memory ring via Append/AppendBatch; a single
// background flusher persists batches to storage.LogStore so writers
// never block on disk I/O. Grounded on
// original_source/PramaIA-LogService/api/log_router.py for the
// endpoint-level semantics this wraps, and on teacher's
// pkg/events.Broker for the buffered-channel-plus-background-loop
// shape of the ring/flusher pair.
type Sink struct {
	store  storage.LogStore
	cfg    Config
	logger zerolog.Logger

	mu   sync.Mutex
	ring []*types.LogEntry

	flush  chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a Sink over store.
func New(store storage.LogStore, cfg Config) *Sink {
	cfg.applyDefaults()
	return &Sink{
		store:  store,
		cfg:    cfg,
		logger: log.WithComponent("logsink"),
		flush:  make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the background flusher loop.
func (s *Sink) Start() {
	go s.run()
}

// Stop halts the flusher after a final flush of whatever remains queued.
func (s *Sink) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Sink) run() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.safeFlush()
		case <-s.flush:
			s.safeFlush()
		case <-s.stopCh:
			s.safeFlush()
			return
		}
	}
}

// safeFlush isolates a single flush cycle from a panic in flushBatch
// (or the underlying storage.LogStore) so one bad batch logs critical
// and is retried next cycle instead of killing the flusher goroutine,
// matching pkg/nodehost.Host.invoke's per-call recover pattern.
func (s *Sink) safeFlush() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("critical: log sink flush cycle panicked, will retry next cycle")
		}
	}()
	s.flushBatch()
}

// validate enforces level/project/size-cap rules. Returns an
// errs.KindValidation error, which the HTTP layer surfaces as 4xx and
// never logs at error level.
func validate(entry *types.LogEntry) error {
	if entry.Project == "" {
		return errs.New(errs.KindValidation, "logsink.validate", fmt.Errorf("project is required"))
	}
	if !types.ValidLogLevel(string(entry.Level)) {
		return errs.New(errs.KindValidation, "logsink.validate", fmt.Errorf("invalid level %q", entry.Level))
	}
	if len(entry.Message) > types.MaxMessageBytes {
		return errs.New(errs.KindValidation, "logsink.validate", fmt.Errorf("message exceeds %d bytes", types.MaxMessageBytes))
	}
	if detailsSize(entry.Details)+detailsSize(entry.Context) > types.MaxDetailsBytes {
		return errs.New(errs.KindValidation, "logsink.validate", fmt.Errorf("details/context exceed %d bytes", types.MaxDetailsBytes))
	}
	return nil
}

func detailsSize(m map[string]any) int {
	n := 0
	for k, v := range m {
		n += len(k)
		if s, ok := v.(string); ok {
			n += len(s)
		} else {
			n += 32 // rough estimate for non-string values
		}
	}
	return n
}

// Append validates and enqueues a single entry, assigning its id and
// received_at. Returns the assigned id.
func (s *Sink) Append(entry *types.LogEntry) (string, error) {
	if err := validate(entry); err != nil {
		return "", err
	}

	now := time.Now()
	entry.ID = NewID()
	entry.ReceivedAt = now
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now
	}

	s.enqueue(entry)
	metrics.LogsIngested.WithLabelValues(entry.Project, string(entry.Level)).Inc()
	return entry.ID, nil
}

// AppendBatch validates every entry before enqueuing any of them, so a
// batch write is all-or-nothing: one invalid entry rejects the whole
// batch rather than partially applying it.
func (s *Sink) AppendBatch(entries []*types.LogEntry) ([]string, error) {
	for _, e := range entries {
		if err := validate(e); err != nil {
			return nil, err
		}
	}

	ids := make([]string, 0, len(entries))
	base := time.Now()
	for i, e := range entries {
		// Same producer's batch preserves submission order in
		// received_at even when persisted within the same instant.
		e.ID = NewID()
		e.ReceivedAt = base.Add(time.Duration(i) * time.Nanosecond)
		if e.Timestamp.IsZero() {
			e.Timestamp = e.ReceivedAt
		}
		s.enqueue(e)
		metrics.LogsIngested.WithLabelValues(e.Project, string(e.Level)).Inc()
		ids = append(ids, e.ID)
	}
	return ids, nil
}

func (s *Sink) enqueue(entry *types.LogEntry) {
	s.mu.Lock()
	s.ring = append(s.ring, entry)
	overflow := len(s.ring) - s.cfg.RingMax
	if overflow > 0 {
		s.ring = s.ring[overflow:]
		metrics.LogsDroppedTotal.Add(float64(overflow))
		s.logger.Warn().Int("dropped", overflow).Str("level", string(types.LevelLifecycle)).Msg("lifecycle: ring buffer full, oldest entries dropped")
	}
	full := len(s.ring) >= s.cfg.BatchSize
	s.mu.Unlock()

	if full {
		select {
		case s.flush <- struct{}{}:
		default:
		}
	}
}

// flushBatch persists up to BatchSize queued entries. On failure the
// entries are returned to the front of the ring so the next flush
// retries them, up to RingMax before the oldest are dropped.
func (s *Sink) flushBatch() {
	s.mu.Lock()
	if len(s.ring) == 0 {
		s.mu.Unlock()
		return
	}
	n := s.cfg.BatchSize
	if n > len(s.ring) {
		n = len(s.ring)
	}
	batch := s.ring[:n]
	s.ring = s.ring[n:]
	s.mu.Unlock()

	timer := metrics.NewTimer()
	var failed []*types.LogEntry
	for _, entry := range batch {
		if err := s.store.PutLogEntry(entry); err != nil {
			failed = append(failed, entry)
		}
	}
	timer.ObserveDuration(metrics.LogFlushDuration)

	if len(failed) > 0 {
		s.logger.Warn().Int("failed", len(failed)).Msg("flush failed for some entries, retaining in ring")
		s.mu.Lock()
		s.ring = append(failed, s.ring...)
		s.mu.Unlock()
	}
}
