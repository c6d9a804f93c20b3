package eventstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/warrenflow/pkg/errs"
	"github.com/cuemby/warrenflow/pkg/log"
	"github.com/cuemby/warrenflow/pkg/metrics"
	"github.com/cuemby/warrenflow/pkg/storage"
	"github.com/cuemby/warrenflow/pkg/types"
)

// EventStore is the durable, crash-safe queue of filesystem events
// described in the data model: append-only, claimed by at most one
// handler at a time, released back to pending on crash detection.
type EventStore struct {
	store storage.EventStore

	mu sync.Mutex

	debounceWindow time.Duration
	maxAttempts    int
}

// New builds an EventStore over a storage.EventStore. debounceWindow is
// the coalescing window for consecutive same-kind events on the same
// path (spec default 2s); maxAttempts bounds retries before an event is
// abandoned.
func New(store storage.EventStore, debounceWindow time.Duration, maxAttempts int) *EventStore {
	return &EventStore{
		store:          store,
		debounceWindow: debounceWindow,
		maxAttempts:    maxAttempts,
	}
}

// Append records a new event, coalescing it into a pending event of the
// same kind for the same path if one was detected within the debounce
// window. Returns the event_id that now represents the change (which
// may be an existing, updated event rather than a newly minted one).
func (es *EventStore) Append(event *types.Event) (string, error) {
	es.mu.Lock()
	defer es.mu.Unlock()

	if event.DetectedAt.IsZero() {
		event.DetectedAt = time.Now()
	}

	if coalesced, err := es.coalesce(event); err != nil {
		return "", err
	} else if coalesced != nil {
		return coalesced.ID, nil
	}

	if event.ID == "" {
		event.ID = NewID()
	}
	if event.Status == "" {
		event.Status = types.EventPending
	}

	if err := es.store.PutEvent(event); err != nil {
		return "", errs.New(errs.KindTransient, "eventstore.append", err)
	}

	metrics.EventsAppended.WithLabelValues(string(event.Kind)).Inc()
	return event.ID, nil
}

// coalesce looks for a pending event of the same kind, same path,
// detected within the debounce window, and folds the new observation
// into it in place of inserting a duplicate. Returns the updated event
// if coalescing happened, nil otherwise.
func (es *EventStore) coalesce(event *types.Event) (*types.Event, error) {
	existing, err := es.store.ListEventsByPath(event.Path)
	if err != nil {
		return nil, errs.New(errs.KindTransient, "eventstore.coalesce", err)
	}

	for i := len(existing) - 1; i >= 0; i-- {
		candidate := existing[i]
		if candidate.Status != types.EventPending {
			continue
		}
		if candidate.Kind != event.Kind {
			continue
		}
		if event.DetectedAt.Sub(candidate.DetectedAt) > es.debounceWindow {
			continue
		}

		candidate.DetectedAt = event.DetectedAt
		candidate.SizeBytes = event.SizeBytes
		candidate.MTime = event.MTime
		if event.ContentHash != "" {
			candidate.ContentHash = event.ContentHash
		}
		if event.PrevPath != "" {
			candidate.PrevPath = event.PrevPath
		}

		if err := es.store.PutEvent(candidate); err != nil {
			return nil, errs.New(errs.KindTransient, "eventstore.coalesce", err)
		}
		return candidate, nil
	}

	return nil, nil
}

// Claim atomically flips up to maxN pending events to in_flight,
// stamping owner and claimed_at, and returns them in FIFO order by
// detected_at within kind priority deleted > moved > modified > created
// > existing. Enforces the "(path, status=in_flight) is a singleton"
// invariant: at most one event per distinct path is claimed per call,
// and a path already carrying an in_flight event from an earlier claim
// is skipped entirely. Other pending events for an already-claimed-this-
// round path are left pending and picked up by a later Claim once the
// earlier one completes or is released.
func (es *EventStore) Claim(maxN int, handlerID string) ([]*types.Event, error) {
	es.mu.Lock()
	defer es.mu.Unlock()

	pending, err := es.store.ListEventsByStatus(types.EventPending)
	if err != nil {
		return nil, errs.New(errs.KindTransient, "eventstore.claim", err)
	}

	inFlight, err := es.store.ListEventsByStatus(types.EventInFlight)
	if err != nil {
		return nil, errs.New(errs.KindTransient, "eventstore.claim", err)
	}
	busyPaths := make(map[string]bool, len(inFlight))
	for _, e := range inFlight {
		busyPaths[e.Path] = true
	}

	claimed := make([]*types.Event, 0, maxN)
	now := time.Now()
	for _, event := range pending {
		if len(claimed) >= maxN {
			break
		}
		if busyPaths[event.Path] {
			continue
		}

		event.Status = types.EventInFlight
		event.Owner = handlerID
		event.ClaimedAt = now
		if err := es.store.PutEvent(event); err != nil {
			return claimed, errs.New(errs.KindTransient, "eventstore.claim", err)
		}
		claimed = append(claimed, event)
		busyPaths[event.Path] = true
	}

	if len(claimed) > 0 {
		metrics.EventsClaimed.Add(float64(len(claimed)))
	}
	return claimed, nil
}

// Complete records the outcome of processing a claimed event. success
// moves it to done; failure increments attempts and either returns it
// to pending for another attempt or abandons it once max_attempts is
// exhausted, logging a lifecycle event when it abandons.
func (es *EventStore) Complete(eventID string, success bool, handlerErr error) error {
	es.mu.Lock()
	defer es.mu.Unlock()

	event, err := es.store.GetEvent(eventID)
	if err != nil {
		return errs.New(errs.KindInvariant, "eventstore.complete", err)
	}
	if event.Status != types.EventInFlight {
		return errs.Newf(errs.KindInvariant, "eventstore.complete", "event %s is not in_flight (status=%s)", eventID, event.Status)
	}

	if success {
		event.Status = types.EventDone
		event.LastError = ""
	} else {
		event.Attempts++
		if handlerErr != nil {
			event.LastError = handlerErr.Error()
		}
		if event.Attempts >= es.maxAttempts {
			event.Status = types.EventAbandoned
			log.WithEventID(event.ID).Warn().Str("path", event.Path).Int("attempts", event.Attempts).Msg("lifecycle: event abandoned after exhausting retries")
		} else {
			event.Status = types.EventPending
		}
	}

	if err := es.store.PutEvent(event); err != nil {
		return errs.New(errs.KindTransient, "eventstore.complete", err)
	}
	return nil
}

// ReleaseStale returns any in_flight event whose claimed_at is older
// than olderThan back to pending, as if its handler had crashed.
func (es *EventStore) ReleaseStale(olderThan time.Duration) (int, error) {
	es.mu.Lock()
	defer es.mu.Unlock()

	inFlight, err := es.store.ListEventsByStatus(types.EventInFlight)
	if err != nil {
		return 0, errs.New(errs.KindTransient, "eventstore.release_stale", err)
	}

	cutoff := time.Now().Add(-olderThan)
	released := 0
	for _, event := range inFlight {
		if event.ClaimedAt.After(cutoff) {
			continue
		}
		event.Status = types.EventPending
		event.Attempts++
		event.Owner = ""
		if err := es.store.PutEvent(event); err != nil {
			return released, errs.New(errs.KindTransient, "eventstore.release_stale", err)
		}
		released++
	}

	if released > 0 {
		metrics.EventsReleasedStale.Add(float64(released))
	}
	return released, nil
}

// ScanSince returns every event detected at or after cursor (a
// UnixNano timestamp), used by the reconciler to catch up without
// re-scanning the whole store.
func (es *EventStore) ScanSince(cursor int64) ([]*types.Event, error) {
	events, err := es.store.ScanSince(cursor)
	if err != nil {
		return nil, errs.New(errs.KindTransient, "eventstore.scan_since", err)
	}
	return events, nil
}

// PendingCount returns the current pending-queue depth, used by the
// reconciler's backpressure check.
func (es *EventStore) PendingCount() (int, error) {
	counts, err := es.store.CountEventsByStatus()
	if err != nil {
		return 0, errs.New(errs.KindTransient, "eventstore.pending_count", err)
	}
	return counts[string(types.EventPending)], nil
}

// LatestDoneByPath returns the most recently completed event for each
// distinct path, the "ground truth B" the reconciler diffs disk state
// against (spec §4.3 step 2: "the latest done event per path").
func (es *EventStore) LatestDoneByPath() (map[string]*types.Event, error) {
	done, err := es.store.ListEventsByStatus(types.EventDone)
	if err != nil {
		return nil, errs.New(errs.KindTransient, "eventstore.latest_done_by_path", err)
	}

	latest := make(map[string]*types.Event, len(done))
	for _, event := range done {
		cur, ok := latest[event.Path]
		if !ok || event.DetectedAt.After(cur.DetectedAt) {
			latest[event.Path] = event
		}
	}
	return latest, nil
}

// Get fetches a single event by id, for diagnostics and the HTTP surface.
func (es *EventStore) Get(eventID string) (*types.Event, error) {
	event, err := es.store.GetEvent(eventID)
	if err != nil {
		return nil, fmt.Errorf("eventstore: %w", err)
	}
	return event, nil
}
