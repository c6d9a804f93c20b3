package logsink

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cuemby/warrenflow/pkg/errs"
	"github.com/cuemby/warrenflow/pkg/types"
)

// allowedSortFields is the structured query builder's allowlist,
// replacing the string-concatenated filter flags the source's log
// router built its SQL from (spec §9 design note).
var allowedSortFields = map[string]bool{
	"timestamp": true,
	"project":   true,
	"level":     true,
	"module":    true,
}

// Query is the filter/sort/page request for GET /logs. All filters
// combine with AND.
type Query struct {
	Project    string
	Level      string
	Module     string
	DocumentID string
	FileName   string
	StartDate  time.Time
	EndDate    time.Time
	SortBy     string
	SortOrder  string
	Limit      int
	Offset     int
}

// Get fetches a single entry by id from the live store.
func (s *Sink) Get(id string) (*types.LogEntry, error) {
	return s.store.GetLogEntry(id)
}

// List executes q against the live table and any archive segments its
// date range overlaps, merging the results.
func (s *Sink) List(q Query) ([]*types.LogEntry, error) {
	if q.Level != "" && !types.ValidLogLevel(q.Level) {
		return nil, errs.New(errs.KindValidation, "logsink.List", fmt.Errorf("invalid level %q", q.Level))
	}
	if q.SortBy != "" && !allowedSortFields[q.SortBy] {
		return nil, errs.New(errs.KindValidation, "logsink.List", fmt.Errorf("invalid sort_by %q", q.SortBy))
	}
	if q.Limit == 0 {
		return []*types.LogEntry{}, nil
	}
	limit := q.Limit
	if limit < 0 || limit > 1000 {
		limit = 1000
	}

	live, err := s.store.ListLogEntries()
	if err != nil {
		return nil, err
	}
	archived, err := s.archivedInRange(q.StartDate, q.EndDate)
	if err != nil {
		return nil, err
	}

	all := make([]*types.LogEntry, 0, len(live)+len(archived))
	all = append(all, live...)
	all = append(all, archived...)

	filtered := make([]*types.LogEntry, 0, len(all))
	for _, e := range all {
		if matches(e, q) {
			filtered = append(filtered, e)
		}
	}

	sortEntries(filtered, q.SortBy, q.SortOrder)

	if q.Offset >= len(filtered) {
		return []*types.LogEntry{}, nil
	}
	end := q.Offset + limit
	if end > len(filtered) {
		end = len(filtered)
	}
	return filtered[q.Offset:end], nil
}

func matches(e *types.LogEntry, q Query) bool {
	if q.Project != "" && e.Project != q.Project {
		return false
	}
	if q.Level != "" && string(e.Level) != q.Level {
		return false
	}
	if q.Module != "" && e.Module != q.Module {
		return false
	}
	if q.DocumentID != "" && e.DocumentID() != q.DocumentID {
		return false
	}
	if q.FileName != "" && e.FileName() != q.FileName {
		return false
	}
	if !q.StartDate.IsZero() && e.Timestamp.Before(q.StartDate) {
		return false
	}
	if !q.EndDate.IsZero() && e.Timestamp.After(q.EndDate) {
		return false
	}
	return true
}

func sortEntries(entries []*types.LogEntry, sortBy, order string) {
	if sortBy == "" {
		sortBy = "timestamp"
	}
	desc := !strings.EqualFold(order, "asc")
	if sortBy == "timestamp" && order == "" {
		desc = true // default timestamp desc per spec
	}

	less := func(i, j int) bool {
		a, b := entries[i], entries[j]
		switch sortBy {
		case "project":
			return a.Project < b.Project
		case "level":
			return a.Level < b.Level
		case "module":
			return a.Module < b.Module
		default:
			return a.Timestamp.Before(b.Timestamp)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if desc {
			return less(j, i)
		}
		return less(i, j)
	})
}

// ByDocumentID returns every log entry across all projects whose
// context or details carry document_id, ascending by timestamp.
func (s *Sink) ByDocumentID(documentID string) ([]*types.LogEntry, error) {
	return s.lifecycleQuery(func(e *types.LogEntry) bool { return e.DocumentID() == documentID })
}

// ByFileName returns every log entry whose context carries file_name.
func (s *Sink) ByFileName(fileName string) ([]*types.LogEntry, error) {
	return s.lifecycleQuery(func(e *types.LogEntry) bool { return e.FileName() == fileName })
}

// ByContentHash returns every log entry whose context carries file_hash.
func (s *Sink) ByContentHash(hash string) ([]*types.LogEntry, error) {
	return s.lifecycleQuery(func(e *types.LogEntry) bool { return e.FileHash() == hash })
}

func (s *Sink) lifecycleQuery(match func(*types.LogEntry) bool) ([]*types.LogEntry, error) {
	live, err := s.store.ListLogEntries()
	if err != nil {
		return nil, err
	}
	archived, err := s.archivedInRange(time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}

	var out []*types.LogEntry
	for _, e := range live {
		if match(e) {
			out = append(out, e)
		}
	}
	for _, e := range archived {
		if match(e) {
			out = append(out, e)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Stats summarizes the live table for the /logs/stats endpoint,
// supplemented from original_source's maintenance reporting since it
// never appears on the core REST table but is useful operational
// signal the distillation dropped.
type Stats struct {
	TotalLive      int
	ByProject      map[string]int
	ByLevel        map[string]int
	OldestLive     time.Time
	NewestLive     time.Time
	ArchiveSegments int
}

// Stats computes live-table and archive-pointer summary counters.
func (s *Sink) Stats() (Stats, error) {
	live, err := s.store.ListLogEntries()
	if err != nil {
		return Stats{}, err
	}
	ptrs, err := s.store.ListArchivePointers()
	if err != nil {
		return Stats{}, err
	}

	st := Stats{
		TotalLive:       len(live),
		ByProject:       make(map[string]int),
		ByLevel:         make(map[string]int),
		ArchiveSegments: len(ptrs),
	}
	for _, e := range live {
		st.ByProject[e.Project]++
		st.ByLevel[string(e.Level)]++
		if st.OldestLive.IsZero() || e.Timestamp.Before(st.OldestLive) {
			st.OldestLive = e.Timestamp
		}
		if e.Timestamp.After(st.NewestLive) {
			st.NewestLive = e.Timestamp
		}
	}
	return st, nil
}
