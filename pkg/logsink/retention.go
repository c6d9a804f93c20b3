package logsink

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cuemby/warrenflow/pkg/metrics"
	"github.com/cuemby/warrenflow/pkg/storage"
	"github.com/cuemby/warrenflow/pkg/types"
)

// RunMaintenance performs the three-step retention pass: compress live
// entries older than CompressAfter into day-keyed archive/zip segments,
// delete live rows older than RetentionPeriod, then expire archive
// segments older than ArchiveRetention. Each day's compression is
// transactional: the zip segment and archive pointer are written
// before any live row for that day is deleted, so a crash mid-pass
// leaves every entry either fully archived or still fully live, never
// both deleted and unarchived.
func (s *Sink) RunMaintenance() error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.LogRetentionDuration)

	if err := s.compress(); err != nil {
		return fmt.Errorf("compress: %w", err)
	}
	if err := s.cleanup(); err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	if err := s.expire(); err != nil {
		return fmt.Errorf("expire: %w", err)
	}
	return nil
}

func (s *Sink) compress() error {
	if s.cfg.CompressAfter <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-s.cfg.CompressAfter)

	live, err := s.store.ListLogEntries()
	if err != nil {
		return err
	}

	byDay := make(map[string][]*types.LogEntry)
	for _, e := range live {
		if !e.Timestamp.Before(cutoff) {
			continue
		}
		byDay[dayKey(e.Timestamp)] = append(byDay[dayKey(e.Timestamp)], e)
	}

	for day, entries := range byDay {
		if err := s.compressDay(day, entries); err != nil {
			return fmt.Errorf("archive day %s: %w", day, err)
		}
	}
	return nil
}

func (s *Sink) compressDay(day string, entries []*types.LogEntry) error {
	if err := os.MkdirAll(s.cfg.ArchiveDir, 0o755); err != nil {
		return err
	}
	finalPath := filepath.Join(s.cfg.ArchiveDir, day+".zip")

	buf, err := zipEntries(entries)
	if err != nil {
		return err
	}

	tmp := finalPath + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, finalPath); err != nil {
		os.Remove(tmp)
		return err
	}

	ids := make([]string, 0, len(entries))
	fromTime, toTime := entries[0].Timestamp, entries[0].Timestamp
	for _, e := range entries {
		ids = append(ids, e.ID)
		if e.Timestamp.Before(fromTime) {
			fromTime = e.Timestamp
		}
		if e.Timestamp.After(toTime) {
			toTime = e.Timestamp
		}
	}

	ptr := &storage.ArchivePointer{
		ArchiveID: day,
		Path:      finalPath,
		EntryIDs:  ids,
		FromTime:  fromTime.Unix(),
		ToTime:    toTime.Unix(),
		CreatedAt: time.Now().Unix(),
	}
	// The pointer is committed only after the zip is durably on disk;
	// live rows are deleted only after the pointer is committed, so a
	// crash between any two steps leaves the data recoverable from
	// whichever side completed.
	if err := s.store.PutArchivePointer(ptr); err != nil {
		return err
	}

	for _, e := range entries {
		if err := s.store.DeleteLogEntry(e.ID); err != nil {
			s.logger.Warn().Str("id", e.ID).Err(err).Msg("archived entry could not be deleted from live store")
		}
	}
	metrics.LogsCompressedTotal.Add(float64(len(entries)))
	return nil
}

func zipEntries(entries []*types.LogEntry) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.Create("entries.json")
	if err != nil {
		return nil, err
	}
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Sink) cleanup() error {
	if s.cfg.RetentionPeriod <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-s.cfg.RetentionPeriod)

	live, err := s.store.ListLogEntries()
	if err != nil {
		return err
	}
	for _, e := range live {
		if e.Timestamp.Before(cutoff) {
			if err := s.store.DeleteLogEntry(e.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// PurgeAll hard-deletes every live log entry, optionally scoped to a
// single project, ignoring retention_days entirely. This backs the
// destructive DELETE /logs/cleanup/all endpoint and is never invoked
// by the scheduled maintenance pass, which only ever prunes by age via
// RunMaintenance. Archive segments are untouched.
func (s *Sink) PurgeAll(project string) (int, error) {
	live, err := s.store.ListLogEntries()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range live {
		if project != "" && e.Project != project {
			continue
		}
		if err := s.store.DeleteLogEntry(e.ID); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *Sink) expire() error {
	if s.cfg.ArchiveRetention <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-s.cfg.ArchiveRetention)

	ptrs, err := s.store.ListArchivePointers()
	if err != nil {
		return err
	}
	for _, p := range ptrs {
		if time.Unix(p.CreatedAt, 0).After(cutoff) {
			continue
		}
		if err := os.Remove(p.Path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn().Str("archive_id", p.ArchiveID).Err(err).Msg("could not remove expired archive segment")
		}
		if err := s.store.DeleteArchivePointer(p.ArchiveID); err != nil {
			return fmt.Errorf("delete archive pointer %s: %w", p.ArchiveID, err)
		}
		metrics.LogsExpiredTotal.Add(float64(len(p.EntryIDs)))
	}
	return nil
}

func dayKey(t time.Time) string {
	return t.UTC().Format("20060102")
}

// archivedInRange reads back archive segments whose recorded time
// range overlaps [from, to] (a zero value on either bound is
// unbounded) and returns their entries. Used by List and the lifecycle
// correlation queries so compressed history stays queryable.
func (s *Sink) archivedInRange(from, to time.Time) ([]*types.LogEntry, error) {
	ptrs, err := s.store.ListArchivePointers()
	if err != nil {
		return nil, err
	}
	sort.Slice(ptrs, func(i, j int) bool { return ptrs[i].ArchiveID < ptrs[j].ArchiveID })

	var out []*types.LogEntry
	for _, p := range ptrs {
		if !from.IsZero() && time.Unix(p.ToTime, 0).Before(from) {
			continue
		}
		if !to.IsZero() && time.Unix(p.FromTime, 0).After(to) {
			continue
		}
		entries, err := readZipEntries(p.Path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read archive %s: %w", p.ArchiveID, err)
		}
		out = append(out, entries...)
	}
	return out, nil
}

func readZipEntries(path string) ([]*types.LogEntry, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "entries.json" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, err
		}
		var entries []*types.LogEntry
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, err
		}
		return entries, nil
	}
	return nil, fmt.Errorf("entries.json not found in %s", path)
}
