package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/cuemby/warrenflow/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketLogEntries      = []byte("log_entries")
	bucketArchivePointers = []byte("archive_pointers")
)

// BoltLogStore implements LogStore on top of a BoltDB file separate from
// the event store, so log write volume never contends with event fsyncs.
type BoltLogStore struct {
	db *bolt.DB
}

// NewBoltLogStore opens (creating if necessary) logs.db under dataDir.
func NewBoltLogStore(dataDir string) (*BoltLogStore, error) {
	dbPath := filepath.Join(dataDir, "logs.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open logs db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketLogEntries, bucketArchivePointers} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltLogStore{db: db}, nil
}

func (s *BoltLogStore) Close() error { return s.db.Close() }

func (s *BoltLogStore) PutLogEntry(entry *types.LogEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLogEntries)
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Put([]byte(entry.ID), data)
	})
}

func (s *BoltLogStore) GetLogEntry(id string) (*types.LogEntry, error) {
	var entry types.LogEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLogEntries)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("log entry not found: %s", id)
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *BoltLogStore) ListLogEntries() ([]*types.LogEntry, error) {
	var entries []*types.LogEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLogEntries)
		return b.ForEach(func(k, v []byte) error {
			var entry types.LogEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, &entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

func (s *BoltLogStore) DeleteLogEntry(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLogEntries).Delete([]byte(id))
	})
}

func (s *BoltLogStore) PutArchivePointer(ptr *ArchivePointer) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketArchivePointers)
		data, err := json.Marshal(ptr)
		if err != nil {
			return err
		}
		return b.Put([]byte(ptr.ArchiveID), data)
	})
}

func (s *BoltLogStore) DeleteArchivePointer(archiveID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketArchivePointers).Delete([]byte(archiveID))
	})
}

func (s *BoltLogStore) ListArchivePointers() ([]*ArchivePointer, error) {
	var ptrs []*ArchivePointer
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketArchivePointers)
		return b.ForEach(func(k, v []byte) error {
			var ptr ArchivePointer
			if err := json.Unmarshal(v, &ptr); err != nil {
				return err
			}
			ptrs = append(ptrs, &ptr)
			return nil
		})
	})
	return ptrs, err
}

