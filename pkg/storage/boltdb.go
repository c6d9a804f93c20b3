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
	bucketEvents    = []byte("events")
	bucketDocuments = []byte("documents")
)

// BoltEventStore implements EventStore on top of a BoltDB file.
type BoltEventStore struct {
	db *bolt.DB
}

// NewBoltEventStore opens (creating if necessary) events.db under dataDir.
func NewBoltEventStore(dataDir string) (*BoltEventStore, error) {
	dbPath := filepath.Join(dataDir, "events.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open events db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketEvents, bucketDocuments} {
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

	return &BoltEventStore{db: db}, nil
}

func (s *BoltEventStore) Close() error { return s.db.Close() }

func (s *BoltEventStore) PutEvent(event *types.Event) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		return b.Put([]byte(event.ID), data)
	})
}

func (s *BoltEventStore) GetEvent(id string) (*types.Event, error) {
	var event types.Event
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("event not found: %s", id)
		}
		return json.Unmarshal(data, &event)
	})
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (s *BoltEventStore) listEvents() ([]*types.Event, error) {
	var events []*types.Event
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		return b.ForEach(func(k, v []byte) error {
			var event types.Event
			if err := json.Unmarshal(v, &event); err != nil {
				return err
			}
			events = append(events, &event)
			return nil
		})
	})
	return events, err
}

func (s *BoltEventStore) ListEventsByPath(path string) ([]*types.Event, error) {
	all, err := s.listEvents()
	if err != nil {
		return nil, err
	}
	var filtered []*types.Event
	for _, e := range all {
		if e.Path == path {
			filtered = append(filtered, e)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].DetectedAt.Before(filtered[j].DetectedAt)
	})
	return filtered, nil
}

func (s *BoltEventStore) ListEventsByStatus(status types.EventStatus) ([]*types.Event, error) {
	all, err := s.listEvents()
	if err != nil {
		return nil, err
	}
	var filtered []*types.Event
	for _, e := range all {
		if e.Status == status {
			filtered = append(filtered, e)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		pi, pj := types.KindPriority(filtered[i].Kind), types.KindPriority(filtered[j].Kind)
		if pi != pj {
			return pi < pj
		}
		return filtered[i].DetectedAt.Before(filtered[j].DetectedAt)
	})
	return filtered, nil
}

func (s *BoltEventStore) ScanSince(cursor int64) ([]*types.Event, error) {
	all, err := s.listEvents()
	if err != nil {
		return nil, err
	}
	var filtered []*types.Event
	for _, e := range all {
		if e.DetectedAt.UnixNano() >= cursor {
			filtered = append(filtered, e)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].DetectedAt.Before(filtered[j].DetectedAt)
	})
	return filtered, nil
}

func (s *BoltEventStore) DeleteEvent(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEvents).Delete([]byte(id))
	})
}

func (s *BoltEventStore) CountEventsByStatus() (map[string]int, error) {
	all, err := s.listEvents()
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, e := range all {
		counts[string(e.Status)]++
	}
	return counts, nil
}

func (s *BoltEventStore) PutDocument(doc *types.DocumentRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDocuments)
		data, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		return b.Put([]byte(doc.DocumentID), data)
	})
}

func (s *BoltEventStore) GetDocument(documentID string) (*types.DocumentRecord, error) {
	var doc types.DocumentRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDocuments)
		data := b.Get([]byte(documentID))
		if data == nil {
			return fmt.Errorf("document not found: %s", documentID)
		}
		return json.Unmarshal(data, &doc)
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *BoltEventStore) GetDocumentByPath(path string) (*types.DocumentRecord, error) {
	var found *types.DocumentRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDocuments)
		return b.ForEach(func(k, v []byte) error {
			var doc types.DocumentRecord
			if err := json.Unmarshal(v, &doc); err != nil {
				return err
			}
			if doc.CurrentPath == path {
				found = &doc
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("document not found for path: %s", path)
	}
	return found, nil
}

func (s *BoltEventStore) ListDocuments() ([]*types.DocumentRecord, error) {
	var docs []*types.DocumentRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDocuments)
		return b.ForEach(func(k, v []byte) error {
			var doc types.DocumentRecord
			if err := json.Unmarshal(v, &doc); err != nil {
				return err
			}
			docs = append(docs, &doc)
			return nil
		})
	})
	return docs, err
}

func (s *BoltEventStore) DeleteDocument(documentID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDocuments).Delete([]byte(documentID))
	})
}
