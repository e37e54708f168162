package invoice

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const extractionsBucket = "extractions"

// ErrNotFound is returned for unknown extraction ids
var ErrNotFound = errors.New("extraction not found")

// Journal records every formatting request
type Journal interface {
	// Save stores an extraction, replacing any entry with the same ID
	Save(entry *Extraction) error

	// Get retrieves an extraction by ID
	Get(id string) (*Extraction, error)

	// List returns all extractions, oldest first
	List() ([]*Extraction, error)

	// Close releases the journal
	Close() error
}

// BoltJournal implements Journal using BoltDB
type BoltJournal struct {
	db *bbolt.DB
}

// NewBoltJournal opens or creates the journal at path
func NewBoltJournal(path string) (*BoltJournal, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(extractionsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltJournal{db: db}, nil
}

func (b *BoltJournal) Save(entry *Extraction) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshaling extraction: %w", err)
		}
		return tx.Bucket([]byte(extractionsBucket)).Put([]byte(entry.ID), data)
	})
}

func (b *BoltJournal) Get(id string) (*Extraction, error) {
	var entry *Extraction
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(extractionsBucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (b *BoltJournal) List() ([]*Extraction, error) {
	entries := make([]*Extraction, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(extractionsBucket)).ForEach(func(k, v []byte) error {
			var entry Extraction
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("unmarshaling extraction %s: %w", k, err)
			}
			entries = append(entries, &entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	// Keys are random ids
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

func (b *BoltJournal) Close() error {
	return b.db.Close()
}

// NopJournal discards everything. It is used when no journal path is
// configured.
type NopJournal struct{}

func (NopJournal) Save(*Extraction) error { return nil }

func (NopJournal) Get(id string) (*Extraction, error) {
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (NopJournal) List() ([]*Extraction, error) { return []*Extraction{}, nil }

func (NopJournal) Close() error { return nil }
