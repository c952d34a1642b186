// Package storage persists the best-effort registrant roster. Values are
// stored as plain JSON and read back as inert data only.
package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const registrantPrefix = "registrant:"

// Registrant is one append-only join record.
type Registrant struct {
	DisplayName string    `json:"name"`
	ContactInfo string    `json:"contact"`
	JoinedAt    time.Time `json:"joined_at"`
}

type RosterStore struct {
	db *badger.DB
}

// Open creates or opens the store under dir. Callers treat an error as a
// degraded mode, never as fatal: the live session runs without persistence.
func Open(dir string) (*RosterStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open roster store: %w", err)
	}
	return &RosterStore{db: db}, nil
}

func (s *RosterStore) Close() error {
	return s.db.Close()
}

// RecordJoin appends one registrant record. Keys are time-prefixed so
// iteration returns records in join order.
func (s *RosterStore) RecordJoin(name, contact string, at time.Time) error {
	rec := Registrant{DisplayName: name, ContactInfo: contact, JoinedAt: at}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal registrant: %w", err)
	}
	key := fmt.Sprintf("%s%d:%s", registrantPrefix, at.UnixNano(), uuid.NewString())
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("store registrant: %w", err)
	}
	log.Debug().Str("module", "storage.roster").Str("name", name).Msg("registrant recorded")
	return nil
}

// List returns all recorded registrants in join order. A corrupt record is
// skipped with a warning rather than failing the whole read.
func (s *RosterStore) List() ([]Registrant, error) {
	var out []Registrant
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(registrantPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec Registrant
				if err := json.Unmarshal(val, &rec); err != nil {
					log.Warn().Err(err).Str("module", "storage.roster").Msg("skipping corrupt registrant record")
					return nil
				}
				out = append(out, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list registrants: %w", err)
	}
	return out, nil
}
