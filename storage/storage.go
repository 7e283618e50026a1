/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package storage keeps exchange rosters and drawn results in BadgerDB.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/Seednode/secretsanta/exchange"
)

const (
	rosterPrefix = "roster:"
	resultPrefix = "result:"
)

var ErrNotFound = errors.New("exchange not found")

// Store persists one roster and at most one result per exchange ID.
type Store struct {
	db *badger.DB
}

type record struct {
	Participants []exchange.Participant `json:"participants"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// Open opens (or creates) a store in dir. An empty dir keeps everything in
// memory for the lifetime of the process.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR)
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveRoster(id string, r *exchange.Roster) error {
	return s.put(rosterPrefix+id, r.Participants())
}

func (s *Store) LoadRoster(id string) (*exchange.Roster, error) {
	participants, err := s.get(rosterPrefix + id)
	if err != nil {
		return nil, err
	}

	r, err := exchange.NewRoster(participants...)
	if err != nil {
		return nil, fmt.Errorf("roster %s: %w", id, err)
	}
	return r, nil
}

func (s *Store) SaveResult(id string, result []exchange.Participant) error {
	return s.put(resultPrefix+id, result)
}

func (s *Store) LoadResult(id string) ([]exchange.Participant, error) {
	return s.get(resultPrefix + id)
}

// DeleteResult drops the stored result for id, if any.
func (s *Store) DeleteResult(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(resultPrefix + id))
	})
}

// Delete removes the roster and result for id.
func (s *Store) Delete(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(rosterPrefix + id)); err != nil {
			return err
		}
		return txn.Delete([]byte(resultPrefix + id))
	})
}

// IDs lists every exchange with a stored roster.
func (s *Store) IDs() ([]string, error) {
	var ids []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(rosterPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, strings.TrimPrefix(string(it.Item().Key()), rosterPrefix))
		}
		return nil
	})

	return ids, err
}

func (s *Store) put(key string, participants []exchange.Participant) error {
	data, err := json.Marshal(record{
		Participants: participants,
		UpdatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (s *Store) get(key string) ([]exchange.Participant, error) {
	var rec record

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return rec.Participants, nil
}
