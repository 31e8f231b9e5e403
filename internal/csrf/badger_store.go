// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package csrf

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Token key prefix for namespacing in BadgerDB.
const badgerTokenKeyPrefix = "csrf_token:"

// tokenRecord is the stored value. The explicit expiry backs up
// Badger's TTL, which only discards entries lazily.
type tokenRecord struct {
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// BadgerStore persists CSRF tokens in BadgerDB. Tokens issued before
// a restart keep working, so a deploy does not invalidate every open
// form.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens a BadgerDB at path and wraps it as a token
// store.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	// Token records are tiny; the default 1GB value log is oversized.
	opts.ValueLogFileSize = 16 << 20
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db for csrf tokens: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStoreFromDB wraps an existing BadgerDB connection. The
// caller keeps ownership of the connection's lifecycle.
func NewBadgerStoreFromDB(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Save records the token with a Badger TTL matching its lifetime.
func (s *BadgerStore) Save(token string, ttl time.Duration) error {
	if token == "" {
		return errors.New("token cannot be empty")
	}

	now := time.Now()
	data, err := json.Marshal(tokenRecord{IssuedAt: now, ExpiresAt: now.Add(ttl)})
	if err != nil {
		return fmt.Errorf("marshal token record: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(badgerTokenKeyPrefix+token), data)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

// Valid reports whether the token exists and has not expired.
func (s *BadgerStore) Valid(token string) bool {
	if token == "" {
		return false
	}

	var record tokenRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerTokenKeyPrefix + token))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if err != nil {
		return false
	}

	// Badger drops TTL-expired entries lazily, so check explicitly.
	return time.Now().Before(record.ExpiresAt)
}

// Delete removes the token. Absent tokens are not an error.
func (s *BadgerStore) Delete(token string) error {
	if token == "" {
		return nil
	}

	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(badgerTokenKeyPrefix + token))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// Count returns the number of unexpired tokens.
func (s *BadgerStore) Count() (int, error) {
	count := 0
	now := time.Now()

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(badgerTokenKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var record tokenRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			})
			if err != nil {
				continue
			}
			if now.Before(record.ExpiresAt) {
				count++
			}
		}
		return nil
	})

	return count, err
}

// Close closes the underlying BadgerDB connection.
func (s *BadgerStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// StartGCRoutine runs Badger value-log garbage collection at the
// given interval until the context is canceled. TTL expiry handles
// correctness; GC reclaims the disk space.
func (s *BadgerStore) StartGCRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				//nolint:errcheck // GC returns an error when nothing was collected
				s.db.RunValueLogGC(0.5)
			}
		}
	}()
}

var _ Store = (*BadgerStore)(nil)
