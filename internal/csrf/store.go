// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package csrf

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// StoreType selects the server-side token storage backend.
type StoreType string

const (
	// StoreMemory keeps tokens in process memory (default; tokens do
	// not survive restarts).
	StoreMemory StoreType = "memory"

	// StoreBadger persists tokens in BadgerDB so issued tokens stay
	// valid across restarts.
	StoreBadger StoreType = "badger"
)

// Store records issued tokens server-side. Double-submit comparison
// alone cannot distinguish a token this server issued from one an
// attacker fabricated into both channels; store presence closes that
// gap.
type Store interface {
	// Save records a token with the given lifetime.
	Save(token string, ttl time.Duration) error

	// Valid reports whether the token was issued here and has not
	// expired.
	Valid(token string) bool

	// Delete removes a token. Deleting an absent token is not an
	// error.
	Delete(token string) error

	// Count returns the number of live tokens.
	Count() (int, error)

	// Close releases backend resources.
	Close() error
}

// NewStore builds the configured backend. path is only used by the
// Badger store.
func NewStore(kind StoreType, path string) (Store, error) {
	switch kind {
	case StoreBadger:
		return NewBadgerStore(path)
	case StoreMemory, "":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown csrf store type %q", kind)
	}
}

// MemoryStore is a thread-safe in-memory token store.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]time.Time)}
}

// Save records the token with its expiry.
func (s *MemoryStore) Save(token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = time.Now().Add(ttl)
	return nil
}

// Valid reports whether the token exists and has not expired.
func (s *MemoryStore) Valid(token string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expiresAt, ok := s.tokens[token]
	if !ok {
		return false
	}
	return time.Now().Before(expiresAt)
}

// Delete removes the token.
func (s *MemoryStore) Delete(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	return nil
}

// Count returns the number of unexpired tokens.
func (s *MemoryStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	now := time.Now()
	for _, expiresAt := range s.tokens {
		if now.Before(expiresAt) {
			count++
		}
	}
	return count, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// CleanupExpired removes expired tokens and returns how many were
// dropped. Expired tokens already fail Valid; cleanup only bounds
// memory.
func (s *MemoryStore) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	now := time.Now()
	for token, expiresAt := range s.tokens {
		if now.After(expiresAt) {
			delete(s.tokens, token)
			count++
		}
	}
	return count
}

// StartCleanupRoutine sweeps expired tokens at the given interval
// until the context is canceled.
func (s *MemoryStore) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CleanupExpired()
			}
		}
	}()
}

var _ Store = (*MemoryStore)(nil)
