// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package audit

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// defaultMemoryStoreCap bounds the in-memory trail when the caller
// gives no limit of its own.
const defaultMemoryStoreCap = 10000

// MemoryStore is the Store used in development and in deployments
// that opt out of DuckDB persistence. Events live in a bounded slice;
// everything is lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
	maxLen int
}

// NewMemoryStore creates a store bounded to maxLen events, or
// defaultMemoryStoreCap when maxLen is zero or negative.
func NewMemoryStore(maxLen int) *MemoryStore {
	if maxLen <= 0 {
		maxLen = defaultMemoryStoreCap
	}
	return &MemoryStore{
		events: make([]Event, 0, maxLen),
		maxLen: maxLen,
	}
}

// Save appends one event. At the bound it evicts the oldest tenth of
// the trail in one cut, which keeps Save amortized O(1) instead of
// shifting the slice on every write at capacity.
func (s *MemoryStore) Save(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("cannot save nil event")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.events) >= s.maxLen {
		drop := s.maxLen / 10
		if drop == 0 {
			drop = 1
		}
		s.events = s.events[drop:]
	}

	s.events = append(s.events, *event)
	return nil
}

// Get returns the event with the given ID, or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := slices.IndexFunc(s.events, func(e Event) bool { return e.ID == id })
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	event := s.events[i]
	return &event, nil
}

// Query returns events matching the filter, newest first. Offset and
// Limit window the matches. OrderBy is ignored: the memory store
// always answers in reverse insertion order, which is timestamp order
// for all practical purposes.
func (s *MemoryStore) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []Event
	skipped := 0

	for i := len(s.events) - 1; i >= 0; i-- {
		if !matches(&s.events[i], &filter) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}

		results = append(results, s.events[i])
		if filter.Limit > 0 && len(results) >= filter.Limit {
			break
		}
	}

	return results, nil
}

// matches reports whether the event satisfies every criterion in the
// filter. Empty criteria match everything.
func matches(event *Event, filter *QueryFilter) bool {
	if len(filter.Types) > 0 && !slices.Contains(filter.Types, event.Type) {
		return false
	}
	if len(filter.Severities) > 0 && !slices.Contains(filter.Severities, event.Severity) {
		return false
	}
	if len(filter.Outcomes) > 0 && !slices.Contains(filter.Outcomes, event.Outcome) {
		return false
	}
	if filter.SourceIP != "" && event.Source.IPAddress != filter.SourceIP {
		return false
	}
	if filter.Method != "" && event.Method != filter.Method {
		return false
	}
	if filter.PathPrefix != "" && !strings.HasPrefix(event.Path, filter.PathPrefix) {
		return false
	}
	if filter.RequestID != "" && event.RequestID != filter.RequestID {
		return false
	}
	if filter.StartTime != nil && event.Timestamp.Before(*filter.StartTime) {
		return false
	}
	if filter.EndTime != nil && event.Timestamp.After(*filter.EndTime) {
		return false
	}
	if filter.SearchText != "" && !searchHit(event, filter.SearchText) {
		return false
	}
	return true
}

// searchHit matches the needle case-insensitively against the fields
// operators actually search: the description and the action.
func searchHit(event *Event, needle string) bool {
	needle = strings.ToLower(needle)
	return strings.Contains(strings.ToLower(event.Description), needle) ||
		strings.Contains(strings.ToLower(event.Action), needle)
}

// Count returns how many events match the filter. Offset and Limit do
// not apply; the count covers the whole trail.
func (s *MemoryStore) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for i := range s.events {
		if matches(&s.events[i], &filter) {
			n++
		}
	}

	return n, nil
}

// Delete drops events stamped strictly before olderThan and reports
// how many went. The retention sweeper calls this on its interval.
func (s *MemoryStore) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.events)
	s.events = slices.DeleteFunc(s.events, func(e Event) bool {
		return e.Timestamp.Before(olderThan)
	})

	return int64(before - len(s.events)), nil
}

// Clear empties the store. Tests use it between cases.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = s.events[:0]
}

// Len returns the number of events currently held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Stats summarizes the audit trail for the admin stats endpoint.
type Stats struct {
	TotalEvents      int64            `json:"total_events"`
	EventsByType     map[string]int64 `json:"events_by_type"`
	EventsBySeverity map[string]int64 `json:"events_by_severity"`
	EventsByOutcome  map[string]int64 `json:"events_by_outcome"`
	OldestEvent      *time.Time       `json:"oldest_event,omitempty"`
	NewestEvent      *time.Time       `json:"newest_event,omitempty"`
}

// GetStats tallies the trail by type, severity, and outcome, with the
// time bounds of what is currently held.
func (s *MemoryStore) GetStats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{
		TotalEvents:      int64(len(s.events)),
		EventsByType:     make(map[string]int64),
		EventsBySeverity: make(map[string]int64),
		EventsByOutcome:  make(map[string]int64),
	}

	var oldest, newest time.Time
	for i := range s.events {
		event := &s.events[i]
		stats.EventsByType[string(event.Type)]++
		stats.EventsBySeverity[string(event.Severity)]++
		stats.EventsByOutcome[string(event.Outcome)]++

		if oldest.IsZero() || event.Timestamp.Before(oldest) {
			oldest = event.Timestamp
		}
		if event.Timestamp.After(newest) {
			newest = event.Timestamp
		}
	}
	if !oldest.IsZero() {
		stats.OldestEvent = &oldest
		stats.NewestEvent = &newest
	}

	return stats, nil
}
