// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package audit

import (
	"context"
	"time"

	"github.com/driftlight/heliopause/internal/logging"
)

// RetentionSweeper deletes events older than the retention window on a
// fixed interval. It implements suture.Service and runs under the data
// layer of the supervision tree.
type RetentionSweeper struct {
	store         Store
	retentionDays int
	interval      time.Duration
}

// NewRetentionSweeper creates a sweeper over the given store.
func NewRetentionSweeper(store Store, retentionDays int, interval time.Duration) *RetentionSweeper {
	if retentionDays <= 0 {
		retentionDays = DefaultConfig().RetentionDays
	}
	if interval <= 0 {
		interval = DefaultConfig().CleanupInterval
	}
	return &RetentionSweeper{
		store:         store,
		retentionDays: retentionDays,
		interval:      interval,
	}
}

// Serve runs the sweep loop until the context is canceled.
func (s *RetentionSweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep deletes events past the retention cutoff.
func (s *RetentionSweeper) sweep(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)

	deleted, err := s.store.Delete(ctx, cutoff)
	if err != nil {
		logging.Error().Err(err).Msg("Audit retention sweep failed")
		return
	}
	if deleted > 0 {
		logging.Info().
			Int64("deleted", deleted).
			Time("cutoff", cutoff).
			Msg("Swept expired audit events")
	}
}

// String names the service in supervisor logs.
func (s *RetentionSweeper) String() string {
	return "audit-retention"
}
