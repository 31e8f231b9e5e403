// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/driftlight/heliopause/internal/metrics"
)

// NewsletterSubscriber is one stored signup from the demo newsletter form.
type NewsletterSubscriber struct {
	ID           uuid.UUID
	Email        string
	SourceIP     string
	SubscribedAt time.Time
}

const insertNewsletterSubscriber = `
INSERT INTO newsletter_subscribers (id, email, source_ip, subscribed_at)
VALUES ($1, $2, $3, $4)`

// NewsletterStore persists newsletter signups.
type NewsletterStore struct {
	db  Querier
	cb  *gobreaker.CircuitBreaker[pgconn.CommandTag]
	rec *metrics.Recorder
}

// NewNewsletterStore creates a newsletter store backed by db.
func NewNewsletterStore(db Querier, rec *metrics.Recorder) *NewsletterStore {
	return &NewsletterStore{
		db:  db,
		cb:  newBreaker[pgconn.CommandTag](breakerNewsletter, rec),
		rec: rec,
	}
}

// Subscribe inserts one signup, filling in a zero ID or SubscribedAt.
// A duplicate email comes back as the raw unique-violation error
// (wrapped) so the handler can run it through the constraint mapper.
func (s *NewsletterStore) Subscribe(ctx context.Context, sub *NewsletterSubscriber) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	if sub.SubscribedAt.IsZero() {
		sub.SubscribedAt = time.Now().UTC()
	}

	_, err := s.cb.Execute(func() (pgconn.CommandTag, error) {
		return s.db.Exec(ctx, insertNewsletterSubscriber,
			sub.ID, sub.Email, sub.SourceIP, sub.SubscribedAt)
	})
	observe(s.rec, breakerNewsletter, err)
	if err != nil {
		return fmt.Errorf("subscribing email: %w", err)
	}

	return nil
}
