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

// ContactMessage is one stored submission from the demo contact form.
type ContactMessage struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Message   string
	SourceIP  string
	CreatedAt time.Time
}

const insertContactMessage = `
INSERT INTO contact_messages (id, name, email, message, source_ip, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

// ContactStore persists contact form submissions.
type ContactStore struct {
	db  Querier
	cb  *gobreaker.CircuitBreaker[pgconn.CommandTag]
	rec *metrics.Recorder
}

// NewContactStore creates a contact store backed by db.
func NewContactStore(db Querier, rec *metrics.Recorder) *ContactStore {
	return &ContactStore{
		db:  db,
		cb:  newBreaker[pgconn.CommandTag](breakerContact, rec),
		rec: rec,
	}
}

// Save inserts one contact message, filling in a zero ID or CreatedAt.
// Database errors are wrapped but keep the underlying pgconn.PgError
// reachable for the constraint mapper.
func (s *ContactStore) Save(ctx context.Context, msg *ContactMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := s.cb.Execute(func() (pgconn.CommandTag, error) {
		return s.db.Exec(ctx, insertContactMessage,
			msg.ID, msg.Name, msg.Email, msg.Message, msg.SourceIP, msg.CreatedAt)
	})
	observe(s.rec, breakerContact, err)
	if err != nil {
		return fmt.Errorf("saving contact message: %w", err)
	}

	return nil
}
