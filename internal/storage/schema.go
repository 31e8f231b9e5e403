// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package storage

import (
	"context"
	"fmt"
)

// Constraint names here are matched by dbmap's default mapping table.
// Renaming one without updating the mappings breaks field attribution
// for the corresponding violation.
const (
	schemaContactMessages = `
CREATE TABLE IF NOT EXISTS contact_messages (
	id         UUID PRIMARY KEY,
	name       TEXT NOT NULL,
	email      TEXT NOT NULL,
	message    TEXT NOT NULL,
	source_ip  TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT contact_messages_email_check CHECK (position('@' in email) > 1)
)`

	schemaNewsletterSubscribers = `
CREATE TABLE IF NOT EXISTS newsletter_subscribers (
	id            UUID PRIMARY KEY,
	email         TEXT NOT NULL,
	source_ip     TEXT NOT NULL DEFAULT '',
	subscribed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT newsletter_subscribers_email_unique UNIQUE (email)
)`
)

// Bootstrap creates the demo tables if they do not exist. Safe to run
// on every startup.
func Bootstrap(ctx context.Context, db Querier) error {
	for _, ddl := range []string{schemaContactMessages, schemaNewsletterSubscribers} {
		if _, err := db.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("bootstrapping schema: %w", err)
		}
	}
	return nil
}
