// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package api

import (
	"context"
	"time"

	"github.com/driftlight/heliopause/internal/audit"
	"github.com/driftlight/heliopause/internal/config"
	"github.com/driftlight/heliopause/internal/csrf"
	"github.com/driftlight/heliopause/internal/dbmap"
	"github.com/driftlight/heliopause/internal/storage"
	"github.com/driftlight/heliopause/internal/websocket"
)

// ContactSaver persists contact messages. Implemented by
// storage.ContactStore.
type ContactSaver interface {
	Save(ctx context.Context, msg *storage.ContactMessage) error
}

// SubscriptionStore persists newsletter signups. Implemented by
// storage.NewsletterStore.
type SubscriptionStore interface {
	Subscribe(ctx context.Context, sub *storage.NewsletterSubscriber) error
}

// Pinger is the readiness probe over the database pool. Implemented
// by pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds the dependencies of the demonstration and health
// endpoints.
type Handler struct {
	config     *config.Config
	contacts   ContactSaver
	newsletter SubscriptionStore
	mapper     *dbmap.Mapper
	auditor    *audit.Logger

	// Optional collaborators, attached after construction.
	csrf       *csrf.Middleware
	hub        *websocket.Hub
	db         Pinger
	auditStore audit.Store

	startTime time.Time
}

// NewHandler creates the handler set. Stores may be nil when the
// database is disabled; the affected endpoints answer 503.
func NewHandler(cfg *config.Config, contacts ContactSaver, newsletter SubscriptionStore, mapper *dbmap.Mapper, auditor *audit.Logger) *Handler {
	return &Handler{
		config:     cfg,
		contacts:   contacts,
		newsletter: newsletter,
		mapper:     mapper,
		auditor:    auditor,
		startTime:  time.Now(),
	}
}

// SetCSRF attaches the token issuer behind GET /api/v1/csrf.
func (h *Handler) SetCSRF(m *csrf.Middleware) {
	h.csrf = m
}

// SetHub attaches the WebSocket hub. Only used to report connection
// counts; the live tail itself is served by AuditHandlers.
func (h *Handler) SetHub(hub *websocket.Hub) {
	h.hub = hub
}

// SetDatabasePinger attaches the pool probed by the readiness
// endpoint.
func (h *Handler) SetDatabasePinger(p Pinger) {
	h.db = p
}

// SetAuditStore attaches the store probed by the readiness endpoint.
func (h *Handler) SetAuditStore(store audit.Store) {
	h.auditStore = store
}
