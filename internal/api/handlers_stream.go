// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package api

import (
	"net/http"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"github.com/driftlight/heliopause/internal/logging"
	"github.com/driftlight/heliopause/internal/websocket"
)

// getUpgrader returns the WebSocket upgrader for the live tail.
// A fresh value per call so the origin check always sees the current
// handler state.
func (ah *AuditHandlers) getUpgrader() gorillaws.Upgrader {
	return gorillaws.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      ah.checkStreamOrigin,
	}
}

// checkStreamOrigin validates the Origin header against the
// configured CORS allowlist. Browsers always send Origin on WebSocket
// handshakes; a missing header means a non-browser client trying to
// sidestep the check.
func (ah *AuditHandlers) checkStreamOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.Warn().
			Str("remote_addr", r.RemoteAddr).
			Msg("WebSocket upgrade without Origin header rejected")
		return false
	}

	for _, allowed := range ah.origins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	logging.Warn().
		Str("origin", origin).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket upgrade from disallowed origin rejected")
	return false
}

// Stream handles GET /api/v1/audit/stream.
// Upgrades the connection and registers it with the hub; from then on
// the client receives every event the pipeline persists, until it
// disconnects or falls behind.
func (ah *AuditHandlers) Stream(w http.ResponseWriter, r *http.Request) {
	if ah.hub == nil {
		WriteError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Live tail is not available")
		return
	}

	upgrader := ah.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		logging.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	client := websocket.NewClient(ah.hub, conn)
	ah.hub.Register <- client
	client.Start()

	logging.Ctx(r.Context()).Debug().
		Str("remote_addr", r.RemoteAddr).
		Msg("Audit tail client connected")
}
