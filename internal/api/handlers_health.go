// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package api

import (
	"context"
	"net/http"
	"time"
)

// readinessProbeTimeout bounds the database ping so a hung pool
// cannot stall the orchestrator's probe.
const readinessProbeTimeout = 2 * time.Second

// HealthLive handles GET /api/v1/health/live.
// Liveness means the process is running and serving HTTP. It never
// checks dependencies: a failed database must not get the process
// restarted.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if r.Method != http.MethodGet {
		rw.MethodNotAllowed("Method not allowed")
		return
	}

	rw.Success(map[string]any{
		"alive":  true,
		"uptime": time.Since(h.startTime).String(),
	})
}

// HealthReady handles GET /api/v1/health/ready.
// Readiness checks every attached dependency and answers 503 until
// all of them respond, so load balancers hold traffic during startup
// and outages. Dependencies that are disabled by configuration are
// reported as ready.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if r.Method != http.MethodGet {
		rw.MethodNotAllowed("Method not allowed")
		return
	}

	checks := map[string]bool{
		"database":    h.databaseReady(r),
		"audit_store": h.auditStoreReady(r),
	}

	ready := true
	for _, ok := range checks {
		if !ok {
			ready = false
			break
		}
	}

	body := map[string]any{
		"ready":  ready,
		"checks": checks,
		"uptime": time.Since(h.startTime).String(),
	}

	if !ready {
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Dependencies not ready", body)
		return
	}
	rw.Success(body)
}

func (h *Handler) databaseReady(r *http.Request) bool {
	if !h.config.Database.Enabled {
		return true
	}
	if h.db == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(r.Context(), readinessProbeTimeout)
	defer cancel()
	return h.db.Ping(ctx) == nil
}

func (h *Handler) auditStoreReady(r *http.Request) bool {
	if !h.config.Audit.Enabled {
		return true
	}
	if h.auditStore == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(r.Context(), readinessProbeTimeout)
	defer cancel()
	_, err := h.auditStore.GetStats(ctx)
	return err == nil
}
