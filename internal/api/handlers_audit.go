// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/driftlight/heliopause/internal/audit"
	"github.com/driftlight/heliopause/internal/auth"
	"github.com/driftlight/heliopause/internal/logging"
	"github.com/driftlight/heliopause/internal/websocket"
)

// exportLimit caps a single export. Larger trails are exported in
// time-range slices.
const exportLimit = 10000

// AuditStore is the query surface the audit API needs. Satisfied by
// both audit store implementations.
type AuditStore interface {
	Get(ctx context.Context, id string) (*audit.Event, error)
	Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error)
	Count(ctx context.Context, filter audit.QueryFilter) (int64, error)
	GetStats(ctx context.Context) (*audit.Stats, error)
}

// AuditHandlers serves the admin audit API: querying, statistics,
// export, and the live tail.
type AuditHandlers struct {
	store   AuditStore
	auditor *audit.Logger
	hub     *websocket.Hub
	origins []string
}

// NewAuditHandlers creates the audit API handlers. auditor records
// admin access to the trail itself; hub may be nil, which disables
// the stream endpoint.
func NewAuditHandlers(store AuditStore, auditor *audit.Logger, hub *websocket.Hub, allowedOrigins []string) *AuditHandlers {
	return &AuditHandlers{
		store:   store,
		auditor: auditor,
		hub:     hub,
		origins: allowedOrigins,
	}
}

// ListEvents handles GET /api/v1/audit/events.
// Filters: type, severity, outcome (repeatable), source_ip, method,
// path_prefix, request_id, start_time/end_time (RFC3339), search,
// limit/offset, order_by/order_direction.
func (ah *AuditHandlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	filter, err := parseAuditFilter(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	events, err := ah.store.Query(r.Context(), filter)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	total, err := ah.store.Count(r.Context(), filter)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	ah.auditor.LogAuditQueried(r.Context(), r, actorFromContext(r), total)

	rw.SuccessWithPagination(map[string]any{
		"events": events,
	}, &PaginationMeta{
		Total:   total,
		Count:   len(events),
		Offset:  filter.Offset,
		Limit:   filter.Limit,
		HasMore: int64(filter.Offset+len(events)) < total,
	})
}

// GetEvent handles GET /api/v1/audit/events/{id}.
func (ah *AuditHandlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id := chi.URLParam(r, "id")
	if id == "" {
		rw.BadRequest("Event ID is required")
		return
	}

	event, err := ah.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			rw.NotFound("Audit event not found")
			return
		}
		rw.DatabaseError(err)
		return
	}

	rw.Success(event)
}

// auditStatsResponse augments store statistics with the live tail's
// connection count.
type auditStatsResponse struct {
	*audit.Stats
	ConnectedClients int `json:"connected_clients"`
}

// GetStats handles GET /api/v1/audit/stats.
func (ah *AuditHandlers) GetStats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	stats, err := ah.store.GetStats(r.Context())
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	clients := 0
	if ah.hub != nil {
		clients = ah.hub.GetClientCount()
	}

	rw.Success(auditStatsResponse{
		Stats:            stats,
		ConnectedClients: clients,
	})
}

// GetTypes handles GET /api/v1/audit/types.
// Returns the full event vocabulary so admin UIs can build filter
// controls without hardcoding it.
func (ah *AuditHandlers) GetTypes(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]any{
		"types": audit.KnownEventTypes(),
		"severities": []audit.Severity{
			audit.SeverityDebug,
			audit.SeverityInfo,
			audit.SeverityWarning,
			audit.SeverityError,
			audit.SeverityCritical,
		},
		"outcomes": []audit.Outcome{
			audit.OutcomeSuccess,
			audit.OutcomeFailure,
			audit.OutcomeUnknown,
		},
	})
}

// auditConfigBody is the wire shape of the capture toggle, both ways.
// Enabled is a pointer on the way in so a missing field is not read as
// "turn it off".
type auditConfigBody struct {
	Enabled *bool `json:"enabled"`
}

// GetConfig handles GET /api/v1/audit/config.
func (ah *AuditHandlers) GetConfig(w http.ResponseWriter, r *http.Request) {
	enabled := ah.auditor.Enabled()
	NewResponseWriter(w, r).Success(auditConfigBody{Enabled: &enabled})
}

// UpdateConfig handles PUT /api/v1/audit/config. It pauses or resumes
// capture without a restart, and the change itself goes into the
// trail so there is always a record of who flipped it.
func (ah *AuditHandlers) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var body auditConfigBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		rw.BadRequest("Request body must be valid JSON")
		return
	}
	if body.Enabled == nil {
		rw.BadRequest("Field 'enabled' is required")
		return
	}

	// The toggle event has to land while capture is on, whichever
	// side of the change that is.
	actor := actorFromContext(r)
	if *body.Enabled {
		ah.auditor.SetEnabled(true)
		ah.auditor.LogCaptureToggled(r.Context(), r, actor, true)
	} else {
		ah.auditor.LogCaptureToggled(r.Context(), r, actor, false)
		ah.auditor.SetEnabled(false)
	}

	enabled := ah.auditor.Enabled()
	rw.Success(auditConfigBody{Enabled: &enabled})
}

// ExportEvents handles GET /api/v1/audit/export?format=json|cef.
// The export itself is recorded in the trail.
func (ah *AuditHandlers) ExportEvents(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	filter, err := parseAuditFilter(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	filter.Limit = exportLimit
	filter.Offset = 0

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	var (
		exporter    audit.Exporter
		contentType string
		extension   string
	)
	switch format {
	case "json":
		exporter = &audit.JSONExporter{}
		contentType = "application/json"
		extension = "json"
	case "cef":
		exporter = audit.NewCEFExporter()
		contentType = "text/plain"
		extension = "cef"
	default:
		rw.BadRequest("Unsupported export format: " + format)
		return
	}

	events, err := ah.store.Query(r.Context(), filter)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	data, err := exporter.Export(events)
	if err != nil {
		logging.Error().Err(err).Str("format", format).Msg("Audit export failed")
		rw.InternalError("Export failed")
		return
	}

	ah.auditor.LogAuditExported(r.Context(), r, actorFromContext(r), format, len(events))

	filename := fmt.Sprintf("heliopause-audit-%s.%s", time.Now().UTC().Format("2006-01-02"), extension)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // response write errors are not recoverable
	w.Write(data)
}

// parseAuditFilter builds a QueryFilter from request query params.
func parseAuditFilter(r *http.Request) (audit.QueryFilter, error) {
	filter := audit.DefaultQueryFilter()
	q := r.URL.Query()

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > 1000 {
			return filter, errors.New("limit must be an integer between 1 and 1000")
		}
		filter.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return filter, errors.New("offset must be a non-negative integer")
		}
		filter.Offset = offset
	}

	for _, v := range q["type"] {
		filter.Types = append(filter.Types, audit.EventType(v))
	}
	for _, v := range q["severity"] {
		filter.Severities = append(filter.Severities, audit.Severity(v))
	}
	for _, v := range q["outcome"] {
		filter.Outcomes = append(filter.Outcomes, audit.Outcome(v))
	}

	filter.SourceIP = q.Get("source_ip")
	filter.Method = q.Get("method")
	filter.PathPrefix = q.Get("path_prefix")
	filter.RequestID = q.Get("request_id")
	filter.SearchText = q.Get("search")

	if v := q.Get("start_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("start_time must be RFC3339")
		}
		filter.StartTime = &t
	}
	if v := q.Get("end_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("end_time must be RFC3339")
		}
		filter.EndTime = &t
	}

	if v := q.Get("order_by"); v != "" {
		filter.OrderBy = v
	}
	if v := q.Get("order_direction"); v != "" {
		filter.OrderDesc = v != "asc"
	}

	return filter, nil
}

// actorFromContext names the authenticated admin for trail entries.
func actorFromContext(r *http.Request) string {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		return ""
	}
	if claims.Subject != "" {
		return claims.Subject
	}
	return claims.Name
}
