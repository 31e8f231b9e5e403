// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

// Package audit provides the security event trail.
// It records gate decisions and perimeter-defense activity for
// compliance and forensic analysis.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
)

// EventType categorizes audit events.
type EventType string

const (
	// Gate decisions
	EventTypeValidationRejected   EventType = "validation.rejected"
	EventTypeValidationWarned     EventType = "validation.warned"
	EventTypeValidationFailOpen   EventType = "validation.fail_open"
	EventTypeValidationFailClosed EventType = "validation.fail_closed"
	EventTypeRequestExempted      EventType = "request.exempted"

	// Perimeter defenses
	EventTypeCSRFFailure EventType = "csrf.failure"
	EventTypeRateLimited EventType = "ratelimit.exceeded"

	// Storage defenses
	EventTypeConstraintViolation EventType = "storage.constraint_violation"

	// Admin surface
	EventTypeAuditQueried   EventType = "audit.queried"
	EventTypeAuditExported  EventType = "audit.exported"
	EventTypeCaptureToggled EventType = "audit.capture_toggled"

	// Lifecycle events
	EventTypeServerStart EventType = "server.start"
	EventTypeServerStop  EventType = "server.stop"
)

// KnownEventTypes returns every event type the gateway emits, in a
// stable order suitable for API responses.
func KnownEventTypes() []EventType {
	return []EventType{
		EventTypeValidationRejected,
		EventTypeValidationWarned,
		EventTypeValidationFailOpen,
		EventTypeValidationFailClosed,
		EventTypeRequestExempted,
		EventTypeCSRFFailure,
		EventTypeRateLimited,
		EventTypeConstraintViolation,
		EventTypeAuditQueried,
		EventTypeAuditExported,
		EventTypeCaptureToggled,
		EventTypeServerStart,
		EventTypeServerStop,
	}
}

// Severity indicates the severity level of an audit event.
type Severity string

const (
	SeverityDebug    Severity = "debug"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// severityOrder ranks severities for minimum-level filtering.
var severityOrder = map[Severity]int{
	SeverityDebug:    0,
	SeverityInfo:     1,
	SeverityWarning:  2,
	SeverityError:    3,
	SeverityCritical: 4,
}

// ParseSeverity converts a configuration string to a Severity,
// defaulting to info for unrecognized values.
func ParseSeverity(s string) Severity {
	sev := Severity(s)
	if _, ok := severityOrder[sev]; !ok {
		return SeverityInfo
	}
	return sev
}

// Outcome indicates whether the audited action succeeded or failed.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeUnknown Outcome = "unknown"
)

// ErrNotFound is returned by Store.Get when no event has the given ID.
var ErrNotFound = errors.New("audit event not found")

// Event is one entry in the security audit trail. Events serialize
// to JSON for persistence, the admin API, and the live tail stream
// alike, so the field tags are the wire format.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Severity  Severity  `json:"severity"`
	Outcome   Outcome   `json:"outcome"`

	// Request provenance.
	Source    Source `json:"source"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	// Action names what was attempted in machine-readable form;
	// Description is the human-readable account of it.
	Action      string `json:"action"`
	Description string `json:"description"`

	// Metadata carries event-specific detail, including the full
	// validation finding set for gate decisions.
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// Source identifies the client behind an audited request.
type Source struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent,omitempty"`
	Hostname  string `json:"hostname,omitempty"`
}

// Store persists the audit trail. Implementations must be safe for
// concurrent use: the pipeline writes while the admin API reads.
type Store interface {
	// Save persists one event. The caller fills every field; stores
	// assign nothing.
	Save(ctx context.Context, event *Event) error

	// Get returns the event with the given ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*Event, error)

	// Query returns events matching the filter, newest first unless
	// the filter orders otherwise.
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)

	// Count returns how many events match the filter. The filter's
	// Limit and Offset do not apply to counting.
	Count(ctx context.Context, filter QueryFilter) (int64, error)

	// Delete removes events stamped before the cutoff and reports
	// how many went.
	Delete(ctx context.Context, olderThan time.Time) (int64, error)

	// GetStats aggregates the stored trail for the admin dashboard.
	GetStats(ctx context.Context) (*Stats, error)
}

// QueryFilter narrows audit queries. Zero values mean "don't filter
// on this"; within a slice field the values are alternatives, across
// fields the criteria all have to hold.
type QueryFilter struct {
	Types      []EventType `json:"types,omitempty"`
	Severities []Severity  `json:"severities,omitempty"`
	Outcomes   []Outcome   `json:"outcomes,omitempty"`

	SourceIP   string `json:"source_ip,omitempty"`
	Method     string `json:"method,omitempty"`
	PathPrefix string `json:"path_prefix,omitempty"`
	RequestID  string `json:"request_id,omitempty"`

	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	// SearchText matches case-insensitively against the description
	// and the action.
	SearchText string `json:"search_text,omitempty"`

	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// OrderBy names a sort column; implementations fall back to
	// timestamp for names they don't recognize.
	OrderBy   string `json:"order_by,omitempty"`
	OrderDesc bool   `json:"order_desc,omitempty"`
}

// DefaultQueryFilter is the admin API's starting point: the hundred
// most recent events.
func DefaultQueryFilter() QueryFilter {
	return QueryFilter{
		Limit:     100,
		OrderBy:   "timestamp",
		OrderDesc: true,
	}
}
