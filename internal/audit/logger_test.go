// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package audit

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/driftlight/heliopause/internal/validation"
)

func newTestLogger(store Store, config *Config) *Logger {
	return NewLogger(NewStoreSink(store), config, nil)
}

func TestLogger_Log(t *testing.T) {
	store := NewMemoryStore(100)
	logger := newTestLogger(store, nil)

	logger.Log(&Event{
		Type:        EventTypeValidationRejected,
		Severity:    SeverityWarning,
		Outcome:     OutcomeFailure,
		Source:      Source{IPAddress: "203.0.113.7"},
		Action:      "validate",
		Description: "test event",
	})

	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if store.Len() != 1 {
		t.Fatalf("Expected 1 stored event, got %d", store.Len())
	}

	events, err := store.Query(context.Background(), QueryFilter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if events[0].Type != EventTypeValidationRejected {
		t.Errorf("Expected type %s, got %s", EventTypeValidationRejected, events[0].Type)
	}
}

func TestLogger_CloseDrainsBuffer(t *testing.T) {
	store := NewMemoryStore(1000)
	logger := newTestLogger(store, &Config{Enabled: true, MinSeverity: SeverityInfo, BufferSize: 500})

	for i := 0; i < 100; i++ {
		logger.Log(&Event{
			Type:     EventTypeRateLimited,
			Severity: SeverityWarning,
			Outcome:  OutcomeFailure,
		})
	}

	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if store.Len() != 100 {
		t.Errorf("Expected all 100 events drained, got %d", store.Len())
	}
}

func TestLogger_Disabled(t *testing.T) {
	store := NewMemoryStore(100)
	logger := newTestLogger(store, &Config{Enabled: false, MinSeverity: SeverityInfo, BufferSize: 10})

	logger.Log(&Event{Type: EventTypeCSRFFailure, Severity: SeverityWarning})
	logger.Close()

	if store.Len() != 0 {
		t.Errorf("Disabled logger should store nothing, got %d events", store.Len())
	}
}

func TestLogger_SetEnabled(t *testing.T) {
	store := NewMemoryStore(100)
	logger := newTestLogger(store, nil)

	if !logger.Enabled() {
		t.Error("Logger should start enabled")
	}

	logger.SetEnabled(false)
	logger.Log(&Event{Type: EventTypeCSRFFailure, Severity: SeverityWarning})

	logger.SetEnabled(true)
	logger.Log(&Event{Type: EventTypeRateLimited, Severity: SeverityWarning})
	logger.Close()

	if store.Len() != 1 {
		t.Fatalf("Expected exactly the re-enabled event, got %d", store.Len())
	}
}

func TestLogger_SeverityFiltering(t *testing.T) {
	tests := []struct {
		name     string
		min      Severity
		severity Severity
		stored   bool
	}{
		{"info passes info", SeverityInfo, SeverityInfo, true},
		{"warning passes info", SeverityInfo, SeverityWarning, true},
		{"debug filtered at info", SeverityInfo, SeverityDebug, false},
		{"info filtered at warning", SeverityWarning, SeverityInfo, false},
		{"critical passes warning", SeverityWarning, SeverityCritical, true},
		{"error passes error", SeverityError, SeverityError, true},
		{"warning filtered at error", SeverityError, SeverityWarning, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore(10)
			logger := newTestLogger(store, &Config{Enabled: true, MinSeverity: tt.min, BufferSize: 10})

			logger.Log(&Event{Type: EventTypeValidationWarned, Severity: tt.severity})
			logger.Close()

			stored := store.Len() == 1
			if stored != tt.stored {
				t.Errorf("severity %s with min %s: stored = %v, want %v", tt.severity, tt.min, stored, tt.stored)
			}
		})
	}
}

func TestLogger_AutoGeneratesIDAndTimestamp(t *testing.T) {
	store := NewMemoryStore(10)
	logger := newTestLogger(store, nil)

	before := time.Now()
	logger.Log(&Event{Type: EventTypeRequestExempted, Severity: SeverityInfo})
	logger.Close()

	events, _ := store.Query(context.Background(), QueryFilter{})
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}

	if events[0].ID == "" {
		t.Error("ID should be auto-generated")
	}
	if _, err := uuid.Parse(events[0].ID); err != nil {
		t.Errorf("ID %q is not a valid UUID: %v", events[0].ID, err)
	}
	if events[0].Timestamp.Before(before) {
		t.Error("Timestamp should be auto-set")
	}
}

func TestLogger_PreservesExplicitID(t *testing.T) {
	store := NewMemoryStore(10)
	logger := newTestLogger(store, nil)

	logger.Log(&Event{ID: "explicit-id", Type: EventTypeServerStart, Severity: SeverityInfo})
	logger.Close()

	if _, err := store.Get(context.Background(), "explicit-id"); err != nil {
		t.Errorf("Explicit ID should be preserved: %v", err)
	}
}

// blockingSink holds every Write until released, so tests can fill the
// buffer deterministically.
type blockingSink struct {
	entered chan struct{}
	release chan struct{}
	mu      sync.Mutex
	written []*Event
}

func newBlockingSink() *blockingSink {
	return &blockingSink{
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (s *blockingSink) Write(ctx context.Context, event *Event) error {
	s.entered <- struct{}{}
	<-s.release
	s.mu.Lock()
	s.written = append(s.written, event)
	s.mu.Unlock()
	return nil
}

func (s *blockingSink) Close() error { return nil }

func (s *blockingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.written)
}

func TestLogger_DropsWhenBufferFull(t *testing.T) {
	sink := newBlockingSink()
	logger := NewLogger(sink, &Config{Enabled: true, MinSeverity: SeverityInfo, BufferSize: 1}, nil)

	// First event occupies the writer.
	logger.Log(&Event{ID: "a", Type: EventTypeRateLimited, Severity: SeverityWarning})
	<-sink.entered

	// Second event fills the single buffer slot; third is dropped.
	logger.Log(&Event{ID: "b", Type: EventTypeRateLimited, Severity: SeverityWarning})
	logger.Log(&Event{ID: "c", Type: EventTypeRateLimited, Severity: SeverityWarning})

	close(sink.release)
	logger.Close()

	if got := sink.count(); got != 2 {
		t.Errorf("Expected 2 written events (one dropped), got %d", got)
	}
}

func TestLogger_HelperMethods(t *testing.T) {
	findings := []validation.ValidationError{
		{Path: "body.comment", Message: "potential xss detected", Severity: validation.SeverityError},
		{Path: "body.note", Message: "template expression detected", Severity: validation.SeverityWarning},
	}

	tests := []struct {
		name     string
		log      func(l *Logger, ctx context.Context)
		wantType EventType
		wantSev  Severity
		wantOut  Outcome
	}{
		{
			name: "validation rejected",
			log: func(l *Logger, ctx context.Context) {
				r := httptest.NewRequest("POST", "/api/v1/contact", nil)
				l.LogValidationRejected(ctx, r, findings)
			},
			wantType: EventTypeValidationRejected,
			wantSev:  SeverityWarning,
			wantOut:  OutcomeFailure,
		},
		{
			name: "validation warned",
			log: func(l *Logger, ctx context.Context) {
				r := httptest.NewRequest("POST", "/api/v1/contact", nil)
				l.LogValidationWarned(ctx, r, findings[1:])
			},
			wantType: EventTypeValidationWarned,
			wantSev:  SeverityInfo,
			wantOut:  OutcomeSuccess,
		},
		{
			name: "fail open",
			log: func(l *Logger, ctx context.Context) {
				r := httptest.NewRequest("POST", "/api/v1/contact", nil)
				l.LogFailOpen(ctx, r, "walker panic")
			},
			wantType: EventTypeValidationFailOpen,
			wantSev:  SeverityError,
			wantOut:  OutcomeUnknown,
		},
		{
			name: "fail closed",
			log: func(l *Logger, ctx context.Context) {
				r := httptest.NewRequest("POST", "/api/v1/contact", nil)
				l.LogFailClosed(ctx, r, "walker panic")
			},
			wantType: EventTypeValidationFailClosed,
			wantSev:  SeverityError,
			wantOut:  OutcomeFailure,
		},
		{
			name: "exempted",
			log: func(l *Logger, ctx context.Context) {
				r := httptest.NewRequest("GET", "/health", nil)
				l.LogExempted(ctx, r)
			},
			wantType: EventTypeRequestExempted,
			wantSev:  SeverityInfo,
			wantOut:  OutcomeSuccess,
		},
		{
			name: "csrf failure",
			log: func(l *Logger, ctx context.Context) {
				r := httptest.NewRequest("POST", "/api/v1/newsletter", nil)
				l.LogCSRFFailure(ctx, r, "mismatch")
			},
			wantType: EventTypeCSRFFailure,
			wantSev:  SeverityWarning,
			wantOut:  OutcomeFailure,
		},
		{
			name: "rate limited",
			log: func(l *Logger, ctx context.Context) {
				r := httptest.NewRequest("GET", "/api/v1/audit/events", nil)
				l.LogRateLimited(ctx, r, "admin")
			},
			wantType: EventTypeRateLimited,
			wantSev:  SeverityWarning,
			wantOut:  OutcomeFailure,
		},
		{
			name: "constraint violation",
			log: func(l *Logger, ctx context.Context) {
				r := httptest.NewRequest("POST", "/api/v1/newsletter", nil)
				l.LogConstraintViolation(ctx, r, "DB_UNIQUE_VIOLATION", "newsletter_subscribers_email_unique")
			},
			wantType: EventTypeConstraintViolation,
			wantSev:  SeverityInfo,
			wantOut:  OutcomeFailure,
		},
		{
			name: "audit queried",
			log: func(l *Logger, ctx context.Context) {
				r := httptest.NewRequest("GET", "/api/v1/audit/events", nil)
				l.LogAuditQueried(ctx, r, "admin@example.com", 42)
			},
			wantType: EventTypeAuditQueried,
			wantSev:  SeverityInfo,
			wantOut:  OutcomeSuccess,
		},
		{
			name: "audit exported",
			log: func(l *Logger, ctx context.Context) {
				r := httptest.NewRequest("GET", "/api/v1/audit/export", nil)
				l.LogAuditExported(ctx, r, "admin@example.com", "cef", 10)
			},
			wantType: EventTypeAuditExported,
			wantSev:  SeverityInfo,
			wantOut:  OutcomeSuccess,
		},
		{
			name: "capture toggled",
			log: func(l *Logger, ctx context.Context) {
				r := httptest.NewRequest("PUT", "/api/v1/audit/config", nil)
				l.LogCaptureToggled(ctx, r, "admin@example.com", false)
			},
			wantType: EventTypeCaptureToggled,
			wantSev:  SeverityWarning,
			wantOut:  OutcomeSuccess,
		},
		{
			name:     "server start",
			log:      func(l *Logger, ctx context.Context) { l.LogServerStart("1.0.0") },
			wantType: EventTypeServerStart,
			wantSev:  SeverityInfo,
			wantOut:  OutcomeSuccess,
		},
		{
			name:     "server stop",
			log:      func(l *Logger, ctx context.Context) { l.LogServerStop() },
			wantType: EventTypeServerStop,
			wantSev:  SeverityInfo,
			wantOut:  OutcomeSuccess,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore(10)
			logger := newTestLogger(store, nil)

			tt.log(logger, context.Background())
			logger.Close()

			events, err := store.Query(context.Background(), QueryFilter{})
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if len(events) != 1 {
				t.Fatalf("Expected 1 event, got %d", len(events))
			}

			ev := events[0]
			if ev.Type != tt.wantType {
				t.Errorf("Type = %s, want %s", ev.Type, tt.wantType)
			}
			if ev.Severity != tt.wantSev {
				t.Errorf("Severity = %s, want %s", ev.Severity, tt.wantSev)
			}
			if ev.Outcome != tt.wantOut {
				t.Errorf("Outcome = %s, want %s", ev.Outcome, tt.wantOut)
			}
			if ev.Action == "" {
				t.Error("Action should not be empty")
			}
			if ev.Description == "" {
				t.Error("Description should not be empty")
			}
		})
	}
}

func TestLogger_RejectedEventCarriesAllFindings(t *testing.T) {
	findings := []validation.ValidationError{
		{Path: "body.comment", Message: "potential xss detected", Severity: validation.SeverityError},
		{Path: "body.note", Message: "template expression detected", Severity: validation.SeverityWarning},
	}

	store := NewMemoryStore(10)
	logger := newTestLogger(store, nil)

	r := httptest.NewRequest("POST", "/api/v1/contact", nil)
	r.RemoteAddr = "203.0.113.7:55000"
	logger.LogValidationRejected(context.Background(), r, findings)
	logger.Close()

	events, _ := store.Query(context.Background(), QueryFilter{})
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}

	ev := events[0]
	if ev.Path != "/api/v1/contact" {
		t.Errorf("Path = %q", ev.Path)
	}
	if ev.Method != "POST" {
		t.Errorf("Method = %q", ev.Method)
	}
	if ev.Source.IPAddress != "203.0.113.7:55000" {
		t.Errorf("Source IP = %q", ev.Source.IPAddress)
	}

	var meta struct {
		Findings []validation.ValidationError `json:"findings"`
	}
	if err := json.Unmarshal(ev.Metadata, &meta); err != nil {
		t.Fatalf("Metadata unmarshal failed: %v", err)
	}
	if len(meta.Findings) != 2 {
		t.Fatalf("Expected both findings (warning included), got %d", len(meta.Findings))
	}
	if meta.Findings[1].Severity != validation.SeverityWarning {
		t.Errorf("Warning finding should survive serialization, got %s", meta.Findings[1].Severity)
	}
}

func TestSourceFromRequest(t *testing.T) {
	t.Run("remote addr", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = "198.51.100.4:12345"
		src := SourceFromRequest(r)
		if src.IPAddress != "198.51.100.4:12345" {
			t.Errorf("IPAddress = %q", src.IPAddress)
		}
	})

	t.Run("x-forwarded-for wins", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = "10.0.0.1:9999"
		r.Header.Set("X-Forwarded-For", "203.0.113.9")
		r.Header.Set("X-Real-IP", "203.0.113.10")
		src := SourceFromRequest(r)
		if src.IPAddress != "203.0.113.9" {
			t.Errorf("IPAddress = %q, want X-Forwarded-For value", src.IPAddress)
		}
	})

	t.Run("multi-hop x-forwarded-for takes the first hop", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.2, 10.0.0.3")
		src := SourceFromRequest(r)
		if src.IPAddress != "203.0.113.9" {
			t.Errorf("IPAddress = %q, want the client hop", src.IPAddress)
		}
	})

	t.Run("x-real-ip fallback", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("X-Real-IP", "203.0.113.10")
		src := SourceFromRequest(r)
		if src.IPAddress != "203.0.113.10" {
			t.Errorf("IPAddress = %q, want X-Real-IP value", src.IPAddress)
		}
	})

	t.Run("user agent and host", func(t *testing.T) {
		r := httptest.NewRequest("GET", "http://gateway.example.com/", nil)
		r.Header.Set("User-Agent", "probe/1.0")
		src := SourceFromRequest(r)
		if src.UserAgent != "probe/1.0" {
			t.Errorf("UserAgent = %q", src.UserAgent)
		}
		if src.Hostname != "gateway.example.com" {
			t.Errorf("Hostname = %q", src.Hostname)
		}
	})
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in   string
		want Severity
	}{
		{"debug", SeverityDebug},
		{"info", SeverityInfo},
		{"warning", SeverityWarning},
		{"error", SeverityError},
		{"critical", SeverityCritical},
		{"bogus", SeverityInfo},
		{"", SeverityInfo},
	}
	for _, tt := range tests {
		if got := ParseSeverity(tt.in); got != tt.want {
			t.Errorf("ParseSeverity(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestKnownEventTypes(t *testing.T) {
	types := KnownEventTypes()
	if len(types) == 0 {
		t.Fatal("KnownEventTypes should not be empty")
	}

	want := map[EventType]bool{
		EventTypeValidationRejected: false,
		EventTypeCSRFFailure:        false,
		EventTypeRateLimited:        false,
		EventTypeRequestExempted:    false,
	}
	for _, et := range types {
		if _, ok := want[et]; ok {
			want[et] = true
		}
	}
	for et, seen := range want {
		if !seen {
			t.Errorf("KnownEventTypes missing %s", et)
		}
	}
}

func TestMustJSON(t *testing.T) {
	data := mustJSON(map[string]string{"key": "value"})
	var decoded map[string]string
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("mustJSON produced invalid JSON: %v", err)
	}
	if decoded["key"] != "value" {
		t.Errorf("decoded = %v", decoded)
	}

	// Unmarshalable values degrade to an empty object.
	bad := mustJSON(make(chan int))
	if string(bad) != "{}" {
		t.Errorf("mustJSON(chan) = %s, want {}", bad)
	}
}
