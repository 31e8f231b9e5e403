// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package audit

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/driftlight/heliopause/internal/logging"
	"github.com/driftlight/heliopause/internal/metrics"
	"github.com/driftlight/heliopause/internal/validation"
)

// sinkWriteTimeout bounds a single sink write so a stalled store
// cannot wedge the writer goroutine.
const sinkWriteTimeout = 5 * time.Second

// Config controls capture: which events get in, how many can buffer,
// and how long stored ones live.
type Config struct {
	Enabled     bool     `json:"enabled"`
	MinSeverity Severity `json:"min_severity"`

	// Retention applies to stored events; the sweeper enforces it on
	// the CleanupInterval tick.
	RetentionDays   int           `json:"retention_days"`
	CleanupInterval time.Duration `json:"cleanup_interval"`

	// BufferSize bounds the async channel. LogToStdout mirrors every
	// captured event through the structured logger as well.
	BufferSize  int  `json:"buffer_size"`
	LogToStdout bool `json:"log_to_stdout"`
}

// DefaultConfig captures info and above, keeps a month of trail, and
// buffers a thousand events.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		MinSeverity:     SeverityInfo,
		RetentionDays:   30,
		CleanupInterval: time.Hour,
		BufferSize:      1024,
	}
}

// Sink receives events drained from the buffer. StoreSink writes them
// to a Store directly; PublisherSink hands them to the pipeline.
type Sink interface {
	Write(ctx context.Context, event *Event) error
	Close() error
}

// StoreSink writes events straight to a Store.
type StoreSink struct {
	store Store
}

// NewStoreSink creates a sink over the given store.
func NewStoreSink(store Store) *StoreSink {
	return &StoreSink{store: store}
}

// Write persists the event.
func (s *StoreSink) Write(ctx context.Context, event *Event) error {
	return s.store.Save(ctx, event)
}

// Close is a no-op; the store's owner closes it.
func (s *StoreSink) Close() error {
	return nil
}

// Logger is the capture side of the audit trail. Log never blocks:
// events go into a bounded channel and a single writer goroutine
// drains them into the sink. A full buffer drops the event and bumps
// a counter instead of stalling the request path.
type Logger struct {
	sink    Sink
	metrics *metrics.Recorder

	mu     sync.RWMutex
	config *Config

	events chan *Event
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewLogger starts the writer goroutine over the given sink. A nil
// config gets defaults; the recorder may be nil.
func NewLogger(sink Sink, config *Config, rec *metrics.Recorder) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}

	l := &Logger{
		sink:    sink,
		metrics: rec,
		config:  config,
		events:  make(chan *Event, config.BufferSize),
		stop:    make(chan struct{}),
	}

	l.wg.Add(1)
	go l.run()

	return l
}

// snapshot copies the current config. Settings can change at runtime
// through SetEnabled, so readers take a copy rather than holding the
// lock across their work.
func (l *Logger) snapshot() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return *l.config
}

func (l *Logger) run() {
	defer l.wg.Done()

	for {
		select {
		case event := <-l.events:
			l.write(event)
		case <-l.stop:
			// Flush whatever is still buffered, then exit.
			for {
				select {
				case event := <-l.events:
					l.write(event)
				default:
					return
				}
			}
		}
	}
}

// write hands one event to the sink, mirroring it to the structured
// logger first when configured.
func (l *Logger) write(event *Event) {
	if l.snapshot().LogToStdout {
		l.mirror(event)
	}

	if l.sink == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sinkWriteTimeout)
	defer cancel()

	if err := l.sink.Write(ctx, event); err != nil {
		logging.Error().Err(err).Str("event_id", event.ID).Msg("Failed to write audit event")
	}
}

func (l *Logger) mirror(event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logging.Error().Err(err).Str("event_id", event.ID).Msg("Audit event mirror failed")
		return
	}
	logging.Info().RawJSON("audit_event", data).Msg("Audit event")
}

// Log records an audit event. When the buffer is full the event is
// dropped with a warning and a metrics increment. A nil logger
// discards everything, so callers without an audit trail need no
// guards.
func (l *Logger) Log(event *Event) {
	if l == nil {
		return
	}

	config := l.snapshot()
	if !config.Enabled || severityOrder[event.Severity] < severityOrder[config.MinSeverity] {
		return
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case l.events <- event:
		if l.metrics != nil {
			l.metrics.RecordAuditEvent(string(event.Type))
		}
	default:
		if l.metrics != nil {
			l.metrics.RecordAuditDropped()
		}
		logging.Warn().Str("event_type", string(event.Type)).Msg("Audit buffer full, event dropped")
	}
}

// Close flushes buffered events, stops the writer, and closes the sink.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}

	close(l.stop)
	l.wg.Wait()

	if l.sink == nil {
		return nil
	}
	return l.sink.Close()
}

// SetEnabled toggles capture at runtime. The admin API uses it to
// pause the trail without restarting the gateway.
func (l *Logger) SetEnabled(enabled bool) {
	if l == nil {
		return
	}

	l.mu.Lock()
	l.config.Enabled = enabled
	l.mu.Unlock()
}

// Enabled reports whether capture is on. Nil loggers report false.
func (l *Logger) Enabled() bool {
	if l == nil {
		return false
	}
	return l.snapshot().Enabled
}

// requestEvent stamps the provenance fields every request-scoped event
// shares. Callers fill in type, severity, outcome, and the rest.
func requestEvent(ctx context.Context, r *http.Request, event *Event) *Event {
	event.Source = SourceFromRequest(r)
	event.Method = r.Method
	event.Path = r.URL.Path
	event.RequestID = logging.RequestIDFromContext(ctx)
	return event
}

// LogValidationRejected records a request blocked by the gate. The
// finding set carries every entry, warnings included.
func (l *Logger) LogValidationRejected(ctx context.Context, r *http.Request, findings []validation.ValidationError) {
	l.Log(requestEvent(ctx, r, &Event{
		Type:        EventTypeValidationRejected,
		Severity:    SeverityWarning,
		Outcome:     OutcomeFailure,
		Action:      "validate",
		Description: fmt.Sprintf("Request rejected: %d validation findings", len(findings)),
		Metadata:    mustJSON(map[string]any{"findings": findings}),
	}))
}

// LogValidationWarned records a request accepted with warning findings.
func (l *Logger) LogValidationWarned(ctx context.Context, r *http.Request, findings []validation.ValidationError) {
	l.Log(requestEvent(ctx, r, &Event{
		Type:        EventTypeValidationWarned,
		Severity:    SeverityInfo,
		Outcome:     OutcomeSuccess,
		Action:      "validate",
		Description: fmt.Sprintf("Request accepted with %d warnings", len(findings)),
		Metadata:    mustJSON(map[string]any{"findings": findings}),
	}))
}

// LogFailOpen records a gate fault where the request was let through.
func (l *Logger) LogFailOpen(ctx context.Context, r *http.Request, cause string) {
	l.Log(requestEvent(ctx, r, &Event{
		Type:        EventTypeValidationFailOpen,
		Severity:    SeverityError,
		Outcome:     OutcomeUnknown,
		Action:      "validate",
		Description: "Gate fault, request allowed unvalidated: " + cause,
		Metadata:    mustJSON(map[string]string{"cause": cause}),
	}))
}

// LogFailClosed records a gate fault where the request was rejected.
func (l *Logger) LogFailClosed(ctx context.Context, r *http.Request, cause string) {
	l.Log(requestEvent(ctx, r, &Event{
		Type:        EventTypeValidationFailClosed,
		Severity:    SeverityError,
		Outcome:     OutcomeFailure,
		Action:      "validate",
		Description: "Gate fault, request rejected: " + cause,
		Metadata:    mustJSON(map[string]string{"cause": cause}),
	}))
}

// LogExempted records a request that bypassed the gate via an exempt
// path prefix.
func (l *Logger) LogExempted(ctx context.Context, r *http.Request) {
	l.Log(requestEvent(ctx, r, &Event{
		Type:        EventTypeRequestExempted,
		Severity:    SeverityInfo,
		Outcome:     OutcomeSuccess,
		Action:      "exempt",
		Description: "Request bypassed validation via exempt path",
	}))
}

// LogCSRFFailure records a rejected cross-site request.
func (l *Logger) LogCSRFFailure(ctx context.Context, r *http.Request, reason string) {
	l.Log(requestEvent(ctx, r, &Event{
		Type:        EventTypeCSRFFailure,
		Severity:    SeverityWarning,
		Outcome:     OutcomeFailure,
		Action:      "verify_token",
		Description: "CSRF verification failed: " + reason,
		Metadata:    mustJSON(map[string]string{"reason": reason}),
	}))
}

// LogRateLimited records a request rejected by a rate limiter.
func (l *Logger) LogRateLimited(ctx context.Context, r *http.Request, group string) {
	l.Log(requestEvent(ctx, r, &Event{
		Type:        EventTypeRateLimited,
		Severity:    SeverityWarning,
		Outcome:     OutcomeFailure,
		Action:      "rate_limit",
		Description: "Rate limit exceeded for group " + group,
		Metadata:    mustJSON(map[string]string{"group": group}),
	}))
}

// LogConstraintViolation records a storage constraint rejection after
// mapping.
func (l *Logger) LogConstraintViolation(ctx context.Context, r *http.Request, code, constraint string) {
	l.Log(requestEvent(ctx, r, &Event{
		Type:        EventTypeConstraintViolation,
		Severity:    SeverityInfo,
		Outcome:     OutcomeFailure,
		Action:      "persist",
		Description: "Storage constraint rejected the request: " + code,
		Metadata:    mustJSON(map[string]string{"code": code, "constraint": constraint}),
	}))
}

// LogAuditQueried records admin access to the audit trail.
func (l *Logger) LogAuditQueried(ctx context.Context, r *http.Request, actor string, matched int64) {
	l.Log(requestEvent(ctx, r, &Event{
		Type:        EventTypeAuditQueried,
		Severity:    SeverityInfo,
		Outcome:     OutcomeSuccess,
		Action:      "query",
		Description: "Audit trail queried",
		Metadata:    mustJSON(map[string]any{"actor": actor, "matched": matched}),
	}))
}

// LogAuditExported records an audit trail export.
func (l *Logger) LogAuditExported(ctx context.Context, r *http.Request, actor, format string, count int) {
	l.Log(requestEvent(ctx, r, &Event{
		Type:        EventTypeAuditExported,
		Severity:    SeverityInfo,
		Outcome:     OutcomeSuccess,
		Action:      "export",
		Description: "Audit trail exported as " + format,
		Metadata:    mustJSON(map[string]any{"actor": actor, "format": format, "count": count}),
	}))
}

// LogCaptureToggled records an admin turning capture on or off. The
// caller sequences this around SetEnabled so the event lands while
// capture is on.
func (l *Logger) LogCaptureToggled(ctx context.Context, r *http.Request, actor string, enabled bool) {
	l.Log(requestEvent(ctx, r, &Event{
		Type:        EventTypeCaptureToggled,
		Severity:    SeverityWarning,
		Outcome:     OutcomeSuccess,
		Action:      "toggle_capture",
		Description: fmt.Sprintf("Audit capture set to %t", enabled),
		Metadata:    mustJSON(map[string]any{"actor": actor, "enabled": enabled}),
	}))
}

// LogServerStart records gateway startup.
func (l *Logger) LogServerStart(version string) {
	l.Log(&Event{
		Type:        EventTypeServerStart,
		Severity:    SeverityInfo,
		Outcome:     OutcomeSuccess,
		Action:      "start",
		Description: "Gateway started",
		Metadata:    mustJSON(map[string]string{"version": version}),
	})
}

// LogServerStop records gateway shutdown.
func (l *Logger) LogServerStop() {
	l.Log(&Event{
		Type:        EventTypeServerStop,
		Severity:    SeverityInfo,
		Outcome:     OutcomeSuccess,
		Action:      "stop",
		Description: "Gateway stopped",
	})
}

// mustJSON marshals metadata, degrading to an empty object so a bad
// value never costs the event itself.
func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}

// SourceFromRequest extracts caller provenance from the request.
// X-Forwarded-For wins over X-Real-IP, and its first hop is taken as
// the client address.
func SourceFromRequest(r *http.Request) Source {
	ip := r.RemoteAddr
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		ip = strings.TrimSpace(first)
	} else if xri := r.Header.Get("X-Real-IP"); xri != "" {
		ip = xri
	}

	return Source{
		IPAddress: ip,
		UserAgent: r.UserAgent(),
		Hostname:  r.Host,
	}
}
