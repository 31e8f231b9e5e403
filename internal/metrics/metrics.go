// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder owns every gateway metric. All collectors register on the
// Registerer passed to New, so independent Recorders (one per test,
// one per process) never collide.
type Recorder struct {
	// Gate pipeline
	gateRequests       *prometheus.CounterVec
	validationDuration prometheus.Histogram
	rejections         *prometheus.CounterVec
	findings           *prometheus.CounterVec
	sanitizerRewrites  prometheus.Counter

	// Collaborator middleware
	csrfFailures        *prometheus.CounterVec
	rateLimitRejections *prometheus.CounterVec

	// Audit trail
	auditEvents        *prometheus.CounterVec
	auditDropped       prometheus.Counter
	auditPublished     prometheus.Counter
	auditPublishErrors prometheus.Counter

	// HTTP surface
	apiRequests        *prometheus.CounterVec
	apiRequestDuration *prometheus.HistogramVec
	apiActiveRequests  prometheus.Gauge
	wsConnections      prometheus.Gauge

	// Database mapper
	constraintViolations *prometheus.CounterVec

	// Circuit breaker
	breakerState    *prometheus.GaugeVec
	breakerRequests *prometheus.CounterVec
}

// New builds a Recorder with all collectors registered on reg.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		gateRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gate_requests_total",
				Help: "Total number of requests seen by the validation gate",
			},
			[]string{"outcome"}, // "accepted", "rejected", "exempted", "fail_open", "fail_closed"
		),

		validationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gate_validation_duration_seconds",
				Help:    "Time spent classifying and validating a request payload",
				Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1}, // Validation is usually sub-millisecond
			},
		),

		rejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "validation_rejections_total",
				Help: "Total number of requests rejected by the validation gate",
			},
			[]string{"category"}, // "sql_injection", "xss", "path_traversal", "command_injection", "structural"
		),

		findings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "validation_findings_total",
				Help: "Total number of individual findings reported by the classifier",
			},
			[]string{"category", "severity"},
		),

		sanitizerRewrites: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sanitizer_rewrites_total",
				Help: "Total number of string values rewritten by the sanitizer",
			},
		),

		csrfFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csrf_failures_total",
				Help: "Total number of requests rejected by CSRF verification",
			},
			[]string{"reason"}, // "missing_cookie", "missing_token", "mismatch", "unknown_token"
		),

		rateLimitRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratelimit_rejections_total",
				Help: "Total number of requests rejected by rate limiting",
			},
			[]string{"group"}, // "public", "admin", "health"
		),

		auditEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_events_total",
				Help: "Total number of audit events accepted into the buffer",
			},
			[]string{"type"},
		),

		auditDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "audit_events_dropped_total",
				Help: "Total number of audit events dropped because the buffer was full",
			},
		),

		auditPublished: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "audit_events_published_total",
				Help: "Total number of audit events published to the pipeline",
			},
		),

		auditPublishErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "audit_publish_errors_total",
				Help: "Total number of audit pipeline publish failures",
			},
		),

		apiRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		apiRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "endpoint"},
		),

		apiActiveRequests: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "api_active_requests",
				Help: "Current number of in-flight API requests",
			},
		),

		wsConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "websocket_connections",
				Help: "Current number of connected audit stream clients",
			},
		),

		constraintViolations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_constraint_violations_total",
				Help: "Total number of database constraint violations mapped to field errors",
			},
			[]string{"sqlstate"},
		),

		breakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),

		breakerRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "circuit_breaker_requests_total",
				Help: "Total number of requests through circuit breakers",
			},
			[]string{"name", "result"}, // result: "success", "failure", "rejected"
		),
	}
}

// NewTestRecorder builds a Recorder on a private registry for tests.
func NewTestRecorder() *Recorder {
	return New(prometheus.NewRegistry())
}

// RecordGateDecision records the terminal outcome of one gated request.
func (r *Recorder) RecordGateDecision(outcome string, duration time.Duration) {
	if r == nil {
		return
	}
	r.gateRequests.WithLabelValues(outcome).Inc()
	r.validationDuration.Observe(duration.Seconds())
}

// RecordRejection records a gate rejection by finding category.
func (r *Recorder) RecordRejection(category string) {
	if r == nil {
		return
	}
	r.rejections.WithLabelValues(category).Inc()
}

// RecordFinding records one classifier finding.
func (r *Recorder) RecordFinding(category, severity string) {
	if r == nil {
		return
	}
	r.findings.WithLabelValues(category, severity).Inc()
}

// RecordSanitizerRewrites adds the number of values the sanitizer
// rewrote for one request.
func (r *Recorder) RecordSanitizerRewrites(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.sanitizerRewrites.Add(float64(count))
}

// RecordCSRFFailure records a CSRF rejection.
func (r *Recorder) RecordCSRFFailure(reason string) {
	if r == nil {
		return
	}
	r.csrfFailures.WithLabelValues(reason).Inc()
}

// RecordRateLimited records a rate limit rejection for a route group.
func (r *Recorder) RecordRateLimited(group string) {
	if r == nil {
		return
	}
	r.rateLimitRejections.WithLabelValues(group).Inc()
}

// RecordAuditEvent records an audit event entering the buffer.
func (r *Recorder) RecordAuditEvent(eventType string) {
	if r == nil {
		return
	}
	r.auditEvents.WithLabelValues(eventType).Inc()
}

// RecordAuditDropped records an audit event lost to a full buffer.
func (r *Recorder) RecordAuditDropped() {
	if r == nil {
		return
	}
	r.auditDropped.Inc()
}

// RecordAuditPublish records a pipeline publish attempt.
func (r *Recorder) RecordAuditPublish(err error) {
	if r == nil {
		return
	}
	if err != nil {
		r.auditPublishErrors.Inc()
		return
	}
	r.auditPublished.Inc()
}

// RecordAPIRequest records one completed API request.
func (r *Recorder) RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	if r == nil {
		return
	}
	r.apiRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	r.apiRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks in-flight API requests.
func (r *Recorder) TrackActiveRequest(inc bool) {
	if r == nil {
		return
	}
	if inc {
		r.apiActiveRequests.Inc()
	} else {
		r.apiActiveRequests.Dec()
	}
}

// TrackWSConnection tracks connected audit stream clients.
func (r *Recorder) TrackWSConnection(inc bool) {
	if r == nil {
		return
	}
	if inc {
		r.wsConnections.Inc()
	} else {
		r.wsConnections.Dec()
	}
}

// RecordConstraintViolation records a mapped database constraint
// violation by SQLSTATE code.
func (r *Recorder) RecordConstraintViolation(sqlstate string) {
	if r == nil {
		return
	}
	r.constraintViolations.WithLabelValues(sqlstate).Inc()
}

// SetBreakerState records a circuit breaker state
// (0=closed, 1=half-open, 2=open).
func (r *Recorder) SetBreakerState(name string, state int) {
	if r == nil {
		return
	}
	r.breakerState.WithLabelValues(name).Set(float64(state))
}

// RecordBreakerRequest records one request through a circuit breaker.
func (r *Recorder) RecordBreakerRequest(name, result string) {
	if r == nil {
		return
	}
	r.breakerRequests.WithLabelValues(name, result).Inc()
}
