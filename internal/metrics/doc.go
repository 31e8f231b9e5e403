// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

/*
Package metrics provides Prometheus metrics collection and export for observability.

All collectors hang off a Recorder built with New(registerer) rather than
package-level variables, so each process (and each test) owns its metrics
and nothing registers on the global default registry behind your back.

# Metrics Endpoint

Metrics are exposed at the /metrics endpoint in Prometheus text format:

	curl http://localhost:8080/metrics

# Available Metrics

Gate Metrics:
  - gate_requests_total: Requests seen by the validation gate (counter)
    Labels: outcome (accepted, rejected, exempted, fail_open, fail_closed)
  - gate_validation_duration_seconds: Classify+validate time (histogram)
    Buckets: .0001 to .1
  - validation_rejections_total: Rejected requests (counter)
    Labels: category
  - validation_findings_total: Individual classifier findings (counter)
    Labels: category, severity
  - sanitizer_rewrites_total: String values rewritten (counter)

Collaborator Metrics:
  - csrf_failures_total: CSRF rejections (counter)
    Labels: reason
  - ratelimit_rejections_total: Rate limit rejections (counter)
    Labels: group (public, admin, health)

Audit Metrics:
  - audit_events_total: Events accepted into the buffer (counter)
    Labels: type
  - audit_events_dropped_total: Events lost to a full buffer (counter)
  - audit_events_published_total: Events published to the pipeline (counter)
  - audit_publish_errors_total: Pipeline publish failures (counter)

HTTP Metrics:
  - api_requests_total: Total API requests (counter)
    Labels: method, endpoint, status_code
  - api_request_duration_seconds: Request latency (histogram)
    Labels: method, endpoint
  - api_active_requests: In-flight requests (gauge)
  - websocket_connections: Connected audit stream clients (gauge)

Database Metrics:
  - db_constraint_violations_total: Mapped constraint violations (counter)
    Labels: sqlstate

Circuit Breaker Metrics:
  - circuit_breaker_state: Current state (gauge)
    Labels: name
    Values: 0=closed, 1=half-open, 2=open
  - circuit_breaker_requests_total: Requests through breakers (counter)
    Labels: name, result (success, failure, rejected)

# Usage

	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)
	rec.RecordGateDecision("accepted", elapsed)

Tests use NewTestRecorder, which registers on a throwaway registry.
*/
package metrics
