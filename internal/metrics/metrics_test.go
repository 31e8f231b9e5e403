// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	io_prometheus_client "github.com/prometheus/client_model/go"
)

// getGaugeValue extracts the value from a Prometheus gauge
func getGaugeValue(gauge prometheus.Gauge) float64 {
	var m io_prometheus_client.Metric
	if err := gauge.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}

func TestNew_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := New(reg)

	rec.RecordGateDecision("accepted", time.Millisecond)
	rec.RecordRejection("sql_injection")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected metric families on the provided registry")
	}

	found := map[string]bool{}
	for _, mf := range families {
		found[mf.GetName()] = true
	}
	for _, want := range []string{"gate_requests_total", "gate_validation_duration_seconds", "validation_rejections_total"} {
		if !found[want] {
			t.Errorf("expected %s to be registered", want)
		}
	}
}

func TestSeparateRecordersDoNotCollide(t *testing.T) {
	// Two Recorders on two registries must both construct without
	// duplicate-registration panics.
	a := NewTestRecorder()
	b := NewTestRecorder()

	a.RecordGateDecision("accepted", time.Millisecond)
	b.RecordGateDecision("rejected", time.Millisecond)

	if got := testutil.ToFloat64(a.gateRequests.WithLabelValues("accepted")); got != 1 {
		t.Errorf("recorder a accepted = %v, want 1", got)
	}
	if got := testutil.ToFloat64(b.gateRequests.WithLabelValues("accepted")); got != 0 {
		t.Errorf("recorder b accepted = %v, want 0", got)
	}
}

func TestRecordGateDecision(t *testing.T) {
	rec := NewTestRecorder()

	outcomes := []string{"accepted", "rejected", "exempted", "fail_open", "fail_closed"}
	for _, outcome := range outcomes {
		rec.RecordGateDecision(outcome, 500*time.Microsecond)
	}

	for _, outcome := range outcomes {
		if got := testutil.ToFloat64(rec.gateRequests.WithLabelValues(outcome)); got != 1 {
			t.Errorf("gate_requests_total{outcome=%q} = %v, want 1", outcome, got)
		}
	}
}

func TestRecordFindingAndRejection(t *testing.T) {
	rec := NewTestRecorder()

	rec.RecordFinding("xss", "critical")
	rec.RecordFinding("xss", "critical")
	rec.RecordFinding("sql_injection", "warning")
	rec.RecordRejection("xss")

	if got := testutil.ToFloat64(rec.findings.WithLabelValues("xss", "critical")); got != 2 {
		t.Errorf("findings{xss,critical} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(rec.findings.WithLabelValues("sql_injection", "warning")); got != 1 {
		t.Errorf("findings{sql_injection,warning} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rec.rejections.WithLabelValues("xss")); got != 1 {
		t.Errorf("rejections{xss} = %v, want 1", got)
	}
}

func TestRecordSanitizerRewrites(t *testing.T) {
	rec := NewTestRecorder()

	rec.RecordSanitizerRewrites(3)
	rec.RecordSanitizerRewrites(2)
	rec.RecordSanitizerRewrites(0)
	rec.RecordSanitizerRewrites(-1)

	if got := testutil.ToFloat64(rec.sanitizerRewrites); got != 5 {
		t.Errorf("sanitizer_rewrites_total = %v, want 5", got)
	}
}

func TestRecordCSRFFailure(t *testing.T) {
	rec := NewTestRecorder()

	for _, reason := range []string{"missing_cookie", "missing_token", "mismatch", "unknown_token"} {
		rec.RecordCSRFFailure(reason)
	}

	if got := testutil.ToFloat64(rec.csrfFailures.WithLabelValues("mismatch")); got != 1 {
		t.Errorf("csrf_failures{mismatch} = %v, want 1", got)
	}
}

func TestRecordRateLimited(t *testing.T) {
	rec := NewTestRecorder()

	rec.RecordRateLimited("public")
	rec.RecordRateLimited("public")
	rec.RecordRateLimited("admin")

	if got := testutil.ToFloat64(rec.rateLimitRejections.WithLabelValues("public")); got != 2 {
		t.Errorf("ratelimit_rejections{public} = %v, want 2", got)
	}
}

func TestAuditMetrics(t *testing.T) {
	rec := NewTestRecorder()

	rec.RecordAuditEvent("validation_rejected")
	rec.RecordAuditEvent("validation_rejected")
	rec.RecordAuditDropped()
	rec.RecordAuditPublish(nil)
	rec.RecordAuditPublish(errors.New("publish failed"))

	if got := testutil.ToFloat64(rec.auditEvents.WithLabelValues("validation_rejected")); got != 2 {
		t.Errorf("audit_events{validation_rejected} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(rec.auditDropped); got != 1 {
		t.Errorf("audit_events_dropped_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rec.auditPublished); got != 1 {
		t.Errorf("audit_events_published_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rec.auditPublishErrors); got != 1 {
		t.Errorf("audit_publish_errors_total = %v, want 1", got)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	rec := NewTestRecorder()

	rec.RecordAPIRequest("POST", "/api/v1/contact", "200", 25*time.Millisecond)
	rec.RecordAPIRequest("POST", "/api/v1/contact", "400", 5*time.Millisecond)

	if got := testutil.ToFloat64(rec.apiRequests.WithLabelValues("POST", "/api/v1/contact", "200")); got != 1 {
		t.Errorf("api_requests{200} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rec.apiRequests.WithLabelValues("POST", "/api/v1/contact", "400")); got != 1 {
		t.Errorf("api_requests{400} = %v, want 1", got)
	}
}

func TestTrackActiveRequest(t *testing.T) {
	rec := NewTestRecorder()

	rec.TrackActiveRequest(true)
	rec.TrackActiveRequest(true)
	rec.TrackActiveRequest(false)

	if got := testutil.ToFloat64(rec.apiActiveRequests); got != 1 {
		t.Errorf("api_active_requests = %v, want 1", got)
	}
}

func TestTrackWSConnection(t *testing.T) {
	rec := NewTestRecorder()

	rec.TrackWSConnection(true)
	rec.TrackWSConnection(true)
	rec.TrackWSConnection(false)

	if got := getGaugeValue(rec.wsConnections); got != 1 {
		t.Errorf("websocket_connections = %v, want 1", got)
	}
}

func TestRecordConstraintViolation(t *testing.T) {
	rec := NewTestRecorder()

	rec.RecordConstraintViolation("23505")
	rec.RecordConstraintViolation("23505")
	rec.RecordConstraintViolation("23503")

	if got := testutil.ToFloat64(rec.constraintViolations.WithLabelValues("23505")); got != 2 {
		t.Errorf("constraint_violations{23505} = %v, want 2", got)
	}
}

func TestBreakerMetrics(t *testing.T) {
	rec := NewTestRecorder()

	rec.SetBreakerState("postgres", 2)
	rec.RecordBreakerRequest("postgres", "rejected")
	rec.RecordBreakerRequest("postgres", "success")

	if got := testutil.ToFloat64(rec.breakerState.WithLabelValues("postgres")); got != 2 {
		t.Errorf("circuit_breaker_state{postgres} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(rec.breakerRequests.WithLabelValues("postgres", "rejected")); got != 1 {
		t.Errorf("breaker_requests{rejected} = %v, want 1", got)
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var rec *Recorder

	// None of these may panic on a nil receiver.
	rec.RecordGateDecision("accepted", time.Millisecond)
	rec.RecordRejection("xss")
	rec.RecordFinding("xss", "critical")
	rec.RecordSanitizerRewrites(1)
	rec.RecordCSRFFailure("mismatch")
	rec.RecordRateLimited("public")
	rec.RecordAuditEvent("x")
	rec.RecordAuditDropped()
	rec.RecordAuditPublish(nil)
	rec.RecordAPIRequest("GET", "/", "200", time.Millisecond)
	rec.TrackActiveRequest(true)
	rec.TrackWSConnection(true)
	rec.RecordConstraintViolation("23505")
	rec.SetBreakerState("x", 0)
	rec.RecordBreakerRequest("x", "success")
}

func TestConcurrentMetricRecording(t *testing.T) {
	rec := NewTestRecorder()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				rec.RecordGateDecision("accepted", time.Microsecond)
				rec.RecordFinding("xss", "warning")
				rec.TrackActiveRequest(true)
				rec.TrackActiveRequest(false)
			}
		}()
	}
	wg.Wait()

	if got := testutil.ToFloat64(rec.gateRequests.WithLabelValues("accepted")); got != 1000 {
		t.Errorf("gate_requests{accepted} = %v, want 1000", got)
	}
	if got := testutil.ToFloat64(rec.apiActiveRequests); got != 0 {
		t.Errorf("api_active_requests = %v, want 0", got)
	}
}

func TestMetricLint(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := New(reg)
	rec.RecordGateDecision("accepted", time.Millisecond)

	problems, err := testutil.GatherAndLint(reg)
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	for _, p := range problems {
		t.Errorf("metric lint problem: %s: %s", p.Metric, p.Text)
	}
}
