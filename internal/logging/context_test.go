// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestGenerateRequestID(t *testing.T) {
	t.Parallel()

	first := GenerateRequestID()
	second := GenerateRequestID()

	if _, err := uuid.Parse(first); err != nil {
		t.Errorf("request ID %q is not a UUID: %v", first, err)
	}
	if first == second {
		t.Error("consecutive request IDs must differ")
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if id := RequestIDFromContext(ctx); id != "" {
		t.Errorf("bare context should have no request ID, got %q", id)
	}

	ctx = ContextWithRequestID(ctx, "req-test-123")
	if id := RequestIDFromContext(ctx); id != "req-test-123" {
		t.Errorf("RequestIDFromContext() = %q, want req-test-123", id)
	}
}

func TestCtx_PrefersStoredLogger(t *testing.T) {
	t.Parallel()

	// Mirror the request middleware: the stored logger carries the
	// request ID, so Ctx must not re-stamp it.
	var buf bytes.Buffer
	stored := zerolog.New(&buf).With().Str("request_id", "req-abc-123").Logger()
	ctx := ContextWithLogger(context.Background(), stored)
	ctx = ContextWithRequestID(ctx, "req-abc-123")

	Ctx(ctx).Info().Msg("request scoped")

	entry := decodeLogLine(t, &buf)
	if entry["request_id"] != "req-abc-123" {
		t.Errorf("request_id = %v, want req-abc-123", entry["request_id"])
	}
	if entry["message"] != "request scoped" {
		t.Errorf("message = %v, want 'request scoped'", entry["message"])
	}
}

func TestCtx_StampsRequestIDOnGlobal(t *testing.T) {
	preserveGlobalLogging(t)

	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))

	ctx := ContextWithRequestID(context.Background(), "req-global-9")
	Ctx(ctx).Info().Msg("no stored logger")

	entry := decodeLogLine(t, &buf)
	if entry["request_id"] != "req-global-9" {
		t.Errorf("request_id = %v, want req-global-9", entry["request_id"])
	}
}

func TestCtx_BareContext(t *testing.T) {
	preserveGlobalLogging(t)

	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))

	Ctx(context.Background()).Info().Msg("anonymous")

	entry := decodeLogLine(t, &buf)
	if _, ok := entry["request_id"]; ok {
		t.Error("request_id should be absent when none was attached")
	}
	if entry["message"] != "anonymous" {
		t.Errorf("message = %v, want 'anonymous'", entry["message"])
	}
}

func TestWithComponent(t *testing.T) {
	preserveGlobalLogging(t)

	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))

	logger := WithComponent("csrf")
	logger.Info().Msg("component scoped")

	if entry := decodeLogLine(t, &buf); entry["component"] != "csrf" {
		t.Errorf("component = %v, want csrf", entry["component"])
	}
}
