// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package logging

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

func TestWatermillLogger_Levels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	wm := NewWatermillLoggerWithLogger(zerolog.New(&buf).Level(zerolog.TraceLevel))

	tests := []struct {
		level string
		log   func()
	}{
		{"trace", func() { wm.Trace("pipeline probe", nil) }},
		{"debug", func() { wm.Debug("pipeline probe", nil) }},
		{"info", func() { wm.Info("pipeline probe", nil) }},
	}

	for _, tt := range tests {
		buf.Reset()
		tt.log()

		if entry := decodeLogLine(t, &buf); entry["level"] != tt.level {
			t.Errorf("%s method wrote level %v", tt.level, entry["level"])
		}
	}
}

func TestWatermillLogger_Error(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	wm := NewWatermillLoggerWithLogger(zerolog.New(&buf))

	wm.Error("publish failed", errors.New("connection refused"), watermill.LogFields{
		"topic": "audit.events",
	})

	entry := decodeLogLine(t, &buf)
	if entry["level"] != "error" {
		t.Errorf("level = %v, want error", entry["level"])
	}
	if entry["message"] != "publish failed" {
		t.Errorf("message = %v, want 'publish failed'", entry["message"])
	}
	if entry["error"] != "connection refused" {
		t.Errorf("error = %v, want 'connection refused'", entry["error"])
	}
	if entry["topic"] != "audit.events" {
		t.Errorf("topic = %v, want audit.events", entry["topic"])
	}
}

func TestWatermillLogger_With(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	wm := NewWatermillLoggerWithLogger(zerolog.New(&buf))

	child := wm.With(watermill.LogFields{"handler": "audit-store"})
	child.Info("message handled", nil)

	if entry := decodeLogLine(t, &buf); entry["handler"] != "audit-store" {
		t.Errorf("handler = %v, want audit-store", entry["handler"])
	}

	buf.Reset()
	wm.Info("parent untouched", nil)
	if _, ok := decodeLogLine(t, &buf)["handler"]; ok {
		t.Error("With must not attach fields to the parent adapter")
	}
}

func TestNewWatermillLogger(t *testing.T) {
	t.Parallel()

	var adapter watermill.LoggerAdapter = NewWatermillLogger()
	if adapter == nil {
		t.Error("expected a non-nil adapter")
	}
}
