// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package logging

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// Package init pins zerolog's global level to the default config
// (info), which would silently swallow the debug and trace events
// several tests emit. Start the test binary from a fully permissive
// baseline instead; every non-parallel test that reconfigures global
// state restores it through preserveGlobalLogging, so the baseline
// still holds once the parallel tests run.
func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	os.Exit(m.Run())
}

// preserveGlobalLogging snapshots the global logger and level and
// restores both when the test finishes. Required in every
// non-parallel test that calls Init or SetLogger.
func preserveGlobalLogging(t *testing.T) {
	t.Helper()
	logger := Logger()
	level := zerolog.GlobalLevel()
	t.Cleanup(func() {
		SetLogger(logger)
		zerolog.SetGlobalLevel(level)
	})
}

// decodeLogLine parses the first JSON line written to buf.
func decodeLogLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	line, _, _ := strings.Cut(strings.TrimSpace(buf.String()), "\n")

	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not JSON: %q: %v", line, err)
	}
	return entry
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	if cfg.Level != "info" || cfg.Format != "json" {
		t.Errorf("DefaultConfig() = %+v, want info-level json", cfg)
	}
	if !cfg.Timestamp {
		t.Error("default config should stamp events")
	}
	if cfg.Caller {
		t.Error("default config should not pay for caller lookup")
	}
}

func TestInit(t *testing.T) {
	preserveGlobalLogging(t)

	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})

	Debug().Str("stage", "boot").Msg("gate configured")

	entry := decodeLogLine(t, &buf)
	if entry["level"] != "debug" {
		t.Errorf("level = %v, want debug", entry["level"])
	}
	if entry["message"] != "gate configured" {
		t.Errorf("message = %v, want 'gate configured'", entry["message"])
	}
	if entry["stage"] != "boot" {
		t.Errorf("stage = %v, want boot", entry["stage"])
	}
}

func TestInit_LevelFiltersEvents(t *testing.T) {
	preserveGlobalLogging(t)

	var buf bytes.Buffer
	Init(Config{Level: "warn", Format: "json", Output: &buf})

	Info().Msg("dropped")
	Warn().Msg("kept")

	output := buf.String()
	if strings.Contains(output, "dropped") {
		t.Errorf("info event should be filtered at warn level: %s", output)
	}
	if !strings.Contains(output, "kept") {
		t.Errorf("warn event missing: %s", output)
	}
}

func TestInit_Caller(t *testing.T) {
	preserveGlobalLogging(t)

	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "json", Output: &buf, Caller: true})

	Info().Msg("who called")

	if _, ok := decodeLogLine(t, &buf)["caller"]; !ok {
		t.Error("expected caller field when Caller is set")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"disabled", zerolog.Disabled},
		{"INFO", zerolog.InfoLevel},
		{"unknown", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLevelHelpers(t *testing.T) {
	preserveGlobalLogging(t)

	var buf bytes.Buffer
	Init(Config{Level: "trace", Format: "json", Output: &buf})

	helpers := []struct {
		name  string
		start func() *zerolog.Event
	}{
		{"trace", Trace},
		{"debug", Debug},
		{"info", Info},
		{"warn", Warn},
		{"error", Error},
	}

	for _, h := range helpers {
		buf.Reset()
		h.start().Msg("level check")

		if entry := decodeLogLine(t, &buf); entry["level"] != h.name {
			t.Errorf("%s helper wrote level %v", h.name, entry["level"])
		}
	}
}

func TestWith(t *testing.T) {
	preserveGlobalLogging(t)

	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "json", Output: &buf})

	gateLog := With().Str("component", "gate").Logger()
	gateLog.Info().Msg("scoped")

	if entry := decodeLogLine(t, &buf); entry["component"] != "gate" {
		t.Errorf("component = %v, want gate", entry["component"])
	}
}

func TestNewTestLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewTestLogger(&buf)

	logger.Info().Str("key", "value").Msg("test message")

	entry := decodeLogLine(t, &buf)
	if entry["key"] != "value" {
		t.Errorf("key = %v, want value", entry["key"])
	}
	if entry["message"] != "test message" {
		t.Errorf("message = %v, want 'test message'", entry["message"])
	}
	if _, ok := entry["time"]; !ok {
		t.Error("test logger should stamp events")
	}
}

func TestSetLogger(t *testing.T) {
	preserveGlobalLogging(t)

	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))

	Info().Msg("rerouted")

	if !strings.Contains(buf.String(), "rerouted") {
		t.Errorf("expected event through the swapped logger: %s", buf.String())
	}
}

func TestConsoleFormat(t *testing.T) {
	preserveGlobalLogging(t)

	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "console", Output: &buf})

	Info().Msg("console test")

	output := buf.String()
	if !strings.Contains(output, "console test") {
		t.Errorf("expected message in console output: %s", output)
	}
	if json.Valid(bytes.TrimSpace(buf.Bytes())) {
		t.Errorf("console output should not be JSON: %s", output)
	}
}

func TestErr(t *testing.T) {
	preserveGlobalLogging(t)

	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "json", Output: &buf})

	Err(errors.New("pipe burst")).Msg("operation failed")

	entry := decodeLogLine(t, &buf)
	if entry["level"] != "error" {
		t.Errorf("Err with a non-nil error should log at error level, got %v", entry["level"])
	}
	if entry["error"] != "pipe burst" {
		t.Errorf("error field = %v, want 'pipe burst'", entry["error"])
	}
}

func TestErr_NilLogsAtInfo(t *testing.T) {
	preserveGlobalLogging(t)

	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "json", Output: &buf})

	Err(nil).Msg("no failure")

	if entry := decodeLogLine(t, &buf); entry["level"] != "info" {
		t.Errorf("Err(nil) should log at info level, got %v", entry["level"])
	}
}
