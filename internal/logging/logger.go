// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Config selects how the process logs.
type Config struct {
	// Level is the minimum level that gets emitted: trace, debug,
	// info, warn, error, fatal, panic, or disabled.
	Level string

	// Format is "json" for production or "console" for humans.
	Format string

	// Caller adds the file:line of the call site. Off by default;
	// it costs a runtime.Caller per event.
	Caller bool

	// Timestamp stamps every event. On by default.
	Timestamp bool

	// Output receives the log stream. Defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig is JSON at info level on stderr.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Timestamp: true, Output: os.Stderr}
}

// The package keeps one process-wide logger. Everything that logs
// without an explicit logger in hand (the gate, the CSRF middleware,
// request middleware) goes through it, so Init in main reconfigures
// the whole process at once.
var (
	root   zerolog.Logger
	rootMu sync.RWMutex
)

//nolint:gochecknoinits // logging must work before main calls Init
func init() {
	root = build(DefaultConfig())
}

// Init reconfigures the global logger. Call it from main once config
// is loaded; calling it again later is safe and takes effect for all
// subsequent events.
func Init(cfg Config) {
	l := build(cfg)
	rootMu.Lock()
	root = l
	rootMu.Unlock()
}

// build assembles a logger from cfg, filling blanks from defaults.
// The level is zerolog's global gate, so it applies to every logger in
// the binary. Field names and the RFC3339 time format are zerolog's
// defaults.
func build(cfg Config) zerolog.Logger {
	def := DefaultConfig()
	if cfg.Level == "" {
		cfg.Level = def.Level
	}
	if cfg.Format == "" {
		cfg.Format = def.Format
	}
	if cfg.Output == nil {
		cfg.Output = def.Output
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: "15:04:05"}
	}

	l := zerolog.New(out)
	if cfg.Timestamp {
		l = l.With().Timestamp().Logger()
	}
	if cfg.Caller {
		l = l.With().Caller().Logger()
	}
	return l
}

// parseLevel maps a config string onto a zerolog level. "warning" is
// accepted as an alias for warn, and unknown strings fall back to info
// rather than failing startup.
func parseLevel(level string) zerolog.Level {
	if strings.EqualFold(level, "warning") {
		return zerolog.WarnLevel
	}
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return parsed
}

// Logger returns a copy of the global logger.
func Logger() zerolog.Logger {
	rootMu.RLock()
	defer rootMu.RUnlock()
	return root
}

// SetLogger swaps the global logger wholesale. Tests use it to
// capture output; prefer Init everywhere else.
//
//nolint:gocritic // zerolog passes loggers by value
func SetLogger(l zerolog.Logger) {
	rootMu.Lock()
	root = l
	rootMu.Unlock()
}

// With opens a child context on the global logger:
//
//	csrfLog := logging.With().Str("component", "csrf").Logger()
func With() zerolog.Context {
	return Logger().With()
}

// The level starters below call through the package var under RLock
// rather than Logger(): zerolog's event starters have pointer
// receivers, so they need an addressable logger.

// Trace starts a trace-level event.
func Trace() *zerolog.Event {
	rootMu.RLock()
	defer rootMu.RUnlock()
	return root.Trace()
}

// Debug starts a debug-level event.
func Debug() *zerolog.Event {
	rootMu.RLock()
	defer rootMu.RUnlock()
	return root.Debug()
}

// Info starts an info-level event.
func Info() *zerolog.Event {
	rootMu.RLock()
	defer rootMu.RUnlock()
	return root.Info()
}

// Warn starts a warn-level event.
func Warn() *zerolog.Event {
	rootMu.RLock()
	defer rootMu.RUnlock()
	return root.Warn()
}

// Error starts an error-level event.
func Error() *zerolog.Event {
	rootMu.RLock()
	defer rootMu.RUnlock()
	return root.Error()
}

// Fatal starts a fatal-level event; zerolog calls os.Exit(1) once the
// event is sent.
func Fatal() *zerolog.Event {
	rootMu.RLock()
	defer rootMu.RUnlock()
	return root.Fatal()
}

// Err starts an error-level event carrying err, or info level when
// err is nil. Shorthand for Error().Err(err).
func Err(err error) *zerolog.Event {
	rootMu.RLock()
	defer rootMu.RUnlock()
	return root.Err(err)
}

// NewTestLogger returns a timestamped logger writing to w, for tests
// that assert on output:
//
//	out := &bytes.Buffer{}
//	logger := logging.NewTestLogger(out)
func NewTestLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}
