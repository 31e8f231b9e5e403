// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// contextKey keeps this package's context values from colliding with
// other packages'.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	loggerKey    contextKey = "logger"
)

// GenerateRequestID mints the per-request correlation ID. It is a
// UUID so IDs stay unique across instances behind a load balancer.
func GenerateRequestID() string {
	return uuid.New().String()
}

// ContextWithRequestID attaches a request ID. The request middleware
// calls this once per request; everything downstream reads it back.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request ID, or "" when the context
// never passed through the request middleware.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithLogger carries a pre-built logger in the context. The
// request middleware stores one per request with the request ID
// already baked in, so Ctx can hand it out without rebuilding the
// field set on every log call.
//
//nolint:gocritic // zerolog passes loggers by value
func ContextWithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// Ctx is how handlers and services should log. A logger stored by
// ContextWithLogger is returned as-is; otherwise the global logger is
// used, stamped with the request ID when one is attached. The result
// is always usable, never nil.
//
//	logging.Ctx(ctx).Warn().Str("rule", "sql_injection").Msg("pattern hit")
//	// {"level":"warn","request_id":"...","rule":"sql_injection","message":"pattern hit"}
func Ctx(ctx context.Context) *zerolog.Logger {
	if logger, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		return &logger
	}
	logger := Logger()
	if id := RequestIDFromContext(ctx); id != "" {
		logger = logger.With().Str("request_id", id).Logger()
	}
	return &logger
}

// WithComponent names the subsystem on a child of the global logger.
//
//	gateLog := logging.WithComponent("gate")
func WithComponent(component string) zerolog.Logger {
	return With().Str("component", component).Logger()
}
