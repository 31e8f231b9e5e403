// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

// Package ratelimit provides the router's per-group request limits on
// go-chi/httprate and the gate's per-client token bucket capability.
package ratelimit

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/driftlight/heliopause/internal/logging"
	"github.com/driftlight/heliopause/internal/metrics"
)

// Route groups with independent limits.
const (
	GroupGeneral = "general"
	GroupAdmin   = "admin"
	GroupHealth  = "health"
)

// GroupConfig describes one route group's limit.
type GroupConfig struct {
	// Group names the limit for metrics and audit.
	Group string

	// Requests per Window per client IP and endpoint.
	Requests int
	Window   time.Duration

	// OnLimit observes rejected requests. Used for audit events.
	OnLimit func(r *http.Request, group string)
}

// Limit returns a chi middleware enforcing the group's limit, keyed
// by client IP and endpoint. Rejections answer 429 JSON with the
// standard X-RateLimit-* headers httprate maintains.
func Limit(cfg GroupConfig, rec *metrics.Recorder) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.Requests,
		cfg.Window,
		httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
		httprate.WithLimitHandler(limitHandler(cfg, rec)),
	)
}

// Disabled returns a pass-through middleware for configurations with
// rate limiting turned off.
func Disabled() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return next
	}
}

func limitHandler(cfg GroupConfig, rec *metrics.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec.RecordRateLimited(cfg.Group)
		if cfg.OnLimit != nil {
			cfg.OnLimit(r, cfg.Group)
		}
		logging.Warn().
			Str("group", cfg.Group).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Msg("rate limit exceeded")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		//nolint:errcheck // error response
		w.Write([]byte(`{"error":"Too Many Requests","message":"rate limit exceeded"}`))
	}
}
