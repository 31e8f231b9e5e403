// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/cors"

	"github.com/driftlight/heliopause/internal/audit"
	"github.com/driftlight/heliopause/internal/config"
	"github.com/driftlight/heliopause/internal/logging"
	"github.com/driftlight/heliopause/internal/metrics"
	"github.com/driftlight/heliopause/internal/ratelimit"
)

// contentSecurityPolicy mirrors the policy the gateway has always
// served: self-hosted by default, Google Fonts for styles and fonts,
// https images allowed for externally hosted cover art.
const contentSecurityPolicy = "default-src 'self'; " +
	"img-src 'self' data: https:; " +
	"style-src 'self' 'unsafe-inline' https://fonts.googleapis.com; " +
	"font-src 'self' https://fonts.gstatic.com"

// ChiMiddleware bundles the router's middleware constructors around
// shared configuration, the audit trail, and the metrics recorder.
type ChiMiddleware struct {
	config  *config.Config
	cors    *cors.Cors
	auditor *audit.Logger
	rec     *metrics.Recorder
}

// NewChiMiddleware creates the middleware set from configuration.
// auditLog and rec may be nil.
func NewChiMiddleware(cfg *config.Config, auditLog *audit.Logger, rec *metrics.Recorder) *ChiMiddleware {
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	})

	return &ChiMiddleware{
		config:  cfg,
		cors:    corsHandler,
		auditor: auditLog,
		rec:     rec,
	}
}

// CORS returns the CORS middleware. Applied globally so OPTIONS
// preflight requests are answered before any route group's stack.
func (m *ChiMiddleware) CORS() func(http.Handler) http.Handler {
	return m.cors.Handler
}

// RateLimit returns the public route group's limit.
func (m *ChiMiddleware) RateLimit() func(http.Handler) http.Handler {
	return m.groupLimit(ratelimit.GroupGeneral, m.config.RateLimit.Requests, m.config.RateLimit.Window)
}

// RateLimitAdmin returns the tighter admin group's limit.
func (m *ChiMiddleware) RateLimitAdmin() func(http.Handler) http.Handler {
	return m.groupLimit(ratelimit.GroupAdmin, m.config.RateLimit.AdminRequests, m.config.RateLimit.AdminWindow)
}

// RateLimitHealth returns the permissive health probe limit.
// Orchestrators poll these endpoints continuously.
func (m *ChiMiddleware) RateLimitHealth() func(http.Handler) http.Handler {
	return m.groupLimit(ratelimit.GroupHealth, m.config.RateLimit.HealthRequests, m.config.RateLimit.HealthWindow)
}

func (m *ChiMiddleware) groupLimit(group string, requests int, window time.Duration) func(http.Handler) http.Handler {
	if !m.config.RateLimit.Enabled {
		return ratelimit.Disabled()
	}
	return ratelimit.Limit(ratelimit.GroupConfig{
		Group:    group,
		Requests: requests,
		Window:   window,
		OnLimit:  m.auditRateLimited,
	}, m.rec)
}

func (m *ChiMiddleware) auditRateLimited(r *http.Request, group string) {
	m.auditor.LogRateLimited(r.Context(), r, group)
}

// RequestIDWithLogging assigns each request an ID, honoring an
// X-Request-ID header from a trusted upstream proxy, and threads it
// through the logging context so every log line and audit event of
// the request carries it. The context also gets a logger with the ID
// baked in, which logging.Ctx hands back to downstream handlers.
func RequestIDWithLogging() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = logging.GenerateRequestID()
			}

			ctx := logging.ContextWithRequestID(r.Context(), requestID)
			ctx = logging.ContextWithLogger(ctx, logging.With().Str("request_id", requestID).Logger())
			w.Header().Set("X-Request-ID", requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// APISecurityHeaders sets the browser-facing security headers on
// every response in the group. HSTS is added only when the request
// arrived over TLS, directly or via a terminating proxy.
func APISecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Content-Security-Policy", contentSecurityPolicy)

			if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Metrics records per-request duration, status, and in-flight gauge.
func (m *ChiMiddleware) Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.rec.TrackActiveRequest(true)
			defer m.rec.TrackActiveRequest(false)

			start := time.Now()
			wrapper := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapper, r)

			m.rec.RecordAPIRequest(
				r.Method,
				r.URL.Path,
				strconv.Itoa(wrapper.statusCode),
				time.Since(start),
			)
		})
	}
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
