// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/driftlight/heliopause/internal/auth"
	"github.com/driftlight/heliopause/internal/config"
	"github.com/driftlight/heliopause/internal/gate"
)

// Router assembles the chi mux from handlers and middleware.
type Router struct {
	config        *config.Config
	handler       *Handler
	chiMiddleware *ChiMiddleware

	// Optional components, attached before Setup().
	gate          *gate.Gate
	verifier      *auth.TokenVerifier
	auditHandlers *AuditHandlers
	gatherer      prometheus.Gatherer
}

// NewRouter creates a router with the core handler set.
func NewRouter(cfg *config.Config, handler *Handler, chiMw *ChiMiddleware) *Router {
	return &Router{
		config:        cfg,
		handler:       handler,
		chiMiddleware: chiMw,
	}
}

// ConfigureGate attaches the request gate to the demonstration group.
// The gate carries its own CSRF and token-bucket collaborators.
func (router *Router) ConfigureGate(g *gate.Gate) {
	router.gate = g
}

// ConfigureAuth attaches the bearer-token verifier guarding the admin
// group. Without it the audit routes are not registered at all.
func (router *Router) ConfigureAuth(v *auth.TokenVerifier) {
	router.verifier = v
}

// ConfigureAudit attaches the admin audit API handlers.
func (router *Router) ConfigureAudit(handlers *AuditHandlers) {
	router.auditHandlers = handlers
}

// ConfigureMetrics attaches the Prometheus registry exported on the
// configured metrics path.
func (router *Router) ConfigureMetrics(g prometheus.Gatherer) {
	router.gatherer = g
}

// Setup builds the mux. Route groups carry independent rate limits
// and middleware stacks; the global stack is limited to what every
// request needs before routing.
func (router *Router) Setup() *chi.Mux {
	r := chi.NewRouter()

	// Global stack. The request ID must exist before anything logs,
	// and CORS must be global so OPTIONS preflight is answered for
	// every route.
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		WriteNotFound(w, req, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		WriteError(w, req, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
	})

	// ========================
	// Health Endpoints
	// ========================
	// Permissive rate limit so orchestrator probes are never
	// throttled. Never behind the gate or authentication.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Use(APISecurityHeaders())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	// ========================
	// Demonstration Endpoints
	// ========================
	// The full defense stack: group rate limit, security headers,
	// metrics, then the gate. CSRF verification and the per-client
	// token bucket run inside the gate as attached collaborators.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(router.chiMiddleware.Metrics())
		if router.gate != nil {
			r.Use(router.gate.Middleware)
		}

		r.Get("/csrf", router.handler.CSRFToken)
		r.Post("/contact", router.handler.Contact)
		r.Post("/newsletter", router.handler.Newsletter)
	})

	// ========================
	// Admin Audit API
	// ========================
	if router.auditHandlers != nil {
		router.registerAuditRoutes(r)
	}

	// ========================
	// Observability
	// ========================
	if router.config.Metrics.Enabled && router.gatherer != nil {
		path := router.config.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.HandlerFor(router.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

// registerAuditRoutes adds the admin audit trail routes. Audit data
// is sensitive, so the group carries the strict admin rate limit and
// bearer-token verification.
func (router *Router) registerAuditRoutes(r chi.Router) {
	r.Route("/api/v1/audit", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitAdmin())
		r.Use(APISecurityHeaders())
		r.Use(router.chiMiddleware.Metrics())
		if router.verifier != nil {
			r.Use(router.verifier.RequireToken)
		}

		// Event listing and querying
		r.Get("/events", router.auditHandlers.ListEvents)
		r.Get("/events/{id}", router.auditHandlers.GetEvent)

		// Statistics and metadata
		r.Get("/stats", router.auditHandlers.GetStats)
		r.Get("/types", router.auditHandlers.GetTypes)

		// Export and live tail
		r.Get("/export", router.auditHandlers.ExportEvents)
		r.Get("/stream", router.auditHandlers.Stream)

		// Runtime capture toggle
		r.Get("/config", router.auditHandlers.GetConfig)
		r.Put("/config", router.auditHandlers.UpdateConfig)
	})
}
