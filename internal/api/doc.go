// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

// Package api provides the HTTP surface of the gateway: the chi
// router, the middleware chain, and the request handlers.
//
// # Route Groups
//
// Routes are organized into groups with independent rate limits and
// middleware stacks:
//
//   - /api/v1/health: liveness and readiness probes. Permissive rate
//     limit, never behind the gate, CSRF, or authentication.
//   - /api/v1: the demonstration endpoints (contact form, newsletter
//     signup, CSRF token issue). Behind the full defense stack: gate,
//     CSRF verification, public rate limit, security headers.
//   - /api/v1/audit: the admin audit API. Behind bearer-token
//     verification and the stricter admin rate limit.
//   - /metrics: Prometheus exposition, enabled by configuration.
//
// # Response Format
//
// Every JSON endpoint answers with the APIResponse envelope: a
// success flag, a data payload or a structured APIError, and APIMeta
// carrying the request ID and processing duration. Handlers write
// responses through ResponseWriter rather than touching
// http.ResponseWriter directly.
package api
