// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/driftlight/heliopause/internal/logging"
)

type contextKey string

const claimsContextKey contextKey = "auth_claims"

// ContextWithClaims stores verified claims on the context.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// ClaimsFromContext returns the verified claims, or nil outside a
// protected route.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsContextKey).(*Claims)
	return claims
}

// RequireToken guards a route group with bearer-token verification.
// Requests without a valid token get 401 JSON; valid claims land on
// the request context.
func (v *TokenVerifier) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			unauthorized(w, "missing bearer token")
			return
		}

		claims, err := v.VerifyToken(raw)
		if err != nil {
			logging.Warn().
				Err(err).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Msg("admin token rejected")
			unauthorized(w, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
	})
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="heliopause admin"`)
	w.WriteHeader(http.StatusUnauthorized)
	//nolint:errcheck // error response
	w.Write([]byte(`{"error":"Unauthorized","message":"` + msg + `"}`))
}
