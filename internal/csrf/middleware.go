// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

// Package csrf implements double-submit cookie protection: a random
// token travels in a cookie and must be echoed back in a header or
// form field on state-changing requests, with server-side store
// presence as the third factor.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/driftlight/heliopause/internal/logging"
	"github.com/driftlight/heliopause/internal/metrics"
)

// Validation errors surfaced through the failure hook.
var (
	// ErrTokenMissing indicates no token arrived in the cookie or the
	// request channel.
	ErrTokenMissing = errors.New("csrf token missing")

	// ErrTokenMismatch indicates cookie and request tokens differ.
	ErrTokenMismatch = errors.New("csrf token mismatch")

	// ErrTokenUnknown indicates the token is not in the server-side
	// store (never issued, or expired).
	ErrTokenUnknown = errors.New("csrf token unknown or expired")
)

// safe methods per RFC 7231 never mutate state and skip validation
var safeMethods = []string{http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace}

// Config holds middleware settings. Zero values fall back to the
// defaults documented per field.
type Config struct {
	// CookieName is the token cookie's name (default "_heliopause_csrf").
	CookieName string

	// HeaderName carries the echoed token (default "X-CSRF-Token").
	HeaderName string

	// FormField is the fallback form field name (default "csrf_token").
	FormField string

	// CookiePath scopes the cookie (default "/").
	CookiePath string

	// CookieSecure sets the Secure flag. Leave false only for
	// plain-HTTP development setups.
	CookieSecure bool

	// TokenTTL bounds token lifetime (default 4h).
	TokenTTL time.Duration

	// TokenBytes is the random token length before encoding
	// (default 32).
	TokenBytes int

	// ExemptPaths skip protection entirely by prefix match.
	ExemptPaths []string

	// FailureHook observes rejected requests with a short reason
	// ("missing", "mismatch", "unknown"). Used for audit events.
	FailureHook func(r *http.Request, reason string)
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		CookieName: "_heliopause_csrf",
		HeaderName: "X-CSRF-Token",
		FormField:  "csrf_token",
		CookiePath: "/",
		TokenTTL:   4 * time.Hour,
		TokenBytes: 32,
	}
}

// Middleware enforces the double-submit contract. It serves both as
// router middleware (Protect) and as the gate's token-verification
// capability (Verify).
type Middleware struct {
	config  Config
	store   Store
	metrics *metrics.Recorder
}

// New creates the middleware over the given store. rec may be nil.
func New(cfg Config, store Store, rec *metrics.Recorder) *Middleware {
	def := DefaultConfig()
	if cfg.CookieName == "" {
		cfg.CookieName = def.CookieName
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = def.HeaderName
	}
	if cfg.FormField == "" {
		cfg.FormField = def.FormField
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = def.CookiePath
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = def.TokenTTL
	}
	if cfg.TokenBytes == 0 {
		cfg.TokenBytes = def.TokenBytes
	}
	if store == nil {
		store = NewMemoryStore()
	}

	return &Middleware{config: cfg, store: store, metrics: rec}
}

// Protect wraps next with CSRF enforcement: safe methods get a token
// issued, unsafe methods must present a valid one.
func (m *Middleware) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.isExemptPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if isSafeMethod(r.Method) {
			m.ensureToken(w, r)
			next.ServeHTTP(w, r)
			return
		}

		if err := m.validate(r); err != nil {
			m.reject(w, r, err)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Verify reports whether the request passes CSRF checks. Safe
// methods and exempt paths always pass. Unlike Protect, Verify never
// writes a response; the caller owns rejection.
func (m *Middleware) Verify(r *http.Request) bool {
	if m.isExemptPath(r.URL.Path) || isSafeMethod(r.Method) {
		return true
	}
	if err := m.validate(r); err != nil {
		m.record(r, err)
		return false
	}
	return true
}

// IssueToken returns a valid token for the client, reusing the
// cookie's token when it is still live and minting a fresh one
// otherwise. The cookie is (re)set when a new token is minted.
func (m *Middleware) IssueToken(w http.ResponseWriter, r *http.Request) (string, error) {
	if cookie, err := r.Cookie(m.config.CookieName); err == nil && cookie.Value != "" {
		if m.store.Valid(cookie.Value) {
			return cookie.Value, nil
		}
	}

	token, err := m.generateToken()
	if err != nil {
		return "", err
	}
	if err := m.store.Save(token, m.config.TokenTTL); err != nil {
		return "", err
	}
	m.setTokenCookie(w, token)
	return token, nil
}

// Store exposes the underlying token store for lifecycle management.
func (m *Middleware) Store() Store {
	return m.store
}

func (m *Middleware) ensureToken(w http.ResponseWriter, r *http.Request) {
	if _, err := m.IssueToken(w, r); err != nil {
		logging.Error().Err(err).Msg("csrf: issue token")
	}
}

func (m *Middleware) validate(r *http.Request) error {
	cookie, err := r.Cookie(m.config.CookieName)
	if err != nil || cookie.Value == "" {
		return ErrTokenMissing
	}

	requestToken := m.tokenFromRequest(r)
	if requestToken == "" {
		return ErrTokenMissing
	}

	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(requestToken)) != 1 {
		return ErrTokenMismatch
	}

	if !m.store.Valid(cookie.Value) {
		return ErrTokenUnknown
	}

	return nil
}

// tokenFromRequest reads the echoed token: header first, then the
// form field for form posts.
func (m *Middleware) tokenFromRequest(r *http.Request) string {
	if token := r.Header.Get(m.config.HeaderName); token != "" {
		return token
	}
	if r.Method == http.MethodPost {
		ct := r.Header.Get("Content-Type")
		if strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data") {
			if r.PostForm == nil {
				//nolint:errcheck // best-effort form parsing
				r.ParseForm()
			}
			return r.PostFormValue(m.config.FormField)
		}
	}
	return ""
}

func (m *Middleware) generateToken() (string, error) {
	buf := make([]byte, m.config.TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (m *Middleware) setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.config.CookieName,
		Value:    token,
		Path:     m.config.CookiePath,
		MaxAge:   int(m.config.TokenTTL.Seconds()),
		Secure:   m.config.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *Middleware) isExemptPath(path string) bool {
	for _, exempt := range m.config.ExemptPaths {
		if exempt != "" && strings.HasPrefix(path, exempt) {
			return true
		}
	}
	return false
}

func isSafeMethod(method string) bool {
	for _, safe := range safeMethods {
		if strings.EqualFold(method, safe) {
			return true
		}
	}
	return false
}

// record emits the failure metric and hook without writing a
// response.
func (m *Middleware) record(r *http.Request, err error) {
	reason := failureReason(err)
	m.metrics.RecordCSRFFailure(reason)
	if m.config.FailureHook != nil {
		m.config.FailureHook(r, reason)
	}
	logging.Warn().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("reason", reason).
		Msg("csrf validation failed")
}

func (m *Middleware) reject(w http.ResponseWriter, r *http.Request, err error) {
	m.record(r, err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)

	var msg string
	switch {
	case errors.Is(err, ErrTokenMissing):
		msg = "CSRF token missing"
	case errors.Is(err, ErrTokenMismatch):
		msg = "CSRF token invalid"
	case errors.Is(err, ErrTokenUnknown):
		msg = "CSRF token expired"
	default:
		msg = "CSRF validation failed"
	}

	//nolint:errcheck // error response
	w.Write([]byte(`{"error":"Forbidden","message":"` + msg + `"}`))
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrTokenMissing):
		return "missing"
	case errors.Is(err, ErrTokenMismatch):
		return "mismatch"
	case errors.Is(err, ErrTokenUnknown):
		return "unknown"
	default:
		return "invalid"
	}
}
