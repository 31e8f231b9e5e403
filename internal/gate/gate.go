// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

// Package gate implements the request gate, the middleware every
// guarded request passes through on its way to a handler.
//
// Each request moves through a small state machine:
//
//	RECEIVED → (SANITIZED) → VALIDATED → {ACCEPTED | REJECTED}
//
// The gate buffers the query, route params, and JSON body, optionally
// HTML-escapes every string leaf, then runs the structural validator
// over all three roots. Any error-severity finding rejects the request
// with a 400 listing the blocking findings; warning-only results are
// accepted and recorded in the audit trail. Exempt path prefixes skip
// the gate and both collaborators entirely.
//
// Two capabilities plug in ahead of validation: a RateLimiter (429 on
// refusal) and a TokenVerifier (403 on refusal). Both are optional.
//
// A panic inside sanitization or validation is recovered at the gate
// boundary. The default is to fail open: the fault is logged and
// audited and the request proceeds unvalidated, so a validator bug
// degrades protection rather than availability. FailClosed flips that
// tradeoff to a 500.
package gate

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/driftlight/heliopause/internal/audit"
	"github.com/driftlight/heliopause/internal/logging"
	"github.com/driftlight/heliopause/internal/metrics"
	"github.com/driftlight/heliopause/internal/sanitize"
	"github.com/driftlight/heliopause/internal/validation"
)

// validateFn is swapped in tests to exercise the fault path.
var validateFn = validation.ValidateRequest

// RateLimiter is the rate-limit capability the gate consumes. A nil
// limiter admits everything.
type RateLimiter interface {
	Allow(r *http.Request) bool
}

// TokenVerifier is the CSRF capability the gate consumes. A nil
// verifier admits everything.
type TokenVerifier interface {
	Verify(r *http.Request) bool
}

// Config holds gate settings.
type Config struct {
	// Options bound the structural validator's pass.
	Options validation.Options

	// FailClosed rejects requests with a 500 when the gate itself
	// faults. The default fails open: the fault is audited and the
	// request proceeds unvalidated.
	FailClosed bool

	// MaxBodyBytes caps the buffered request body (default 1 MiB).
	MaxBodyBytes int64

	// ExemptPaths bypass validation and both collaborators by prefix
	// match on the request path.
	ExemptPaths []string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Options:      validation.DefaultOptions(),
		MaxBodyBytes: 1 << 20,
	}
}

// Gate orchestrates one validation pass per request.
type Gate struct {
	config   Config
	audit    *audit.Logger
	metrics  *metrics.Recorder
	seclog   *logging.SecurityLogger
	limiter  RateLimiter
	verifier TokenVerifier
}

// New creates a gate. auditLog and rec may be nil; collaborators are
// attached with SetRateLimiter and SetTokenVerifier.
func New(cfg Config, auditLog *audit.Logger, rec *metrics.Recorder) *Gate {
	def := DefaultConfig()
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	if cfg.Options.MaxDepth <= 0 {
		cfg.Options.MaxDepth = def.Options.MaxDepth
	}
	if cfg.Options.MaxArrayLength <= 0 {
		cfg.Options.MaxArrayLength = def.Options.MaxArrayLength
	}
	if cfg.Options.MaxStringLength <= 0 {
		cfg.Options.MaxStringLength = def.Options.MaxStringLength
	}

	return &Gate{
		config:  cfg,
		audit:   auditLog,
		metrics: rec,
		seclog:  logging.NewSecurityLogger(),
	}
}

// SetRateLimiter attaches the rate-limit capability.
func (g *Gate) SetRateLimiter(l RateLimiter) {
	g.limiter = l
}

// SetTokenVerifier attaches the CSRF capability.
func (g *Gate) SetTokenVerifier(v TokenVerifier) {
	g.verifier = v
}

// Middleware returns the gate as standard chi middleware.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()

		if g.isExemptPath(r.URL.Path) {
			g.audit.LogExempted(ctx, r)
			g.metrics.RecordGateDecision("exempted", time.Since(start))
			next.ServeHTTP(w, r)
			return
		}

		if g.limiter != nil && !g.limiter.Allow(r) {
			g.audit.LogRateLimited(ctx, r, "gate")
			g.metrics.RecordRateLimited("gate")
			g.seclog.LogRateLimited(r.RemoteAddr, r.URL.Path, r.Method)
			writeError(w, http.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded")
			return
		}

		if g.verifier != nil && !g.verifier.Verify(r) {
			g.audit.LogCSRFFailure(ctx, r, "verification failed")
			g.seclog.LogCSRFFailure(r.RemoteAddr, r.UserAgent(), r.URL.Path)
			writeError(w, http.StatusForbidden, "Forbidden", "CSRF validation failed")
			return
		}

		roots, err := g.capture(w, r)
		if err != nil {
			if errors.Is(err, errBodyTooLarge) {
				g.rejectOversized(w, r, start)
				return
			}
			g.fault(w, r, next, start, err)
			return
		}

		result, rewritten, faultErr := g.inspect(roots)
		if faultErr != nil {
			g.fault(w, r, next, start, faultErr)
			return
		}

		for _, finding := range result.Errors {
			g.metrics.RecordFinding(finding.Category, string(finding.Severity))
		}

		if !result.Valid {
			g.reject(w, r, start, result)
			return
		}

		if warnings := result.Warnings(); len(warnings) > 0 {
			g.audit.LogValidationWarned(ctx, r, warnings)
			g.seclog.LogValidationWarned(r.RemoteAddr, r.URL.Path, r.Method, len(warnings))
		}

		if rewritten != nil {
			r.Body = io.NopCloser(bytes.NewReader(rewritten))
			r.ContentLength = int64(len(rewritten))
		}
		roots.writeBack(r)

		g.metrics.RecordGateDecision("accepted", time.Since(start))
		next.ServeHTTP(w, r)
	})
}

// inspect sanitizes and validates the captured roots. Sanitization
// runs exactly once per request, before validation, so the validator
// always sees what downstream handlers will see; the sanitized roots
// replace the captured ones so writeBack can push them onto the
// request. Panics inside either step are converted to an error so one
// malformed payload cannot take down the pipeline.
func (g *Gate) inspect(roots *requestRoots) (result validation.Result, rewritten []byte, fault error) {
	defer func() {
		if rec := recover(); rec != nil {
			fault = fmt.Errorf("gate fault: %v", rec)
		}
	}()

	if g.config.Options.Sanitize {
		roots.query, roots.queryRewrites = sanitize.ValueCount(roots.query)
		roots.params, roots.paramRewrites = sanitize.ValueCount(roots.params)
		roots.body, roots.bodyRewrites = sanitize.ValueCount(roots.body)
		g.metrics.RecordSanitizerRewrites(roots.queryRewrites + roots.paramRewrites + roots.bodyRewrites)

		if roots.bodyRewrites > 0 && roots.bodyDecoded {
			data, err := json.Marshal(roots.body)
			if err != nil {
				return validation.Result{}, nil, fmt.Errorf("re-serialize sanitized body: %w", err)
			}
			rewritten = data
		}
	}

	result = validateFn(roots.query, roots.params, roots.body, g.config.Options)
	return result, rewritten, nil
}

// reject writes the 400 and records the decision. Clients see only
// the error-severity findings; the audit event carries all of them.
func (g *Gate) reject(w http.ResponseWriter, r *http.Request, start time.Time, result validation.Result) {
	blocking := result.Blocking()

	g.audit.LogValidationRejected(r.Context(), r, result.Errors)
	for _, e := range blocking {
		g.metrics.RecordRejection(e.Category)
	}
	g.metrics.RecordGateDecision("rejected", time.Since(start))
	g.seclog.LogValidationRejected(r.RemoteAddr, r.UserAgent(), r.URL.Path, r.Method, len(result.Errors))

	details := make([]rejectionDetail, len(blocking))
	for i, e := range blocking {
		details[i] = rejectionDetail{Path: e.Path, Message: e.Message}
	}
	writeJSON(w, http.StatusBadRequest, rejectionResponse{
		Error:   "Bad Request",
		Message: "Input validation failed",
		Details: details,
	})
}

// rejectOversized treats a too-large body like any other structural
// limit violation.
func (g *Gate) rejectOversized(w http.ResponseWriter, r *http.Request, start time.Time) {
	finding := validation.ValidationError{
		Path:     "body",
		Message:  fmt.Sprintf("request body exceeds maximum size of %d bytes", g.config.MaxBodyBytes),
		Severity: validation.SeverityError,
		Category: validation.CategoryStructural,
	}

	g.audit.LogValidationRejected(r.Context(), r, []validation.ValidationError{finding})
	g.metrics.RecordRejection(validation.CategoryStructural)
	g.metrics.RecordGateDecision("rejected", time.Since(start))
	g.seclog.LogValidationRejected(r.RemoteAddr, r.UserAgent(), r.URL.Path, r.Method, 1)

	writeJSON(w, http.StatusBadRequest, rejectionResponse{
		Error:   "Bad Request",
		Message: "Input validation failed",
		Details: []rejectionDetail{{Path: finding.Path, Message: finding.Message}},
	})
}

// fault handles a recovered gate failure per the configured policy.
func (g *Gate) fault(w http.ResponseWriter, r *http.Request, next http.Handler, start time.Time, err error) {
	logging.Error().
		Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Bool("fail_closed", g.config.FailClosed).
		Msg("gate fault")

	if g.config.FailClosed {
		g.audit.LogFailClosed(r.Context(), r, err.Error())
		g.metrics.RecordGateDecision("fail_closed", time.Since(start))
		g.seclog.LogFailClosed(r.RemoteAddr, r.URL.Path, r.Method, err.Error())
		writeError(w, http.StatusInternalServerError, "Internal Server Error", "Request could not be validated")
		return
	}

	g.audit.LogFailOpen(r.Context(), r, err.Error())
	g.metrics.RecordGateDecision("fail_open", time.Since(start))
	g.seclog.LogFailOpen(r.RemoteAddr, r.URL.Path, r.Method, err.Error())
	next.ServeHTTP(w, r)
}

func (g *Gate) isExemptPath(path string) bool {
	for _, exempt := range g.config.ExemptPaths {
		if exempt != "" && strings.HasPrefix(path, exempt) {
			return true
		}
	}
	return false
}

type rejectionDetail struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

type rejectionResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Details []rejectionDetail `json:"details"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // error response
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, title, message string) {
	writeJSON(w, status, errorResponse{Error: title, Message: message})
}
