// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/driftlight/heliopause/internal/dbmap"
	"github.com/driftlight/heliopause/internal/logging"
	"github.com/driftlight/heliopause/internal/storage"
	"github.com/driftlight/heliopause/internal/validation"
)

// Contact handles POST /api/v1/contact.
// The body has passed the gate's structural pass by the time it gets
// here; this handler enforces the per-field form rules and persists
// the message.
func (h *Handler) Contact(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.contacts == nil {
		rw.ServiceUnavailable("Contact storage is not configured")
		return
	}

	var req ContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("Request body must be valid JSON")
		return
	}

	if errs := validation.ValidateStruct(&req); errs != nil {
		rw.ValidationError("Request validation failed", errs)
		return
	}

	msg := &storage.ContactMessage{
		Name:     req.Name,
		Email:    req.Email,
		Message:  req.Message,
		SourceIP: r.RemoteAddr,
	}

	if err := h.contacts.Save(r.Context(), msg); err != nil {
		h.storageError(rw, r, err, map[string]any{
			"name":    req.Name,
			"email":   req.Email,
			"message": req.Message,
		})
		return
	}

	logging.Ctx(r.Context()).Info().Msg("Contact message stored")
	rw.Created(map[string]string{"status": "received"})
}

// Newsletter handles POST /api/v1/newsletter.
// Duplicate signups surface as a unique-constraint violation from the
// store; the mapper turns that into a field-attributed 400 instead of
// a 500.
func (h *Handler) Newsletter(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.newsletter == nil {
		rw.ServiceUnavailable("Newsletter storage is not configured")
		return
	}

	var req NewsletterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("Request body must be valid JSON")
		return
	}

	if errs := validation.ValidateStruct(&req); errs != nil {
		rw.ValidationError("Request validation failed", errs)
		return
	}

	sub := &storage.NewsletterSubscriber{
		Email:    req.Email,
		SourceIP: r.RemoteAddr,
	}

	if err := h.newsletter.Subscribe(r.Context(), sub); err != nil {
		h.storageError(rw, r, err, map[string]any{"email": req.Email})
		return
	}

	logging.Ctx(r.Context()).Info().Msg("Newsletter subscription stored")
	rw.Created(map[string]string{"status": "subscribed"})
}

// CSRFToken handles GET /api/v1/csrf.
// Issues the double-submit cookie and returns the token so SPA
// clients can echo it in the configured header on unsafe requests.
func (h *Handler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.csrf == nil {
		rw.ServiceUnavailable("CSRF protection is disabled")
		return
	}

	token, err := h.csrf.IssueToken(w, r)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to issue CSRF token")
		rw.InternalError("Could not issue CSRF token")
		return
	}

	rw.Success(map[string]string{
		"token":  token,
		"header": h.config.CSRF.HeaderName,
	})
}

// storageError routes a failed store call to the right response:
// constraint violations become field-attributed 400s, an open circuit
// becomes 503, anything else is a masked 500.
func (h *Handler) storageError(rw *ResponseWriter, r *http.Request, err error, original map[string]any) {
	switch {
	case dbmap.IsConstraintViolation(err):
		findings := h.mapper.Map(err, original)
		h.auditConstraint(r, findings)
		rw.ValidationError("Request validation failed", findings)

	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		rw.ServiceUnavailable("Storage is temporarily unavailable")

	default:
		rw.DatabaseError(err)
	}
}

func (h *Handler) auditConstraint(r *http.Request, findings []validation.ValidationError) {
	for _, f := range findings {
		h.auditor.LogConstraintViolation(r.Context(), r, f.Code, f.Field)
	}
}
