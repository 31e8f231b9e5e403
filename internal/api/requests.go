// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

// HTTP request body structs with go-playground/validator tags. These
// run after the gate's structural pass: the gate rejects hostile
// payloads, the tags enforce the per-field business rules.
//
// The validation tags follow the go-playground/validator v10 syntax:
//   - required: field must be present and non-zero
//   - min,max: numeric or string length bounds
//   - email: RFC 5322 address check
//   - omitempty: skip validation if field is empty/zero

package api

// ContactRequest is the request body for POST /api/v1/contact.
//
// Fields:
//   - Name: sender name (2-100 characters)
//   - Email: sender address (RFC 5322)
//   - Message: message body (10-2000 characters)
type ContactRequest struct {
	Name    string `json:"name" validate:"required,min=2,max=100"`
	Email   string `json:"email" validate:"required,email"`
	Message string `json:"message" validate:"required,min=10,max=2000"`
}

// NewsletterRequest is the request body for POST /api/v1/newsletter.
// Uniqueness of the address is enforced by the database constraint,
// not here; a duplicate comes back as a field-attributed 400 through
// the constraint mapper.
type NewsletterRequest struct {
	Email string `json:"email" validate:"required,email"`
}
