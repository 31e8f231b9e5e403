// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package validation

import (
	"fmt"

	"github.com/driftlight/heliopause/internal/threat"
)

// Severity mirrors the classifier's severity; only error-level
// entries block a request.
type Severity = threat.Severity

const (
	SeverityError   = threat.SeverityError
	SeverityWarning = threat.SeverityWarning
)

// CategoryStructural labels findings produced by the walker itself
// (depth, length, cycle violations) rather than a threat detector.
const CategoryStructural = "structural"

// ValidationError is one field-attributed finding from a validation
// pass. Instances are immutable once created and never persisted
// beyond the audit event that carries them.
type ValidationError struct {
	// Path addresses the offending location, e.g. "body.user.email"
	// or "query.ids[2]".
	Path     string   `json:"path"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`

	// Code is a stable machine-readable identifier, set on the
	// constraint-mapping path (e.g. "DB_UNIQUE_VIOLATION").
	Code string `json:"code,omitempty"`

	// Field is the attributed column or form field, set on the
	// constraint-mapping path.
	Field string `json:"field,omitempty"`

	// Category is the threat category or "structural"; used for
	// metrics and audit aggregation, never surfaced to clients.
	Category string `json:"category,omitempty"`

	// Value carries the original field value when the constraint
	// mapper could recover it.
	Value any `json:"value,omitempty"`
}

func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Result is the outcome of one validation pass. Errors preserve
// discovery order: depth-first, sorted map keys, ascending indices,
// query before params before body.
type Result struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

func newResult(errs []ValidationError) Result {
	valid := true
	for _, e := range errs {
		if e.Severity == SeverityError {
			valid = false
			break
		}
	}
	return Result{Valid: valid, Errors: errs}
}

// Blocking returns only the error-severity entries.
func (r Result) Blocking() []ValidationError {
	var out []ValidationError
	for _, e := range r.Errors {
		if e.Severity == SeverityError {
			out = append(out, e)
		}
	}
	return out
}

// Warnings returns only the warning-severity entries.
func (r Result) Warnings() []ValidationError {
	var out []ValidationError
	for _, e := range r.Errors {
		if e.Severity == SeverityWarning {
			out = append(out, e)
		}
	}
	return out
}
