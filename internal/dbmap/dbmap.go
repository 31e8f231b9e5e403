// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

// Package dbmap translates Postgres integrity-constraint violations
// into the field-attributed ValidationError shape, so a duplicate key
// surfaces to the client as a 400 on the offending field instead of a
// bare 500.
package dbmap

import (
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/driftlight/heliopause/internal/metrics"
	"github.com/driftlight/heliopause/internal/validation"
)

// ConstraintType categorizes a mapping entry.
type ConstraintType string

const (
	TypeUnique     ConstraintType = "unique"
	TypeForeignKey ConstraintType = "foreign_key"
	TypeCheck      ConstraintType = "check"
	TypeNotNull    ConstraintType = "not_null"
	TypePrimaryKey ConstraintType = "primary_key"
	TypeCustom     ConstraintType = "custom"
)

// Stable machine-readable codes carried on mapped errors.
const (
	CodeUnique     = "DB_UNIQUE_VIOLATION"
	CodeForeignKey = "DB_FOREIGN_KEY_VIOLATION"
	CodeNotNull    = "DB_NOT_NULL_VIOLATION"
	CodeCheck      = "DB_CHECK_VIOLATION"
	CodeConstraint = "DB_CONSTRAINT_VIOLATION"
	CodeDatabase   = "DB_ERROR"
)

// Postgres SQLSTATE integrity-violation codes the mapper recognizes.
const (
	sqlstateUnique     = "23505"
	sqlstateForeignKey = "23503"
	sqlstateNotNull    = "23502"
	sqlstateCheck      = "23514"
)

// Mapping translates one constraint (by exact name or pattern) into a
// client-facing error. Custom mappings are checked before the
// defaults; the first match wins.
type Mapping struct {
	// Constraint is the exact constraint name to match. Ignored when
	// Pattern is set.
	Constraint string

	// Pattern matches the constraint name when set.
	Pattern *regexp.Regexp

	Type ConstraintType

	// Field overrides automatic field derivation when set.
	Field string

	Message  string
	Code     string
	Severity validation.Severity
}

func (m Mapping) matches(name string) bool {
	if name == "" {
		return false
	}
	if m.Pattern != nil {
		return m.Pattern.MatchString(name)
	}
	return m.Constraint == name
}

// DefaultMappings returns the built-in mapping table: exact entries
// for the bundled schema first, then convention-based patterns for
// standard Postgres constraint suffixes.
func DefaultMappings() []Mapping {
	return []Mapping{
		{
			Constraint: "newsletter_subscribers_email_unique",
			Type:       TypeUnique,
			Field:      "email",
			Message:    "email is already subscribed",
			Code:       CodeUnique,
		},
		{
			Constraint: "contact_messages_email_check",
			Type:       TypeCheck,
			Field:      "email",
			Message:    "email address is not valid",
			Code:       CodeCheck,
		},
		{
			Pattern: regexp.MustCompile(`_pkey$`),
			Type:    TypePrimaryKey,
			Message: "record already exists",
			Code:    CodeUnique,
		},
		{
			Pattern: regexp.MustCompile(`(_unique|_key)$`),
			Type:    TypeUnique,
			Message: "value already exists",
			Code:    CodeUnique,
		},
		{
			Pattern: regexp.MustCompile(`_fkey$`),
			Type:    TypeForeignKey,
			Message: "referenced record does not exist",
			Code:    CodeForeignKey,
		},
		{
			Pattern: regexp.MustCompile(`_check$`),
			Type:    TypeCheck,
			Message: "value violates a data constraint",
			Code:    CodeCheck,
		},
	}
}

// Mapper holds the merged mapping table. Read-only after
// construction, safe for concurrent use.
type Mapper struct {
	mappings []Mapping
	metrics  *metrics.Recorder
}

// New builds a Mapper with custom mappings checked before the
// defaults. rec may be nil.
func New(custom []Mapping, rec *metrics.Recorder) *Mapper {
	merged := make([]Mapping, 0, len(custom)+6)
	merged = append(merged, custom...)
	merged = append(merged, DefaultMappings()...)
	return &Mapper{mappings: merged, metrics: rec}
}

// IsConstraintViolation reports whether err unwraps to a Postgres
// integrity violation the mapper recognizes. Callers use it to pick a
// 400 over a 500.
func IsConstraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case sqlstateUnique, sqlstateForeignKey, sqlstateNotNull, sqlstateCheck:
		return true
	}
	return false
}

// Map translates err into field-attributed validation errors.
// original is the decoded request body the failing statement was
// built from; when the resolved field is present there, its value is
// attached. Returns nil only for a nil err; every non-nil err yields
// at least one entry.
func (m *Mapper) Map(err error, original map[string]any) []validation.ValidationError {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return []validation.ValidationError{{
			Path:     "body",
			Message:  err.Error(),
			Severity: validation.SeverityError,
			Code:     CodeDatabase,
		}}
	}

	switch pgErr.Code {
	case sqlstateUnique, sqlstateForeignKey, sqlstateNotNull, sqlstateCheck:
	default:
		return []validation.ValidationError{{
			Path:     "body",
			Message:  pgErr.Message,
			Severity: validation.SeverityError,
			Code:     CodeDatabase,
		}}
	}

	m.metrics.RecordConstraintViolation(pgErr.Code)

	name := constraintName(pgErr)
	for _, mapping := range m.mappings {
		if !mapping.matches(name) {
			continue
		}
		field := mapping.Field
		if field == "" {
			field = deriveField(name, pgErr)
		}
		severity := mapping.Severity
		if severity == "" {
			severity = validation.SeverityError
		}
		return []validation.ValidationError{attributed(field, mapping.Message, mapping.Code, severity, original)}
	}

	// Recognized violation with no mapping entry.
	field := deriveField(name, pgErr)
	return []validation.ValidationError{attributed(field, "database constraint violation", CodeConstraint, validation.SeverityError, original)}
}

// attributed builds the final error, attaching the original value
// when the field is present in the request data.
func attributed(field, message, code string, severity validation.Severity, original map[string]any) validation.ValidationError {
	e := validation.ValidationError{
		Path:     "body",
		Message:  message,
		Severity: severity,
		Code:     code,
		Field:    field,
	}
	if field != "" {
		e.Path = "body." + field
		if v, ok := original[field]; ok {
			e.Value = v
		}
	}
	return e
}

// constraintName resolves the violated constraint's identifier:
// pgconn's structured field first, then the quoted name from Detail
// or Message.
func constraintName(pgErr *pgconn.PgError) string {
	if pgErr.ConstraintName != "" {
		return pgErr.ConstraintName
	}
	if name := quotedAfter(pgErr.Detail, `constraint "`); name != "" {
		return name
	}
	return quotedAfter(pgErr.Message, `constraint "`)
}

// conventional constraint-name suffixes, longest first so "_key"
// never shadows "_pkey" or "_fkey"
var constraintSuffixes = []string{"_unique", "_check", "_pkey", "_fkey", "_key", "_idx"}

// deriveField resolves the offending field from the constraint name
// by Postgres naming conventions (<table>_<column>_<kind>). Falls
// back to the engine-reported column, then the raw constraint name.
// Best effort: composite or unconventional names resolve imprecisely,
// which Mapping.Field exists to override.
func deriveField(name string, pgErr *pgconn.PgError) string {
	if name == "" {
		if pgErr.ColumnName != "" {
			return pgErr.ColumnName
		}
		if col := quotedAfter(pgErr.Message, `column "`); col != "" {
			return col
		}
		return ""
	}

	trimmed := name
	for _, suffix := range constraintSuffixes {
		if strings.HasSuffix(trimmed, suffix) {
			trimmed = strings.TrimSuffix(trimmed, suffix)
			break
		}
	}
	if trimmed != name && trimmed != "" {
		if pgErr.TableName != "" && strings.HasPrefix(trimmed, pgErr.TableName+"_") {
			return strings.TrimPrefix(trimmed, pgErr.TableName+"_")
		}
		if i := strings.LastIndex(trimmed, "_"); i >= 0 {
			return trimmed[i+1:]
		}
		return trimmed
	}

	if col := quotedAfter(pgErr.Message, `column "`); col != "" {
		return col
	}
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	return name
}

// quotedAfter returns the text between marker and the next double
// quote, or "" when absent.
func quotedAfter(s, marker string) string {
	i := strings.Index(s, marker)
	if i < 0 {
		return ""
	}
	rest := s[i+len(marker):]
	j := strings.IndexByte(rest, '"')
	if j < 0 {
		return ""
	}
	return rest[:j]
}
