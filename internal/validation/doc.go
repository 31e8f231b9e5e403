// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

/*
Package validation walks decoded request payloads and reports
structural and content violations.

The package has three surfaces:

  - Validate and ValidateRequest traverse arbitrary decoded JSON
    (maps, slices, strings) depth-first with deterministic ordering,
    enforce structural limits (depth, array length, string length),
    and run every string through the threat classifier.
  - ValidateStruct validates tagged DTO structs via go-playground
    validator, translating field errors into the same ValidationError
    shape with wire-format field names.
  - ValidationError and Result are the shared error model consumed by
    the request gate, the constraint mapper, and the audit trail.

# Traversal Rules

Map keys are visited in sorted order so repeated validation of the
same payload yields errors in the same sequence. Cycles through maps
and slices are detected with an ancestor set and reported once per
cycle entry point. Exceeding MaxDepth or MaxArrayLength produces a
single error for the offending node and stops descent into it; an
over-long string is reported and still classified.

A Result is Valid when it carries no error-severity entries.
Warning-severity findings (reported only under thorough
classification) never fail validation on their own.

# Usage

	res := validation.ValidateRequest(query, params, body, validation.DefaultOptions())
	if !res.Valid {
		for _, e := range res.Blocking() {
			log.Warn().Str("path", e.Path).Msg(e.Message)
		}
	}
*/
package validation
