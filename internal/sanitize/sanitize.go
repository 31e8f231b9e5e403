// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

// Package sanitize HTML-escapes string leaves of request payloads.
// Transforms return new structures; inputs are never mutated.
package sanitize

import "strings"

// escaper rewrites the six characters that enable markup injection.
// Replace runs a single pass over the input, so the entities it emits
// are never re-escaped.
var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
)

// String escapes one value.
func String(s string) string {
	return escaper.Replace(s)
}

// Value returns a sanitized deep copy of root. Maps and slices are
// rebuilt, strings escaped, everything else passed through untouched.
func Value(root any) any {
	out, _ := walk(root)
	return out
}

// ValueCount is Value plus the number of string leaves that changed,
// for metrics.
func ValueCount(root any) (any, int) {
	return walk(root)
}

func walk(root any) (any, int) {
	switch v := root.(type) {
	case string:
		escaped := escaper.Replace(v)
		if escaped != v {
			return escaped, 1
		}
		return v, 0

	case map[string]any:
		out := make(map[string]any, len(v))
		changed := 0
		for key, val := range v {
			sanitized, n := walk(val)
			out[key] = sanitized
			changed += n
		}
		return out, changed

	case []any:
		out := make([]any, len(v))
		changed := 0
		for i, val := range v {
			sanitized, n := walk(val)
			out[i] = sanitized
			changed += n
		}
		return out, changed

	case map[string]string:
		out := make(map[string]string, len(v))
		changed := 0
		for key, val := range v {
			escaped := escaper.Replace(val)
			if escaped != val {
				changed++
			}
			out[key] = escaped
		}
		return out, changed

	case []string:
		out := make([]string, len(v))
		changed := 0
		for i, val := range v {
			escaped := escaper.Replace(val)
			if escaped != val {
				changed++
			}
			out[i] = escaped
		}
		return out, changed

	default:
		return root, 0
	}
}
