// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package validation

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/driftlight/heliopause/internal/threat"
)

// Options bounds one validation pass. The zero value is not usable;
// start from DefaultOptions.
type Options struct {
	// Thorough enables the lower-confidence detectors (SSRF, LDAP,
	// template injection).
	Thorough bool

	MaxDepth        int
	MaxArrayLength  int
	MaxStringLength int

	// Sanitize is consumed by the gate, which escapes payloads
	// before handing them here. The walker itself never rewrites.
	Sanitize bool
}

// DefaultOptions returns the standard production bounds.
func DefaultOptions() Options {
	return Options{
		Thorough:        false,
		MaxDepth:        10,
		MaxArrayLength:  1000,
		MaxStringLength: 10000,
		Sanitize:        true,
	}
}

// Validate walks root depth-first, enforcing structural bounds and
// classifying every string leaf. Paths are relative to root.
func Validate(root any, opts Options) Result {
	return newResult(validateRoot(root, "", opts))
}

// ValidateRequest validates the three request roots independently
// under their fixed path prefixes and concatenates the findings in
// query, params, body order.
func ValidateRequest(query, params, body any, opts Options) Result {
	var errs []ValidationError
	errs = append(errs, validateRoot(query, "query", opts)...)
	errs = append(errs, validateRoot(params, "params", opts)...)
	errs = append(errs, validateRoot(body, "body", opts)...)
	return newResult(errs)
}

func validateRoot(root any, prefix string, opts Options) []ValidationError {
	if root == nil {
		return nil
	}
	w := &walker{opts: opts, visited: make(map[uintptr]struct{})}
	w.walk(root, prefix, 0)
	return w.errors
}

// walker carries one pass's state. visited holds the map/slice
// identities of the current branch so cycles terminate; entries are
// removed on the way back up, so shared (non-cyclic) subtrees are
// visited normally.
type walker struct {
	opts    Options
	errors  []ValidationError
	visited map[uintptr]struct{}
}

func (w *walker) add(path, message string, severity Severity, category string) {
	w.errors = append(w.errors, ValidationError{
		Path:     path,
		Message:  message,
		Severity: severity,
		Category: category,
	})
}

func (w *walker) walk(value any, path string, depth int) {
	if depth > w.opts.MaxDepth {
		w.add(path, "maximum depth exceeded", SeverityError, CategoryStructural)
		return
	}

	switch v := value.(type) {
	case nil:

	case string:
		w.checkString(v, path)

	case map[string]any:
		if len(v) == 0 {
			return
		}
		ptr := reflect.ValueOf(v).Pointer()
		if !w.enter(ptr, path) {
			return
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		// Go maps have no stable iteration order; sorting keeps
		// error order deterministic.
		sort.Strings(keys)
		for _, k := range keys {
			w.walk(v[k], childPath(path, k), depth+1)
		}
		delete(w.visited, ptr)

	case []any:
		if len(v) > w.opts.MaxArrayLength {
			w.add(path, fmt.Sprintf("array exceeds maximum length of %d", w.opts.MaxArrayLength), SeverityError, CategoryStructural)
			return
		}
		if len(v) == 0 {
			return
		}
		ptr := reflect.ValueOf(v).Pointer()
		if !w.enter(ptr, path) {
			return
		}
		for i, el := range v {
			w.walk(el, indexPath(path, i), depth+1)
		}
		delete(w.visited, ptr)

	case map[string]string:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			w.walk(v[k], childPath(path, k), depth+1)
		}

	case []string:
		if len(v) > w.opts.MaxArrayLength {
			w.add(path, fmt.Sprintf("array exceeds maximum length of %d", w.opts.MaxArrayLength), SeverityError, CategoryStructural)
			return
		}
		for i, el := range v {
			w.walk(el, indexPath(path, i), depth+1)
		}

	default:
		// Numbers, booleans and anything non-structural are never
		// flagged.
	}
}

// enter records a container on the current branch. Returns false and
// emits the circular-reference error when the container is already an
// ancestor of itself.
func (w *walker) enter(ptr uintptr, path string) bool {
	if _, seen := w.visited[ptr]; seen {
		w.add(path, "circular reference detected", SeverityError, CategoryStructural)
		return false
	}
	w.visited[ptr] = struct{}{}
	return true
}

func (w *walker) checkString(s, path string) {
	if len(s) > w.opts.MaxStringLength {
		w.add(path, fmt.Sprintf("string exceeds maximum length of %d", w.opts.MaxStringLength), SeverityError, CategoryStructural)
	}
	for _, f := range threat.Classify(s, w.opts.Thorough) {
		w.add(path, f.Category.Message(), f.Severity, string(f.Category))
	}
}

func childPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func indexPath(parent string, i int) string {
	return fmt.Sprintf("%s[%d]", parent, i)
}
