// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package validation

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/driftlight/heliopause/internal/sanitize"
)

func TestValidate_CleanPayload(t *testing.T) {
	payload := map[string]any{
		"name":    "Ada Lovelace",
		"age":     36,
		"active":  true,
		"ratio":   0.5,
		"note":    nil,
		"tags":    []any{"math", "engines"},
		"address": map[string]any{"city": "London"},
	}

	res := Validate(payload, DefaultOptions())
	if !res.Valid {
		t.Fatalf("expected valid result, got errors: %+v", res.Errors)
	}
	if len(res.Errors) != 0 {
		t.Errorf("expected no errors, got %d", len(res.Errors))
	}
}

func TestValidate_NilAndEmptyRoots(t *testing.T) {
	roots := []any{
		nil,
		map[string]any{},
		[]any{},
	}
	for _, root := range roots {
		res := Validate(root, DefaultOptions())
		if !res.Valid || len(res.Errors) != 0 {
			t.Errorf("root %#v: expected clean result, got %+v", root, res.Errors)
		}
	}
}

func TestValidate_ThreatAtNestedPath(t *testing.T) {
	payload := map[string]any{
		"user": map[string]any{
			"comment": "<script>alert(1)</script>",
		},
	}

	res := Validate(payload, DefaultOptions())
	if res.Valid {
		t.Fatal("expected invalid result")
	}
	if len(res.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d: %+v", len(res.Errors), res.Errors)
	}
	e := res.Errors[0]
	if e.Path != "user.comment" {
		t.Errorf("path = %q, want %q", e.Path, "user.comment")
	}
	if e.Category != "xss" {
		t.Errorf("category = %q, want %q", e.Category, "xss")
	}
	if e.Severity != SeverityError {
		t.Errorf("severity = %q, want %q", e.Severity, SeverityError)
	}
}

func TestValidate_ArrayIndexPath(t *testing.T) {
	payload := map[string]any{
		"ids": []any{"1", "2", "1 OR 1=1"},
	}

	res := Validate(payload, DefaultOptions())
	if res.Valid {
		t.Fatal("expected invalid result")
	}
	if got := res.Errors[0].Path; got != "ids[2]" {
		t.Errorf("path = %q, want %q", got, "ids[2]")
	}
}

func TestValidate_MaxDepth(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxDepth = 3

	// Leaf sits exactly at the limit.
	atLimit := map[string]any{"a": map[string]any{"b": map[string]any{"c": "x"}}}
	if res := Validate(atLimit, opts); !res.Valid {
		t.Fatalf("depth at limit should pass, got %+v", res.Errors)
	}

	// One level deeper produces a single structural error and stops
	// descending, even though the buried leaf is malicious.
	tooDeep := map[string]any{"a": map[string]any{"b": map[string]any{"c": map[string]any{"d": "<script>x</script>"}}}}
	res := Validate(tooDeep, opts)
	if res.Valid {
		t.Fatal("expected invalid result")
	}
	if len(res.Errors) != 1 {
		t.Fatalf("expected exactly 1 error, got %d: %+v", len(res.Errors), res.Errors)
	}
	e := res.Errors[0]
	if e.Path != "a.b.c.d" {
		t.Errorf("path = %q, want %q", e.Path, "a.b.c.d")
	}
	if e.Message != "maximum depth exceeded" {
		t.Errorf("message = %q", e.Message)
	}
	if e.Category != CategoryStructural {
		t.Errorf("category = %q, want %q", e.Category, CategoryStructural)
	}
}

func TestValidate_DeepNestingDoesNotPanic(t *testing.T) {
	root := map[string]any{}
	current := root
	for i := 0; i < 500; i++ {
		next := map[string]any{}
		current["n"] = next
		current = next
	}
	current["leaf"] = "x"

	res := Validate(root, DefaultOptions())
	if res.Valid {
		t.Fatal("expected invalid result for 500-level nesting")
	}
	if len(res.Errors) != 1 {
		t.Errorf("expected exactly 1 error, got %d", len(res.Errors))
	}
}

func TestValidate_MaxArrayLength(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxArrayLength = 3

	if res := Validate([]any{"a", "b", "c"}, opts); !res.Valid {
		t.Fatalf("array at limit should pass, got %+v", res.Errors)
	}

	// Over the limit: one error for the array, no per-element
	// findings even when elements are malicious.
	res := Validate(map[string]any{"items": []any{"a", "b", "c", "<script>x</script>"}}, opts)
	if res.Valid {
		t.Fatal("expected invalid result")
	}
	if len(res.Errors) != 1 {
		t.Fatalf("expected exactly 1 error, got %d: %+v", len(res.Errors), res.Errors)
	}
	e := res.Errors[0]
	if e.Path != "items" {
		t.Errorf("path = %q, want %q", e.Path, "items")
	}
	if want := "array exceeds maximum length of 3"; e.Message != want {
		t.Errorf("message = %q, want %q", e.Message, want)
	}
}

func TestValidate_MaxStringLength(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxStringLength = 10

	res := Validate(map[string]any{"bio": strings.Repeat("a", 11)}, opts)
	if res.Valid {
		t.Fatal("expected invalid result")
	}
	if len(res.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(res.Errors))
	}
	if want := "string exceeds maximum length of 10"; res.Errors[0].Message != want {
		t.Errorf("message = %q, want %q", res.Errors[0].Message, want)
	}
}

func TestValidate_OversizeStringStillClassified(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxStringLength = 10

	payload := map[string]any{"q": "x UNION SELECT password FROM users"}
	res := Validate(payload, opts)
	if len(res.Errors) != 2 {
		t.Fatalf("expected length error plus classification, got %+v", res.Errors)
	}
	if res.Errors[0].Category != CategoryStructural {
		t.Errorf("first error category = %q, want structural", res.Errors[0].Category)
	}
	if res.Errors[1].Category != "sql_injection" {
		t.Errorf("second error category = %q, want sql_injection", res.Errors[1].Category)
	}
}

func TestValidate_CircularMap(t *testing.T) {
	m := map[string]any{"name": "ok"}
	m["self"] = m

	res := Validate(m, DefaultOptions())
	if res.Valid {
		t.Fatal("expected invalid result")
	}
	var circular int
	for _, e := range res.Errors {
		if e.Message == "circular reference detected" {
			circular++
			if e.Path != "self" {
				t.Errorf("path = %q, want %q", e.Path, "self")
			}
		}
	}
	if circular != 1 {
		t.Errorf("expected exactly 1 circular-reference error, got %d", circular)
	}
}

func TestValidate_CircularSlice(t *testing.T) {
	s := make([]any, 1)
	s[0] = s

	res := Validate(s, DefaultOptions())
	if res.Valid {
		t.Fatal("expected invalid result")
	}
	if len(res.Errors) != 1 || res.Errors[0].Message != "circular reference detected" {
		t.Fatalf("unexpected errors: %+v", res.Errors)
	}
	if res.Errors[0].Path != "[0]" {
		t.Errorf("path = %q, want %q", res.Errors[0].Path, "[0]")
	}
}

func TestValidate_SharedSubtreeIsNotACycle(t *testing.T) {
	shared := map[string]any{"city": "Berlin"}
	root := map[string]any{"home": shared, "work": shared}

	res := Validate(root, DefaultOptions())
	if !res.Valid {
		t.Errorf("shared subtree flagged as cycle: %+v", res.Errors)
	}
}

func TestValidate_SortedKeyOrdering(t *testing.T) {
	payload := map[string]any{
		"zeta":  "<img src=x>",
		"alpha": "<img src=x>",
		"mu":    "<img src=x>",
	}

	res := Validate(payload, DefaultOptions())
	if len(res.Errors) != 3 {
		t.Fatalf("expected 3 errors, got %d", len(res.Errors))
	}
	wantOrder := []string{"alpha", "mu", "zeta"}
	for i, want := range wantOrder {
		if res.Errors[i].Path != want {
			t.Errorf("errors[%d].Path = %q, want %q", i, res.Errors[i].Path, want)
		}
	}
}

func TestValidate_Deterministic(t *testing.T) {
	payload := map[string]any{
		"a": []any{"../etc/passwd", "ok"},
		"b": map[string]any{"x": "<b>hi</b>", "y": "1 OR 1=1"},
		"c": "eval(code)",
	}

	first := Validate(payload, DefaultOptions())
	for i := 0; i < 10; i++ {
		again := Validate(payload, DefaultOptions())
		if !reflect.DeepEqual(first.Errors, again.Errors) {
			t.Fatalf("run %d differed:\nfirst: %+v\nagain: %+v", i, first.Errors, again.Errors)
		}
	}
}

func TestValidate_StringMapAndStringSlice(t *testing.T) {
	payload := map[string]any{
		"headers": map[string]string{"referer": "<script>x</script>"},
		"tags":    []string{"ok", "../../secret"},
	}

	res := Validate(payload, DefaultOptions())
	if len(res.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %+v", res.Errors)
	}
	if res.Errors[0].Path != "headers.referer" {
		t.Errorf("path = %q, want headers.referer", res.Errors[0].Path)
	}
	if res.Errors[1].Path != "tags[1]" {
		t.Errorf("path = %q, want tags[1]", res.Errors[1].Path)
	}
}

func TestValidate_WarningsDoNotInvalidate(t *testing.T) {
	opts := DefaultOptions()
	opts.Thorough = true

	res := Validate(map[string]any{"tpl": "${user.name}"}, opts)
	if !res.Valid {
		t.Fatalf("warning-only result should stay valid: %+v", res.Errors)
	}
	if len(res.Warnings()) != 1 {
		t.Errorf("expected 1 warning, got %d", len(res.Warnings()))
	}
	if len(res.Blocking()) != 0 {
		t.Errorf("expected no blocking errors, got %d", len(res.Blocking()))
	}
}

func TestValidate_ThoroughOffSkipsLowConfidence(t *testing.T) {
	res := Validate(map[string]any{"tpl": "${user.name}"}, DefaultOptions())
	if !res.Valid || len(res.Errors) != 0 {
		t.Errorf("non-thorough pass should ignore template syntax: %+v", res.Errors)
	}
}

func TestValidateRequest_RootOrdering(t *testing.T) {
	query := map[string]any{"q": "<script>a</script>"}
	params := map[string]any{"id": "1 OR 1=1"}
	body := map[string]any{"msg": "../../etc/shadow"}

	res := ValidateRequest(query, params, body, DefaultOptions())
	if len(res.Errors) != 3 {
		t.Fatalf("expected 3 errors, got %+v", res.Errors)
	}
	wantPrefixes := []string{"query.", "params.", "body."}
	for i, want := range wantPrefixes {
		if !strings.HasPrefix(res.Errors[i].Path, want) {
			t.Errorf("errors[%d].Path = %q, want prefix %q", i, res.Errors[i].Path, want)
		}
	}
}

func TestValidateRequest_AllNil(t *testing.T) {
	res := ValidateRequest(nil, nil, nil, DefaultOptions())
	if !res.Valid || len(res.Errors) != 0 {
		t.Errorf("expected clean result, got %+v", res.Errors)
	}
}

func TestValidate_SanitizedSQLStillDetected(t *testing.T) {
	// Keyword-based SQL payloads carry no escapable characters, so
	// they classify identically before and after sanitization.
	payload := map[string]any{"q": "1; DROP TABLE users; --"}
	escaped := sanitize.Value(payload)

	res := Validate(escaped, DefaultOptions())
	if res.Valid {
		t.Fatal("escaped SQL payload should still classify")
	}
	if res.Errors[0].Category != "sql_injection" {
		t.Errorf("category = %q, want sql_injection", res.Errors[0].Category)
	}
}

func TestValidate_StableOnSanitizedInput(t *testing.T) {
	payload := map[string]any{
		"name":    "<b>Jane</b>",
		"comment": "1; DROP TABLE users; --",
		"nested":  map[string]any{"path": "../../etc/shadow"},
	}
	escaped := sanitize.Value(payload)

	first := Validate(escaped, DefaultOptions())
	second := Validate(escaped, DefaultOptions())
	if first.Valid != second.Valid {
		t.Errorf("Valid differed across runs: %v vs %v", first.Valid, second.Valid)
	}
	if !reflect.DeepEqual(first.Errors, second.Errors) {
		t.Errorf("errors differed across runs:\nfirst: %+v\nsecond: %+v", first.Errors, second.Errors)
	}
}

func TestValidationError_Error(t *testing.T) {
	e := ValidationError{Path: "body.email", Message: "must be a valid email address"}
	if got, want := e.Error(), "body.email: must be a valid email address"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	bare := ValidationError{Message: "malformed payload"}
	if got := bare.Error(); got != "malformed payload" {
		t.Errorf("Error() = %q, want %q", got, "malformed payload")
	}
}

func TestResult_JSONShape(t *testing.T) {
	res := Validate(map[string]any{"c": "<i>x</i>"}, DefaultOptions())
	if res.Valid {
		t.Fatal("expected invalid")
	}
	// The gate serializes errors straight into 400 responses, so the
	// wire keys must stay stable.
	e := res.Errors[0]
	typ := reflect.TypeOf(e)
	wantTags := map[string]string{
		"Path":     "path",
		"Message":  "message",
		"Severity": "severity",
	}
	for field, want := range wantTags {
		f, ok := typ.FieldByName(field)
		if !ok {
			t.Fatalf("missing field %s", field)
		}
		if tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]; tag != want {
			t.Errorf("%s json tag = %q, want %q", field, tag, want)
		}
	}
}

func BenchmarkValidate_TypicalPayload(b *testing.B) {
	payload := map[string]any{
		"name":  "Grace Hopper",
		"email": "grace@example.com",
		"message": "I found a moth in the relay. Attaching the logbook page " +
			"for reference, please advise on next steps.",
		"tags": []any{"bug", "hardware"},
	}
	opts := DefaultOptions()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		res := Validate(payload, opts)
		if !res.Valid {
			b.Fatal("unexpected invalid result")
		}
	}
}

func BenchmarkValidate_DeepPayload(b *testing.B) {
	payload := map[string]any{}
	current := payload
	for i := 0; i < 9; i++ {
		next := map[string]any{fmt.Sprintf("leaf%d", i): "plain text value"}
		current["nested"] = next
		current = next
	}
	opts := DefaultOptions()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		Validate(payload, opts)
	}
}
