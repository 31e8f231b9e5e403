// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

// Package threat classifies string values against a fixed table of
// injection signatures. Classification is pure and allocation-light;
// the detector table is compiled once at init and read-only afterwards.
package threat

import "regexp"

// Severity decides whether a finding blocks the request or is only
// recorded for audit.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Category identifies a threat class. Values double as metric and
// audit labels, so they stay lowercase snake_case.
type Category string

const (
	CategorySQLInjection      Category = "sql_injection"
	CategoryXSS               Category = "xss"
	CategoryPathTraversal     Category = "path_traversal"
	CategoryCodeInjection     Category = "code_injection"
	CategorySSRF              Category = "ssrf"
	CategoryLDAPInjection     Category = "ldap_injection"
	CategoryTemplateInjection Category = "template_injection"
)

// Finding is one classified match.
type Finding struct {
	Category Category
	Severity Severity
}

// detector pairs a category with its compiled signature set. Thorough
// detectors are lower-confidence and only run when the caller asks.
type detector struct {
	category Category
	severity Severity
	thorough bool
	pattern  *regexp.Regexp
}

// detectors is scanned in order on every Classify call. New threat
// categories are added by appending an entry; nothing else changes.
var detectors = []detector{
	{
		category: CategorySQLInjection,
		severity: SeverityError,
		pattern: regexp.MustCompile(`(?i)(` +
			`\bunion(?:\s+all)?\s+select\b` +
			`|\bselect\s+[\s\S]{0,100}?\bfrom\b` +
			`|\binsert\s+into\b` +
			`|\bupdate\s+[\w."]+\s+set\b` +
			`|\bdelete\s+from\b` +
			`|\bdrop\s+(?:table|database)\b` +
			`|(?:^|[\s;'")])--` +
			`|\bor\s+\d+\s*=\s*\d+\b` +
			`|'\s*or\s+'` +
			`)`),
	},
	{
		category: CategoryXSS,
		severity: SeverityError,
		pattern:  regexp.MustCompile(`(?i)(<[^>]*>|%3c[^\s]*%3e)`),
	},
	{
		category: CategoryPathTraversal,
		severity: SeverityError,
		pattern:  regexp.MustCompile(`(?i)(\.\./|\.\.\\|\.\.%2f|%2e%2e(?:/|%2f))`),
	},
	{
		category: CategoryCodeInjection,
		severity: SeverityError,
		pattern:  regexp.MustCompile(`(?i)\b(?:eval|settimeout|setinterval|function|constructor)\(`),
	},
	{
		category: CategorySSRF,
		severity: SeverityWarning,
		thorough: true,
		pattern:  regexp.MustCompile(`(?i)^(?:https?|ftp|file|data|javascript):`),
	},
	{
		category: CategoryLDAPInjection,
		severity: SeverityWarning,
		thorough: true,
		pattern:  regexp.MustCompile(`[()&|!*/\\]`),
	},
	{
		category: CategoryTemplateInjection,
		severity: SeverityWarning,
		thorough: true,
		pattern:  regexp.MustCompile(`\$\{[^}]*\}`),
	},
}

// Classify runs every detector against value and reports all matching
// categories in table order. Thorough-only detectors are skipped
// unless thorough is set. An empty result means no signature matched.
func Classify(value string, thorough bool) []Finding {
	if value == "" {
		return nil
	}

	var findings []Finding
	for _, d := range detectors {
		if d.thorough && !thorough {
			continue
		}
		if d.pattern.MatchString(value) {
			findings = append(findings, Finding{Category: d.category, Severity: d.severity})
		}
	}
	return findings
}

// Message returns the human-readable description attached to
// validation errors for this category.
func (c Category) Message() string {
	switch c {
	case CategorySQLInjection:
		return "potential SQL injection detected"
	case CategoryXSS:
		return "potential cross-site scripting content detected"
	case CategoryPathTraversal:
		return "path traversal sequence detected"
	case CategoryCodeInjection:
		return "potential code injection detected"
	case CategorySSRF:
		return "value contains a URI scheme (possible SSRF)"
	case CategoryLDAPInjection:
		return "LDAP filter metacharacters detected"
	case CategoryTemplateInjection:
		return "template interpolation syntax detected"
	default:
		return "suspicious content detected"
	}
}
