// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package logging

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// SecurityEvent is one entry in the security event stream: a gate
// decision, a CSRF failure, a rate-limit refusal. Operators feed this
// stream to a SIEM, so values pass through the sanitizers below
// before they are written.
type SecurityEvent struct {
	// Kind names the kind of event, e.g. "validation_rejected".
	Kind string
	// RequestID correlates with the request log, when known.
	RequestID string
	// ClientIP is the peer address.
	ClientIP string
	// UserAgent is truncated before logging.
	UserAgent string
	// Path is the request path, truncated before logging.
	Path string
	// Method is the HTTP method.
	Method string
	// Category is the threat category for validation events.
	Category string
	// Success is whether the request went through.
	Success bool
	// Error describes why a blocked request was blocked.
	Error string
	// Details carries event-specific extras, sanitized by key name.
	Details map[string]string
}

// SecurityLogger writes the security event stream through zerolog
// with a fixed component field and automatic value sanitization.
type SecurityLogger struct {
	logger zerolog.Logger
}

// NewSecurityLogger builds a security logger over the global logger.
func NewSecurityLogger() *SecurityLogger {
	return NewSecurityLoggerWithLogger(Logger())
}

// NewSecurityLoggerWithLogger builds a security logger over a specific
// zerolog logger.
//
//nolint:gocritic // zerolog passes loggers by value
func NewSecurityLoggerWithLogger(logger zerolog.Logger) *SecurityLogger {
	return &SecurityLogger{
		logger: logger.With().Str("component", "security").Logger(),
	}
}

// LogEvent emits one event. Blocked and allowed requests both log at
// info level; the status field carries the signal.
func (l *SecurityLogger) LogEvent(event *SecurityEvent) {
	status := "allowed"
	if !event.Success {
		status = "blocked"
	}

	e := l.logger.Info().
		Str("event", event.Kind).
		Str("status", status)

	for _, f := range []struct{ key, value string }{
		{"request_id", event.RequestID},
		{"ip", event.ClientIP},
		{"user_agent", truncateString(event.UserAgent, 100)},
		{"path", truncateString(event.Path, 200)},
		{"method", event.Method},
		{"category", event.Category},
	} {
		if f.value != "" {
			e = e.Str(f.key, f.value)
		}
	}

	if event.Error != "" && !event.Success {
		e = e.Str("error", SanitizeError(event.Error))
	}

	for k, v := range event.Details {
		e = e.Str(k, SanitizeValue(k, v))
	}

	e.Msg("Security event")
}

// Debug logs at debug level with key-value pairs.
func (l *SecurityLogger) Debug(msg string, fields ...any) {
	addFieldPairs(l.logger.Debug(), fields).Msg(msg)
}

// Info logs at info level with key-value pairs.
func (l *SecurityLogger) Info(msg string, fields ...any) {
	addFieldPairs(l.logger.Info(), fields).Msg(msg)
}

// Warn logs at warn level with key-value pairs.
func (l *SecurityLogger) Warn(msg string, fields ...any) {
	addFieldPairs(l.logger.Warn(), fields).Msg(msg)
}

// Error logs at error level with key-value pairs.
func (l *SecurityLogger) Error(msg string, fields ...any) {
	addFieldPairs(l.logger.Error(), fields).Msg(msg)
}

// addFieldPairs appends alternating key-value pairs to an event.
// Non-string keys and a trailing unpaired element are skipped.
func addFieldPairs(e *zerolog.Event, fields []any) *zerolog.Event {
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, fields[i+1])
	}
	return e
}

// LogValidationRejected records a request the gate blocked on
// validation findings.
func (l *SecurityLogger) LogValidationRejected(ip, userAgent, path, method string, errorCount int) {
	l.LogEvent(&SecurityEvent{
		Kind:      "validation_rejected",
		ClientIP:  ip,
		UserAgent: userAgent,
		Path:      path,
		Method:    method,
		Success:   false,
		Error:     "input validation failed",
		Details: map[string]string{
			"error_count": strconv.Itoa(errorCount),
		},
	})
}

// LogValidationWarned records a request that passed with
// warning-severity findings.
func (l *SecurityLogger) LogValidationWarned(ip, path, method string, warningCount int) {
	l.LogEvent(&SecurityEvent{
		Kind:     "validation_warned",
		ClientIP: ip,
		Path:     path,
		Method:   method,
		Success:  true,
		Details: map[string]string{
			"warning_count": strconv.Itoa(warningCount),
		},
	})
}

// LogCSRFFailure records a request refused by token verification.
func (l *SecurityLogger) LogCSRFFailure(ip, userAgent, path string) {
	l.LogEvent(&SecurityEvent{
		Kind:      "csrf_failed",
		ClientIP:  ip,
		UserAgent: userAgent,
		Path:      path,
		Success:   false,
	})
}

// LogRateLimited records a request refused by the rate limiter.
func (l *SecurityLogger) LogRateLimited(ip, path, method string) {
	l.LogEvent(&SecurityEvent{
		Kind:     "rate_limited",
		ClientIP: ip,
		Path:     path,
		Method:   method,
		Success:  false,
		Error:    "rate limit exceeded",
	})
}

// LogFailOpen records a gate fault that let the request through
// unvalidated.
func (l *SecurityLogger) LogFailOpen(ip, path, method, cause string) {
	l.LogEvent(&SecurityEvent{
		Kind:     "validation_fail_open",
		ClientIP: ip,
		Path:     path,
		Method:   method,
		Success:  true,
		Details:  map[string]string{"cause": cause},
	})
}

// LogFailClosed records a gate fault that rejected the request.
func (l *SecurityLogger) LogFailClosed(ip, path, method, cause string) {
	l.LogEvent(&SecurityEvent{
		Kind:     "validation_fail_closed",
		ClientIP: ip,
		Path:     path,
		Method:   method,
		Success:  false,
		Error:    "internal validation fault",
		Details:  map[string]string{"cause": cause},
	})
}

// LogExemptPath records a request that skipped the gate via an exempt
// path prefix.
func (l *SecurityLogger) LogExemptPath(ip, path, method string) {
	l.LogEvent(&SecurityEvent{
		Kind:     "request_exempted",
		ClientIP: ip,
		Path:     path,
		Method:   method,
		Success:  true,
	})
}

// sensitiveErrorWords flags error text that may embed a credential.
var sensitiveErrorWords = []string{
	"password",
	"secret",
	"token",
	"key",
	"bearer",
	"authorization",
	"cookie",
}

// sensitiveKeys are detail keys whose values are always masked.
var sensitiveKeys = map[string]bool{
	"access_token":  true,
	"csrf_token":    true,
	"token":         true,
	"password":      true,
	"secret":        true,
	"api_key":       true,
	"apikey":        true,
	"authorization": true,
	"bearer":        true,
	"cookie":        true,
	"dsn":           true,
}

// SanitizeToken keeps the first and last four characters of a token:
// "eyJhbGciOiJSUzI1NiIsInR5cCI6IkpXVCJ9" -> "eyJh...VCJ9". Anything
// twelve characters or shorter masks completely.
func SanitizeToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// SanitizeSubject masks a token subject the same way, with a shorter
// minimum: "admin-12345678" -> "admi...5678".
func SanitizeSubject(subject string) string {
	if subject == "" {
		return ""
	}
	if len(subject) <= 8 {
		return "***"
	}
	return subject[:4] + "..." + subject[len(subject)-4:]
}

// SanitizeEmail keeps two characters of the local part and the whole
// domain: "john.doe@example.com" -> "jo***@example.com".
func SanitizeEmail(email string) string {
	if email == "" {
		return ""
	}

	at := strings.Index(email, "@")
	if at <= 0 {
		return "***"
	}

	local, domain := email[:at], email[at:]
	if len(local) <= 2 {
		return "***" + domain
	}
	return local[:2] + "***" + domain
}

// SanitizeError collapses error text mentioning credential words to a
// generic message and truncates the rest.
func SanitizeError(err string) string {
	lower := strings.ToLower(err)
	for _, word := range sensitiveErrorWords {
		if strings.Contains(lower, word) {
			return "security error"
		}
	}
	return truncateString(err, 200)
}

// SanitizeValue masks a value based on its key: credential-bearing
// keys get token masking, email-shaped values get email masking,
// everything else passes through unchanged.
func SanitizeValue(key, value string) string {
	if sensitiveKeys[strings.ToLower(key)] {
		return SanitizeToken(value)
	}
	if strings.Contains(value, "@") && strings.Contains(value, ".") {
		return SanitizeEmail(value)
	}
	return value
}

// truncateString caps s at maxLen bytes, appending an ellipsis when
// it trims.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
