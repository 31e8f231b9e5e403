// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file search paths.
const ConfigPathEnvVar = "HELIOPAUSE_CONFIG"

// DefaultConfigPaths are checked in order when ConfigPathEnvVar is
// unset.
var DefaultConfigPaths = []string{
	"./config.yaml",
	"./config/config.yaml",
	"/etc/heliopause/config.yaml",
}

// sliceConfigPaths are keys that may arrive as comma-separated
// strings from the environment and must be split before unmarshal.
var sliceConfigPaths = []string{
	"validation.exempt_paths",
	"csrf.exempt_paths",
	"cors.allowed_origins",
	"cors.allowed_methods",
	"cors.allowed_headers",
}

// LoadWithKoanf builds the effective configuration in three layers:
// built-in defaults, an optional YAML file, then environment
// variables. Later layers win.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("HELIOPAUSE_", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("process list fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.decryptSecrets(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// findConfigFile returns the first config file that exists, or ""
// when none do. An explicit ConfigPathEnvVar that points at a
// missing file is not an error; the file layer is simply skipped.
func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		return ""
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps HELIOPAUSE_* environment variables onto
// dotted config keys. Unknown variables are dropped so stray
// HELIOPAUSE_ vars cannot inject config.
func envTransformFunc(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, "HELIOPAUSE_"))

	mappings := map[string]string{
		// Server
		"host":             "server.host",
		"port":             "server.port",
		"read_timeout":     "server.read_timeout",
		"write_timeout":    "server.write_timeout",
		"shutdown_timeout": "server.shutdown_timeout",
		"environment":      "server.environment",

		// Validation gate
		"validation_thorough":          "validation.thorough",
		"validation_max_depth":         "validation.max_depth",
		"validation_max_array_length":  "validation.max_array_length",
		"validation_max_string_length": "validation.max_string_length",
		"validation_sanitize":          "validation.sanitize",
		"validation_fail_closed":       "validation.fail_closed",
		"validation_max_body_bytes":    "validation.max_body_bytes",
		"validation_exempt_paths":      "validation.exempt_paths",

		// CSRF
		"csrf_enabled":       "csrf.enabled",
		"csrf_cookie_name":   "csrf.cookie_name",
		"csrf_header_name":   "csrf.header_name",
		"csrf_form_field":    "csrf.form_field",
		"csrf_token_ttl":     "csrf.token_ttl",
		"csrf_exempt_paths":  "csrf.exempt_paths",
		"csrf_store":         "csrf.store",
		"csrf_store_path":    "csrf.store_path",
		"csrf_cookie_secure": "csrf.cookie_secure",

		// Rate limiting
		"rate_limit_enabled":         "rate_limit.enabled",
		"rate_limit_requests":        "rate_limit.requests",
		"rate_limit_window":          "rate_limit.window",
		"rate_limit_admin_requests":  "rate_limit.admin_requests",
		"rate_limit_admin_window":    "rate_limit.admin_window",
		"rate_limit_health_requests": "rate_limit.health_requests",
		"rate_limit_health_window":   "rate_limit.health_window",

		// CORS
		"cors_origins":     "cors.allowed_origins",
		"cors_methods":     "cors.allowed_methods",
		"cors_headers":     "cors.allowed_headers",
		"cors_credentials": "cors.allow_credentials",
		"cors_max_age":     "cors.max_age",

		// Audit trail
		"audit_enabled":          "audit.enabled",
		"audit_store":            "audit.store",
		"audit_store_path":       "audit.store_path",
		"audit_sink":             "audit.sink",
		"audit_min_severity":     "audit.min_severity",
		"audit_buffer_size":      "audit.buffer_size",
		"audit_retention_days":   "audit.retention_days",
		"audit_cleanup_interval": "audit.cleanup_interval",
		"audit_topic":            "audit.topic",

		// Audit NATS transport
		"audit_nats_enabled":               "audit.nats.enabled",
		"audit_nats_url":                   "audit.nats.url",
		"audit_nats_embedded":              "audit.nats.embedded",
		"audit_nats_store_dir":             "audit.nats.store_dir",
		"audit_nats_max_memory":            "audit.nats.max_memory",
		"audit_nats_max_store":             "audit.nats.max_store",
		"audit_nats_stream_retention_days": "audit.nats.stream_retention_days",
		"audit_nats_durable_name":          "audit.nats.durable_name",
		"audit_nats_queue_group":           "audit.nats.queue_group",

		// Database
		"database_enabled":         "database.enabled",
		"database_dsn":             "database.dsn",
		"database_url":             "database.dsn",
		"database_max_conns":       "database.max_conns",
		"database_min_conns":       "database.min_conns",
		"database_connect_timeout": "database.connect_timeout",

		// Auth
		"admin_token_secret": "auth.admin_token_secret",
		"auth_issuer":        "auth.issuer",
		"auth_token_ttl":     "auth.token_ttl",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		// Metrics
		"metrics_enabled": "metrics.enabled",
		"metrics_path":    "metrics.path",
	}

	if mapped, ok := mappings[key]; ok {
		return mapped
	}
	return ""
}

// processSliceFields normalizes keys that accept comma-separated
// values. YAML lists arrive as []any and need no work;
// env-sourced strings are split and trimmed.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		if !k.Exists(path) {
			continue
		}
		raw := k.Get(path)
		switch v := raw.(type) {
		case []any, []string:
			continue
		case string:
			parts := strings.Split(v, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				if t := strings.TrimSpace(p); t != "" {
					trimmed = append(trimmed, t)
				}
			}
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("set %s: %w", path, err)
			}
		}
	}
	return nil
}

// WatchConfigFile invokes callback whenever the config file Load read
// from changes on disk. The callback receives the freshly loaded
// config; load errors are passed through so the caller can log them
// and keep the old config. Returns the watched path, or "" when no
// config file exists and there is nothing to watch.
func WatchConfigFile(callback func(*Config, error)) (string, error) {
	path := findConfigFile()
	if path == "" {
		return "", nil
	}

	err := file.Provider(path).Watch(func(_ any, err error) {
		if err != nil {
			callback(nil, fmt.Errorf("config watch error: %w", err))
			return
		}
		callback(LoadWithKoanf())
	})
	if err != nil {
		return "", err
	}
	return path, nil
}
