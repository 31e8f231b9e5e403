// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

// Package config loads and validates gateway configuration from
// defaults, an optional YAML file, and HELIOPAUSE_-prefixed
// environment variables, in that order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration for the gateway.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Validation ValidationConfig `koanf:"validation"`
	CSRF       CSRFConfig       `koanf:"csrf"`
	RateLimit  RateLimitConfig  `koanf:"rate_limit"`
	CORS       CORSConfig       `koanf:"cors"`
	Audit      AuditConfig      `koanf:"audit"`
	Database   DatabaseConfig   `koanf:"database"`
	Auth       AuthConfig       `koanf:"auth"`
	Logging    LoggingConfig    `koanf:"logging"`
	Metrics    MetricsConfig    `koanf:"metrics"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"min=1s"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"min=1s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"min=1s"`
	Environment     string        `koanf:"environment" validate:"oneof=development staging production"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ValidationConfig controls the request gate and the structural
// validator it runs on every inbound payload.
type ValidationConfig struct {
	// Thorough enables the second, slower pattern tier on every
	// string the validator visits.
	Thorough bool `koanf:"thorough"`

	MaxDepth        int `koanf:"max_depth" validate:"min=1"`
	MaxArrayLength  int `koanf:"max_array_length" validate:"min=1"`
	MaxStringLength int `koanf:"max_string_length" validate:"min=1"`

	// Sanitize rewrites accepted payloads with HTML-escaped strings
	// before they reach handlers.
	Sanitize bool `koanf:"sanitize"`

	// FailClosed rejects requests when the gate itself errors.
	// The default is to fail open and log.
	FailClosed bool `koanf:"fail_closed"`

	MaxBodyBytes int64 `koanf:"max_body_bytes" validate:"min=1"`

	// ExemptPaths bypass the gate entirely. Prefix match on the
	// request path.
	ExemptPaths []string `koanf:"exempt_paths"`
}

// CSRFConfig controls double-submit token verification.
type CSRFConfig struct {
	Enabled      bool          `koanf:"enabled"`
	CookieName   string        `koanf:"cookie_name"`
	HeaderName   string        `koanf:"header_name"`
	FormField    string        `koanf:"form_field"`
	TokenTTL     time.Duration `koanf:"token_ttl" validate:"min=1m"`
	ExemptPaths  []string      `koanf:"exempt_paths"`
	Store        string        `koanf:"store" validate:"oneof=memory badger"`
	StorePath    string        `koanf:"store_path"`
	CookieSecure bool          `koanf:"cookie_secure"`
}

// RateLimitConfig holds per-route-class request budgets.
type RateLimitConfig struct {
	Enabled bool `koanf:"enabled"`

	// Default budget applied to public API routes.
	Requests int           `koanf:"requests" validate:"min=1"`
	Window   time.Duration `koanf:"window" validate:"min=1s"`

	// Admin routes get a tighter budget.
	AdminRequests int           `koanf:"admin_requests" validate:"min=1"`
	AdminWindow   time.Duration `koanf:"admin_window" validate:"min=1s"`

	// Health probes get a generous budget so orchestrators are
	// never throttled.
	HealthRequests int           `koanf:"health_requests" validate:"min=1"`
	HealthWindow   time.Duration `koanf:"health_window" validate:"min=1s"`
}

// CORSConfig controls cross-origin response headers.
type CORSConfig struct {
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age" validate:"min=0"`
}

// AuditConfig controls the security event trail.
type AuditConfig struct {
	Enabled bool `koanf:"enabled"`

	// Store selects the persistence backend for audit events.
	Store     string `koanf:"store" validate:"oneof=memory duckdb"`
	StorePath string `koanf:"store_path"`

	// Sink selects how buffered events reach the store: "store"
	// writes directly, "watermill" publishes through the pipeline
	// so external consumers can subscribe to the same topic.
	Sink string `koanf:"sink" validate:"oneof=store watermill"`

	// MinSeverity drops events below this level before they are
	// buffered.
	MinSeverity string `koanf:"min_severity" validate:"oneof=debug info warning error critical"`

	BufferSize      int           `koanf:"buffer_size" validate:"min=1"`
	RetentionDays   int           `koanf:"retention_days" validate:"min=1"`
	CleanupInterval time.Duration `koanf:"cleanup_interval" validate:"min=1m"`

	// Topic is the pipeline topic audit events are published on.
	Topic string `koanf:"topic"`

	NATS NATSConfig `koanf:"nats"`
}

// NATSConfig controls the optional JetStream transport for the audit
// pipeline. Only honored in builds with the nats tag.
type NATSConfig struct {
	Enabled bool `koanf:"enabled"`

	// URL of an external NATS server. Ignored when Embedded is set.
	URL string `koanf:"url"`

	Embedded bool   `koanf:"embedded"`
	StoreDir string `koanf:"store_dir"`

	MaxMemory int64 `koanf:"max_memory"`
	MaxStore  int64 `koanf:"max_store"`

	StreamRetentionDays int    `koanf:"stream_retention_days" validate:"min=1"`
	DurableName         string `koanf:"durable_name"`
	QueueGroup          string `koanf:"queue_group"`
}

// DatabaseConfig controls the optional PostgreSQL pool used by the
// demonstration endpoints.
type DatabaseConfig struct {
	Enabled        bool          `koanf:"enabled"`
	DSN            string        `koanf:"dsn"`
	MaxConns       int32         `koanf:"max_conns" validate:"min=1"`
	MinConns       int32         `koanf:"min_conns" validate:"min=0"`
	ConnectTimeout time.Duration `koanf:"connect_timeout" validate:"min=1s"`
}

// AuthConfig controls admin API authentication.
type AuthConfig struct {
	// AdminTokenSecret signs and verifies admin bearer tokens.
	// Accepts an enc:-prefixed encrypted value.
	AdminTokenSecret string        `koanf:"admin_token_secret"`
	Issuer           string        `koanf:"issuer"`
	TokenTTL         time.Duration `koanf:"token_ttl" validate:"min=1m"`
}

// LoggingConfig controls the zerolog global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// defaultConfig returns the built-in defaults. Every knob has a
// working value so a bare binary starts without a config file.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Environment:     "development",
		},
		Validation: ValidationConfig{
			Thorough:        false,
			MaxDepth:        10,
			MaxArrayLength:  1000,
			MaxStringLength: 10000,
			Sanitize:        true,
			FailClosed:      false,
			MaxBodyBytes:    1 << 20,
			ExemptPaths:     []string{"/health", "/metrics"},
		},
		CSRF: CSRFConfig{
			Enabled:      true,
			CookieName:   "_heliopause_csrf",
			HeaderName:   "X-CSRF-Token",
			FormField:    "csrf_token",
			TokenTTL:     4 * time.Hour,
			ExemptPaths:  []string{"/health", "/metrics", "/api/v1/csrf"},
			Store:        "memory",
			StorePath:    "./data/csrf",
			CookieSecure: false,
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			Requests:       100,
			Window:         time.Minute,
			AdminRequests:  30,
			AdminWindow:    time.Minute,
			HealthRequests: 300,
			HealthWindow:   time.Minute,
		},
		CORS: CORSConfig{
			AllowedOrigins:   []string{"http://localhost:3000"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		},
		Audit: AuditConfig{
			Enabled:         true,
			Store:           "memory",
			StorePath:       "./data/audit.db",
			Sink:            "store",
			MinSeverity:     "info",
			BufferSize:      1024,
			RetentionDays:   30,
			CleanupInterval: time.Hour,
			Topic:           "audit.events",
			NATS: NATSConfig{
				Enabled:             false,
				URL:                 "nats://127.0.0.1:4222",
				Embedded:            true,
				StoreDir:            "./data/nats",
				MaxMemory:           64 << 20,
				MaxStore:            256 << 20,
				StreamRetentionDays: 7,
				DurableName:         "heliopause-audit",
				QueueGroup:          "heliopause",
			},
		},
		Database: DatabaseConfig{
			Enabled:        false,
			DSN:            "",
			MaxConns:       8,
			MinConns:       1,
			ConnectTimeout: 5 * time.Second,
		},
		Auth: AuthConfig{
			AdminTokenSecret: "",
			Issuer:           "heliopause",
			TokenTTL:         8 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads configuration from defaults, file, and environment.
func Load() (*Config, error) {
	return LoadWithKoanf()
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Server.Environment, "development")
}
