// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	configValidator     *validator.Validate
	configValidatorOnce sync.Once
)

// placeholderSecrets are values that look like unconfigured secrets.
// A config that still carries one of these is rejected outright.
var placeholderSecrets = []string{
	"changeme",
	"change-me",
	"change_me",
	"replace-me",
	"your-secret-here",
	"your-secret-key",
	"secret",
	"password",
	"example",
	"placeholder",
	"xxx",
}

func getConfigValidator() *validator.Validate {
	configValidatorOnce.Do(func() {
		configValidator = validator.New(validator.WithRequiredStructEnabled())
		configValidator.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("koanf"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return configValidator
}

// Validate checks structural constraints via struct tags, then the
// cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := getConfigValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			messages := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				path := strings.TrimPrefix(fe.Namespace(), "Config.")
				messages = append(messages, fmt.Sprintf("%s: failed %q constraint", path, constraintString(fe)))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(messages, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := c.validateCSRF(); err != nil {
		return err
	}
	if err := c.validateAudit(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateAuth(); err != nil {
		return err
	}
	return nil
}

func constraintString(fe validator.FieldError) string {
	if fe.Param() != "" {
		return fe.Tag() + "=" + fe.Param()
	}
	return fe.Tag()
}

func (c *Config) validateCSRF() error {
	if !c.CSRF.Enabled {
		return nil
	}
	if c.CSRF.CookieName == "" {
		return errors.New("invalid configuration: csrf.cookie_name must not be empty when CSRF is enabled")
	}
	if c.CSRF.HeaderName == "" {
		return errors.New("invalid configuration: csrf.header_name must not be empty when CSRF is enabled")
	}
	if c.CSRF.Store == "badger" && c.CSRF.StorePath == "" {
		return errors.New("invalid configuration: csrf.store_path is required for the badger store")
	}
	return nil
}

func (c *Config) validateAudit() error {
	if !c.Audit.Enabled {
		return nil
	}
	if c.Audit.Store == "duckdb" && c.Audit.StorePath == "" {
		return errors.New("invalid configuration: audit.store_path is required for the duckdb store")
	}
	if c.Audit.Topic == "" {
		return errors.New("invalid configuration: audit.topic must not be empty when audit is enabled")
	}
	if c.Audit.NATS.Enabled && !c.Audit.NATS.Embedded && c.Audit.NATS.URL == "" {
		return errors.New("invalid configuration: audit.nats.url is required when NATS is enabled without the embedded server")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if !c.Database.Enabled {
		return nil
	}
	if c.Database.DSN == "" {
		return errors.New("invalid configuration: database.dsn is required when the database is enabled")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("invalid configuration: database.min_conns (%d) exceeds database.max_conns (%d)",
			c.Database.MinConns, c.Database.MaxConns)
	}
	return nil
}

func (c *Config) validateAuth() error {
	if c.Auth.AdminTokenSecret == "" {
		return nil
	}
	if isPlaceholderSecret(c.Auth.AdminTokenSecret) {
		return errors.New("invalid configuration: auth.admin_token_secret is a placeholder value")
	}
	if len(c.Auth.AdminTokenSecret) < 32 {
		return errors.New("invalid configuration: auth.admin_token_secret must be at least 32 characters")
	}
	return nil
}

func isPlaceholderSecret(s string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	for _, p := range placeholderSecrets {
		if lower == p {
			return true
		}
	}
	return false
}

// ProductionWarnings returns human-readable warnings about settings
// that are acceptable in development but risky in production. The
// caller decides how to surface them.
func (c *Config) ProductionWarnings() []string {
	var warnings []string

	for _, origin := range c.CORS.AllowedOrigins {
		if origin == "*" {
			warnings = append(warnings, "CORS allows all origins (*)")
			break
		}
	}
	if !c.CSRF.Enabled {
		warnings = append(warnings, "CSRF protection is disabled")
	}
	if !c.RateLimit.Enabled {
		warnings = append(warnings, "rate limiting is disabled")
	}

	if !c.IsProduction() {
		return warnings
	}

	if c.CSRF.Enabled && !c.CSRF.CookieSecure {
		warnings = append(warnings, "csrf.cookie_secure is off in production; tokens can leak over plain HTTP")
	}
	if !c.Validation.FailClosed {
		warnings = append(warnings, "validation gate fails open in production; internal errors admit requests")
	}
	if c.Auth.AdminTokenSecret == "" {
		warnings = append(warnings, "auth.admin_token_secret is unset; admin audit API is disabled")
	}
	if !c.Audit.Enabled {
		warnings = append(warnings, "audit trail is disabled in production")
	}
	return warnings
}
