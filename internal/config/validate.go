package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"grimm.is/ngxweb/internal/validation"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validate checks a configuration that already has defaults applied.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		add("listen", "must be host:port, got %q", c.Listen)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("log_level", "unknown level %q", c.LogLevel)
	}

	if c.Nginx.ConfigDir == "" {
		add("nginx.config_dir", "must not be empty")
	}
	if c.Nginx.Binary == "" {
		add("nginx.binary", "must not be empty")
	}
	if _, err := time.ParseDuration(c.Nginx.CommandTimeout); err != nil {
		add("nginx.command_timeout", "invalid duration %q", c.Nginx.CommandTimeout)
	}

	if c.API.RequireAuth && c.API.APIKey == "" && c.API.APIKeyHash == "" {
		add("api.require_auth", "requires api_key or api_key_hash")
	}

	if validation.ValidateAllowlist(c.LoadBalancer.ProbeMode, []string{ProbeHTTP, ProbeICMP}) != nil {
		add("load_balancer.probe_mode", "must be %q or %q, got %q", ProbeHTTP, ProbeICMP, c.LoadBalancer.ProbeMode)
	}
	if _, err := time.ParseDuration(c.LoadBalancer.ProbeTimeout); err != nil {
		add("load_balancer.probe_timeout", "invalid duration %q", c.LoadBalancer.ProbeTimeout)
	}
	if err := validation.ValidateIdentifier(c.LoadBalancer.UpstreamName); err != nil {
		add("load_balancer.upstream_name", "%v", err)
	}

	if c.Audit.RetentionDays < 0 {
		add("audit.retention_days", "must not be negative")
	}
	return errs
}
