package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// LoadFile loads the HCL file at path, applies defaults and validates.
// A missing file yields the default configuration.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg := Default()
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return LoadHCL(data, path)
}

// LoadHCL decodes HCL bytes into a Config with defaults applied.
func LoadHCL(data []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("HCL parse error: %s", diags.Error())
	}

	var cfg Config
	if diags := gohcl.DecodeBody(file.Body, nil, &cfg); diags.HasErrors() {
		return nil, fmt.Errorf("HCL decode error: %s", diags.Error())
	}
	if cfg.SchemaVersion != "" && cfg.SchemaVersion != CurrentSchemaVersion {
		return nil, fmt.Errorf("unsupported config schema version %s (supported: %s)",
			cfg.SchemaVersion, CurrentSchemaVersion)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// Load reads path, applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); errs.HasErrors() {
		return nil, fmt.Errorf("invalid configuration: %w", errs)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from environment variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	host, port, err := net.SplitHostPort(c.Listen)
	if err != nil {
		return fmt.Errorf("listen %q: %w", c.Listen, err)
	}
	if v := getenv("HOST"); v != "" {
		host = v
	}
	if v := getenv("PORT"); v != "" {
		if _, err := strconv.ParseUint(v, 10, 16); err != nil {
			return fmt.Errorf("PORT %q: not a valid port", v)
		}
		port = v
	}
	c.Listen = net.JoinHostPort(host, port)

	if v := getenv("NGINX_CONFIG_DIR"); v != "" {
		c.Nginx.ConfigDir = v
	}
	if v := getenv("NGINX_LOG_DIR"); v != "" {
		c.Nginx.LogDir = v
	}
	if v := getenv("NGINX_BINARY"); v != "" {
		c.Nginx.Binary = v
	}
	if v := getenv("API_KEY_REQUIRED"); v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("API_KEY_REQUIRED %q: %w", v, err)
		}
		c.API.RequireAuth = b
	}
	if v := getenv("API_KEY"); v != "" {
		c.API.APIKey = v
	}
	return nil
}
