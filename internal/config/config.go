package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"grimm.is/ngxweb/internal/brand"
)

// CurrentSchemaVersion defines the current schema version of the configuration.
const CurrentSchemaVersion = "1.0"

// Probe modes for load balancer health checks.
const (
	ProbeHTTP = "http"
	ProbeICMP = "icmp"
)

// Config is the top-level structure of the ngxweb configuration.
type Config struct {
	SchemaVersion string `hcl:"schema_version,optional" json:"schema_version,omitempty"`

	// Listen is the API address as host:port.
	Listen   string `hcl:"listen,optional" json:"listen"`
	StateDir string `hcl:"state_dir,optional" json:"state_dir"`
	LogLevel string `hcl:"log_level,optional" json:"log_level"`
	LogJSON  bool   `hcl:"log_json,optional" json:"log_json"`

	Nginx        *NginxConfig        `hcl:"nginx,block" json:"nginx"`
	API          *APIConfig          `hcl:"api,block" json:"api"`
	LoadBalancer *LoadBalancerConfig `hcl:"load_balancer,block" json:"load_balancer"`
	Audit        *AuditConfig        `hcl:"audit,block" json:"audit"`
}

// NginxConfig describes where managed configs live and how Nginx is driven.
type NginxConfig struct {
	ConfigDir string   `hcl:"config_dir,optional" json:"config_dir"`
	LogDir    string   `hcl:"log_dir,optional" json:"log_dir"`
	AccessLog string   `hcl:"access_log,optional" json:"access_log"`
	Binary    string   `hcl:"binary,optional" json:"binary"`
	LinkDirs  []string `hcl:"link_dirs,optional" json:"link_dirs"`

	// CommandTimeout bounds nginx -t and nginx -s reload (Go duration).
	CommandTimeout string `hcl:"command_timeout,optional" json:"command_timeout"`
}

// APIConfig controls API authentication and cross-origin access.
type APIConfig struct {
	RequireAuth bool     `hcl:"require_auth,optional" json:"require_auth"`
	APIKey      string   `hcl:"api_key,optional" json:"-"`
	APIKeyHash  string   `hcl:"api_key_hash,optional" json:"-"` // bcrypt
	CORSOrigins []string `hcl:"cors_origins,optional" json:"cors_origins"`

	// TLS serves the API over HTTPS. A self-signed pair is generated at
	// TLSCert/TLSKey when the files do not exist.
	TLS     bool   `hcl:"tls,optional" json:"tls"`
	TLSCert string `hcl:"tls_cert,optional" json:"tls_cert,omitempty"`
	TLSKey  string `hcl:"tls_key,optional" json:"tls_key,omitempty"`
}

// LoadBalancerConfig describes the managed upstream pool.
type LoadBalancerConfig struct {
	UpstreamFile string `hcl:"upstream_file,optional" json:"upstream_file"`
	UpstreamName string `hcl:"upstream_name,optional" json:"upstream_name"`
	ProbeMode    string `hcl:"probe_mode,optional" json:"probe_mode"`
	ProbeTimeout string `hcl:"probe_timeout,optional" json:"probe_timeout"`
}

// AuditConfig controls the audit trail.
type AuditConfig struct {
	Disabled      bool `hcl:"disabled,optional" json:"disabled"`
	RetentionDays int  `hcl:"retention_days,optional" json:"retention_days"`
}

// DefaultLinkDirs are the Nginx directories a new config is symlinked into.
var DefaultLinkDirs = []string{"/etc/nginx", "/usr/local/etc/nginx"}

// Default returns a fully populated configuration rooted at the ngxweb home directory.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	home := brand.GetHomeDir()

	if c.SchemaVersion == "" {
		c.SchemaVersion = CurrentSchemaVersion
	}
	if c.Listen == "" {
		c.Listen = "127.0.0.1:3000"
	}
	if c.StateDir == "" {
		c.StateDir = filepath.Join(home, "state")
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.Nginx == nil {
		c.Nginx = &NginxConfig{}
	}
	if c.Nginx.ConfigDir == "" {
		c.Nginx.ConfigDir = filepath.Join(home, "configs")
	}
	if c.Nginx.LogDir == "" {
		c.Nginx.LogDir = filepath.Join(home, "logs")
	}
	if c.Nginx.AccessLog == "" {
		c.Nginx.AccessLog = "access.log"
	}
	if c.Nginx.Binary == "" {
		c.Nginx.Binary = "/usr/sbin/nginx"
	}
	if c.Nginx.LinkDirs == nil {
		c.Nginx.LinkDirs = append([]string(nil), DefaultLinkDirs...)
	}
	if c.Nginx.CommandTimeout == "" {
		c.Nginx.CommandTimeout = "30s"
	}

	if c.API == nil {
		c.API = &APIConfig{}
	}
	if len(c.API.CORSOrigins) == 0 {
		c.API.CORSOrigins = []string{"*"}
	}
	if c.API.TLSCert == "" {
		c.API.TLSCert = filepath.Join(c.StateDir, "tls", "api.crt")
	}
	if c.API.TLSKey == "" {
		c.API.TLSKey = filepath.Join(c.StateDir, "tls", "api.key")
	}

	if c.LoadBalancer == nil {
		c.LoadBalancer = &LoadBalancerConfig{}
	}
	if c.LoadBalancer.UpstreamFile == "" {
		c.LoadBalancer.UpstreamFile = "upstream.conf"
	}
	if c.LoadBalancer.UpstreamName == "" {
		c.LoadBalancer.UpstreamName = "backend"
	}
	if c.LoadBalancer.ProbeMode == "" {
		c.LoadBalancer.ProbeMode = ProbeHTTP
	}
	if c.LoadBalancer.ProbeTimeout == "" {
		c.LoadBalancer.ProbeTimeout = "5s"
	}

	if c.Audit == nil {
		c.Audit = &AuditConfig{}
	}
	if c.Audit.RetentionDays == 0 {
		c.Audit.RetentionDays = 90
	}
}

// CommandTimeoutDuration parses nginx.command_timeout.
func (c *Config) CommandTimeoutDuration() time.Duration {
	return parseDuration(c.Nginx.CommandTimeout, 30*time.Second)
}

// ProbeTimeoutDuration parses load_balancer.probe_timeout.
func (c *Config) ProbeTimeoutDuration() time.Duration {
	return parseDuration(c.LoadBalancer.ProbeTimeout, 5*time.Second)
}

// AccessLogPath is the access log file read for traffic.
func (c *Config) AccessLogPath() string {
	if filepath.IsAbs(c.Nginx.AccessLog) {
		return c.Nginx.AccessLog
	}
	return filepath.Join(c.Nginx.LogDir, c.Nginx.AccessLog)
}

// UpstreamPath is the pool file managed by the load balancer.
func (c *Config) UpstreamPath() string {
	if filepath.IsAbs(c.LoadBalancer.UpstreamFile) {
		return c.LoadBalancer.UpstreamFile
	}
	return filepath.Join(c.Nginx.ConfigDir, c.LoadBalancer.UpstreamFile)
}

// StateDBPath is the SQLite file holding pool metadata.
func (c *Config) StateDBPath() string {
	return filepath.Join(c.StateDir, "state.db")
}

// AuditDBPath is the SQLite file holding the audit trail.
func (c *Config) AuditDBPath() string {
	return filepath.Join(c.StateDir, "audit.db")
}

// BackupDir holds the daily snapshots of the managed configurations.
func (c *Config) BackupDir() string {
	return filepath.Join(c.StateDir, "backups")
}

// EnsureDirs creates the config, log and state directories.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.Nginx.ConfigDir, c.Nginx.LogDir, c.StateDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
