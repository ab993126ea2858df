package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// GenerateHCL renders cfg as an HCL document.
func GenerateHCL(cfg *Config) []byte {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	body.SetAttributeValue("schema_version", cty.StringVal(CurrentSchemaVersion))
	body.SetAttributeValue("listen", cty.StringVal(cfg.Listen))
	body.SetAttributeValue("state_dir", cty.StringVal(cfg.StateDir))
	body.SetAttributeValue("log_level", cty.StringVal(cfg.LogLevel))
	if cfg.LogJSON {
		body.SetAttributeValue("log_json", cty.True)
	}

	if n := cfg.Nginx; n != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("nginx", nil).Body()
		b.SetAttributeValue("config_dir", cty.StringVal(n.ConfigDir))
		b.SetAttributeValue("log_dir", cty.StringVal(n.LogDir))
		b.SetAttributeValue("access_log", cty.StringVal(n.AccessLog))
		b.SetAttributeValue("binary", cty.StringVal(n.Binary))
		b.SetAttributeValue("link_dirs", stringList(n.LinkDirs))
		b.SetAttributeValue("command_timeout", cty.StringVal(n.CommandTimeout))
	}

	if a := cfg.API; a != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("api", nil).Body()
		b.SetAttributeValue("require_auth", cty.BoolVal(a.RequireAuth))
		if a.APIKeyHash != "" {
			b.SetAttributeValue("api_key_hash", cty.StringVal(a.APIKeyHash))
		} else if a.APIKey != "" {
			b.SetAttributeValue("api_key", cty.StringVal(a.APIKey))
		}
		b.SetAttributeValue("cors_origins", stringList(a.CORSOrigins))
		if a.TLS {
			b.SetAttributeValue("tls", cty.True)
			b.SetAttributeValue("tls_cert", cty.StringVal(a.TLSCert))
			b.SetAttributeValue("tls_key", cty.StringVal(a.TLSKey))
		}
	}

	if lb := cfg.LoadBalancer; lb != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("load_balancer", nil).Body()
		b.SetAttributeValue("upstream_file", cty.StringVal(lb.UpstreamFile))
		b.SetAttributeValue("upstream_name", cty.StringVal(lb.UpstreamName))
		b.SetAttributeValue("probe_mode", cty.StringVal(lb.ProbeMode))
		b.SetAttributeValue("probe_timeout", cty.StringVal(lb.ProbeTimeout))
	}

	if au := cfg.Audit; au != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("audit", nil).Body()
		if au.Disabled {
			b.SetAttributeValue("disabled", cty.True)
		}
		b.SetAttributeValue("retention_days", cty.NumberIntVal(int64(au.RetentionDays)))
	}

	return hclwrite.Format(f.Bytes())
}

// SaveHCL writes cfg to path, creating the parent directory.
// The file may hold an API key, so it is written owner-only.
func SaveHCL(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, GenerateHCL(cfg), 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func stringList(items []string) cty.Value {
	if len(items) == 0 {
		return cty.ListValEmpty(cty.String)
	}
	vals := make([]cty.Value, len(items))
	for i, s := range items {
		vals[i] = cty.StringVal(s)
	}
	return cty.ListVal(vals)
}
