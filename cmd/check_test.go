package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunCheck_ValidConfig(t *testing.T) {
	out := captureOutput(t)

	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "valid.hcl")

	validConfig := `
listen = "127.0.0.1:3000"

nginx {
    config_dir = "` + filepath.Join(tmpDir, "configs") + `"
}

load_balancer {
    probe_mode = "icmp"
}
`
	if err := os.WriteFile(configPath, []byte(validConfig), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if err := RunCheck(configPath, false); err != nil {
		t.Errorf("RunCheck() error = %v, wantErr false", err)
	}
	if !strings.Contains(out.String(), "Configuration valid!") {
		t.Errorf("output missing confirmation: %q", out.String())
	}
}

func TestRunCheck_Verbose(t *testing.T) {
	out := captureOutput(t)

	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, "configs")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatal(err)
	}
	site := "server { listen 80; }\nserver { listen 81; }\nupstream backend { server 10.0.0.1:80; }\n"
	if err := os.WriteFile(filepath.Join(configDir, "site.conf"), []byte(site), 0644); err != nil {
		t.Fatal(err)
	}

	configPath := filepath.Join(tmpDir, "ngxweb.hcl")
	if err := os.WriteFile(configPath, []byte(`nginx {
    config_dir = "`+configDir+`"
}
`), 0644); err != nil {
		t.Fatal(err)
	}

	if err := RunCheck(configPath, true); err != nil {
		t.Fatalf("RunCheck() error = %v", err)
	}

	var found bool
	for _, line := range strings.Split(out.String(), "\n") {
		if strings.HasPrefix(line, "site.conf") {
			found = true
			if fields := strings.Fields(line); len(fields) != 3 || fields[1] != "2" || fields[2] != "1" {
				t.Errorf("site.conf row = %q, want 2 servers and 1 upstream", line)
			}
		}
	}
	if !found {
		t.Errorf("verbose output lists no configs: %q", out.String())
	}
}

func TestRunCheck_InvalidConfig(t *testing.T) {
	captureOutput(t)
	tmpDir := t.TempDir()

	tests := map[string]string{
		"syntax": `
nginx {
    # Missing closing brace
`,
		"probe mode": `
load_balancer {
    probe_mode = "carrier-pigeon"
}
`,
		"auth without key": `
api {
    require_auth = true
}
`,
	}

	for name, content := range tests {
		configPath := filepath.Join(tmpDir, strings.ReplaceAll(name, " ", "-")+".hcl")
		if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
		if err := RunCheck(configPath, false); err == nil {
			t.Errorf("%s: RunCheck() error = nil, wantErr true", name)
		}
	}
}

func TestRunCheck_MissingFile(t *testing.T) {
	err := RunCheck(filepath.Join(t.TempDir(), "absent.hcl"), false)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("RunCheck() error = %v, want not found", err)
	}
}
