package cmd

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/ngxweb/internal/auth"
	"grimm.is/ngxweb/internal/config"
)

func TestRunInit(t *testing.T) {
	out := captureOutput(t)
	path := filepath.Join(t.TempDir(), "etc", "ngxweb.hcl")

	require.NoError(t, RunInit([]string{"-c", path, "--listen", "0.0.0.0:8080", "--tls"}))
	assert.Equal(t, "Configuration written to "+path+"\n", out.String())

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.Listen)
	assert.True(t, cfg.API.TLS)
	assert.False(t, cfg.API.RequireAuth)

	err = RunInit([]string{"-c", path})
	assert.ErrorContains(t, err, "already exists")
	require.NoError(t, RunInit([]string{"-c", path, "--force"}))
}

func TestRunInit_GenerateKey(t *testing.T) {
	out := captureOutput(t)
	path := filepath.Join(t.TempDir(), "ngxweb.hcl")

	require.NoError(t, RunInit([]string{"-c", path, "--generate-key"}))
	key := apiKeyLine(t, out.String())

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.True(t, cfg.API.RequireAuth)
	assert.Equal(t, key, cfg.API.APIKey)
	assert.Empty(t, cfg.API.APIKeyHash)
}

func TestRunInit_HashKey(t *testing.T) {
	out := captureOutput(t)
	path := filepath.Join(t.TempDir(), "ngxweb.hcl")

	require.NoError(t, RunInit([]string{"-c", path, "--hash-key"}))
	key := apiKeyLine(t, out.String())
	assert.Contains(t, out.String(), "Only the hash was stored")

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.True(t, cfg.API.RequireAuth)
	assert.Empty(t, cfg.API.APIKey)

	v, err := auth.NewVerifier("", cfg.API.APIKeyHash)
	require.NoError(t, err)
	assert.True(t, v.Verify(key))
	assert.False(t, v.Verify(key+"x"))
}

func apiKeyLine(t *testing.T, out string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if key, ok := strings.CutPrefix(line, "API key: "); ok {
			require.NotEmpty(t, key)
			return key
		}
	}
	t.Fatalf("no API key in output %q", out)
	return ""
}
