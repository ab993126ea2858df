package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/ngxweb/internal/audit"
	"grimm.is/ngxweb/internal/nginx"
	"grimm.is/ngxweb/internal/nginxconf"
)

const siteConf = `worker_processes 2;

server {
    listen 8080;
    server_name example.org;
    location / {
        proxy_pass http://backend;
    }
}

upstream backend {
    server 10.0.0.1:8080;
}`

func TestConfigCRUD(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/api/config", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())

	rr = env.do(t, "POST", "/api/config", CreateConfigRequest{Name: "example.org", Content: siteConf})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[nginx.Config](t, rr)
	assert.Equal(t, "config-example-org-conf", created.ID)
	assert.Equal(t, "example.org.conf", created.Name)
	require.NotNil(t, created.SymlinkCreated)
	assert.True(t, *created.SymlinkCreated)
	assert.Equal(t, filepath.Join(env.dir, "nginx", "example.org.conf"), created.SymlinkPath)

	rr = env.do(t, "POST", "/api/config", CreateConfigRequest{Name: "example.org", Content: ""})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, decode[ErrorResponse](t, rr).Error, "Failed to create config")

	rr = env.do(t, "GET", "/api/config/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, siteConf, decode[nginx.Config](t, rr).Content)

	rr = env.do(t, "PUT", "/api/config/"+created.ID, UpdateConfigRequest{Content: "events {}"})
	require.Equal(t, http.StatusOK, rr.Code)
	data, err := os.ReadFile(created.Path)
	require.NoError(t, err)
	assert.Equal(t, "events {}", string(data))

	rr = env.do(t, "DELETE", "/api/config/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decode[MessageResponse](t, rr).Success)

	rr = env.do(t, "GET", "/api/config/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	events, err := env.audit.Query(audit.Filter{})
	require.NoError(t, err)
	actions := make([]string, 0, len(events))
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	assert.ElementsMatch(t, []string{
		audit.ActionConfigCreate, audit.ActionConfigCreate,
		audit.ActionConfigUpdate, audit.ActionConfigDelete,
	}, actions)
}

func TestCreateConfig_Invalid(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/api/config", CreateConfigRequest{Name: "../etc/passwd"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, "POST", "/api/config", map[string]any{"name": "a", "bogus": 1})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, ErrInvalidBody, decode[ErrorResponse](t, rr).Error)
}

func TestUpdateConfig_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "PUT", "/api/config/config-missing-conf", UpdateConfigRequest{Content: "x"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDeployConfig(t *testing.T) {
	env := newTestEnv(t)
	cfg, err := env.manager.Create("site", siteConf)
	require.NoError(t, err)

	validate := true
	rr := env.do(t, "POST", "/api/config/deploy", DeployRequest{ConfigID: cfg.ID, ValidateOnly: &validate})
	require.Equal(t, http.StatusOK, rr.Code)
	result := decode[nginx.DeployResult](t, rr)
	assert.True(t, result.Success)
	assert.Equal(t, nginx.MessageValid, result.Message)
	require.Len(t, env.exec.Calls(), 1)
	assert.Equal(t, []string{"nginx", "-t", "-c", cfg.Path}, env.exec.Calls()[0])

	rr = env.do(t, "POST", "/api/config/"+cfg.ID+"/deploy", DeployRequest{})
	require.Equal(t, http.StatusOK, rr.Code)
	result = decode[nginx.DeployResult](t, rr)
	assert.True(t, result.Success)
	assert.Equal(t, nginx.MessageDeployed, result.Message)
	calls := env.exec.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, []string{"nginx", "-s", "reload"}, calls[2])

	events, err := env.audit.Query(audit.Filter{Action: audit.ActionConfigValidate})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestDeployConfig_InvalidIsNotAnHTTPError(t *testing.T) {
	env := newTestEnv(t)
	cfg, err := env.manager.Create("site", "broken {")
	require.NoError(t, err)
	env.exec.fail["-t"] = &nginx.CommandError{Name: "nginx", Output: "unexpected end of file", Err: errors.New("exit status 1")}

	rr := env.do(t, "POST", "/api/config/deploy", DeployRequest{ConfigID: cfg.ID})
	require.Equal(t, http.StatusOK, rr.Code)
	result := decode[nginx.DeployResult](t, rr)
	assert.False(t, result.Success)
	assert.Equal(t, "Failed to deploy config: Invalid configuration: unexpected end of file", result.Error)
	assert.Len(t, env.exec.Calls(), 1, "reload must not run after a failed validation")
}

func TestDeployConfig_Errors(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/api/config/deploy", DeployRequest{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, "POST", "/api/config/deploy", DeployRequest{ConfigID: "config-nope-conf"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestConfigBlocks(t *testing.T) {
	env := newTestEnv(t)
	cfg, err := env.manager.Create("site", siteConf)
	require.NoError(t, err)

	rr := env.do(t, "GET", "/api/config/"+cfg.ID+"/blocks", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	view := decode[nginxconf.DocumentView](t, rr)
	assert.Equal(t, "worker_processes 2;", view.Global)
	require.Len(t, view.Blocks, 2)
	assert.Equal(t, nginxconf.KindServer, view.Blocks[0].Kind)
	require.NotNil(t, view.Blocks[0].Server)
	assert.Equal(t, "example.org", view.Blocks[0].Server.Name)
	assert.Equal(t, nginxconf.KindUpstream, view.Blocks[1].Kind)
	require.NotNil(t, view.Blocks[1].Upstream)
	assert.Equal(t, []string{"10.0.0.1:8080"}, view.Blocks[1].Upstream.Members)
}

func TestConfigDiff(t *testing.T) {
	env := newTestEnv(t)
	cfg, err := env.manager.Create("site", "a\nb\nc\n")
	require.NoError(t, err)

	rr := env.do(t, "POST", "/api/config/"+cfg.ID+"/diff", DiffRequest{Content: "a\nB\nc\n"})
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[DiffResponse](t, rr)
	assert.True(t, resp.Changed)
	assert.Contains(t, resp.Diff, "--- a/site.conf")
	assert.Contains(t, resp.Diff, "-b\n+B\n")

	rr = env.do(t, "POST", "/api/config/"+cfg.ID+"/diff", DiffRequest{Content: "a\nb\nc\n"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, decode[DiffResponse](t, rr).Changed)
}
