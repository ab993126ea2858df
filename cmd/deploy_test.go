package cmd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDeploy(t *testing.T) {
	env := newTestEnv(t)
	createSite(t, env)
	asked := answer(t, true)

	out, err := env.run(t, RunDeploy, "config-site-conf")
	require.NoError(t, err)
	assert.Equal(t, 1, *asked)
	assert.Equal(t, "Configuration deployed successfully\n", out)
	assert.Equal(t, []string{"-t", "-s"}, env.exec.firstArgs())
}

func TestRunDeploy_ValidateOnly(t *testing.T) {
	env := newTestEnv(t)
	createSite(t, env)
	asked := answer(t, false)

	out, err := env.run(t, RunDeploy, "config-site-conf", "--validate-only")
	require.NoError(t, err)
	assert.Equal(t, 0, *asked, "validation does not prompt")
	assert.Equal(t, "Configuration is valid\n", out)
	assert.Equal(t, []string{"-t"}, env.exec.firstArgs())
}

func TestRunDeploy_Declined(t *testing.T) {
	env := newTestEnv(t)
	createSite(t, env)
	answer(t, false)

	_, err := env.run(t, RunDeploy, "config-site-conf")
	assert.ErrorIs(t, err, ErrAborted)
	assert.Empty(t, env.exec.firstArgs())
}

func TestRunDeploy_ValidationFails(t *testing.T) {
	env := newTestEnv(t)
	createSite(t, env)
	env.exec.fail["-t"] = errors.New("unexpected end of file")

	_, err := env.run(t, RunDeploy, "config-site-conf", "--yes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to deploy config")
	assert.Equal(t, []string{"-t"}, env.exec.firstArgs(), "no reload after a failed test")
}

func TestRunDeploy_JSON(t *testing.T) {
	env := newTestEnv(t)
	createSite(t, env)

	out, err := env.run(t, RunDeploy, "config-site-conf", "-n", "-o", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"success": true, "message": "Configuration is valid"}`, out)
}

func TestRunDeploy_Usage(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, RunDeploy)
	assert.ErrorContains(t, err, "usage")

	_, err = env.run(t, RunDeploy, "config-missing-conf", "--yes")
	assert.Error(t, err)
}
