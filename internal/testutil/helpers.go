// Package testutil holds helpers for tests that need the host: a real
// nginx binary or ICMP sockets.
package testutil

import (
	"os"
	"os/exec"
	"testing"
)

// IntegrationEnv enables tests that depend on the host environment.
const IntegrationEnv = "NGXWEB_INTEGRATION_TEST"

// RequireIntegration skips the test unless IntegrationEnv is set.
func RequireIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv(IntegrationEnv) == "" {
		t.Skipf("Skipping test: set %s to run", IntegrationEnv)
	}
}

// RequireBinary returns the path of name, skipping the test when it is not
// on PATH.
func RequireBinary(t *testing.T, name string) string {
	t.Helper()
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("Skipping test: %s not installed", name)
	}
	return path
}
