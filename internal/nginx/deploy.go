package nginx

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Deploy result messages.
const (
	MessageValid    = "Configuration is valid"
	MessageDeployed = "Configuration deployed successfully"
)

// DeployResult is the outcome of a deploy. A failed validation or reload is
// a result with Success false, not an error.
type DeployResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Deploy validates the config with nginx -t and, unless validateOnly is set,
// reloads Nginx. Errors are returned only when the config cannot be found or
// the context ends.
func (m *Manager) Deploy(ctx context.Context, id string, validateOnly bool) (DeployResult, error) {
	cfg, err := m.Get(id)
	if err != nil {
		return DeployResult{}, err
	}

	if err := m.Validate(ctx, cfg.Path); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return DeployResult{}, ctxErr
		}
		m.logger.Warn("config validation failed", "name", cfg.Name, "error", err)
		return DeployResult{Error: "Failed to deploy config: " + err.Error()}, nil
	}
	if validateOnly {
		return DeployResult{Success: true, Message: MessageValid}, nil
	}

	if err := m.Reload(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return DeployResult{}, ctxErr
		}
		m.logger.Error("nginx reload failed", "name", cfg.Name, "error", err)
		return DeployResult{Error: "Failed to deploy config: " + err.Error()}, nil
	}
	m.logger.Info("config deployed", "name", cfg.Name)
	return DeployResult{Success: true, Message: MessageDeployed}, nil
}

// Validate runs nginx -t -c path.
func (m *Manager) Validate(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if _, err := m.exec.RunCommand(ctx, m.binary, "-t", "-c", path); err != nil {
		return fmt.Errorf("Invalid configuration: %s", commandOutput(err))
	}
	return nil
}

// Reload runs nginx -s reload.
func (m *Manager) Reload(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if _, err := m.exec.RunCommand(ctx, m.binary, "-s", "reload"); err != nil {
		return fmt.Errorf("Failed to reload Nginx: %s", commandOutput(err))
	}
	return nil
}

// Installed reports whether the Nginx binary can be found.
func (m *Manager) Installed() bool {
	if _, err := m.lookPath(m.binary); err == nil {
		return true
	}
	_, err := m.lookPath("nginx")
	return err == nil
}

var versionRe = regexp.MustCompile(`nginx/(\S+)`)

// Version returns the installed Nginx version, e.g. "1.25.3".
func (m *Manager) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	out, err := m.exec.RunCommand(ctx, m.binary, "-v")
	if err != nil {
		return "", fmt.Errorf("nginx -v: %w", err)
	}
	if mt := versionRe.FindStringSubmatch(out); mt != nil {
		return mt[1], nil
	}
	return "", errors.New("nginx -v: unrecognized output " + strings.TrimSpace(out))
}

// Diff returns a unified diff from the stored content of id to proposed.
// An empty string means no change.
func (m *Manager) Diff(id, proposed string) (string, error) {
	cfg, err := m.Get(id)
	if err != nil {
		return "", err
	}
	return UnifiedDiff(cfg.Name, cfg.Content, proposed)
}

// UnifiedDiff renders a three-line-context diff between two versions of name.
func UnifiedDiff(name, before, after string) (string, error) {
	if before == after {
		return "", nil
	}
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "a/" + name,
		ToFile:   "b/" + name,
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(diff)
}
