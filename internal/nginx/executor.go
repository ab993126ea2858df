package nginx

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandExecutor runs external commands. Tests substitute a mock.
type CommandExecutor interface {
	RunCommand(ctx context.Context, name string, arg ...string) (string, error)
}

// CommandError is returned when a command exits unsuccessfully.
type CommandError struct {
	Name   string
	Args   []string
	Output string // stderr, or stdout when stderr is empty
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s %s failed: %v: %s", e.Name, strings.Join(e.Args, " "), e.Err, e.Output)
}

func (e *CommandError) Unwrap() error { return e.Err }

// RealCommandExecutor runs commands with os/exec.
type RealCommandExecutor struct{}

// RunCommand runs a command and returns its combined output.
func (RealCommandExecutor) RunCommand(ctx context.Context, name string, arg ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, arg...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		out := strings.TrimSpace(stderr.String())
		if out == "" {
			out = strings.TrimSpace(stdout.String())
		}
		return "", &CommandError{Name: name, Args: arg, Output: out, Err: err}
	}
	return stdout.String() + stderr.String(), nil
}

// commandOutput extracts the most useful text from a command failure.
func commandOutput(err error) string {
	if ce, ok := err.(*CommandError); ok && ce.Output != "" {
		return ce.Output
	}
	return err.Error()
}
