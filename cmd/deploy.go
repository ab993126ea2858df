package cmd

import (
	"context"
	"errors"
	"strings"

	"grimm.is/ngxweb/internal/nginx"
)

// RunDeploy validates a configuration with Nginx and, unless
// --validate-only is given, reloads Nginx.
func RunDeploy(args []string) error {
	flags := newFlagSet("deploy")
	remote := addRemoteFlags(flags)
	validateOnly := flags.Bool("validate-only", false, "Run nginx -t only")
	flags.BoolVar(validateOnly, "n", false, "Validate only (short)")
	yes := flags.Bool("yes", false, "Deploy without confirmation")
	flags.BoolVar(yes, "y", false, "Deploy without confirmation (short)")
	pos, err := parseArgs(flags, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return usageError("deploy <id> [--validate-only] [--yes]")
	}
	c, err := remote.client()
	if err != nil {
		return err
	}

	if !*validateOnly {
		if err := confirmOrAbort(*yes, "Deploy "+pos[0]+" and reload Nginx?"); err != nil {
			return err
		}
	}

	result, err := c.Deploy(context.Background(), pos[0], *validateOnly)
	if err != nil {
		return err
	}
	if result == nil {
		return errors.New("empty deploy response")
	}
	if remote.output != FormatTable {
		if err := render(remote.output, result, nil); err != nil {
			return err
		}
	}
	if !result.Success {
		return errors.New(deployError(result))
	}
	if remote.output == FormatTable {
		msg := strings.TrimSpace(result.Message)
		switch {
		case msg != "":
		case *validateOnly:
			msg = "Configuration is valid"
		default:
			msg = "Configuration deployed successfully!"
		}
		Printer.Fprintln(stdout, msg)
	}
	return nil
}

func deployError(result *nginx.DeployResult) string {
	switch {
	case result.Error != "":
		return result.Error
	case result.Message != "":
		return result.Message
	}
	return "Unknown error"
}
