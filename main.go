package main

import (
	"errors"
	"flag"
	"os"

	"grimm.is/ngxweb/cmd"
	"grimm.is/ngxweb/internal/brand"
	"grimm.is/ngxweb/internal/i18n"
)

var printer = i18n.NewCLIPrinter()

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	args := os.Args[2:]
	var err error

	switch os.Args[1] {
	case "serve", "start":
		err = cmd.RunServe(args)

	case "console":
		err = cmd.RunConsole(args)

	case "init":
		err = cmd.RunInit(args)

	case "check":
		checkFlags := flag.NewFlagSet("check", flag.ExitOnError)
		verbose := checkFlags.Bool("verbose", false, "Verbose output")
		checkFlags.BoolVar(verbose, "v", false, "Verbose output (short)")
		checkFlags.Parse(args)

		configFile := brand.GetConfigFile()
		if len(checkFlags.Args()) > 0 {
			configFile = checkFlags.Arg(0)
		}
		if err := cmd.RunCheck(configFile, *verbose); err != nil {
			printer.Fprintf(os.Stderr, "Check failed: %v\n", err)
			os.Exit(1)
		}

	case "status":
		err = cmd.RunStatus(args)

	case "config":
		err = cmd.RunConfig(args)

	case "deploy":
		err = cmd.RunDeploy(args)

	case "traffic", "logs":
		err = cmd.RunTraffic(args)

	case "servers", "lb":
		err = cmd.RunServers(args)

	case "audit":
		err = cmd.RunAudit(args)

	case "version":
		printer.Printf("%s version %s\n", brand.Name, brand.Version)
		printer.Printf("Build: %s\n", brand.BuildTime)

	case "help", "-h", "--help":
		printUsage()

	default:
		printer.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	switch {
	case err == nil:
	case errors.Is(err, flag.ErrHelp):
		os.Exit(2)
	case errors.Is(err, cmd.ErrAborted):
		printer.Fprintln(os.Stderr, "Aborted")
		os.Exit(1)
	default:
		printer.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	printer.Printf(`%s - %s

Usage:
  %s <command> [options]

Server Commands:
  serve     Run the API server (alias: start)
            Options: --config (-c) <file>, --listen (-l) <addr>
  init      Write a default configuration file
            Options: --generate-key, --hash-key, --tls, --listen <addr>, --force
  check     Validate configuration file
            Options: --verbose (-v)

Management Commands:
  console   Interactive TUI console
  status    Show server health and traffic totals
  config    Manage Nginx configurations
            Subcommands: list, show, blocks, create, edit, delete, diff
  deploy    Validate and reload a configuration
            Options: --validate-only (-n), --yes (-y)
  traffic   Inspect the access log
            Subcommands: logs, stats, export, follow
  servers   Manage the load balancer pool
            Subcommands: list, add, update, remove, health
  audit     Show recent changes
  version   Print version information

Client Options (all management commands):
  --remote (-r) <url>     API base URL [default: from the configuration]
  --api-key (-k) <key>    API key [default: $API_KEY]
  --fingerprint <sha256>  Pin a self-signed server certificate
  --output (-o) <format>  table, json or yaml [default: table]

Examples:
  %s init --generate-key
  %s serve
  %s config create site --file site.conf
  %s deploy config-site-conf
  %s traffic logs --status 502 --limit 20
  %s servers add 10.0.0.5:8080 --weight 3
`, brand.Name, brand.Description, brand.BinaryName,
		brand.BinaryName, brand.BinaryName, brand.BinaryName, brand.BinaryName, brand.BinaryName, brand.BinaryName)
}
