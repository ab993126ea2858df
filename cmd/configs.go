package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"text/tabwriter"

	"grimm.is/ngxweb/internal/brand"
	"grimm.is/ngxweb/internal/nginx"
	"grimm.is/ngxweb/internal/nginxconf"
	"grimm.is/ngxweb/internal/tui"
)

// RunConfig handles the config subcommands.
func RunConfig(args []string) error {
	if len(args) < 1 {
		printConfigUsage()
		return usageError("config <command>")
	}

	switch args[0] {
	case "list", "ls":
		return runConfigList(args[1:])
	case "show", "get":
		return runConfigShow(args[1:])
	case "blocks":
		return runConfigBlocks(args[1:])
	case "create":
		return runConfigCreate(args[1:])
	case "edit":
		return runConfigEdit(args[1:])
	case "delete", "rm":
		return runConfigDelete(args[1:])
	case "diff":
		return runConfigDiff(args[1:])
	case "help", "-h", "--help":
		printConfigUsage()
		return nil
	default:
		printConfigUsage()
		return fmt.Errorf("unknown config command: %s", args[0])
	}
}

func runConfigList(args []string) error {
	flags := newFlagSet("config list")
	remote := addRemoteFlags(flags)
	if err := flags.Parse(args); err != nil {
		return err
	}
	c, err := remote.client()
	if err != nil {
		return err
	}

	configs, err := c.ListConfigs(context.Background())
	if err != nil {
		return err
	}
	return render(remote.output, configs, func(w *tabwriter.Writer) {
		if len(configs) == 0 {
			Printer.Fprintln(w, "No configurations found")
			return
		}
		Printer.Fprintln(w, "ID\tNAME\tPATH\tSYMLINK")
		for _, cfg := range configs {
			Printer.Fprintf(w, "%s\t%s\t%s\t%s\n", cfg.ID, cfg.Name, cfg.Path, dash(cfg.SymlinkPath))
		}
	})
}

func runConfigShow(args []string) error {
	flags := newFlagSet("config show")
	remote := addRemoteFlags(flags)
	pos, err := parseArgs(flags, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return usageError("config show <id>")
	}
	c, err := remote.client()
	if err != nil {
		return err
	}

	cfg, err := c.GetConfig(context.Background(), pos[0])
	if err != nil {
		return err
	}
	if remote.output == FormatTable {
		_, err := io.WriteString(stdout, cfg.Content)
		return err
	}
	return render(remote.output, cfg, nil)
}

func runConfigBlocks(args []string) error {
	flags := newFlagSet("config blocks")
	remote := addRemoteFlags(flags)
	pos, err := parseArgs(flags, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return usageError("config blocks <id>")
	}
	c, err := remote.client()
	if err != nil {
		return err
	}

	view, err := c.ConfigBlocks(context.Background(), pos[0])
	if err != nil {
		return err
	}
	return render(remote.output, view, func(w *tabwriter.Writer) {
		s := view.Summary
		Printer.Fprintf(w, "Global:\tworkers %s, connections %s, keepalive %s\n",
			dash(s.WorkerProcesses), dash(s.WorkerConnections), dash(s.KeepaliveTimeout))
		Printer.Fprintln(w)
		if len(view.Blocks) == 0 {
			Printer.Fprintln(w, "No server or upstream blocks")
			return
		}
		Printer.Fprintln(w, "#\tKIND\tTITLE\tDETAILS")
		for _, b := range view.Blocks {
			Printer.Fprintf(w, "%s\t%s\t%s\t%s\n", strconv.Itoa(b.Index), b.Kind, b.Title, blockDetails(b))
		}
	})
}

// blockDetails is a one-line summary of the routing a block carries.
func blockDetails(b nginxconf.BlockView) string {
	switch {
	case b.Server != nil:
		var targets []string
		for _, loc := range b.Server.Locations {
			if loc.ProxyPass != "" {
				targets = append(targets, loc.Path+" -> "+loc.ProxyPass)
			}
		}
		return dash(strings.Join(targets, ", "))
	case b.Upstream != nil:
		return dash(strings.Join(b.Upstream.Members, ", "))
	}
	return "-"
}

func runConfigCreate(args []string) error {
	flags := newFlagSet("config create")
	remote := addRemoteFlags(flags)
	file := flags.String("file", "", "Read the content from this file (- for stdin)")
	flags.StringVar(file, "f", "", "Content file (short)")
	pos, err := parseArgs(flags, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return usageError("config create <name> [--file path]")
	}

	content := tui.DefaultConfigContent
	if *file != "" {
		if content, err = readContent(*file); err != nil {
			return err
		}
	}
	c, err := remote.client()
	if err != nil {
		return err
	}

	cfg, err := c.CreateConfig(context.Background(), pos[0], content)
	if err != nil {
		return err
	}
	if remote.output != FormatTable {
		return render(remote.output, cfg, nil)
	}
	Printer.Fprintf(stdout, "Configuration created successfully!\n")
	Printer.Fprintf(stdout, "ID: %s\nPath: %s\n", cfg.ID, cfg.Path)
	printSymlink(cfg)
	return nil
}

func printSymlink(cfg *nginx.Config) {
	switch {
	case cfg.SymlinkCreated != nil && *cfg.SymlinkCreated:
		Printer.Fprintf(stdout, "Linked into %s\n", cfg.SymlinkPath)
	case cfg.SymlinkCommand != "":
		Printer.Fprintf(stdout, "Link it manually: %s\n", cfg.SymlinkCommand)
	}
}

func runConfigEdit(args []string) error {
	flags := newFlagSet("config edit")
	remote := addRemoteFlags(flags)
	editor := flags.String("editor", "", "Editor to use (default: $EDITOR or vi)")
	flags.StringVar(editor, "e", "", "Editor (short)")
	yes := flags.Bool("yes", false, "Save without confirmation")
	flags.BoolVar(yes, "y", false, "Save without confirmation (short)")
	pos, err := parseArgs(flags, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return usageError("config edit <id>")
	}

	if *editor == "" {
		*editor = os.Getenv("EDITOR")
		if *editor == "" {
			*editor = "vi"
		}
	}
	c, err := remote.client()
	if err != nil {
		return err
	}
	ctx := context.Background()

	cfg, err := c.GetConfig(ctx, pos[0])
	if err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp("", brand.LowerName+"-*.conf")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpFileName := tmpFile.Name()
	defer os.Remove(tmpFileName)

	if _, err := tmpFile.WriteString(cfg.Content); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	tmpFile.Close()

	// $EDITOR may carry arguments, e.g. "code --wait".
	argv := strings.Fields(*editor)
	cmd := exec.Command(argv[0], append(argv[1:], tmpFileName)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("editor failed: %w", err)
	}

	edited, err := os.ReadFile(tmpFileName)
	if err != nil {
		return fmt.Errorf("failed to read edited file: %w", err)
	}
	if string(edited) == cfg.Content {
		Printer.Fprintln(stdout, "No changes made")
		return nil
	}

	diff, err := c.DiffConfig(ctx, cfg.ID, string(edited))
	if err != nil {
		return err
	}
	Printer.Fprint(stdout, diff.Diff)
	if err := confirmOrAbort(*yes, "Save changes to "+cfg.Name+"?"); err != nil {
		return err
	}

	if _, err := c.UpdateConfig(ctx, cfg.ID, string(edited)); err != nil {
		return err
	}
	Printer.Fprintln(stdout, "Configuration saved successfully!")
	Printer.Fprintf(stdout, "Run '%s deploy %s' to apply it.\n", brand.BinaryName, cfg.ID)
	return nil
}

func runConfigDelete(args []string) error {
	flags := newFlagSet("config delete")
	remote := addRemoteFlags(flags)
	yes := flags.Bool("yes", false, "Delete without confirmation")
	flags.BoolVar(yes, "y", false, "Delete without confirmation (short)")
	pos, err := parseArgs(flags, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return usageError("config delete <id> [--yes]")
	}
	c, err := remote.client()
	if err != nil {
		return err
	}

	if err := confirmOrAbort(*yes, "Delete configuration "+pos[0]+"?"); err != nil {
		return err
	}
	if err := c.DeleteConfig(context.Background(), pos[0]); err != nil {
		return err
	}
	Printer.Fprintln(stdout, "Configuration deleted successfully!")
	return nil
}

func runConfigDiff(args []string) error {
	flags := newFlagSet("config diff")
	remote := addRemoteFlags(flags)
	file := flags.String("file", "", "Proposed content (- for stdin)")
	flags.StringVar(file, "f", "", "Proposed content (short)")
	pos, err := parseArgs(flags, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 || *file == "" {
		return usageError("config diff <id> --file path")
	}

	proposed, err := readContent(*file)
	if err != nil {
		return err
	}
	c, err := remote.client()
	if err != nil {
		return err
	}

	diff, err := c.DiffConfig(context.Background(), pos[0], proposed)
	if err != nil {
		return err
	}
	if remote.output != FormatTable {
		return render(remote.output, diff, nil)
	}
	if !diff.Changed {
		Printer.Fprintln(stdout, "No changes")
		return nil
	}
	_, err = io.WriteString(stdout, diff.Diff)
	return err
}

func readContent(path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) == 0 {
		return "", errors.New("content is empty")
	}
	return string(data), nil
}

func printConfigUsage() {
	Printer.Fprintln(stderr, "Nginx Configuration Management")
	Printer.Fprintln(stderr)
	Printer.Fprintf(stderr, "Usage: %s config <command> [options]\n", brand.BinaryName)
	Printer.Fprintln(stderr)
	Printer.Fprintln(stderr, "Commands:")
	Printer.Fprintln(stderr, "  list               List managed configurations")
	Printer.Fprintln(stderr, "  show <id>          Print a configuration")
	Printer.Fprintln(stderr, "  blocks <id>        Show the server and upstream blocks of a configuration")
	Printer.Fprintln(stderr, "  create <name>      Create a configuration (default content unless --file)")
	Printer.Fprintln(stderr, "  edit <id>          Edit a configuration in $EDITOR")
	Printer.Fprintln(stderr, "  delete <id>        Delete a configuration")
	Printer.Fprintln(stderr, "  diff <id> -f path  Compare a configuration with proposed content")
	Printer.Fprintln(stderr)
	Printer.Fprintln(stderr, "Examples:")
	Printer.Fprintf(stderr, "  %s config create site --file site.conf\n", brand.BinaryName)
	Printer.Fprintf(stderr, "  %s config blocks config-site-conf -o json\n", brand.BinaryName)
	Printer.Fprintf(stderr, "  cat site.conf | %s config diff config-site-conf -f -\n", brand.BinaryName)
}
