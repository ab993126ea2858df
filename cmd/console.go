package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"grimm.is/ngxweb/internal/tui"
)

// RunConsole starts the TUI console against a running server.
func RunConsole(args []string) error {
	flags := newFlagSet("console")
	remote := addRemoteFlags(flags)
	debug := flags.String("debug-log", "", "Write console debug output to this file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if *debug != "" {
		if err := tui.EnableDebugLogging(*debug); err != nil {
			Printer.Fprintf(stderr, "Failed to enable debug logging: %v\n", err)
		} else {
			defer tui.CloseDebugLog()
			tui.DebugLog("Starting TUI Console")
		}
	}

	c, err := remote.client()
	if err != nil {
		return err
	}
	tui.DebugLog("Connecting to %s", c.BaseURL())

	p := tea.NewProgram(tui.NewModel(c), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("console: %w", err)
	}
	return nil
}
