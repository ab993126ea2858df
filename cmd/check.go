package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"grimm.is/ngxweb/internal/brand"
	"grimm.is/ngxweb/internal/config"
	"grimm.is/ngxweb/internal/nginxconf"
)

// RunCheck validates the configuration file syntax and semantics.
func RunCheck(configFile string, verbose bool) error {
	if len(configFile) == 0 {
		return fmt.Errorf("usage: %s check [-v] <config-file>\nExample: %s check -v %s", brand.BinaryName, brand.BinaryName, brand.GetConfigFile())
	}
	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("configuration file %s not found (run '%s init' to create one)", configFile, brand.BinaryName)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	Printer.Fprintf(stdout, "Configuration valid!\n")
	Printer.Fprintf(stdout, "Schema Version: %s\n", cfg.SchemaVersion)
	Printer.Fprintf(stdout, "Listen: %s\n", BaseURL(cfg))
	Printer.Fprintf(stdout, "Config Directory: %s\n", cfg.Nginx.ConfigDir)
	Printer.Fprintf(stdout, "Upstream: %s in %s\n", cfg.LoadBalancer.UpstreamName, cfg.UpstreamPath())
	if cfg.API.RequireAuth {
		Printer.Fprintf(stdout, "Authentication: required\n")
	} else {
		Printer.Fprintf(stdout, "Authentication: disabled\n")
	}

	if verbose {
		Printer.Fprintln(stdout)
		printSummary(cfg)
	}

	return nil
}

func printSummary(cfg *config.Config) {
	w := tabwriter.NewWriter(stdout, 0, 0, 3, ' ', 0)

	Printer.Fprintln(w, "SETTING\tVALUE")
	Printer.Fprintf(w, "%s\t%s\n", "nginx.binary", cfg.Nginx.Binary)
	Printer.Fprintf(w, "%s\t%s\n", "nginx.access_log", cfg.AccessLogPath())
	Printer.Fprintf(w, "%s\t%s\n", "nginx.link_dirs", dash(strings.Join(cfg.Nginx.LinkDirs, ", ")))
	Printer.Fprintf(w, "%s\t%s\n", "nginx.command_timeout", cfg.CommandTimeoutDuration())
	Printer.Fprintf(w, "%s\t%s\n", "load_balancer.probe", cfg.LoadBalancer.ProbeMode+" / "+cfg.ProbeTimeoutDuration().String())
	Printer.Fprintf(w, "%s\t%s\n", "api.cors_origins", strings.Join(cfg.API.CORSOrigins, ", "))
	if cfg.Audit.Disabled {
		Printer.Fprintf(w, "%s\t%s\n", "audit", "disabled")
	} else {
		Printer.Fprintf(w, "%s\t%s\n", "audit.retention_days", strconv.Itoa(cfg.Audit.RetentionDays))
	}
	Printer.Fprintln(w)
	w.Flush()

	// Managed configs, decomposed offline.
	paths, _ := filepath.Glob(filepath.Join(cfg.Nginx.ConfigDir, "*.conf"))
	sort.Strings(paths)
	if len(paths) == 0 {
		Printer.Fprintf(stdout, "No configurations in %s\n", cfg.Nginx.ConfigDir)
		return
	}

	Printer.Fprintln(w, "CONFIG\tSERVERS\tUPSTREAMS")
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			Printer.Fprintf(w, "%s\t%s\t%s\n", filepath.Base(path), "?", "?")
			continue
		}
		servers, upstreams := 0, 0
		for _, b := range nginxconf.Extract(string(data)) {
			if b.Kind == nginxconf.KindServer {
				servers++
			} else {
				upstreams++
			}
		}
		Printer.Fprintf(w, "%s\t%s\t%s\n", filepath.Base(path), strconv.Itoa(servers), strconv.Itoa(upstreams))
	}
	w.Flush()
}
