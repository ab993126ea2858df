package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"grimm.is/ngxweb/internal/auth"
	"grimm.is/ngxweb/internal/brand"
	"grimm.is/ngxweb/internal/config"
)

// RunInit writes a default configuration file.
func RunInit(args []string) error {
	flags := newFlagSet("init")
	configFile := flags.String("config", brand.GetConfigFile(), "Configuration file to write")
	flags.StringVar(configFile, "c", brand.GetConfigFile(), "Configuration file (short)")
	force := flags.Bool("force", false, "Overwrite an existing file")
	flags.BoolVar(force, "f", false, "Overwrite an existing file (short)")
	listen := flags.String("listen", "", "API listen address")
	generateKey := flags.Bool("generate-key", false, "Generate an API key and require authentication")
	hashKey := flags.Bool("hash-key", false, "Store only the bcrypt hash of the generated key")
	enableTLS := flags.Bool("tls", false, "Serve the API over HTTPS with a self-signed certificate")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if _, err := os.Stat(*configFile); err == nil && !*force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", *configFile)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	cfg := config.Default()
	if *listen != "" {
		cfg.Listen = *listen
	}
	cfg.API.TLS = *enableTLS

	var key string
	if *generateKey || *hashKey {
		var err error
		if key, err = auth.GenerateKey(); err != nil {
			return err
		}
		cfg.API.RequireAuth = true
		if *hashKey {
			hash, err := auth.HashKey(key)
			if err != nil {
				return err
			}
			cfg.API.APIKeyHash = hash
		} else {
			cfg.API.APIKey = key
		}
	}

	if errs := cfg.Validate(); errs.HasErrors() {
		return fmt.Errorf("invalid configuration: %w", errs)
	}
	if err := config.SaveHCL(cfg, *configFile); err != nil {
		return err
	}

	Printer.Fprintf(stdout, "Configuration written to %s\n", *configFile)
	if key != "" {
		Printer.Fprintf(stdout, "API key: %s\n", key)
		if *hashKey {
			Printer.Fprintln(stdout, "Only the hash was stored. Keep this key, it cannot be shown again.")
		}
	}
	return nil
}
