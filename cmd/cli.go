package cmd

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/huh"
	"gopkg.in/yaml.v2"

	"grimm.is/ngxweb/internal/brand"
	"grimm.is/ngxweb/internal/client"
	"grimm.is/ngxweb/internal/config"
	"grimm.is/ngxweb/internal/i18n"
)

// Printer is the global message printer for the CLI
var Printer = i18n.NewCLIPrinter()

// Output streams, replaced in tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
	stdin  io.Reader = os.Stdin
)

// Output formats accepted by -o.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// ErrAborted is returned when the user declines a confirmation.
var ErrAborted = errors.New("aborted")

// confirm asks a yes/no question on the terminal.
var confirm = func(title string) (bool, error) {
	ok := false
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	return ok, err
}

// confirmOrAbort returns ErrAborted unless skip is set or the user accepts.
func confirmOrAbort(skip bool, title string) error {
	if skip {
		return nil
	}
	ok, err := confirm(title)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAborted
	}
	return nil
}

// remoteFlags are shared by every command that talks to a running server.
type remoteFlags struct {
	configFile  string
	remote      string
	apiKey      string
	fingerprint string
	timeout     time.Duration
	output      string
}

func addRemoteFlags(flags *flag.FlagSet) *remoteFlags {
	r := &remoteFlags{}
	flags.StringVar(&r.configFile, "config", brand.GetConfigFile(), "Configuration file")
	flags.StringVar(&r.configFile, "c", brand.GetConfigFile(), "Configuration file (short)")
	flags.StringVar(&r.remote, "remote", "", "API base URL (default: from the configuration's listen address)")
	flags.StringVar(&r.remote, "r", "", "API base URL (short)")
	flags.StringVar(&r.apiKey, "api-key", "", "API key (default: $API_KEY)")
	flags.StringVar(&r.apiKey, "k", "", "API key (short)")
	flags.StringVar(&r.fingerprint, "fingerprint", "", "Pin the server certificate by SHA-256 fingerprint")
	flags.DurationVar(&r.timeout, "timeout", 30*time.Second, "Request timeout")
	flags.StringVar(&r.output, "output", FormatTable, "Output format: table, json, yaml")
	flags.StringVar(&r.output, "o", FormatTable, "Output format (short)")
	return r
}

// client builds an API client. Unset values fall back to $API_KEY and the
// local configuration file.
func (r *remoteFlags) client() (*client.HTTPClient, error) {
	switch r.output {
	case FormatTable, FormatJSON, FormatYAML:
	default:
		return nil, fmt.Errorf("invalid output format: %s", r.output)
	}

	remote, key := r.remote, r.apiKey
	if key == "" {
		key = os.Getenv("API_KEY")
	}
	if remote == "" || key == "" {
		cfg, err := config.Load(r.configFile)
		if err != nil {
			return nil, err
		}
		if remote == "" {
			remote = BaseURL(cfg)
		}
		if key == "" {
			key = cfg.API.APIKey
		}
	}

	opts := []client.ClientOption{client.WithTimeout(r.timeout)}
	if key != "" {
		opts = append(opts, client.WithAPIKey(key))
	}
	if r.fingerprint != "" {
		opts = append(opts, client.WithFingerprint(r.fingerprint))
	}
	return client.NewHTTPClient(remote, opts...), nil
}

// BaseURL is the URL a local client uses to reach the API described by cfg.
// Wildcard listen hosts are dialed on loopback.
func BaseURL(cfg *config.Config) string {
	host, port, err := net.SplitHostPort(cfg.Listen)
	if err != nil {
		host, port = "127.0.0.1", "3000"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	scheme := "http"
	if cfg.API.TLS {
		scheme = "https"
	}
	return scheme + "://" + net.JoinHostPort(host, port)
}

// render writes v as JSON or YAML, or calls table for the default format.
func render(format string, v any, table func(w *tabwriter.Writer)) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		return writeYAML(stdout, v)
	default:
		w := tabwriter.NewWriter(stdout, 0, 0, 3, ' ', 0)
		table(w)
		return w.Flush()
	}
}

// writeYAML encodes v with the key names of its JSON form.
func writeYAML(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(generic)
}

// dash renders empty values as "-".
func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// parseArgs parses flags that may appear before or after positional
// arguments, returning the positionals.
func parseArgs(flags *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := flags.Parse(args); err != nil {
			return nil, err
		}
		args = flags.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

// usageError reports a missing argument together with the expected form.
func usageError(usage string) error {
	return fmt.Errorf("usage: %s %s", brand.BinaryName, usage)
}

func newFlagSet(name string) *flag.FlagSet {
	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	flags.SetOutput(stderr)
	return flags
}
