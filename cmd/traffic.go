package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"grimm.is/ngxweb/internal/brand"
	"grimm.is/ngxweb/internal/traffic"
)

// RunTraffic handles the traffic subcommands.
func RunTraffic(args []string) error {
	if len(args) < 1 {
		printTrafficUsage()
		return usageError("traffic <command>")
	}

	switch args[0] {
	case "logs":
		return runTrafficLogs(args[1:])
	case "stats":
		return runTrafficStats(args[1:])
	case "export":
		return runTrafficExport(args[1:])
	case "follow", "tail":
		return runTrafficFollow(args[1:])
	case "help", "-h", "--help":
		printTrafficUsage()
		return nil
	default:
		printTrafficUsage()
		return fmt.Errorf("unknown traffic command: %s", args[0])
	}
}

// queryFlags collects the log filters into the parameters the API accepts.
type queryFlags struct {
	values url.Values
}

func addQueryFlags(flags *flag.FlagSet, defaultLimit int) *queryFlags {
	q := &queryFlags{values: url.Values{}}
	for _, f := range []struct{ name, usage string }{
		{"from", "Only entries at or after this RFC 3339 time"},
		{"to", "Only entries at or before this RFC 3339 time"},
		{"ip", "Client IP"},
		{"status", "HTTP status code"},
		{"method", "HTTP method"},
		{"path", "Path substring"},
	} {
		name := f.name
		flags.Func(name, f.usage, func(s string) error {
			q.values.Set(name, s)
			return nil
		})
	}
	if defaultLimit > 0 {
		q.values.Set("limit", strconv.Itoa(defaultLimit))
	}
	flags.Func("limit", "Maximum entries", func(s string) error {
		q.values.Set("limit", s)
		return nil
	})
	return q
}

func (q *queryFlags) query() (traffic.Query, error) {
	return traffic.ParseQuery(q.values)
}

func runTrafficLogs(args []string) error {
	flags := newFlagSet("traffic logs")
	remote := addRemoteFlags(flags)
	filters := addQueryFlags(flags, 100)
	if err := flags.Parse(args); err != nil {
		return err
	}
	q, err := filters.query()
	if err != nil {
		return err
	}
	c, err := remote.client()
	if err != nil {
		return err
	}

	entries, err := c.TrafficLogs(context.Background(), q)
	if err != nil {
		return err
	}
	return render(remote.output, entries, func(w *tabwriter.Writer) {
		if len(entries) == 0 {
			Printer.Fprintln(w, "No traffic logs available")
			return
		}
		Printer.Fprintln(w, "TIME\tIP\tMETHOD\tPATH\tSTATUS\tRT\tSIZE")
		for _, e := range entries {
			Printer.Fprintln(w, entryRow(e))
		}
	})
}

// entryRow is one tab-separated table row.
func entryRow(e traffic.Entry) string {
	rt, size := "-", "-"
	if e.ResponseTime != nil {
		rt = strconv.FormatInt(*e.ResponseTime, 10) + "ms"
	}
	if e.BytesSent != nil {
		size = humanize.Bytes(uint64(*e.BytesSent))
	}
	return e.Timestamp.Local().Format("2006-01-02 15:04:05") + "\t" + e.IP + "\t" + e.Method + "\t" +
		e.Path + "\t" + strconv.Itoa(e.Status) + "\t" + rt + "\t" + size
}

func runTrafficStats(args []string) error {
	flags := newFlagSet("traffic stats")
	remote := addRemoteFlags(flags)
	filters := addQueryFlags(flags, 0)
	if err := flags.Parse(args); err != nil {
		return err
	}
	q, err := filters.query()
	if err != nil {
		return err
	}
	c, err := remote.client()
	if err != nil {
		return err
	}

	st, err := c.TrafficStats(context.Background(), q)
	if err != nil {
		return err
	}
	return render(remote.output, st, func(w *tabwriter.Writer) {
		Printer.Fprintf(w, "Requests:\t%s\n", strconv.FormatInt(st.TotalRequests, 10))
		Printer.Fprintf(w, "Success:\t%s\n", strconv.FormatInt(st.SuccessRequests, 10))
		Printer.Fprintf(w, "Errors:\t%s\n", strconv.FormatInt(st.ErrorRequests, 10))
		Printer.Fprintf(w, "Avg response:\t%s ms\n", strconv.FormatFloat(st.AvgResponseTime, 'f', 1, 64))
		Printer.Fprintf(w, "Requests/min:\t%s\n", strconv.FormatFloat(st.RequestsPerMinute, 'f', 2, 64))
		Printer.Fprintf(w, "Bytes sent:\t%s\n", humanize.Bytes(uint64(st.TotalBytesSent)))
	})
}

func runTrafficExport(args []string) error {
	flags := newFlagSet("traffic export")
	remote := addRemoteFlags(flags)
	filters := addQueryFlags(flags, 0)
	out := flags.String("file", "", "Output file (default: the server's nginx-logs-YYYY-MM-DD.csv in the current directory, - for stdout)")
	flags.StringVar(out, "f", "", "Output file (short)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	q, err := filters.query()
	if err != nil {
		return err
	}
	c, err := remote.client()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	filename, err := c.ExportTraffic(context.Background(), q, &buf)
	if err != nil {
		return err
	}
	if *out == "-" {
		_, err := buf.WriteTo(stdout)
		return err
	}

	path := *out
	if path == "" {
		path = filepath.Base(filename)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	Printer.Fprintf(stdout, "Exported to %s\n", path)
	return nil
}

func runTrafficFollow(args []string) error {
	flags := newFlagSet("traffic follow")
	remote := addRemoteFlags(flags)
	filters := addQueryFlags(flags, 0)
	if err := flags.Parse(args); err != nil {
		return err
	}
	q, err := filters.query()
	if err != nil {
		return err
	}
	c, err := remote.client()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return followTraffic(ctx, c, q, remote.output)
}

// follower is the part of the API client used by follow.
type follower interface {
	FollowTraffic(ctx context.Context, q traffic.Query, fn func(traffic.Entry)) error
}

// followTraffic streams entries as lines until ctx ends. Structured formats
// write one JSON document per line.
func followTraffic(ctx context.Context, c follower, q traffic.Query, format string) error {
	enc := json.NewEncoder(stdout)
	err := c.FollowTraffic(ctx, q, func(e traffic.Entry) {
		if format == FormatTable {
			Printer.Fprintln(stdout, entryLine(e))
			return
		}
		enc.Encode(e)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func entryLine(e traffic.Entry) string {
	line := e.Timestamp.Local().Format("2006-01-02 15:04:05") + " " + e.IP + " " + e.Method + " " + e.Path + " " + strconv.Itoa(e.Status)
	if e.ResponseTime != nil {
		line += " " + strconv.FormatInt(*e.ResponseTime, 10) + "ms"
	}
	return line
}

func printTrafficUsage() {
	Printer.Fprintf(stderr, "Usage: %s traffic <command> [filters] [options]\n", brand.BinaryName)
	Printer.Fprintln(stderr)
	Printer.Fprintln(stderr, "Commands:")
	Printer.Fprintln(stderr, "  logs     List access log entries, newest first (default limit 100)")
	Printer.Fprintln(stderr, "  stats    Show request totals")
	Printer.Fprintln(stderr, "  export   Download entries as CSV")
	Printer.Fprintln(stderr, "  follow   Stream new entries until interrupted")
	Printer.Fprintln(stderr)
	Printer.Fprintln(stderr, "Filters: --from --to --ip --status --method --path --limit")
}
