package cmd

import (
	"context"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"grimm.is/ngxweb/internal/client"
	"grimm.is/ngxweb/internal/traffic"
)

// statusReport is the -o json/yaml form of status.
type statusReport struct {
	Health  *client.Health `json:"health"`
	Traffic *traffic.Stats `json:"traffic,omitempty"`
}

// RunStatus prints server health and traffic totals.
func RunStatus(args []string) error {
	flags := newFlagSet("status")
	remote := addRemoteFlags(flags)
	if err := flags.Parse(args); err != nil {
		return err
	}
	c, err := remote.client()
	if err != nil {
		return err
	}

	ctx := context.Background()
	health, err := c.Health(ctx)
	if err != nil {
		return err
	}
	report := statusReport{Health: health}
	// Stats need auth; health does not. Report what we can.
	if stats, err := c.TrafficStats(ctx, traffic.Query{}); err == nil {
		report.Traffic = stats
	} else {
		Printer.Fprintf(stderr, "Traffic stats unavailable: %v\n", err)
	}

	return render(remote.output, report, func(w *tabwriter.Writer) {
		installed := "no"
		if health.NginxInstalled {
			installed = "yes"
			if health.NginxVersion != "" {
				installed += " (" + health.NginxVersion + ")"
			}
		}
		configs := "no"
		if health.HasConfigs {
			configs = "yes"
		}

		Printer.Fprintf(w, "Status:\t%s\n", health.Status)
		Printer.Fprintf(w, "Message:\t%s\n", health.Message)
		Printer.Fprintf(w, "Server:\t%s\n", c.BaseURL())
		Printer.Fprintf(w, "Version:\t%s\n", dash(health.Version))
		Printer.Fprintf(w, "Uptime:\t%s\n", dash(health.Uptime))
		Printer.Fprintf(w, "Nginx installed:\t%s\n", installed)
		Printer.Fprintf(w, "Configurations:\t%s\n", configs)
		if health.NextSteps != "" {
			Printer.Fprintf(w, "Next steps:\t%s\n", health.NextSteps)
		}
		if len(health.InstallationInstructions) > 0 {
			platforms := make([]string, 0, len(health.InstallationInstructions))
			for p := range health.InstallationInstructions {
				platforms = append(platforms, p)
			}
			sort.Strings(platforms)
			Printer.Fprintln(w, "Install:")
			for _, p := range platforms {
				Printer.Fprintf(w, "  %s\t%s\n", p, health.InstallationInstructions[p])
			}
		}

		if st := report.Traffic; st != nil {
			Printer.Fprintln(w)
			Printer.Fprintf(w, "Requests:\t%s\n", strconv.FormatInt(st.TotalRequests, 10))
			Printer.Fprintf(w, "Success:\t%s\n", strconv.FormatInt(st.SuccessRequests, 10))
			Printer.Fprintf(w, "Errors:\t%s\n", strconv.FormatInt(st.ErrorRequests, 10))
			Printer.Fprintf(w, "Avg response:\t%s ms\n", strconv.FormatFloat(st.AvgResponseTime, 'f', 1, 64))
			Printer.Fprintf(w, "Requests/min:\t%s\n", strconv.FormatFloat(st.RequestsPerMinute, 'f', 2, 64))
			Printer.Fprintf(w, "Bytes sent:\t%s\n", humanize.Bytes(uint64(st.TotalBytesSent)))
		}
	})
}
