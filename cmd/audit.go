package cmd

import (
	"context"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"grimm.is/ngxweb/internal/client"
	"grimm.is/ngxweb/internal/clock"
)

// RunAudit lists recent audit events.
func RunAudit(args []string) error {
	flags := newFlagSet("audit")
	remote := addRemoteFlags(flags)
	since := flags.Duration("since", 0, "Only events newer than this (e.g. 24h)")
	action := flags.String("action", "", "Filter by action (e.g. config.deploy)")
	actor := flags.String("actor", "", "Filter by actor")
	resource := flags.String("resource", "", "Filter by resource")
	limit := flags.Int("limit", 50, "Maximum events")
	if err := flags.Parse(args); err != nil {
		return err
	}
	c, err := remote.client()
	if err != nil {
		return err
	}

	q := client.AuditQuery{Action: *action, Actor: *actor, Resource: *resource, Limit: *limit}
	if *since > 0 {
		q.Since = clock.Now().Add(-*since)
	}
	events, err := c.AuditEvents(context.Background(), q)
	if err != nil {
		return err
	}
	return render(remote.output, events, func(w *tabwriter.Writer) {
		if len(events) == 0 {
			Printer.Fprintln(w, "No audit events")
			return
		}
		Printer.Fprintln(w, "TIME\tAGE\tACTOR\tACTION\tRESOURCE\tSTATUS")
		for _, e := range events {
			Printer.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				e.Timestamp.Local().Format(time.DateTime), humanize.Time(e.Timestamp),
				dash(e.Actor), e.Action, dash(e.Resource), strconv.Itoa(e.Status))
		}
	})
}
