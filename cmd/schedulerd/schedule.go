package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/contact-scheduler/internal/service"
	"github.com/signalsfoundry/contact-scheduler/model"
)

func newScheduleCmd(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run one reschedule pass and print the plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, c.cfg, c.log, prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.sched.Reschedule(ctx, service.TriggerManual)
			if err != nil {
				return err
			}
			stations, err := a.store.ListStations(ctx)
			if err != nil {
				return err
			}
			names := make(map[string]string, len(stations))
			for _, gs := range stations {
				names[gs.ID.String()] = gs.Name
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), report, names)
			}
			return printPlan(cmd.OutOrStdout(), report, names)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the plan as JSON")
	return cmd
}

type planBooking struct {
	Station   string     `json:"station"`
	RequestID string     `json:"request_id"`
	Mission   string     `json:"mission"`
	Kind      model.Kind `json:"kind"`
	Start     time.Time  `json:"start_time"`
	End       time.Time  `json:"end_time"`
}

func planBookings(report *service.Report, names map[string]string) []planBooking {
	out := make([]planBooking, 0, len(report.Plan.Bookings))
	for _, b := range report.Plan.Bookings {
		out = append(out, planBooking{
			Station:   names[b.GroundStationID.String()],
			RequestID: b.RequestID.String(),
			Mission:   b.Mission,
			Kind:      b.Kind,
			Start:     b.Start,
			End:       b.End,
		})
	}
	return out
}

func printJSON(w io.Writer, report *service.Report, names map[string]string) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"pass_id":    report.PassID,
		"bookings":   planBookings(report, names),
		"shortfalls": len(report.Plan.Shortfalls()),
		"added":      len(report.Diff.Added),
		"removed":    len(report.Diff.Removed),
	})
}

func printPlan(w io.Writer, report *service.Report, names map[string]string) error {
	fmt.Fprintf(w, "pass %s: %d bookings, %d added, %d removed, %d shortfalls\n",
		report.PassID, len(report.Plan.Bookings), len(report.Diff.Added), len(report.Diff.Removed), len(report.Plan.Shortfalls()))
	shortfalls := report.Plan.Shortfalls()
	if len(report.Plan.Bookings) == 0 && len(shortfalls) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATION\tMISSION\tKIND\tSTART\tEND")
	for _, b := range planBookings(report, names) {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", b.Station, b.Mission, b.Kind,
			b.Start.Format(time.RFC3339), b.End.Format(time.RFC3339))
	}
	for _, res := range shortfalls {
		fmt.Fprintf(tw, "-\t%s\t%s\tshort %s\t\n", res.RequestID, res.Kind, res.Remaining)
	}
	return tw.Flush()
}
