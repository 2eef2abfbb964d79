package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mr1hm/severe-weather-dashboard/internal/ingestion"
	"github.com/mr1hm/severe-weather-dashboard/internal/models"
	"github.com/mr1hm/severe-weather-dashboard/internal/notify"
	"github.com/mr1hm/severe-weather-dashboard/internal/observability"
	"github.com/mr1hm/severe-weather-dashboard/internal/outlook"
)

// refresh runs a single poll of loop against the live feeds. The poll is
// bounded by POLL_TIMEOUT; a poll that never recorded an outcome is an error.
func refresh(ctx context.Context, loop string) (*ingestion.Snapshot, error) {
	broadcaster := notify.NewBroadcaster()
	defer broadcaster.Close()

	deps, err := pipelineDeps(cfg, broadcaster)
	if err != nil {
		return nil, err
	}
	mgr := ingestion.NewManager(cfg, deps)
	defer mgr.Stop()

	snap := mgr.Refresh(ctx, loop)
	if st, ok := snap.Status(loop); !ok || !st.Attempted {
		return nil, fmt.Errorf("%s poll did not complete", loop)
	}
	return snap, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func addAlertsCmd(root *cobra.Command) {
	var (
		asJSON   bool
		category string
	)

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Fetch and classify the active alerts once",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter models.Category
			if category != "" {
				c, ok := models.ParseCategory(category)
				if !ok {
					return fmt.Errorf("unknown category %q", category)
				}
				filter = c
			}

			snap, err := refresh(cmd.Context(), observability.LoopAlerts)
			if err != nil {
				return err
			}
			if snap.AlertsStatus.Error != "" {
				return fmt.Errorf("%s", snap.AlertsStatus.Error)
			}

			alerts := make([]models.ClassifiedAlert, 0, len(snap.Alerts))
			for _, a := range snap.Alerts {
				if filter == "" || a.Category == filter {
					alerts = append(alerts, a)
				}
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"alerts":   alerts,
					"counters": snap.Counters,
				})
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PRIORITY\tCODE\tTITLE\tAREA\tEXPIRES")
			for _, a := range alerts {
				fmt.Fprintf(w, "%.1f\t%s\t%s\t%s\t%s\n",
					a.Priority, a.Code, a.Title(), a.AreaDesc, a.Expires.Local().Format("Jan 2 15:04"))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			cmd.Printf("\n%d alerts", snap.Counters.Total)
			for _, code := range models.CounterCodes {
				cmd.Printf("  %s:%d", code, snap.Counters.ByCode[code])
			}
			cmd.Println()
			return nil
		},
	}

	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Print JSON instead of a table")
	cmd.Flags().StringVarP(&category, "category", "c", "", "Only show one category (warning, watch, advisory, other)")
	root.AddCommand(cmd)
}

func addOutlookCmd(root *cobra.Command) {
	var (
		day     string
		product string
		output  string
	)

	cmd := &cobra.Command{
		Use:   "outlook",
		Short: "Resolve and download one convective outlook image",
		RunE: func(cmd *cobra.Command, args []string) error {
			sel := outlook.Normalize(outlook.ParseDay(day), outlook.ParseProduct(product))

			snap, err := refresh(cmd.Context(), observability.LoopOutlook)
			if err != nil {
				return err
			}
			img, ok := snap.Outlook(sel)
			if !ok {
				if snap.OutlookStatus.Error != "" {
					return fmt.Errorf("%s", snap.OutlookStatus.Error)
				}
				return fmt.Errorf("no image for day %s %s", sel.Day, sel.Product)
			}

			cmd.Printf("day %s %s\n%s\n", sel.Day, sel.Product, img.URL)
			if output == "" {
				return nil
			}
			if err := os.WriteFile(output, img.Body, 0o644); err != nil {
				return fmt.Errorf("writing image: %w", err)
			}
			cmd.Printf("wrote %d bytes (%s) to %s\n", len(img.Body), img.ContentType, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&day, "day", "d", "1", "Outlook day (1, 2, 3, 4-8)")
	cmd.Flags().StringVarP(&product, "product", "p", "categorical", "Product (categorical, tornado, wind, hail, probabilistic)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Save the image to this file")
	root.AddCommand(cmd)
}

func addDiscussionsCmd(root *cobra.Command) {
	var (
		asJSON bool
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "discussions",
		Short: "List the current mesoscale discussions",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := refresh(cmd.Context(), observability.LoopDiscussions)
			if err != nil {
				return err
			}
			if snap.DiscussionsStatus.Error != "" {
				return fmt.Errorf("%s", snap.DiscussionsStatus.Error)
			}

			records := snap.Discussions
			if limit > 0 && len(records) > limit {
				records = records[:limit]
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), records)
			}
			if len(records) == 0 {
				cmd.Println("No active mesoscale discussions.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MD\tISSUED\tTITLE\tLINK")
			for _, r := range records {
				issued := "-"
				if !r.IssuedAt.IsZero() {
					issued = r.IssuedAt.UTC().Format("2006-01-02 15:04Z")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Number, issued, r.Title, r.Link)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Print JSON instead of a table")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show at most n discussions")
	root.AddCommand(cmd)
}
