package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"itdesk/internal/models"
	"itdesk/internal/notifications"
	"itdesk/internal/seed"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func writeCounts(w io.Writer, format string, counts *models.PartitionCounts) error {
	switch format {
	case "table", "":
		printCounts(w, counts)
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(countsReport{PartitionCounts: *counts, Drift: counts.Drifted()})
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(countsReport{PartitionCounts: *counts, Drift: counts.Drifted()}); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

type countsReport struct {
	models.PartitionCounts `yaml:",inline"`
	Drift                  bool `json:"drifted" yaml:"drifted"`
}

func printCounts(w io.Writer, counts *models.PartitionCounts) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tROWS\tEXPECTED")
	fmt.Fprintf(tw, "requests\t%d\t-\n", counts.Requests)
	for _, st := range models.Statuses {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", models.PartitionTable(st), counts.Partitions[st], counts.ByStatus[st])
	}
	_ = tw.Flush()
	if counts.Drifted() {
		fmt.Fprintln(w, "status tables have drifted; run reqctl rebuild")
	}
}

func newCountsCmd(rt *deps) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "counts",
		Short: "Show row counts of the master table and every status table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			counts, err := rt.rebuildService().Counts(cmd.Context())
			if err != nil {
				return err
			}
			return writeCounts(cmd.OutOrStdout(), output, counts)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table, json or yaml")
	return cmd
}

func newRebuildCmd(rt *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Regenerate every status table from the master table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc := rt.rebuildService()
			if _, err := svc.RebuildAll(cmd.Context()); err != nil {
				return err
			}
			counts, err := svc.Counts(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Rebuilt status tables from requests")
			printCounts(cmd.OutOrStdout(), counts)
			return nil
		},
	}
}

func newClearCmd(rt *deps) *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every request and every status table row",
		Long:  "Delete every request and every status table row. Refused in production-like environments.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfg.IsProduction() {
				return fmt.Errorf("refusing to clear data in %q", rt.cfg.Env)
			}
			if !confirm {
				return errors.New("clear deletes all data; pass --yes to confirm")
			}
			if err := rt.rebuildService().ClearAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cleared requests and status tables")
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm deletion")
	return cmd
}

func newMigrateLegacyCmd(rt *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-legacy",
		Short: "Link or drop status table rows written before request_id existed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := rt.rebuildService().MigrateLegacyMirrors(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requests=%d legacy_removed=%d orphans_removed=%d\n",
				report.Requests, report.LegacyRemoved, report.OrphansRemoved)
			return nil
		},
	}
}

func newSeedCmd(rt *deps) *cobra.Command {
	var opts seed.Options
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create demo requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfg.IsProduction() {
				return fmt.Errorf("refusing to seed demo data in %q", rt.cfg.Env)
			}
			reqs, err := seed.Requests(cmd.Context(), rt.requestService(), opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d requests\n", len(reqs))
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.Count, "count", 25, "number of requests to create")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "random seed (0 uses the current time)")
	cmd.Flags().BoolVar(&opts.Lifecycle, "lifecycle", true, "advance a share of the requests through the lifecycle")
	return cmd
}

func newWatchCmd(rt *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print request events published by the API server until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.rdb == nil {
				return errors.New("watch requires a reachable REDIS_URL")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			enc := json.NewEncoder(cmd.OutOrStdout())
			err := notifications.NewNotifier(rt.rdb).Subscribe(ctx, func(ev notifications.Event) {
				_ = enc.Encode(ev)
			})
			if err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		},
	}
}
