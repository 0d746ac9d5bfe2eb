package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/claude-usage/pkg/reports"
	"github.com/rmax-ai/claude-usage/pkg/store"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit  int
		format string
		since  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently recorded snapshots",
		Long: `List recently recorded snapshots, newest first.

With --format csv or json the records are exported oldest first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			history, err := store.NewStore(a.settings.HistoryDB)
			if err != nil {
				return err
			}
			defer history.Close()

			if format != "table" {
				params := reports.ReportParams{Limit: limit}
				if since > 0 {
					params.Start = a.now().Add(-since)
				}
				gen, err := reports.NewGenerator(reports.ReportFormat(format), history)
				if err != nil {
					return err
				}
				report, err := gen.Generate(cmd.Context(), params)
				if err != nil {
					return err
				}
				_, err = io.Copy(cmd.OutOrStdout(), report)
				return err
			}

			records, err := history.ReadRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No snapshots recorded yet.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RECORDED\tTRIGGER\tSOURCE\t5H\tWEEKLY\tWARNING")
			for _, r := range records {
				if since > 0 && r.RecordedAt.Before(a.now().Add(-since)) {
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%d%%\t%s\n",
					r.RecordedAt.Local().Format("2006-01-02 15:04"),
					r.Trigger, r.Source, r.FiveHour, r.Weekly, r.Warning)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of snapshots to read")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format: table, csv or json")
	cmd.Flags().DurationVar(&since, "since", 0, "only include snapshots newer than this (e.g. 24h)")
	return cmd
}
