package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/claude-usage/pkg/usage"
)

func newShowCmd(a *app) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the persisted usage state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			st, err := a.state.Load()
			if err != nil {
				return err
			}
			if st == nil {
				fmt.Fprintln(out, "❌ No usage data saved yet")
				fmt.Fprintln(out, "   Run: claude-usage fetch")
				return nil
			}

			if raw {
				data, err := a.state.ReadRaw()
				if err != nil {
					return err
				}
				var buf bytes.Buffer
				if err := json.Indent(&buf, data, "", "  "); err != nil {
					return fmt.Errorf("failed to format %s: %w", a.state.Path(), err)
				}
				fmt.Fprintln(out, buf.String())
				return nil
			}

			snap := st.Snapshot()
			fmt.Fprintf(out, "📊 Current usage: %d%%\n", snap.Window(usage.WindowFiveHour).Utilization)
			fmt.Fprintf(out, "📅 Weekly usage: %d%%\n", snap.Window(usage.WindowSevenDay).Utilization)
			fmt.Fprintln(out, usage.ResetLine(snap.Window(usage.WindowFiveHour), a.now()))
			last := "never"
			if ts := st.LastUpdate(); ts != nil {
				last = usage.FormatTimestamp(*ts)
			}
			fmt.Fprintf(out, "🕐 Last update: %s\n", last)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the state file as JSON")
	return cmd
}
