package main

import (
	"errors"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rmax-ai/claude-usage/pkg/engine"
	"github.com/rmax-ai/claude-usage/pkg/provider"
	"github.com/rmax-ai/claude-usage/pkg/provider/claude"
	"github.com/rmax-ai/claude-usage/pkg/store"
	"github.com/rmax-ai/claude-usage/pkg/usage"
)

func newFetchCmd(a *app) *cobra.Command {
	var noHistory bool

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch usage from claude.ai and update the state file",
		Long: `Fetch usage from claude.ai with the saved session cookies.

Exits with status 1 unless live usage was fetched. On failure the state file
keeps its previous values.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runFetch(cmd, claude.New(a.settings.ProviderOptions()), !noHistory)
		},
	}
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "do not record the result in the history database")
	return cmd
}

func (a *app) runFetch(cmd *cobra.Command, prov provider.Provider, recordHistory bool) error {
	poller := engine.NewPoller(prov, a.state, 0)

	if recordHistory {
		history, err := store.NewStore(a.settings.HistoryDB)
		if err != nil {
			log.WithError(err).Warn("History disabled")
		} else {
			defer history.Close()
			poller.AddSink(history)
		}
	}

	update, err := poller.RunOnce(cmd.Context(), engine.TriggerCLI)
	if err != nil {
		return err
	}
	return a.reportFetch(cmd.OutOrStdout(), update)
}

func (a *app) reportFetch(out io.Writer, update engine.Update) error {
	snap := update.Snapshot
	if snap.Source == usage.SourceLive {
		fiveHour := snap.Window(usage.WindowFiveHour)
		fmt.Fprintf(out, "✅ Usage automatically updated: %d%%\n", fiveHour.Utilization)
		fmt.Fprintf(out, "📅 Weekly usage: %d%%\n", snap.Window(usage.WindowSevenDay).Utilization)
		if fiveHour.ResetAt != nil {
			fmt.Fprintf(out, "⏰ Next reset: %s\n", usage.FormatTimestamp(*fiveHour.ResetAt))
		}
		fmt.Fprintf(out, "📁 Config: %s\n", a.state.Path())
		return nil
	}

	switch {
	case errors.Is(update.Err, provider.ErrCredentialsMissing):
		fmt.Fprintln(out, "❌ No cookies configured.")
		fmt.Fprintf(out, "   Save your cookies in: %s\n", a.settings.CookieFile)
		fmt.Fprintln(out, "   or run: claude-usage login")
	case provider.IsExpired(update.Err):
		fmt.Fprintln(out, "❌ Error fetching usage. Cookies may have expired.")
		fmt.Fprintln(out, "   Run: claude-usage login")
	case errors.Is(update.Err, provider.ErrAutomationUnavailable):
		fmt.Fprintln(out, "❌ Chrome or Chromium is required to fetch usage.")
		fmt.Fprintln(out, "   Install it, set chrome_path, or set transport: http")
	}

	if update.Err != nil {
		return fmt.Errorf("fetch failed: %w", update.Err)
	}
	if snap.Warning != "" {
		return fmt.Errorf("fetch failed: %s", snap.Warning)
	}
	return errors.New("fetch failed: no live usage")
}
