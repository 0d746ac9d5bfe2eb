package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rmax-ai/claude-usage/pkg/config"
	"github.com/rmax-ai/claude-usage/pkg/logging"
	"github.com/rmax-ai/claude-usage/pkg/store"
)

// app carries what every subcommand needs once settings are loaded.
type app struct {
	configDir string
	verbose   bool
	settings  config.Settings
	state     *store.StateFile
	logCloser io.Closer
	now       func() time.Time
}

func newRootCmd() *cobra.Command {
	a := &app{now: time.Now}

	root := &cobra.Command{
		Use:   "claude-usage [percentage]",
		Short: "Track the claude.ai usage quota",
		Long: `claude-usage reads the 5-hour and weekly usage of your claude.ai account.

With a percentage (0-100) it records a manual five-hour usage value instead
of fetching, for when automatic fetching is not possible.

Examples:
  claude-usage fetch
  claude-usage 45
  claude-usage show`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logCloser != nil {
				return a.logCloser.Close()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				if err := cmd.Help(); err != nil {
					return err
				}
				return errNoArgs
			}
			return a.runManual(cmd.OutOrStdout(), args[0])
		},
	}

	root.PersistentFlags().StringVar(&a.configDir, "config-dir", "", "configuration directory (default ~/.config/claude-usage)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log progress to stderr")

	root.AddCommand(
		newFetchCmd(a),
		newShowCmd(a),
		newLoginCmd(a),
		newHistoryCmd(a),
		newMCPCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) setup() error {
	settings, err := config.Load(a.configDir)
	if err != nil {
		return err
	}
	a.settings = settings
	a.state = store.NewStateFile(settings.StateFile)

	level := "warn"
	if a.verbose {
		level = "debug"
	}
	closer, err := logging.Setup(logging.Options{Level: level})
	if err != nil {
		return err
	}
	a.logCloser = closer
	log.WithField("dir", settings.Dir).Debug("Settings loaded")
	return nil
}

var errNoArgs = errors.New("a percentage or a command is required")

func (a *app) runManual(out io.Writer, arg string) error {
	value, err := strconv.ParseFloat(strings.TrimSpace(arg), 64)
	if err != nil || math.IsNaN(value) || value < 0 || value > 100 {
		return fmt.Errorf("percentage must be a number between 0 and 100, got %q", arg)
	}
	// Fractions are truncated.
	percentage := int(value)

	if err := a.state.SetManual(percentage, a.now()); err != nil {
		return err
	}

	fmt.Fprintf(out, "✅ Usage updated to %d%%\n", percentage)
	fmt.Fprintf(out, "📁 File: %s\n", a.state.Path())
	fmt.Fprintln(out, "⏰ Estimated next reset: in ~5 hours from now")
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "claude-usage %s (commit %s, built %s)\n", Version, Commit, BuildTime)
		},
	}
}
