// Command claude-usage-tui shows claude.ai usage in the terminal and keeps
// it up to date.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"

	"github.com/rmax-ai/claude-usage/pkg/config"
	"github.com/rmax-ai/claude-usage/pkg/engine"
	"github.com/rmax-ai/claude-usage/pkg/logging"
	"github.com/rmax-ai/claude-usage/pkg/provider"
	"github.com/rmax-ai/claude-usage/pkg/provider/claude"
	"github.com/rmax-ai/claude-usage/pkg/store"
)

func main() {
	configDir := flag.String("config-dir", "", "configuration directory")
	demo := flag.Bool("demo", false, "show canned usage instead of fetching from claude.ai")
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "claude-usage-tui: %v\n", err)
		os.Exit(2)
	}

	// The terminal belongs to the UI; logs only go to the file.
	closer, err := logging.Setup(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Quiet: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "claude-usage-tui: %v\n", err)
		os.Exit(2)
	}
	defer closer.Close()

	if err := run(cfg, *demo); err != nil {
		log.WithError(err).Error("claude-usage-tui exited")
		fmt.Fprintf(os.Stderr, "claude-usage-tui: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Settings, demo bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var prov provider.Provider = claude.New(cfg.ProviderOptions())
	statePath := cfg.StateFile
	if demo {
		prov = provider.NewDemoProvider()
		statePath = filepath.Join(os.TempDir(), "claude-usage-demo.json")
	}
	state := store.NewStateFile(statePath)
	poller := engine.NewPoller(prov, state, time.Duration(cfg.PollInterval))

	initial, err := poller.Reload(ctx)
	if err != nil {
		log.WithError(err).Warn("Failed to read persisted usage")
	}

	updates := poller.Subscribe()
	defer poller.Unsubscribe(updates)

	go poller.Start(ctx)
	go func() {
		if err := engine.NewStateWatcher(state.Path(), state, poller).Run(ctx); err != nil {
			log.WithError(err).Warn("State file watcher stopped")
		}
	}()

	m := newModel(ctx, poller, updates, initial)
	m.open = open.Run
	if !demo {
		flow := &claude.LoginFlow{CookieFile: cfg.CookieFile, ExecPath: cfg.ChromePath}
		m.login = flow.Run
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run UI: %w", err)
	}

	cancel()
	poller.Wait()
	return nil
}
