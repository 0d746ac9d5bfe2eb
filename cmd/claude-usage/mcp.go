package main

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rmax-ai/claude-usage/pkg/client"
	"github.com/rmax-ai/claude-usage/pkg/engine"
	"github.com/rmax-ai/claude-usage/pkg/mcp"
	"github.com/rmax-ai/claude-usage/pkg/provider/claude"
)

func newMCPCmd(a *app) *cobra.Command {
	var (
		daemonURL string
		local     bool
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve usage to agents over the Model Context Protocol (stdio)",
		Long: `Serve usage over MCP on stdin/stdout.

The server reads from a running claude-usage-d when one answers, and
otherwise fetches in-process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend := a.mcpBackend(cmd.Context(), daemonURL, local)
			return mcp.NewServer(backend, Version).Serve()
		},
	}
	cmd.Flags().StringVar(&daemonURL, "daemon", "", "claude-usage-d address (default: http://<listen_addr>)")
	cmd.Flags().BoolVar(&local, "local", false, "always fetch in-process")
	return cmd
}

func (a *app) mcpBackend(ctx context.Context, daemonURL string, local bool) mcp.Backend {
	if daemonURL == "" {
		daemonURL = "http://" + a.settings.ListenAddr
	}
	if !local {
		c := client.NewClient(daemonURL)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := c.Ping(pingCtx); err == nil {
			log.WithField("daemon", daemonURL).Debug("MCP backed by daemon")
			return mcp.DaemonBackend{Client: c}
		}
		log.WithField("daemon", daemonURL).Debug("Daemon not reachable, polling in-process")
	}

	poller := engine.NewPoller(claude.New(a.settings.ProviderOptions()), a.state, 0)
	if _, err := poller.Reload(ctx); err != nil {
		log.WithError(err).Warn("Failed to read persisted usage")
	}
	return mcp.LocalBackend{Poller: poller}
}
