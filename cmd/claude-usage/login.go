package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/claude-usage/pkg/provider/claude"
)

func newLoginCmd(a *app) *cobra.Command {
	var fetchAfter bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to claude.ai in a browser and save the session cookies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "🔑 A browser window will open. Sign in to claude.ai and wait for the chat page.")

			flow := &claude.LoginFlow{CookieFile: a.settings.CookieFile, ExecPath: a.settings.ChromePath}
			if err := flow.Run(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(out, "✅ Login completed, cookies saved to %s\n", a.settings.CookieFile)

			if !fetchAfter {
				return nil
			}
			return a.runFetch(cmd, claude.New(a.settings.ProviderOptions()), true)
		},
	}
	cmd.Flags().BoolVar(&fetchAfter, "fetch", true, "fetch usage after a successful login")
	return cmd
}
