// Package mcp exposes the usage snapshot to agents over the Model Context
// Protocol.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rmax-ai/claude-usage/pkg/api"
	"github.com/rmax-ai/claude-usage/pkg/client"
	"github.com/rmax-ai/claude-usage/pkg/engine"
	"github.com/rmax-ai/claude-usage/pkg/usage"
)

const (
	snapshotURI = "claude-usage://snapshot"
	promptName  = "claude-usage-aware"
)

// Backend supplies snapshots to the MCP server.
type Backend interface {
	Usage(ctx context.Context) (api.UsageResponse, error)
	Refresh(ctx context.Context) (api.UsageResponse, error)
}

// DaemonBackend reads from a running claude-usage-d.
type DaemonBackend struct {
	Client *client.Client
}

func (d DaemonBackend) Usage(ctx context.Context) (api.UsageResponse, error) {
	return d.Client.Usage(ctx)
}

func (d DaemonBackend) Refresh(ctx context.Context) (api.UsageResponse, error) {
	return d.Client.RefreshAndWait(ctx)
}

// LocalBackend polls in-process when no daemon is running.
type LocalBackend struct {
	Poller *engine.Poller
}

func (l LocalBackend) Usage(ctx context.Context) (api.UsageResponse, error) {
	resp := api.NewUsageResponse(l.Poller.Latest(), time.Now())
	resp.InFlight = l.Poller.InFlight()
	return resp, nil
}

func (l LocalBackend) Refresh(ctx context.Context) (api.UsageResponse, error) {
	update, err := l.Poller.RunOnce(ctx, engine.TriggerManual)
	if errors.Is(err, engine.ErrPollInFlight) {
		return l.Usage(ctx)
	}
	if err != nil {
		return api.UsageResponse{}, err
	}
	return api.NewUsageResponse(update.Snapshot, time.Now()), nil
}

// Server adapts the usage backend to the Model Context Protocol.
type Server struct {
	mcpServer *server.MCPServer
	backend   Backend
}

// NewServer creates a new MCP server instance.
func NewServer(backend Backend, version string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer("claude-usage", version),
		backend:   backend,
	}
	s.registerResources()
	s.registerTools()
	s.registerPrompts()
	return s
}

// Serve starts the MCP server on stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(
		snapshotURI,
		"Claude Usage Snapshot",
		mcp.WithResourceDescription("Current 5-hour and weekly utilization of the claude.ai quota"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadSnapshot)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"get_usage",
		mcp.WithDescription("Report the current claude.ai quota utilization and reset times."),
	), s.handleGetUsage)

	s.mcpServer.AddTool(mcp.NewTool(
		"refresh_usage",
		mcp.WithDescription("Fetch fresh usage from claude.ai, then report it. Takes up to a minute."),
	), s.handleRefreshUsage)
}

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.NewPrompt(
		promptName,
		mcp.WithPromptDescription("Explains the claude.ai usage windows and how to pace work against them"),
	), s.handleGetPrompt)
}

func (s *Server) handleReadSnapshot(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	resp, err := s.backend.Usage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch usage: %w", err)
	}

	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal usage: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleGetUsage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp, err := s.backend.Usage(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("usage unavailable: %v", err)), nil
	}
	return mcp.NewToolResultText(Summarize(resp)), nil
}

func (s *Server) handleRefreshUsage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp, err := s.backend.Refresh(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("refresh failed: %v", err)), nil
	}
	return mcp.NewToolResultText(Summarize(resp)), nil
}

func (s *Server) handleGetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	if request.Params.Name != promptName {
		return nil, fmt.Errorf("prompt not found: %s", request.Params.Name)
	}

	promptText := `The user works against the claude.ai usage quota, which has two windows:
- five_hour: a rolling 5-hour session limit.
- seven_day: a weekly limit.

Utilization is a percentage. At 70% or more the window is WARNING, at 90% or more it is CRITICAL.
When a stale (cached or default) snapshot is reported, the numbers may be out of date.

Use 'get_usage' before starting long tasks. If a window is CRITICAL, tell the user and
suggest waiting for its reset. Use 'refresh_usage' only when fresh numbers matter.
`

	return mcp.NewGetPromptResult(
		promptName,
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(promptText)),
		},
	), nil
}

// Summarize renders a usage response as plain text for tool results.
func Summarize(resp api.UsageResponse) string {
	var b strings.Builder
	for _, w := range resp.Windows {
		fmt.Fprintf(&b, "%s: %d%% (%s)", w.Label, w.Utilization, w.Level)
		if w.ResetIn != "" {
			fmt.Fprintf(&b, ", resets in %s", w.ResetIn)
		}
		b.WriteString("\n")
	}
	switch resp.Source {
	case usage.SourceLive:
		b.WriteString("Source: live")
	case usage.SourceCached:
		b.WriteString("Source: cached")
	default:
		b.WriteString("Source: defaults (no usage recorded yet)")
	}
	if resp.LastUpdate != nil {
		fmt.Fprintf(&b, ", updated %s", resp.LastUpdate.Local().Format("2006-01-02 15:04"))
	}
	if resp.Warning != "" {
		fmt.Fprintf(&b, "\nWarning: %s", resp.Warning)
	}
	return b.String()
}
