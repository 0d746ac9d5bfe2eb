package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/claude-usage/pkg/api"
	"github.com/rmax-ai/claude-usage/pkg/client"
	"github.com/rmax-ai/claude-usage/pkg/engine"
	"github.com/rmax-ai/claude-usage/pkg/provider"
	"github.com/rmax-ai/claude-usage/pkg/store"
	"github.com/rmax-ai/claude-usage/pkg/usage"
)

type stubBackend struct {
	resp      api.UsageResponse
	err       error
	refreshed int
}

func (b *stubBackend) Usage(ctx context.Context) (api.UsageResponse, error) {
	return b.resp, b.err
}

func (b *stubBackend) Refresh(ctx context.Context) (api.UsageResponse, error) {
	b.refreshed++
	return b.resp, b.err
}

func sampleResponse() api.UsageResponse {
	return api.UsageResponse{
		Source: usage.SourceLive,
		Windows: []api.WindowResponse{
			{Name: usage.WindowFiveHour, Label: "Usage (5h)", Utilization: 92, Level: "CRITICAL", ResetIn: "1h 5m"},
			{Name: usage.WindowSevenDay, Label: "Weekly Usage", Utilization: 40, Level: "OK"},
		},
	}
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

func TestReadSnapshot(t *testing.T) {
	s := NewServer(&stubBackend{resp: sampleResponse()}, "test")

	req := mcp.ReadResourceRequest{Params: mcp.ReadResourceParams{URI: snapshotURI}}
	result, err := s.handleReadSnapshot(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result, 1)

	content, ok := result[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, "application/json", content.MIMEType)
	assert.Equal(t, snapshotURI, content.URI)

	var decoded api.UsageResponse
	require.NoError(t, json.Unmarshal([]byte(content.Text), &decoded))
	assert.Equal(t, 92, decoded.Windows[0].Utilization)
}

func TestReadSnapshot_BackendError(t *testing.T) {
	s := NewServer(&stubBackend{err: errors.New("daemon unreachable")}, "test")

	_, err := s.handleReadSnapshot(context.Background(), mcp.ReadResourceRequest{})

	assert.ErrorContains(t, err, "failed to fetch usage")
}

func TestGetUsageTool(t *testing.T) {
	s := NewServer(&stubBackend{resp: sampleResponse()}, "test")

	result, err := s.handleGetUsage(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := textOf(t, result)
	assert.Contains(t, text, "Usage (5h): 92% (CRITICAL), resets in 1h 5m")
	assert.Contains(t, text, "Weekly Usage: 40% (OK)")
	assert.Contains(t, text, "Source: live")
}

func TestRefreshUsageTool(t *testing.T) {
	backend := &stubBackend{resp: sampleResponse()}
	s := NewServer(backend, "test")

	result, err := s.handleRefreshUsage(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, backend.refreshed)
	assert.False(t, result.IsError)

	backend.err = errors.New("boom")
	result, err = s.handleRefreshUsage(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestGetPrompt(t *testing.T) {
	s := NewServer(&stubBackend{}, "test")

	req := mcp.GetPromptRequest{}
	req.Params.Name = promptName
	result, err := s.handleGetPrompt(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)

	req.Params.Name = "other"
	_, err = s.handleGetPrompt(context.Background(), req)
	assert.Error(t, err)
}

func TestSummarize_Stale(t *testing.T) {
	resp := api.NewUsageResponse(usage.DefaultSnapshot(), time.Now())
	resp.Warning = "no credentials configured"

	text := Summarize(resp)

	assert.Contains(t, text, "defaults")
	assert.Contains(t, text, "Warning: no credentials configured")
}

func TestDaemonBackend(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/usage" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(sampleResponse())
	}))
	defer ts.Close()

	backend := DaemonBackend{Client: client.NewClient(ts.URL)}
	resp, err := backend.Usage(context.Background())

	require.NoError(t, err)
	assert.Equal(t, usage.SourceLive, resp.Source)
}

func TestLocalBackend_Refresh(t *testing.T) {
	payload := `{"five_hour":{"utilization":55},"seven_day":{"utilization":20}}`
	prov := provider.NewMockProvider("claude", provider.Success("claude", []byte(payload)))
	state := store.NewStateFile(t.TempDir() + "/config.json")
	backend := LocalBackend{Poller: engine.NewPoller(prov, state, 0)}

	resp, err := backend.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, usage.SourceLive, resp.Source)
	assert.Equal(t, 55, resp.Windows[0].Utilization)

	cached, err := backend.Usage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 55, cached.Windows[0].Utilization)
	assert.False(t, cached.InFlight)
}
