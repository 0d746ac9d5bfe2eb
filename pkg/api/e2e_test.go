package api_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/claude-usage/pkg/api"
	"github.com/rmax-ai/claude-usage/pkg/client"
	"github.com/rmax-ai/claude-usage/pkg/engine"
	"github.com/rmax-ai/claude-usage/pkg/provider"
	"github.com/rmax-ai/claude-usage/pkg/store"
	"github.com/rmax-ai/claude-usage/pkg/usage"
)

type fastBackoff struct{}

func (fastBackoff) Next(int) time.Duration { return 10 * time.Millisecond }

func TestEndToEnd(t *testing.T) {
	dir := t.TempDir()
	history, err := store.NewStore(filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	defer history.Close()

	payload := `{"five_hour":{"utilization":81,"resets_at":"2099-01-01T00:00:00Z"},"seven_day":{"utilization":33}}`
	prov := provider.NewMockProvider("claude", provider.Success("claude", []byte(payload)))
	prov.SetLatency(50 * time.Millisecond)

	poller := engine.NewPoller(prov, store.NewStateFile(filepath.Join(dir, "config.json")), time.Hour)
	poller.AddSink(history)

	ts := httptest.NewServer(api.NewServer(poller, history, "").Handler())
	defer ts.Close()

	c := client.NewClient(ts.URL)
	c.SetBackoff(fastBackoff{})
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))

	before, err := c.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, usage.SourceDefault, before.Source)

	after, err := c.RefreshAndWait(ctx)
	require.NoError(t, err)
	assert.Equal(t, usage.SourceLive, after.Source)
	assert.Equal(t, 81, after.Windows[0].Utilization)
	assert.Equal(t, "WARNING", after.Windows[0].Level)

	poller.Wait()
	records, err := c.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records.Records, 1)
	assert.Equal(t, "manual", records.Records[0].Trigger)
	assert.Equal(t, 33, records.Records[0].Weekly)
}
