package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/claude-usage/pkg/provider"
	"github.com/rmax-ai/claude-usage/pkg/usage"
)

func TestStateWatcher_ManualUpdateReloads(t *testing.T) {
	p, state := newTestPoller(t, provider.NewMockProvider("claude"))
	updates := p.Subscribe()

	w := NewStateWatcher(state.Path(), state, p)
	w.debounce = 20 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, state.SetManual(42, time.Now()))

	u := waitUpdate(t, updates)
	assert.Equal(t, TriggerFile, u.Trigger)
	assert.Equal(t, 42, u.Snapshot.Window(usage.WindowFiveHour).Utilization)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestStateWatcher_IgnoresOwnWrites(t *testing.T) {
	prov := provider.NewMockProvider("claude", provider.Success("claude", []byte(livePayload)))
	p, state := newTestPoller(t, prov)
	w := NewStateWatcher(state.Path(), state, p)

	_, err := p.RunOnce(context.Background(), TriggerTimer)
	require.NoError(t, err)
	assert.False(t, w.check(context.Background()), "automatic writes carry no manual timestamp")

	require.NoError(t, state.SetManual(5, time.Now()))
	assert.True(t, w.check(context.Background()))
	assert.False(t, w.check(context.Background()), "the same manual update is reloaded once")
}
