package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rmax-ai/claude-usage/pkg/store"
	"github.com/rmax-ai/claude-usage/pkg/usage"
)

func TestPruneWorker(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test_prune.db")
	st, err := store.NewStore(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	now := time.Now()
	snap := usage.DefaultSnapshot()

	old := store.NewRecord("old", "timer", snap, now.Add(-72*time.Hour))
	recent := store.NewRecord("recent", "timer", snap, now.Add(-time.Hour))
	for _, rec := range []store.Record{old, recent} {
		if err := st.AppendSnapshot(ctx, rec); err != nil {
			t.Fatalf("failed to append snapshot: %v", err)
		}
	}

	worker := NewPruneWorker(st, RetentionConfig{Enabled: false, MaxAge: 24 * time.Hour})
	if n := worker.Prune(ctx); n != 0 {
		t.Errorf("disabled worker pruned %d rows", n)
	}

	worker.UpdateConfig(RetentionConfig{Enabled: true, MaxAge: 24 * time.Hour})
	if n := worker.Prune(ctx); n != 1 {
		t.Errorf("expected 1 pruned row, got %d", n)
	}

	recs, err := st.ReadRecent(ctx, 10)
	if err != nil {
		t.Fatalf("failed to read history: %v", err)
	}
	if len(recs) != 1 || recs[0].PollID != "recent" {
		t.Errorf("expected only the recent snapshot to remain, got %+v", recs)
	}
}
