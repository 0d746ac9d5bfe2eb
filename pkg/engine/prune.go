package engine

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// RetentionConfig controls how long snapshot history is kept.
type RetentionConfig struct {
	Enabled       bool
	MaxAge        time.Duration
	CheckInterval time.Duration
}

// Pruner deletes history older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// PruneWorker periodically trims the snapshot history.
type PruneWorker struct {
	store  Pruner
	config RetentionConfig
	mu     sync.RWMutex
	now    func() time.Time
}

func NewPruneWorker(st Pruner, cfg RetentionConfig) *PruneWorker {
	return &PruneWorker{
		store:  st,
		config: cfg,
		now:    time.Now,
	}
}

func (w *PruneWorker) UpdateConfig(cfg RetentionConfig) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.config = cfg
}

func (w *PruneWorker) Run(ctx context.Context) {
	w.mu.RLock()
	cfg := w.config
	w.mu.RUnlock()

	if !cfg.Enabled || cfg.MaxAge <= 0 {
		log.Info("History pruning disabled")
		return
	}
	interval := cfg.CheckInterval
	if interval <= 0 {
		interval = time.Hour
	}

	log.Infof("Starting prune worker (interval: %v, max age: %v)", interval, cfg.MaxAge)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info("Prune worker stopping")
			return
		case <-ticker.C:
			w.Prune(ctx)
		}
	}
}

// Prune removes history older than the configured max age and returns the
// number of deleted rows.
func (w *PruneWorker) Prune(ctx context.Context) int64 {
	w.mu.RLock()
	cfg := w.config
	w.mu.RUnlock()

	if !cfg.Enabled || cfg.MaxAge <= 0 {
		return 0
	}

	deleted, err := w.store.Prune(ctx, w.now().Add(-cfg.MaxAge))
	if err != nil {
		log.WithError(err).Warn("Prune error")
		return 0
	}
	if deleted > 0 {
		log.Infof("Pruned %d snapshots older than %v", deleted, cfg.MaxAge)
	}
	return deleted
}
