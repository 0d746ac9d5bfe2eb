package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/rmax-ai/claude-usage/pkg/usage"
)

const defaultWatchDebounce = 250 * time.Millisecond

// Reloader republishes the persisted state.
type Reloader interface {
	Reload(ctx context.Context) (usage.Snapshot, error)
}

// StateWatcher reloads the poller when a manual update lands in the state
// file. Writes made by the poller itself carry no new manual timestamp and
// are ignored.
type StateWatcher struct {
	path     string
	state    StateStore
	reloader Reloader
	debounce time.Duration

	lastManual *time.Time
}

// NewStateWatcher watches the state file at path.
func NewStateWatcher(path string, state StateStore, reloader Reloader) *StateWatcher {
	return &StateWatcher{
		path:     filepath.Clean(path),
		state:    state,
		reloader: reloader,
		debounce: defaultWatchDebounce,
	}
}

// Run watches until ctx is cancelled. The parent directory is watched so
// that atomic renames over the file are seen.
func (w *StateWatcher) Run(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	if st, err := w.state.Load(); err == nil && st != nil {
		w.lastManual = st.LastManualUpdate
	}
	log.Debugf("Watching %s for manual updates", w.path)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || !isContentChange(ev.Op) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("State file watcher error")
		case <-fire:
			fire = nil
			w.check(ctx)
		}
	}
}

// check reloads when the manual update timestamp moved.
func (w *StateWatcher) check(ctx context.Context) bool {
	st, err := w.state.Load()
	if err != nil {
		log.WithError(err).Warn("Ignoring unreadable state file change")
		return false
	}
	if st == nil || st.LastManualUpdate == nil {
		return false
	}
	if w.lastManual != nil && w.lastManual.Equal(*st.LastManualUpdate) {
		return false
	}
	w.lastManual = st.LastManualUpdate

	if _, err := w.reloader.Reload(ctx); err != nil {
		log.WithError(err).Warn("Failed to reload state after manual update")
		return false
	}
	log.Info("Manual usage update picked up from state file")
	return true
}

func isContentChange(op fsnotify.Op) bool {
	return op&fsnotify.Create == fsnotify.Create ||
		op&fsnotify.Write == fsnotify.Write ||
		op&fsnotify.Rename == fsnotify.Rename
}
