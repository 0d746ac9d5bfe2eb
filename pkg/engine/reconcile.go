package engine

import (
	"fmt"
	"time"

	"github.com/rmax-ai/claude-usage/pkg/provider"
	"github.com/rmax-ai/claude-usage/pkg/usage"
)

// Reconciliation is the outcome of merging a poll result with the persisted
// state.
type Reconciliation struct {
	Snapshot usage.Snapshot

	// Persist is the state to write, or nil when the file must be left alone.
	Persist *usage.State
}

// Reconcile decides what to show and what to persist after a poll.
//
//   - success: live data is shown and persisted, overwriting the file
//   - failure with a persisted state: cached data is shown with a warning
//   - not attempted with a persisted state: cached data, no warning
//   - no persisted state: zeroed defaults are shown and a placeholder is written
func Reconcile(result provider.PollResult, persisted *usage.State, now time.Time) Reconciliation {
	if result.Status == provider.StatusSuccess {
		windows, err := usage.ParsePayload(result.Payload)
		if err == nil {
			snap := usage.Snapshot{
				Windows:    windows,
				LastUpdate: now,
				Source:     usage.SourceLive,
			}
			return Reconciliation{
				Snapshot: snap,
				Persist:  usage.StateFromSnapshot(snap, now),
			}
		}
		result = provider.Failure(result.ProviderID, fmt.Errorf("%w: %v", provider.ErrMalformedResponse, err))
	}

	if persisted != nil {
		snap := persisted.Snapshot()
		if result.Status == provider.StatusError {
			snap.Warning = result.Message()
		}
		return Reconciliation{Snapshot: snap}
	}

	snap := usage.DefaultSnapshot()
	snap.Warning = result.Message()
	return Reconciliation{
		Snapshot: snap,
		Persist:  usage.PlaceholderState(),
	}
}
