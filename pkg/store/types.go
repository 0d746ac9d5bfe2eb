package store

import (
	"context"
	"time"

	"github.com/rmax-ai/claude-usage/pkg/usage"
)

// Record is one reconciled snapshot in the history table.
type Record struct {
	ID            string       `json:"id"`
	PollID        string       `json:"poll_id"`
	Trigger       string       `json:"trigger"`
	Source        usage.Source `json:"source"`
	FiveHour      int          `json:"five_hour"`
	Weekly        int          `json:"weekly"`
	FiveHourReset *time.Time   `json:"five_hour_reset,omitempty"`
	WeeklyReset   *time.Time   `json:"weekly_reset,omitempty"`
	Warning       string       `json:"warning,omitempty"`
	RecordedAt    time.Time    `json:"recorded_at"`
}

// NewRecord flattens a snapshot into a history row.
func NewRecord(pollID, trigger string, snap usage.Snapshot, at time.Time) Record {
	fh := snap.Window(usage.WindowFiveHour)
	wk := snap.Window(usage.WindowSevenDay)
	return Record{
		PollID:        pollID,
		Trigger:       trigger,
		Source:        snap.Source,
		FiveHour:      fh.Utilization,
		Weekly:        wk.Utilization,
		FiveHourReset: fh.ResetAt,
		WeeklyReset:   wk.ResetAt,
		Warning:       snap.Warning,
		RecordedAt:    at,
	}
}

// HistoryStore keeps past snapshots for inspection.
type HistoryStore interface {
	AppendSnapshot(ctx context.Context, rec Record) error
	ReadRecent(ctx context.Context, limit int) ([]Record, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}
