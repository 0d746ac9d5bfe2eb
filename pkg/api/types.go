package api

import (
	"time"

	"github.com/rmax-ai/claude-usage/pkg/store"
	"github.com/rmax-ai/claude-usage/pkg/usage"
)

// WindowResponse describes one quota window in GET /v1/usage
type WindowResponse struct {
	Name        usage.WindowName `json:"name"`
	Label       string           `json:"label"`
	Utilization int              `json:"utilization"`
	Level       string           `json:"level"`
	ResetAt     *time.Time       `json:"reset_at,omitempty"`
	ResetIn     string           `json:"reset_in,omitempty"`
}

// UsageResponse matches the response for GET /v1/usage
type UsageResponse struct {
	Source     usage.Source     `json:"source"`
	Stale      bool             `json:"stale"`
	LastUpdate *time.Time       `json:"last_update,omitempty"`
	Warning    string           `json:"warning,omitempty"`
	InFlight   bool             `json:"in_flight"`
	Windows    []WindowResponse `json:"windows"`
}

// NewUsageResponse renders snap for API clients as of now.
func NewUsageResponse(snap usage.Snapshot, now time.Time) UsageResponse {
	resp := UsageResponse{
		Source:  snap.Source,
		Stale:   snap.IsStale(),
		Warning: snap.Warning,
	}
	if !snap.LastUpdate.IsZero() {
		last := snap.LastUpdate
		resp.LastUpdate = &last
	}
	for _, name := range usage.Windows {
		w := snap.Window(name)
		wr := WindowResponse{
			Name:        name,
			Label:       name.Label(),
			Utilization: w.Utilization,
			Level:       usage.LevelOf(w.Utilization).String(),
			ResetAt:     w.ResetAt,
		}
		if w.ResetAt != nil {
			wr.ResetIn = usage.FormatCountdown(*w.ResetAt, now)
		}
		resp.Windows = append(resp.Windows, wr)
	}
	return resp
}

// RefreshResponse matches the response for POST /v1/refresh
type RefreshResponse struct {
	Status string `json:"status"`
}

// HistoryResponse matches the response for GET /v1/history
type HistoryResponse struct {
	Records []store.Record `json:"records"`
}
