package usage

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ErrMalformedState is returned when the state file is not a JSON object.
var ErrMalformedState = errors.New("malformed state file")

const (
	placeholderNote       = "Configure cookies.txt for automatic updates"
	placeholderResetHours = 5
)

// State is the persisted form of the last known snapshot. Every field has a
// zero default; unknown keys in the file are ignored.
type State struct {
	FiveHourUsage    int        `json:"five_hour_usage"`
	WeeklyUsage      int        `json:"weekly_usage"`
	FiveHourReset    *time.Time `json:"five_hour_reset,omitempty"`
	WeeklyReset      *time.Time `json:"weekly_reset,omitempty"`
	LastAutoUpdate   *time.Time `json:"last_auto_update,omitempty"`
	LastManualUpdate *time.Time `json:"last_manual_update,omitempty"`
	Note             string     `json:"note,omitempty"`
	ResetHours       int        `json:"reset_hours,omitempty"`
}

// PlaceholderState is written when nothing is known yet so that the next
// failed poll falls back to cached values instead of defaults.
func PlaceholderState() *State {
	return &State{
		Note:       placeholderNote,
		ResetHours: placeholderResetHours,
	}
}

// StateFromSnapshot builds the state persisted after a live fetch.
func StateFromSnapshot(snap Snapshot, updatedAt time.Time) *State {
	fh := snap.Window(WindowFiveHour)
	wk := snap.Window(WindowSevenDay)
	return &State{
		FiveHourUsage:  fh.Utilization,
		WeeklyUsage:    wk.Utilization,
		FiveHourReset:  fh.ResetAt,
		WeeklyReset:    wk.ResetAt,
		LastAutoUpdate: &updatedAt,
	}
}

// Snapshot returns the cached view of the state.
func (s State) Snapshot() Snapshot {
	snap := Snapshot{
		Windows: map[WindowName]Window{
			WindowFiveHour: {Name: WindowFiveHour, Utilization: s.FiveHourUsage, ResetAt: s.FiveHourReset},
			WindowSevenDay: {Name: WindowSevenDay, Utilization: s.WeeklyUsage, ResetAt: s.WeeklyReset},
		},
		Source: SourceCached,
	}
	if last := s.LastUpdate(); last != nil {
		snap.LastUpdate = *last
	}
	return snap
}

// LastUpdate returns the most recent of the auto and manual update times.
func (s State) LastUpdate() *time.Time {
	switch {
	case s.LastAutoUpdate == nil:
		return s.LastManualUpdate
	case s.LastManualUpdate == nil:
		return s.LastAutoUpdate
	case s.LastManualUpdate.After(*s.LastAutoUpdate):
		return s.LastManualUpdate
	default:
		return s.LastAutoUpdate
	}
}

// Marshal renders the state as an indented JSON document.
func (s State) Marshal() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// ParseState reads a state document. Only a document that is not a JSON
// object is an error; missing or malformed values fall back to defaults.
//
// The legacy usage_percentage key holds manual updates. It is used for the
// five-hour window when the file has no five_hour_usage, or when the manual
// update is newer than the last automatic one.
func ParseState(data []byte) (*State, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || !gjson.Valid(trimmed) {
		return nil, ErrMalformedState
	}
	root := gjson.Parse(trimmed)
	if !root.IsObject() {
		return nil, ErrMalformedState
	}

	st := &State{
		WeeklyUsage:      coerceInt(root.Get("weekly_usage")),
		FiveHourReset:    parseReset(root.Get("five_hour_reset")),
		WeeklyReset:      parseReset(root.Get("weekly_reset")),
		LastAutoUpdate:   parseReset(root.Get("last_auto_update")),
		LastManualUpdate: parseReset(root.Get("last_manual_update")),
		Note:             root.Get("note").String(),
		ResetHours:       coerceInt(root.Get("reset_hours")),
	}

	fiveHour := root.Get("five_hour_usage")
	manual := root.Get("usage_percentage")
	switch {
	case manual.Exists() && (!fiveHour.Exists() || manualIsNewer(st)):
		st.FiveHourUsage = coerceInt(manual)
	default:
		st.FiveHourUsage = coerceInt(fiveHour)
	}

	if st.FiveHourReset == nil {
		st.FiveHourReset = parseReset(root.Get("reset_at"))
	}
	return st, nil
}

func manualIsNewer(st *State) bool {
	if st.LastManualUpdate == nil {
		return false
	}
	return st.LastAutoUpdate == nil || st.LastManualUpdate.After(*st.LastAutoUpdate)
}
