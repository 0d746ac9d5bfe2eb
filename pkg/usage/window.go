package usage

import (
	"time"
)

// WindowName identifies a quota period reported by claude.ai.
type WindowName string

const (
	WindowFiveHour WindowName = "five_hour"
	WindowSevenDay WindowName = "seven_day"
)

// Windows lists the windows tracked by the indicator, in display order.
var Windows = []WindowName{WindowFiveHour, WindowSevenDay}

// Label returns the human readable name of the window.
func (n WindowName) Label() string {
	switch n {
	case WindowFiveHour:
		return "Usage (5h)"
	case WindowSevenDay:
		return "Weekly Usage"
	default:
		return string(n)
	}
}

// Source tags where a snapshot came from.
type Source string

const (
	SourceLive    Source = "live"
	SourceCached  Source = "cached"
	SourceDefault Source = "default"
)

// Window is the utilization of a single quota period.
type Window struct {
	Name        WindowName `json:"name"`
	Utilization int        `json:"utilization"`
	ResetAt     *time.Time `json:"reset_at,omitempty"`
}

// Snapshot is the usage state shown to the user at a point in time.
type Snapshot struct {
	Windows    map[WindowName]Window `json:"windows"`
	LastUpdate time.Time             `json:"last_update"`
	Source     Source                `json:"source"`
	Warning    string                `json:"warning,omitempty"`
}

// DefaultSnapshot returns a snapshot with zero utilization for every window.
func DefaultSnapshot() Snapshot {
	windows := make(map[WindowName]Window, len(Windows))
	for _, name := range Windows {
		windows[name] = Window{Name: name}
	}
	return Snapshot{
		Windows: windows,
		Source:  SourceDefault,
	}
}

// Window returns the named window, or a zero window if it is absent.
func (s Snapshot) Window(name WindowName) Window {
	if w, ok := s.Windows[name]; ok {
		return w
	}
	return Window{Name: name}
}

// IsStale reports whether the snapshot is not backed by a live fetch.
func (s Snapshot) IsStale() bool {
	return s.Source != SourceLive
}
