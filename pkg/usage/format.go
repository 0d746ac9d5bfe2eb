package usage

import (
	"fmt"
	"time"
)

// Level classifies a utilization for display.
type Level int

const (
	LevelOK Level = iota
	LevelWarning
	LevelCritical
)

const (
	warningThreshold  = 70
	criticalThreshold = 90
)

// LevelOf returns the display level for a utilization percentage.
func LevelOf(utilization int) Level {
	switch {
	case utilization >= criticalThreshold:
		return LevelCritical
	case utilization >= warningThreshold:
		return LevelWarning
	default:
		return LevelOK
	}
}

// Icon returns the status glyph for the level.
func (l Level) Icon() string {
	switch l {
	case LevelCritical:
		return "🔴"
	case LevelWarning:
		return "🟡"
	default:
		return "🟢"
	}
}

func (l Level) String() string {
	switch l {
	case LevelCritical:
		return "CRITICAL"
	case LevelWarning:
		return "WARNING"
	default:
		return "OK"
	}
}

// FormatCountdown renders the time left until reset as "2h 5m". It returns
// "" when reset has already passed.
func FormatCountdown(reset, now time.Time) string {
	if !reset.After(now) {
		return ""
	}
	total := int(reset.Sub(now).Seconds())
	return fmt.Sprintf("%dh %dm", total/3600, (total%3600)/60)
}

// ResetLine renders the reset entry for a window.
func ResetLine(w Window, now time.Time) string {
	tag := "5h"
	if w.Name == WindowSevenDay {
		tag = "weekly"
	}
	if w.ResetAt == nil {
		return fmt.Sprintf("Next reset (%s): unknown", tag)
	}
	if left := FormatCountdown(*w.ResetAt, now); left != "" {
		return fmt.Sprintf("⏰ Reset (%s) in: %s", tag, left)
	}
	return fmt.Sprintf("⏰ %s Limit Reset", tag)
}

// PanelLabel is the short text shown in the indicator itself.
func PanelLabel(snap Snapshot) string {
	return fmt.Sprintf("Claude: %d%%", snap.Window(WindowFiveHour).Utilization)
}

// WindowLine renders a window with its level icon. Stale windows are marked
// offline.
func WindowLine(w Window, stale bool) string {
	if stale {
		return fmt.Sprintf("⚠️ %s: %d%% (Offline)", w.Name.Label(), w.Utilization)
	}
	return fmt.Sprintf("%s %s: %d%%", LevelOf(w.Utilization).Icon(), w.Name.Label(), w.Utilization)
}

// Lines renders every tracked window followed by the five-hour reset.
func Lines(snap Snapshot, now time.Time) []string {
	stale := snap.Source == SourceCached
	lines := make([]string, 0, len(Windows)+1)
	for _, name := range Windows {
		lines = append(lines, WindowLine(snap.Window(name), stale))
	}
	return append(lines, ResetLine(snap.Window(WindowFiveHour), now))
}
