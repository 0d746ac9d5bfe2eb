package usage

import (
	"strings"
	"time"
)

// Layouts accepted for ISO-8601 timestamps. The naive layouts match what
// older versions of the state file wrote (local time without an offset).
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses an ISO-8601 timestamp. A trailing "Z" is UTC and a
// timestamp without an offset is read in local time. ok is false when the
// value cannot be parsed; callers treat that as "unset".
func ParseTimestamp(value string) (t time.Time, ok bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		var (
			parsed time.Time
			err    error
		)
		if strings.HasSuffix(layout, "Z07:00") {
			parsed, err = time.Parse(layout, value)
		} else {
			parsed, err = time.ParseInLocation(layout, value, time.Local)
		}
		if err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// FormatTimestamp renders t the way the state file stores it.
func FormatTimestamp(t time.Time) string {
	return t.Format(time.RFC3339)
}
