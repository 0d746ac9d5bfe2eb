package usage

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ErrMalformedPayload is returned when a usage response is not a JSON object
// carrying at least one known window.
var ErrMalformedPayload = errors.New("malformed usage payload")

// ValidatePayload checks that body has the structure of a usage response.
func ValidatePayload(body []byte) error {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || !gjson.Valid(trimmed) {
		return ErrMalformedPayload
	}
	root := gjson.Parse(trimmed)
	if !root.IsObject() {
		return ErrMalformedPayload
	}
	for _, name := range Windows {
		if root.Get(string(name)).IsObject() {
			return nil
		}
	}
	return ErrMalformedPayload
}

// ParsePayload extracts the tracked windows from a usage response. Windows
// missing from the payload are reported with zero utilization.
func ParsePayload(body []byte) (map[WindowName]Window, error) {
	if err := ValidatePayload(body); err != nil {
		return nil, err
	}
	root := gjson.ParseBytes(body)

	windows := make(map[WindowName]Window, len(Windows))
	for _, name := range Windows {
		w := Window{Name: name}
		entry := root.Get(string(name))
		if entry.IsObject() {
			w.Utilization = coerceInt(entry.Get("utilization"))
			w.ResetAt = parseReset(entry.Get("resets_at"))
		}
		windows[name] = w
	}
	return windows, nil
}

// coerceInt truncates numbers and numeric strings; anything else is 0.
func coerceInt(r gjson.Result) int {
	switch r.Type {
	case gjson.Number:
		return int(r.Int())
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		if err != nil {
			return 0
		}
		return int(f)
	default:
		return 0
	}
}

func parseReset(r gjson.Result) *time.Time {
	if r.Type != gjson.String {
		return nil
	}
	t, ok := ParseTimestamp(r.Str)
	if !ok {
		return nil
	}
	return &t
}
