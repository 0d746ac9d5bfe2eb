package usage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayload_BothWindows(t *testing.T) {
	body := []byte(`{
		"five_hour": {"utilization": 42.9, "resets_at": "2025-03-01T15:00:00Z"},
		"seven_day": {"utilization": 71, "resets_at": "2025-03-05T09:30:00.123456+00:00"},
		"seven_day_opus": null
	}`)

	windows, err := ParsePayload(body)
	require.NoError(t, err)

	fh := windows[WindowFiveHour]
	assert.Equal(t, 42, fh.Utilization)
	require.NotNil(t, fh.ResetAt)
	assert.True(t, fh.ResetAt.Equal(time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC)))

	wk := windows[WindowSevenDay]
	assert.Equal(t, 71, wk.Utilization)
	require.NotNil(t, wk.ResetAt)
	assert.Equal(t, 30, wk.ResetAt.UTC().Minute())
}

func TestParsePayload_Coercion(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"integer", `12`, 12},
		{"float truncates", `99.99`, 99},
		{"numeric string", `"45"`, 45},
		{"garbage string", `"lots"`, 0},
		{"null", `null`, 0},
		{"bool", `true`, 0},
		{"above range passes through", `130`, 130},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := []byte(`{"five_hour": {"utilization": ` + tt.raw + `}}`)
			windows, err := ParsePayload(body)
			require.NoError(t, err)
			assert.Equal(t, tt.want, windows[WindowFiveHour].Utilization)
		})
	}
}

func TestParsePayload_MissingUtilizationAndBadReset(t *testing.T) {
	body := []byte(`{"seven_day": {"resets_at": "next tuesday"}}`)

	windows, err := ParsePayload(body)
	require.NoError(t, err)

	assert.Equal(t, 0, windows[WindowSevenDay].Utilization)
	assert.Nil(t, windows[WindowSevenDay].ResetAt)
	assert.Equal(t, 0, windows[WindowFiveHour].Utilization)
}

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"empty", ``, true},
		{"html", `<html>Just a moment...</html>`, true},
		{"array", `[1,2]`, true},
		{"unknown object", `{"error": {"type": "permission_error"}}`, true},
		{"window not an object", `{"five_hour": 3}`, true},
		{"five hour only", `{"five_hour": {"utilization": 1}}`, false},
		{"seven day only", `{"seven_day": {}}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayload([]byte(tt.body))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedPayload)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		ok   bool
		want time.Time
	}{
		{"2025-03-01T15:00:00Z", true, time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC)},
		{"2025-03-01T17:00:00+02:00", true, time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC)},
		{"2025-03-01T15:00:00.654321", true, time.Date(2025, 3, 1, 15, 0, 0, 654321000, time.Local)},
		{"", false, time.Time{}},
		{"yesterday", false, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, got.Equal(tt.want), "got %s want %s", got, tt.want)
			}
		})
	}
}
