package usage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseState_Defaults(t *testing.T) {
	st, err := ParseState([]byte(`{"note": "hello", "weekly_usage": "abc"}`))
	require.NoError(t, err)

	assert.Equal(t, 0, st.FiveHourUsage)
	assert.Equal(t, 0, st.WeeklyUsage)
	assert.Nil(t, st.FiveHourReset)
	assert.Nil(t, st.LastAutoUpdate)
	assert.Equal(t, "hello", st.Note)
}

func TestParseState_Malformed(t *testing.T) {
	for _, doc := range []string{``, `{`, `[]`, `"text"`, `42`} {
		_, err := ParseState([]byte(doc))
		assert.ErrorIs(t, err, ErrMalformedState, "doc %q", doc)
	}
}

func TestParseState_LegacyKeys(t *testing.T) {
	st, err := ParseState([]byte(`{
		"usage_percentage": 33,
		"reset_at": "2025-03-01T15:00:00Z",
		"last_manual_update": "2025-03-01T10:00:00"
	}`))
	require.NoError(t, err)

	assert.Equal(t, 33, st.FiveHourUsage)
	require.NotNil(t, st.FiveHourReset)
	assert.Equal(t, 15, st.FiveHourReset.UTC().Hour())
	require.NotNil(t, st.LastManualUpdate)
}

func TestParseState_ManualPrecedence(t *testing.T) {
	t.Run("manual newer than auto wins", func(t *testing.T) {
		st, err := ParseState([]byte(`{
			"five_hour_usage": 10,
			"usage_percentage": 45,
			"last_auto_update": "2025-03-01T10:00:00Z",
			"last_manual_update": "2025-03-01T11:00:00Z"
		}`))
		require.NoError(t, err)
		assert.Equal(t, 45, st.FiveHourUsage)
	})

	t.Run("auto newer than manual wins", func(t *testing.T) {
		st, err := ParseState([]byte(`{
			"five_hour_usage": 10,
			"usage_percentage": 45,
			"last_auto_update": "2025-03-01T12:00:00Z",
			"last_manual_update": "2025-03-01T11:00:00Z"
		}`))
		require.NoError(t, err)
		assert.Equal(t, 10, st.FiveHourUsage)
	})
}

func TestState_RoundTrip(t *testing.T) {
	fhReset := time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC)
	wkReset := time.Date(2025, 3, 5, 9, 30, 0, 0, time.UTC)
	snap := Snapshot{
		Windows: map[WindowName]Window{
			WindowFiveHour: {Name: WindowFiveHour, Utilization: 42, ResetAt: &fhReset},
			WindowSevenDay: {Name: WindowSevenDay, Utilization: 71, ResetAt: &wkReset},
		},
		Source: SourceLive,
	}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	data, err := StateFromSnapshot(snap, now).Marshal()
	require.NoError(t, err)

	st, err := ParseState(data)
	require.NoError(t, err)
	cached := st.Snapshot()

	assert.Equal(t, SourceCached, cached.Source)
	for _, name := range Windows {
		want := snap.Window(name)
		got := cached.Window(name)
		assert.Equal(t, want.Utilization, got.Utilization, name)
		require.NotNil(t, got.ResetAt, name)
		assert.True(t, want.ResetAt.Truncate(time.Minute).Equal(got.ResetAt.Truncate(time.Minute)), name)
	}
	assert.True(t, cached.LastUpdate.Equal(now))
}

func TestPlaceholderState(t *testing.T) {
	data, err := PlaceholderState().Marshal()
	require.NoError(t, err)

	st, err := ParseState(data)
	require.NoError(t, err)
	assert.Equal(t, 0, st.FiveHourUsage)
	assert.Equal(t, 0, st.WeeklyUsage)
	assert.Equal(t, 5, st.ResetHours)
	assert.NotEmpty(t, st.Note)
}
