package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/rmax-ai/claude-usage/pkg/usage"
)

func TestStateFile_LoadMissing(t *testing.T) {
	f := NewStateFile(filepath.Join(t.TempDir(), "config.json"))

	st, err := f.Load()

	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestStateFile_LoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	_, err := NewStateFile(path).Load()

	assert.True(t, errors.Is(err, usage.ErrMalformedState))
}

func TestStateFile_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	f := NewStateFile(path)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := usage.Snapshot{Windows: map[usage.WindowName]usage.Window{
		usage.WindowFiveHour: {Name: usage.WindowFiveHour, Utilization: 33},
		usage.WindowSevenDay: {Name: usage.WindowSevenDay, Utilization: 66},
	}}

	require.NoError(t, f.Save(usage.StateFromSnapshot(snap, now)))

	st, err := f.Load()
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, 33, st.FiveHourUsage)
	assert.Equal(t, 66, st.WeeklyUsage)
	require.NotNil(t, st.LastAutoUpdate)
	assert.True(t, st.LastAutoUpdate.Equal(now))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files may be left behind")
}

func TestStateFile_SetManualPreservesKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"weekly_usage": 12, "custom": {"keep": true}}`), 0o644))
	f := NewStateFile(path)
	now := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)

	require.NoError(t, f.SetManual(45, now))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(45), gjson.GetBytes(data, "usage_percentage").Int())
	assert.Equal(t, int64(12), gjson.GetBytes(data, "weekly_usage").Int())
	assert.True(t, gjson.GetBytes(data, "custom.keep").Bool())

	st, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, 45, st.FiveHourUsage)
	require.NotNil(t, st.LastManualUpdate)
	assert.True(t, st.LastManualUpdate.Equal(now))
}

func TestStateFile_SetManualCreatesTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	f := NewStateFile(path)

	require.NoError(t, f.SetManual(0, time.Now()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, gjson.GetBytes(data, "note").Exists())
	assert.Equal(t, int64(5), gjson.GetBytes(data, "reset_hours").Int())
	assert.Equal(t, int64(0), gjson.GetBytes(data, "usage_percentage").Int())
}

func TestStateFile_SetManualRejects(t *testing.T) {
	dir := t.TempDir()

	f := NewStateFile(filepath.Join(dir, "config.json"))
	assert.Error(t, f.SetManual(101, time.Now()))
	assert.Error(t, f.SetManual(-1, time.Now()))
	_, err := os.Stat(f.Path())
	assert.True(t, os.IsNotExist(err), "invalid input must not create the file")

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[]`), 0o644))
	err = NewStateFile(bad).SetManual(10, time.Now())
	assert.ErrorIs(t, err, usage.ErrMalformedState)
	data, _ := os.ReadFile(bad)
	assert.Equal(t, "[]", string(data))
}
