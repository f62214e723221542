package activity

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, store Store, entries ...Entry) {
	t.Helper()
	for _, e := range entries {
		require.NoError(t, store.Insert(context.Background(), e))
	}
}

func TestGetStatsWindow(t *testing.T) {
	now := time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore(0)
	seed(t, store,
		Entry{Action: "BOOKING_CREATE", UserID: "1", Level: LevelInfo, Timestamp: now.Add(-1 * time.Hour)},
		Entry{Action: "BOOKING_CREATE", UserID: "2", Level: LevelInfo, Timestamp: now.Add(-25 * time.Hour)},
		Entry{Action: "LOGIN_FAILED", Level: LevelWarn, Timestamp: now.Add(-49 * time.Hour)},
		Entry{Action: "API_REQUEST", Level: LevelError, Timestamp: now.Add(-3 * 24 * time.Hour)},
		Entry{Action: "BOOKING_CREATE", UserID: "1", Level: LevelInfo, Timestamp: now.Add(-6 * 24 * time.Hour)},
		Entry{Action: "OLD", Level: LevelError, Timestamp: now.Add(-8 * 24 * time.Hour)},
		Entry{Action: "OLD", Level: LevelInfo, Timestamp: now.Add(-30 * 24 * time.Hour)},
		Entry{Action: "OLD", Level: LevelInfo, Timestamp: now.Add(-400 * 24 * time.Hour)},
	)
	agg := NewAggregator(store)
	agg.now = func() time.Time { return now }

	st, err := agg.GetStats(context.Background(), 7)
	require.NoError(t, err)
	assert.EqualValues(t, 5, st.TotalLogs)
	assert.EqualValues(t, 1, st.ErrorCount)
	assert.EqualValues(t, 3, st.UserActions)
	assert.EqualValues(t, 2, st.SystemActions)
	require.NotEmpty(t, st.TopActions)
	assert.Equal(t, ActionCount{Action: "BOOKING_CREATE", Count: 3}, st.TopActions[0])
	require.Len(t, st.DailyActivity, 5)
	assert.Equal(t, "2026-05-14", st.DailyActivity[0].Date)
	assert.Equal(t, "2026-05-20", st.DailyActivity[4].Date)

	st, err = agg.GetStats(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 7, st.WindowDays)

	st, err = agg.GetStats(context.Background(), 10000)
	require.NoError(t, err)
	assert.Equal(t, 365, st.WindowDays)
	assert.EqualValues(t, 7, st.TotalLogs)
}

func TestGetStatsTopActionsLimit(t *testing.T) {
	store := NewMemoryStore(0)
	now := time.Now()
	for i := 0; i < 12; i++ {
		for j := 0; j <= i; j++ {
			seed(t, store, Entry{Action: string(rune('A' + i)), Timestamp: now})
		}
	}
	st, err := NewAggregator(store).GetStats(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, st.TopActions, 10)
	assert.Equal(t, "L", st.TopActions[0].Action)
	assert.EqualValues(t, 12, st.TopActions[0].Count)
}

func TestExportCSV(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store := NewMemoryStore(0)
	seed(t, store,
		Entry{Action: "LOGIN_SUCCESS", Username: "a@example.com", UserID: "1", Resource: "auth", Level: LevelInfo, Timestamp: ts,
			Details: Details{Metadata: map[string]any{"note": `said "hi", left`}}},
		Entry{Action: "BOOKING_EXPIRE", Level: LevelInfo, Timestamp: ts.Add(-time.Minute)},
		Entry{Action: "BOOKING_CANCEL", UserID: "5", Level: LevelInfo, Timestamp: ts.Add(-2 * time.Minute)},
	)

	var buf bytes.Buffer
	require.NoError(t, NewAggregator(store).Export(context.Background(), "csv", Filter{}, &buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Timestamp", "User", "Action", "Resource", "Level", "Details"}, rows[0])
	assert.Equal(t, "2026-01-02T03:04:05Z", rows[1][0])
	assert.Equal(t, "a@example.com", rows[1][1])
	assert.Equal(t, "system", rows[2][1])
	assert.Equal(t, "5", rows[3][1])

	var d Details
	require.NoError(t, json.Unmarshal([]byte(rows[1][5]), &d))
	assert.Equal(t, `said "hi", left`, d.Metadata["note"])
}

func TestExportJSONAndFormat(t *testing.T) {
	store := NewMemoryStore(0)
	seed(t, store,
		Entry{Action: "A", Level: LevelInfo, Timestamp: time.Now()},
		Entry{Action: "B", Level: LevelError, Timestamp: time.Now()},
	)
	agg := NewAggregator(store)

	var buf bytes.Buffer
	require.NoError(t, agg.Export(context.Background(), "JSON", Filter{Level: LevelError}, &buf))
	var out []Entry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "B", out[0].Action)

	err := agg.Export(context.Background(), "xml", Filter{}, &buf)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}
