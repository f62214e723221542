package activity

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking/internal/database"
)

func TestMongoStoreIntegration(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	ctx := context.Background()
	client, err := database.OpenMongo(ctx, uri)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	db := client.Database(fmt.Sprintf("cinema_test_%d", time.Now().UnixNano()))
	t.Cleanup(func() { _ = db.Drop(context.Background()) })

	store := NewMongoStore(db, "", 0)
	require.NoError(t, store.EnsureIndexes(ctx))

	now := time.Now().UTC().Truncate(time.Millisecond)
	seed(t, store,
		Entry{Action: "BOOKING_CREATE", UserID: "1", Level: LevelInfo, Timestamp: now.Add(-time.Hour),
			Details: Details{Metadata: map[string]any{"tickets": 2}}},
		Entry{Action: "BOOKING_CREATE", UserID: "2", Level: LevelInfo, Timestamp: now.Add(-2 * time.Hour)},
		Entry{Action: "API_REQUEST", Level: LevelError, Timestamp: now.Add(-3 * time.Hour)},
		Entry{Action: "OLD", Level: LevelInfo, Timestamp: now.Add(-10 * 24 * time.Hour)},
	)

	entries, total, err := store.Find(ctx, Filter{Action: "booking"}, 0, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, entries, 1)
	assert.Equal(t, "1", entries[0].UserID)
	assert.NotEmpty(t, entries[0].ID)

	agg := NewAggregator(store)
	st, err := agg.GetStats(ctx, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 3, st.TotalLogs)
	assert.EqualValues(t, 1, st.ErrorCount)
	assert.EqualValues(t, 2, st.UserActions)
	assert.EqualValues(t, 1, st.SystemActions)
	assert.Equal(t, "BOOKING_CREATE", st.TopActions[0].Action)

	n, err := store.DeleteOlderThan(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
