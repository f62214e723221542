package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking/internal/database/dbtest"
	"github.com/iliyamo/cinema-booking/internal/model"
)

func TestMovieRepoCreateGetList(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewMovieRepo(db)
	ctx := context.Background()

	m := &model.Movie{Title: "Solaris", DurationMin: 167, Rating: "PG"}
	require.NoError(t, repo.Create(ctx, m))
	require.NotZero(t, m.ID)
	require.NoError(t, repo.Create(ctx, &model.Movie{Title: "Arrival", DurationMin: 116}))

	got, err := repo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Solaris", got.Title)
	assert.Equal(t, 167, got.DurationMin)

	_, err = repo.GetByID(ctx, 404)
	assert.ErrorIs(t, err, ErrMovieNotFound)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Arrival", all[0].Title)
}

func TestSearchUpcoming(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewShowtimeRepo(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	dune := dbtest.SeedMovie(t, db, "Dune")
	heat := dbtest.SeedMovie(t, db, "Heat")
	dbtest.SeedShowtime(t, db, dune, now.Add(-time.Hour), 10, 10, 100) // already started
	first := dbtest.SeedShowtime(t, db, dune, now.Add(2*time.Hour), 10, 10, 100)
	second := dbtest.SeedShowtime(t, db, heat, now.Add(26*time.Hour), 10, 10, 100)
	third := dbtest.SeedShowtime(t, db, dune, now.Add(50*time.Hour), 10, 4, 100)

	out, total, err := repo.SearchUpcoming(ctx, ShowtimeSearchQuery{Page: 1, PageSize: 10}, now)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, out, 3)
	assert.Equal(t, []uint64{first, second, third}, []uint64{out[0].ID, out[1].ID, out[2].ID})
	assert.Equal(t, 4, out[2].RemainingSeats)

	out, total, err = repo.SearchUpcoming(ctx, ShowtimeSearchQuery{Title: "DUN", Page: 2, PageSize: 1}, now)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, out, 1)
	assert.Equal(t, third, out[0].ID)

	out, _, err = repo.SearchUpcoming(ctx, ShowtimeSearchQuery{MovieID: heat}, now)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, second, out[0].ID)

	out, total, err = repo.SearchUpcoming(ctx, ShowtimeSearchQuery{
		From: now.Add(24 * time.Hour), To: now.Add(48 * time.Hour), Cinema: "downtown",
	}, now)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, out, 1)
	assert.Equal(t, second, out[0].ID)
}
