package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking/internal/database/dbtest"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/repository"
)

func TestQueryByReferenceAndUser(t *testing.T) {
	f := newFixture(t, 20, 1250)
	base := time.Now().Add(-time.Hour)

	var refs []string
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		f.svc.now = func() time.Time { return at }
		b, err := f.svc.Create(context.Background(), f.request(1), f.user)
		require.NoError(t, err)
		refs = append(refs, b.Reference)
	}
	_, err := f.svc.Create(context.Background(), f.request(1), f.other)
	require.NoError(t, err)

	d, err := f.query.GetByReference(context.Background(), "  "+refs[0]+" ")
	require.NoError(t, err)
	assert.Equal(t, "Arrival", d.MovieTitle)
	assert.EqualValues(t, 1250, d.PriceCents)
	assert.Equal(t, "Downtown", d.Cinema)

	_, err = f.query.GetByReference(context.Background(), "BK-00000000")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.query.GetByReference(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	mine, err := f.query.ListForUser(context.Background(), f.user.UserID)
	require.NoError(t, err)
	require.Len(t, mine, 3)
	assert.Equal(t, refs[2], mine[0].Reference)
	assert.Equal(t, refs[0], mine[2].Reference)

	_, err = f.query.ListForUser(context.Background(), 0)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestQueryListAll(t *testing.T) {
	f := newFixture(t, 50, 100)
	day := time.Now().UTC().Add(72 * time.Hour)
	later := dbtest.SeedShowtime(t, f.db, f.movieID, day, 50, 50, 100)

	for i := 0; i < 5; i++ {
		_, err := f.svc.Create(context.Background(), f.request(1), f.user)
		require.NoError(t, err)
	}
	req := f.request(1)
	req.ShowtimeID = later
	req.PaymentMethod = model.PaymentCash
	_, err := f.svc.Create(context.Background(), req, f.user)
	require.NoError(t, err)

	page, err := f.query.ListAll(context.Background(), ListFilter{}, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, 6, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Bookings, 2)

	page, err = f.query.ListAll(context.Background(), ListFilter{Status: "PENDING"}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 20, page.PageSize)

	page, err = f.query.ListAll(context.Background(), ListFilter{Date: day.Format("2006-01-02")}, 1, 500)
	require.NoError(t, err)
	assert.Equal(t, 100, page.PageSize)
	require.Len(t, page.Bookings, 1)
	assert.Equal(t, later, page.Bookings[0].ShowtimeID)

	_, err = f.query.ListAll(context.Background(), ListFilter{Status: "archived", Date: "12/01/2026"}, 1, 10)
	require.ErrorIs(t, err, ErrInvalidRequest)
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Len(t, se.Fields, 2)
}

func TestCatalog(t *testing.T) {
	f := newFixture(t, 10, 100)
	cat := NewCatalogService(repository.NewMovieRepo(f.db), repository.NewShowtimeRepo(f.db), f.act)

	_, err := cat.CreateMovie(context.Background(), CreateMovieRequest{Title: "Dune"}, f.user)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = cat.CreateMovie(context.Background(), CreateMovieRequest{Title: "  "}, f.admin)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	movie, err := cat.CreateMovie(context.Background(), CreateMovieRequest{Title: "Dune", DurationMin: 155, Rating: "PG-13"}, f.admin)
	require.NoError(t, err)

	movies, err := cat.ListMovies(context.Background())
	require.NoError(t, err)
	assert.Len(t, movies, 2)

	starts := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	bad := CreateShowtimeRequest{MovieID: movie.ID, Cinema: "Rex", Hall: "2", StartsAt: time.Now().Add(-time.Hour), Capacity: 0}
	_, err = cat.CreateShowtime(context.Background(), bad, f.admin)
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = cat.CreateShowtime(context.Background(), CreateShowtimeRequest{MovieID: 777, Cinema: "Rex", Hall: "2", StartsAt: starts, Capacity: 40}, f.admin)
	assert.ErrorIs(t, err, ErrNotFound)

	st, err := cat.CreateShowtime(context.Background(), CreateShowtimeRequest{
		MovieID: movie.ID, Cinema: "Rex", Hall: "2", StartsAt: starts, Capacity: 40, PriceCents: 1500,
	}, f.admin)
	require.NoError(t, err)
	assert.Equal(t, 40, st.RemainingSeats)
	assert.Equal(t, "2D", st.ScreenType)

	got, err := cat.GetShowtime(context.Background(), st.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune", got.MovieTitle)
	assert.True(t, got.StartsAt.Equal(starts))

	page, err := cat.SearchShowtimes(context.Background(), ShowtimeQuery{Title: "dun"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	page, err = cat.SearchShowtimes(context.Background(), ShowtimeQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	_, err = cat.SearchShowtimes(context.Background(), ShowtimeQuery{Date: "tomorrow"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.svc.Create(context.Background(), f.request(1), f.user)
	require.NoError(t, err)
	assert.ErrorIs(t, cat.DeleteShowtime(context.Background(), f.showtimeID, f.admin), ErrConflict)
	assert.ErrorIs(t, cat.DeleteShowtime(context.Background(), st.ID, f.user), ErrForbidden)
	require.NoError(t, cat.DeleteShowtime(context.Background(), st.ID, f.admin))
	_, err = cat.GetShowtime(context.Background(), st.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
