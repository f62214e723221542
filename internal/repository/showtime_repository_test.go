package repository

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking/internal/database/dbtest"
	"github.com/iliyamo/cinema-booking/internal/model"
)

func newLedger(t *testing.T, capacity, remaining int) (*ShowtimeRepo, uint64) {
	t.Helper()
	return seedLedger(t, dbtest.Open(t), capacity, remaining)
}

// newConcurrentLedger pools several connections so reserves race for real.
func newConcurrentLedger(t *testing.T, capacity, remaining int) (*ShowtimeRepo, uint64) {
	t.Helper()
	return seedLedger(t, dbtest.OpenConcurrent(t, 8), capacity, remaining)
}

func seedLedger(t *testing.T, db *sql.DB, capacity, remaining int) (*ShowtimeRepo, uint64) {
	t.Helper()
	movie := dbtest.SeedMovie(t, db, "Arrival")
	id := dbtest.SeedShowtime(t, db, movie, time.Now().Add(24*time.Hour), capacity, remaining, 1000)
	return NewShowtimeRepo(db), id
}

func TestReserveDecrements(t *testing.T) {
	repo, id := newLedger(t, 50, 50)

	left, err := repo.Reserve(context.Background(), id, 3)
	require.NoError(t, err)
	assert.Equal(t, 47, left)
	assert.Equal(t, 47, dbtest.Remaining(t, repo.DB(), id))
}

func TestReserveInsufficientLeavesCountUnchanged(t *testing.T) {
	repo, id := newLedger(t, 50, 3)

	left, err := repo.Reserve(context.Background(), id, 4)
	assert.ErrorIs(t, err, ErrInsufficientSeats)
	assert.Equal(t, 3, left)
	assert.Equal(t, 3, dbtest.Remaining(t, repo.DB(), id))
}

func TestReserveUnknownShowtime(t *testing.T) {
	repo, _ := newLedger(t, 10, 10)

	_, err := repo.Reserve(context.Background(), 9999, 1)
	assert.ErrorIs(t, err, ErrShowtimeNotFound)
}

func TestReserveRejectsNonPositiveCount(t *testing.T) {
	repo, id := newLedger(t, 10, 10)

	_, err := repo.Reserve(context.Background(), id, 0)
	assert.ErrorIs(t, err, ErrInvalidSeatCount)
	_, err = repo.Release(context.Background(), id, -2)
	assert.ErrorIs(t, err, ErrInvalidSeatCount)
}

func TestReleaseCapsAtCapacity(t *testing.T) {
	repo, id := newLedger(t, 10, 8)

	left, err := repo.Release(context.Background(), id, 5)
	require.NoError(t, err)
	assert.Equal(t, 10, left)

	left, err = repo.Release(context.Background(), id, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, left)
}

func TestReleaseUnknownShowtime(t *testing.T) {
	repo, _ := newLedger(t, 10, 10)

	_, err := repo.Release(context.Background(), 4242, 1)
	assert.ErrorIs(t, err, ErrShowtimeNotFound)
}

func TestReleaseThenReserveRoundTrips(t *testing.T) {
	repo, id := newLedger(t, 20, 12)
	ctx := context.Background()

	_, err := repo.Release(ctx, id, 4)
	require.NoError(t, err)
	left, err := repo.Reserve(ctx, id, 4)
	require.NoError(t, err)
	assert.Equal(t, 12, left)
}

func TestConcurrentReserveNeverOversells(t *testing.T) {
	const (
		capacity = 50
		left     = 7
		callers  = 25
	)
	repo, id := newConcurrentLedger(t, capacity, left)

	var (
		wg           sync.WaitGroup
		ok, rejected atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := repo.Reserve(context.Background(), id, 1)
			switch {
			case err == nil:
				ok.Add(1)
			case assert.ErrorIs(t, err, ErrInsufficientSeats):
				rejected.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(left), ok.Load())
	assert.Equal(t, int32(callers-left), rejected.Load())
	assert.Equal(t, 0, dbtest.Remaining(t, repo.DB(), id))
}

func TestConcurrentLastSeatsOnlyOneWins(t *testing.T) {
	repo, id := newConcurrentLedger(t, 50, 2)

	var (
		wg         sync.WaitGroup
		wins, lost atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := repo.Reserve(context.Background(), id, 2)
			switch {
			case err == nil:
				wins.Add(1)
			case assert.ErrorIs(t, err, ErrInsufficientSeats):
				lost.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(1), lost.Load())
	assert.Equal(t, 0, dbtest.Remaining(t, repo.DB(), id))
}

func TestMixedReserveReleaseStaysInBounds(t *testing.T) {
	const capacity = 10
	repo, id := newConcurrentLedger(t, capacity, 5)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				if _, err := repo.Reserve(context.Background(), id, 2); err != nil {
					assert.ErrorIs(t, err, ErrInsufficientSeats)
				}
			} else {
				_, err := repo.Release(context.Background(), id, 3)
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	n := dbtest.Remaining(t, repo.DB(), id)
	assert.GreaterOrEqual(t, n, 0)
	assert.LessOrEqual(t, n, capacity)
}

func TestCreateAndGetShowtime(t *testing.T) {
	db := dbtest.Open(t)
	movie := dbtest.SeedMovie(t, db, "Dune")
	repo := NewShowtimeRepo(db)
	starts := time.Date(2030, 5, 1, 19, 30, 0, 0, time.UTC)

	st := &model.Showtime{MovieID: movie, Cinema: "Uptown", Hall: "IMAX", StartsAt: starts, Capacity: 120, ScreenType: "IMAX", PriceCents: 1550}
	require.NoError(t, repo.Create(context.Background(), st))
	require.NotZero(t, st.ID)

	got, err := repo.GetByID(context.Background(), st.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune", got.MovieTitle)
	assert.Equal(t, 120, got.RemainingSeats)
	assert.True(t, starts.Equal(got.StartsAt))
	assert.Equal(t, int64(1550), got.PriceCents)

	_, err = repo.GetByID(context.Background(), st.ID+1)
	assert.ErrorIs(t, err, ErrShowtimeNotFound)
}

func TestDeleteShowtimeRefusedWhileBooked(t *testing.T) {
	db := dbtest.Open(t)
	movie := dbtest.SeedMovie(t, db, "Heat")
	id := dbtest.SeedShowtime(t, db, movie, time.Now().Add(time.Hour), 10, 10, 900)
	repo := NewShowtimeRepo(db)
	insertBooking(t, NewBookingRepo(db), id, nil, "BK-AAAA0001", model.BookingConfirmed, time.Now())

	assert.ErrorIs(t, repo.Delete(context.Background(), id), ErrConflict)

	other := dbtest.SeedShowtime(t, db, movie, time.Now().Add(time.Hour), 10, 10, 900)
	require.NoError(t, repo.Delete(context.Background(), other))
	assert.ErrorIs(t, repo.Delete(context.Background(), other), ErrShowtimeNotFound)
}
