package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking/internal/database/dbtest"
	"github.com/iliyamo/cinema-booking/internal/model"
)

func insertBooking(t *testing.T, repo *BookingRepo, showtimeID uint64, userID *uint64, ref, status string, at time.Time) *model.Booking {
	t.Helper()
	b := &model.Booking{
		UserID:          userID,
		ShowtimeID:      showtimeID,
		Reference:       ref,
		Tickets:         2,
		TotalPriceCents: 2000,
		Status:          status,
		CustomerName:    "Ada",
		CustomerEmail:   "ada@example.com",
		SeatNumbers:     []string{"A1", "A2"},
		PaymentMethod:   model.PaymentCreditCard,
		PaymentStatus:   model.PaymentCompleted,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
	tx, err := repo.db.BeginTx(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, repo.InsertTx(context.Background(), tx, b))
	require.NoError(t, tx.Commit())
	return b
}

type bookingFixture struct {
	db       *sql.DB
	repo     *BookingRepo
	showtime uint64
	later    uint64
	user     uint64
}

func newBookingFixture(t *testing.T) bookingFixture {
	t.Helper()
	db := dbtest.Open(t)
	movie := dbtest.SeedMovie(t, db, "Alien")
	return bookingFixture{
		db:       db,
		repo:     NewBookingRepo(db),
		showtime: dbtest.SeedShowtime(t, db, movie, time.Date(2030, 1, 10, 20, 0, 0, 0, time.UTC), 100, 100, 1000),
		later:    dbtest.SeedShowtime(t, db, movie, time.Date(2030, 1, 11, 20, 0, 0, 0, time.UTC), 100, 100, 1000),
		user:     dbtest.SeedUser(t, db, "ada@example.com", model.RoleCustomer),
	}
}

func TestInsertDuplicateReference(t *testing.T) {
	f := newBookingFixture(t)
	insertBooking(t, f.repo, f.showtime, nil, "BK-DUPL0001", model.BookingConfirmed, time.Now())

	tx, err := f.db.BeginTx(context.Background(), nil)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	b := &model.Booking{ShowtimeID: f.showtime, Reference: "BK-DUPL0001", Tickets: 1, Status: model.BookingConfirmed,
		CustomerName: "Bob", CustomerEmail: "bob@example.com", PaymentMethod: model.PaymentCash, PaymentStatus: model.PaymentPending,
		CreatedAt: time.Now(), UpdatedAt: time.Now()}
	err = f.repo.InsertTx(context.Background(), tx, b)
	assert.ErrorIs(t, err, ErrDuplicateKey)

	// the transaction survives the failed statement
	b.Reference = "BK-DUPL0002"
	require.NoError(t, f.repo.InsertTx(context.Background(), tx, b))
}

func TestGetDetailByReference(t *testing.T) {
	f := newBookingFixture(t)
	uid := f.user
	created := insertBooking(t, f.repo, f.showtime, &uid, "BK-REFX0001", model.BookingConfirmed, time.Now())

	d, err := f.repo.GetDetailByReference(context.Background(), "BK-REFX0001")
	require.NoError(t, err)
	assert.Equal(t, created.ID, d.ID)
	assert.Equal(t, "Alien", d.MovieTitle)
	assert.Equal(t, []string{"A1", "A2"}, d.SeatNumbers)
	require.NotNil(t, d.UserID)
	assert.Equal(t, uid, *d.UserID)

	_, err = f.repo.GetDetailByReference(context.Background(), "BK-NOPE0000")
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestListByUserNewestFirst(t *testing.T) {
	f := newBookingFixture(t)
	uid := f.user
	base := time.Date(2029, 12, 1, 10, 0, 0, 0, time.UTC)
	insertBooking(t, f.repo, f.showtime, &uid, "BK-USER0001", model.BookingConfirmed, base)
	insertBooking(t, f.repo, f.showtime, &uid, "BK-USER0003", model.BookingConfirmed, base.Add(2*time.Hour))
	insertBooking(t, f.repo, f.showtime, &uid, "BK-USER0002", model.BookingCancelled, base.Add(time.Hour))
	insertBooking(t, f.repo, f.showtime, nil, "BK-GUEST001", model.BookingConfirmed, base.Add(3*time.Hour))

	list, err := f.repo.ListByUser(context.Background(), uid)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "BK-USER0003", list[0].Reference)
	assert.Equal(t, "BK-USER0002", list[1].Reference)
	assert.Equal(t, "BK-USER0001", list[2].Reference)
}

func TestListFiltersAndPages(t *testing.T) {
	f := newBookingFixture(t)
	base := time.Date(2029, 12, 1, 10, 0, 0, 0, time.UTC)
	insertBooking(t, f.repo, f.showtime, nil, "BK-LIST0001", model.BookingConfirmed, base)
	insertBooking(t, f.repo, f.showtime, nil, "BK-LIST0002", model.BookingCancelled, base.Add(time.Minute))
	insertBooking(t, f.repo, f.later, nil, "BK-LIST0003", model.BookingConfirmed, base.Add(2*time.Minute))
	insertBooking(t, f.repo, f.later, nil, "BK-LIST0004", model.BookingConfirmed, base.Add(3*time.Minute))

	items, total, err := f.repo.List(context.Background(), BookingFilter{Status: model.BookingConfirmed}, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 2)
	assert.Equal(t, "BK-LIST0004", items[0].Reference)

	items, _, err = f.repo.List(context.Background(), BookingFilter{Status: model.BookingConfirmed}, 2, 2)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "BK-LIST0001", items[0].Reference)

	from := time.Date(2030, 1, 10, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	items, total, err = f.repo.List(context.Background(), BookingFilter{From: &from, To: &to}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, it := range items {
		assert.Equal(t, f.showtime, it.ShowtimeID)
	}

	items, total, err = f.repo.List(context.Background(), BookingFilter{Status: model.BookingPending}, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, items)
}

func TestSetStatusTxOnlyFromAllowedStates(t *testing.T) {
	f := newBookingFixture(t)
	b := insertBooking(t, f.repo, f.showtime, nil, "BK-STAT0001", model.BookingConfirmed, time.Now())
	ctx := context.Background()

	tx, err := f.db.BeginTx(ctx, nil)
	require.NoError(t, err)
	changed, err := f.repo.SetStatusTx(ctx, tx, b.ID, model.BookingCancelled, "", time.Now(), model.BookingPending, model.BookingConfirmed)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = f.repo.SetStatusTx(ctx, tx, b.ID, model.BookingCancelled, "", time.Now(), model.BookingPending, model.BookingConfirmed)
	require.NoError(t, err)
	assert.False(t, changed)
	require.NoError(t, tx.Commit())

	got, err := f.repo.GetDetail(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, got.Status)
	assert.Equal(t, model.PaymentCompleted, got.PaymentStatus)
}

func TestListPendingBefore(t *testing.T) {
	f := newBookingFixture(t)
	old := time.Now().Add(-time.Hour)
	a := insertBooking(t, f.repo, f.showtime, nil, "BK-PEND0001", model.BookingPending, old)
	insertBooking(t, f.repo, f.showtime, nil, "BK-PEND0002", model.BookingPending, time.Now())
	insertBooking(t, f.repo, f.showtime, nil, "BK-CONF0001", model.BookingConfirmed, old)

	ids, err := f.repo.ListPendingBefore(context.Background(), time.Now().Add(-30*time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{a.ID}, ids)
}

func TestDeleteCancelled(t *testing.T) {
	f := newBookingFixture(t)
	live := insertBooking(t, f.repo, f.showtime, nil, "BK-LIVE0001", model.BookingConfirmed, time.Now())
	dead := insertBooking(t, f.repo, f.showtime, nil, "BK-DEAD0001", model.BookingCancelled, time.Now())
	ctx := context.Background()

	assert.ErrorIs(t, f.repo.DeleteCancelled(ctx, live.ID), ErrConflict)
	require.NoError(t, f.repo.DeleteCancelled(ctx, dead.ID))
	assert.ErrorIs(t, f.repo.DeleteCancelled(ctx, dead.ID), ErrBookingNotFound)
}
