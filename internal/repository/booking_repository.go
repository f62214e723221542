package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// BookingRepo persists bookings. Seat numbers are stored as a JSON array in
// a text column; all timestamps are UTC.
type BookingRepo struct {
	db *sql.DB
}

func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// BookingFilter narrows List. Zero values mean no constraint; the time
// bounds apply to the showtime's start, From inclusive and To exclusive.
type BookingFilter struct {
	Status string
	From   *time.Time
	To     *time.Time
}

const bookingColumns = `b.id, b.user_id, b.showtime_id, b.booking_reference, b.number_of_tickets,
	b.total_price_cents, b.booking_status, b.customer_name, b.customer_email, b.customer_phone,
	b.seat_numbers, b.payment_method, b.payment_status, b.booking_date, b.updated_at`

const detailColumns = bookingColumns + `, s.movie_id, m.title, s.cinema, s.hall, s.starts_at, s.screen_type, s.price_cents`

const detailFrom = ` FROM bookings b
	JOIN showtimes s ON s.id = b.showtime_id
	JOIN movies m ON m.id = s.movie_id`

func bookingDest(b *model.Booking, userID *sql.NullInt64, seats *string) []any {
	return []any{&b.ID, userID, &b.ShowtimeID, &b.Reference, &b.Tickets,
		&b.TotalPriceCents, &b.Status, &b.CustomerName, &b.CustomerEmail, &b.CustomerPhone,
		seats, &b.PaymentMethod, &b.PaymentStatus, &b.CreatedAt, &b.UpdatedAt}
}

func finishBooking(b *model.Booking, userID sql.NullInt64, seats string) error {
	if userID.Valid {
		id := uint64(userID.Int64)
		b.UserID = &id
	}
	b.SeatNumbers = []string{}
	if seats != "" {
		if err := json.Unmarshal([]byte(seats), &b.SeatNumbers); err != nil {
			return fmt.Errorf("decode seat numbers for booking %d: %w", b.ID, err)
		}
	}
	return nil
}

func scanBooking(row rowScanner) (*model.Booking, error) {
	var (
		b      model.Booking
		userID sql.NullInt64
		seats  string
	)
	if err := row.Scan(bookingDest(&b, &userID, &seats)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return &b, finishBooking(&b, userID, seats)
}

func scanDetail(row rowScanner) (*model.BookingDetail, error) {
	var (
		d      model.BookingDetail
		userID sql.NullInt64
		seats  string
	)
	dest := append(bookingDest(&d.Booking, &userID, &seats),
		&d.MovieID, &d.MovieTitle, &d.Cinema, &d.Hall, &d.StartsAt, &d.ScreenType, &d.PriceCents)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return &d, finishBooking(&d.Booking, userID, seats)
}

// InsertTx writes a new booking inside the caller's transaction. A clash on
// booking_reference is reported as ErrDuplicateKey so the caller can pick a
// new reference; the transaction stays usable after it.
func (r *BookingRepo) InsertTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	seats := b.SeatNumbers
	if seats == nil {
		seats = []string{}
	}
	seatJSON, err := json.Marshal(seats)
	if err != nil {
		return err
	}
	var userID any
	if b.UserID != nil {
		userID = *b.UserID
	}
	const q = `INSERT INTO bookings (user_id, showtime_id, booking_reference, number_of_tickets, total_price_cents,
		booking_status, customer_name, customer_email, customer_phone, seat_numbers, payment_method, payment_status,
		booking_date, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, userID, b.ShowtimeID, b.Reference, b.Tickets, b.TotalPriceCents,
		b.Status, b.CustomerName, b.CustomerEmail, b.CustomerPhone, string(seatJSON), b.PaymentMethod,
		b.PaymentStatus, b.CreatedAt.UTC(), b.UpdatedAt.UTC())
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
		}
		return fmt.Errorf("insert booking: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	return nil
}

// GetByIDTx loads a booking row inside the caller's transaction.
func (r *BookingRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Booking, error) {
	return scanBooking(tx.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings b WHERE b.id = ?`, id))
}

// SetStatusTx moves a booking to status `to` only if its current status is
// one of from. It reports whether the row changed. An empty paymentStatus
// leaves payment_status untouched.
func (r *BookingRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, id uint64, to, paymentStatus string, at time.Time, from ...string) (bool, error) {
	if len(from) == 0 {
		return false, errors.New("SetStatusTx: no source status")
	}
	set := `booking_status = ?, updated_at = ?`
	args := []any{to, at.UTC()}
	if paymentStatus != "" {
		set += `, payment_status = ?`
		args = append(args, paymentStatus)
	}
	args = append(args, id)
	for _, f := range from {
		args = append(args, f)
	}
	q := `UPDATE bookings SET ` + set + ` WHERE id = ? AND booking_status IN (` + placeholders(len(from)) + `)`
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("update booking status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetDetail returns a booking with showtime and movie data.
func (r *BookingRepo) GetDetail(ctx context.Context, id uint64) (*model.BookingDetail, error) {
	return scanDetail(r.db.QueryRowContext(ctx, `SELECT `+detailColumns+detailFrom+` WHERE b.id = ?`, id))
}

// GetDetailByReference looks a booking up by its public reference.
func (r *BookingRepo) GetDetailByReference(ctx context.Context, ref string) (*model.BookingDetail, error) {
	return scanDetail(r.db.QueryRowContext(ctx, `SELECT `+detailColumns+detailFrom+` WHERE b.booking_reference = ?`, ref))
}

// ListByUser returns every booking of a user, most recent first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64) ([]model.BookingDetail, error) {
	q := `SELECT ` + detailColumns + detailFrom + ` WHERE b.user_id = ? ORDER BY b.booking_date DESC, b.id DESC`
	return r.queryDetails(ctx, q, userID)
}

// List returns one page of bookings matching f plus the total match count.
func (r *BookingRepo) List(ctx context.Context, f BookingFilter, limit, offset int) ([]model.BookingDetail, int, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "b.booking_status = ?")
		args = append(args, f.Status)
	}
	if f.From != nil {
		where = append(where, "s.starts_at >= ?")
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		where = append(where, "s.starts_at < ?")
		args = append(args, f.To.UTC())
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*)`+detailFrom+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count bookings: %w", err)
	}
	if total == 0 {
		return []model.BookingDetail{}, 0, nil
	}
	q := `SELECT ` + detailColumns + detailFrom + cond + ` ORDER BY b.booking_date DESC, b.id DESC LIMIT ? OFFSET ?`
	items, err := r.queryDetails(ctx, q, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListPendingBefore returns ids of pending bookings created before cutoff, oldest first.
func (r *BookingRepo) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM bookings WHERE booking_status = ? AND booking_date < ? ORDER BY booking_date LIMIT ?`,
		model.BookingPending, cutoff.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteCancelled physically removes a cancelled booking. Bookings in any
// other state hold seats and are refused with ErrConflict.
func (r *BookingRepo) DeleteCancelled(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ? AND booking_status = ?`, id, model.BookingCancelled)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var one int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM bookings WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrBookingNotFound
	}
	if err != nil {
		return err
	}
	return ErrConflict
}

func (r *BookingRepo) queryDetails(ctx context.Context, q string, args ...any) ([]model.BookingDetail, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()
	out := []model.BookingDetail{}
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
