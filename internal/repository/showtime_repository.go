package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// ShowtimeRepo owns the showtimes table and is the availability ledger:
// remaining_seats only ever changes through the conditional updates in
// ReserveTx and ReleaseTx, so concurrent bookings for the same showtime are
// serialised by the database rather than by the process.
type ShowtimeRepo struct {
	db *sql.DB
}

func NewShowtimeRepo(db *sql.DB) *ShowtimeRepo { return &ShowtimeRepo{db: db} }

// DB exposes the handle so callers can open transactions spanning
// several repositories.
func (r *ShowtimeRepo) DB() *sql.DB { return r.db }

const showtimeColumns = `s.id, s.movie_id, m.title, s.cinema, s.hall, s.starts_at, s.capacity,
	s.remaining_seats, s.screen_type, s.price_cents, s.created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShowtime(row rowScanner) (*model.Showtime, error) {
	var s model.Showtime
	err := row.Scan(&s.ID, &s.MovieID, &s.MovieTitle, &s.Cinema, &s.Hall, &s.StartsAt, &s.Capacity,
		&s.RemainingSeats, &s.ScreenType, &s.PriceCents, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrShowtimeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a showtime with every seat available.
func (r *ShowtimeRepo) Create(ctx context.Context, s *model.Showtime) error {
	const q = `INSERT INTO showtimes (movie_id, cinema, hall, starts_at, capacity, remaining_seats, screen_type, price_cents, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	s.RemainingSeats = s.Capacity
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, q, s.MovieID, s.Cinema, s.Hall, s.StartsAt.UTC(), s.Capacity,
		s.RemainingSeats, s.ScreenType, s.PriceCents, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert showtime: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return nil
}

// GetByID returns the showtime joined with its movie title.
func (r *ShowtimeRepo) GetByID(ctx context.Context, id uint64) (*model.Showtime, error) {
	q := `SELECT ` + showtimeColumns + ` FROM showtimes s JOIN movies m ON m.id = s.movie_id WHERE s.id = ?`
	return scanShowtime(r.db.QueryRowContext(ctx, q, id))
}

// GetByIDTx is GetByID inside the caller's transaction.
func (r *ShowtimeRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Showtime, error) {
	q := `SELECT ` + showtimeColumns + ` FROM showtimes s JOIN movies m ON m.id = s.movie_id WHERE s.id = ?`
	return scanShowtime(tx.QueryRowContext(ctx, q, id))
}

// ReserveTx takes n seats from the showtime in one conditional UPDATE. When
// no row matches it distinguishes a missing showtime (ErrShowtimeNotFound)
// from a full one (ErrInsufficientSeats); remaining is the count observed
// in either case.
func (r *ShowtimeRepo) ReserveTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, n int) (int, error) {
	if n < 1 {
		return 0, ErrInvalidSeatCount
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE showtimes SET remaining_seats = remaining_seats - ? WHERE id = ? AND remaining_seats >= ?`,
		n, showtimeID, n)
	if err != nil {
		return 0, fmt.Errorf("reserve seats: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	remaining, err := r.remainingTx(ctx, tx, showtimeID)
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return remaining, ErrInsufficientSeats
	}
	return remaining, nil
}

// ReleaseTx returns n seats to the showtime, never exceeding capacity.
func (r *ShowtimeRepo) ReleaseTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, n int) (int, error) {
	if n < 1 {
		return 0, ErrInvalidSeatCount
	}
	// MySQL reports zero affected rows when the count is already at
	// capacity, so existence is checked by the read that follows.
	if _, err := tx.ExecContext(ctx,
		`UPDATE showtimes
		    SET remaining_seats = CASE WHEN remaining_seats + ? > capacity THEN capacity ELSE remaining_seats + ? END
		  WHERE id = ?`,
		n, n, showtimeID); err != nil {
		return 0, fmt.Errorf("release seats: %w", err)
	}
	return r.remainingTx(ctx, tx, showtimeID)
}

// Reserve is ReserveTx in its own transaction.
func (r *ShowtimeRepo) Reserve(ctx context.Context, showtimeID uint64, n int) (int, error) {
	return r.inTx(ctx, func(tx *sql.Tx) (int, error) { return r.ReserveTx(ctx, tx, showtimeID, n) })
}

// Release is ReleaseTx in its own transaction.
func (r *ShowtimeRepo) Release(ctx context.Context, showtimeID uint64, n int) (int, error) {
	return r.inTx(ctx, func(tx *sql.Tx) (int, error) { return r.ReleaseTx(ctx, tx, showtimeID, n) })
}

// Delete removes a showtime that no booking references.
func (r *ShowtimeRepo) Delete(ctx context.Context, id uint64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var refs int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings WHERE showtime_id = ?`, id).Scan(&refs); err != nil {
		return err
	}
	if refs > 0 {
		return ErrConflict
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM showtimes WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrShowtimeNotFound
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (r *ShowtimeRepo) remainingTx(ctx context.Context, tx *sql.Tx, showtimeID uint64) (int, error) {
	var remaining int
	err := tx.QueryRowContext(ctx, `SELECT remaining_seats FROM showtimes WHERE id = ?`, showtimeID).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrShowtimeNotFound
	}
	return remaining, err
}

func (r *ShowtimeRepo) inTx(ctx context.Context, fn func(tx *sql.Tx) (int, error)) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	n, err := fn(tx)
	if err != nil {
		return n, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return n, nil
}
