package repository

import (
	"context"
	"strings"
	"time"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// ShowtimeSearchQuery defines filters and pagination for the public listing.
// Title and Cinema are case-insensitive substrings; From/To bound starts_at
// (To exclusive). A zero From means "not yet started".
type ShowtimeSearchQuery struct {
	MovieID  uint64
	Title    string
	Cinema   string
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
}

// SearchUpcoming lists showtimes ordered by start time.
func (r *ShowtimeRepo) SearchUpcoming(ctx context.Context, q ShowtimeSearchQuery, now time.Time) ([]model.Showtime, int, error) {
	where := []string{}
	args := []any{}

	from := q.From
	if from.IsZero() || from.Before(now) {
		from = now
	}
	where = append(where, "s.starts_at > ?")
	args = append(args, from.UTC())
	if !q.To.IsZero() {
		where = append(where, "s.starts_at < ?")
		args = append(args, q.To.UTC())
	}
	if q.MovieID != 0 {
		where = append(where, "s.movie_id = ?")
		args = append(args, q.MovieID)
	}
	if q.Title != "" {
		where = append(where, "LOWER(m.title) LIKE ?")
		args = append(args, "%"+strings.ToLower(q.Title)+"%")
	}
	if q.Cinema != "" {
		where = append(where, "LOWER(s.cinema) LIKE ?")
		args = append(args, "%"+strings.ToLower(q.Cinema)+"%")
	}
	cond := strings.Join(where, " AND ")
	fromSQL := ` FROM showtimes s JOIN movies m ON m.id = s.movie_id WHERE ` + cond

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*)`+fromSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 20
	}
	limit := q.PageSize
	offset := (q.Page - 1) * q.PageSize
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+showtimeColumns+fromSQL+` ORDER BY s.starts_at ASC, s.id ASC LIMIT ? OFFSET ?`,
		append(append([]any{}, args...), limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.Showtime, 0, limit)
	for rows.Next() {
		s, err := scanShowtime(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
