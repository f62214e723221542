package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/cinema-booking/internal/model"
)

var ErrMovieNotFound = errors.New("movie not found")

// MovieRepo encapsulates queries on the movies table.
type MovieRepo struct {
	db *sql.DB
}

func NewMovieRepo(db *sql.DB) *MovieRepo { return &MovieRepo{db: db} }

// Create inserts a movie and fills in its ID.
func (r *MovieRepo) Create(ctx context.Context, m *model.Movie) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO movies (title, duration_min, rating, created_at) VALUES (?, ?, ?, ?)`,
		m.Title, m.DurationMin, m.Rating, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert movie: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = uint64(id)
	return nil
}

func (r *MovieRepo) GetByID(ctx context.Context, id uint64) (*model.Movie, error) {
	var m model.Movie
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, duration_min, rating, created_at FROM movies WHERE id = ?`, id).
		Scan(&m.ID, &m.Title, &m.DurationMin, &m.Rating, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMovieNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// List returns every movie ordered by title.
func (r *MovieRepo) List(ctx context.Context) ([]model.Movie, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, title, duration_min, rating, created_at FROM movies ORDER BY title, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Movie{}
	for rows.Next() {
		var m model.Movie
		if err := rows.Scan(&m.ID, &m.Title, &m.DurationMin, &m.Rating, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
