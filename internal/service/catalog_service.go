package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/cinema-booking/internal/activity"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/repository"
)

// CatalogService manages movies and showtimes.
type CatalogService struct {
	movies    *repository.MovieRepo
	showtimes *repository.ShowtimeRepo
	activity  *activity.Logger
	now       func() time.Time
}

func NewCatalogService(movies *repository.MovieRepo, showtimes *repository.ShowtimeRepo, act *activity.Logger) *CatalogService {
	return &CatalogService{movies: movies, showtimes: showtimes, activity: act, now: time.Now}
}

type CreateMovieRequest struct {
	Title       string `json:"title" validate:"required,max=255"`
	DurationMin int    `json:"duration_min" validate:"min=0,max=1000"`
	Rating      string `json:"rating" validate:"max=16"`
}

type CreateShowtimeRequest struct {
	MovieID    uint64    `json:"movie_id" validate:"required"`
	Cinema     string    `json:"cinema" validate:"required,max=128"`
	Hall       string    `json:"hall" validate:"required,max=64"`
	StartsAt   time.Time `json:"starts_at" validate:"required"`
	Capacity   int       `json:"capacity" validate:"min=1,max=10000"`
	ScreenType string    `json:"screen_type" validate:"omitempty,max=16"`
	PriceCents int64     `json:"price_cents" validate:"min=0"`
}

// ShowtimeQuery is the public listing filter. Date is YYYY-MM-DD (UTC).
type ShowtimeQuery struct {
	MovieID  uint64
	Title    string
	Cinema   string
	Date     string
	Page     int
	PageSize int
}

type ShowtimePage struct {
	Showtimes  []model.Showtime `json:"showtimes"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalPages int              `json:"total_pages"`
}

func (c *CatalogService) requireAdmin(actor Actor) error {
	if !actor.IsAdmin() {
		return newError(KindForbidden, "admin role required", nil)
	}
	return nil
}

func (c *CatalogService) ListMovies(ctx context.Context) ([]model.Movie, error) {
	out, err := c.movies.List(ctx)
	if err != nil {
		return nil, persistence("list movies", err)
	}
	return out, nil
}

func (c *CatalogService) CreateMovie(ctx context.Context, req CreateMovieRequest, actor Actor) (*model.Movie, error) {
	if err := c.requireAdmin(actor); err != nil {
		return nil, err
	}
	req.Title = strings.TrimSpace(req.Title)
	if err := validate.Struct(req); err != nil {
		return nil, invalid(fieldErrors(err))
	}
	m := &model.Movie{Title: req.Title, DurationMin: req.DurationMin, Rating: req.Rating, CreatedAt: c.now().UTC()}
	if err := c.movies.Create(ctx, m); err != nil {
		return nil, persistence("create movie", err)
	}
	c.activity.LogCRUD(activity.ActionMovieCreate, actor.activity(), "movie", strconv.FormatUint(m.ID, 10), nil, m)
	return m, nil
}

func (c *CatalogService) GetShowtime(ctx context.Context, id uint64) (*model.Showtime, error) {
	st, err := c.showtimes.GetByID(ctx, id)
	if errors.Is(err, repository.ErrShowtimeNotFound) {
		return nil, newError(KindNotFound, "showtime not found", nil)
	}
	if err != nil {
		return nil, persistence("load showtime", err)
	}
	return st, nil
}

// SearchShowtimes lists upcoming showtimes. Page size defaults to 20, max 100.
func (c *CatalogService) SearchShowtimes(ctx context.Context, q ShowtimeQuery) (ShowtimePage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}
	rq := repository.ShowtimeSearchQuery{
		MovieID:  q.MovieID,
		Title:    strings.TrimSpace(q.Title),
		Cinema:   strings.TrimSpace(q.Cinema),
		Page:     q.Page,
		PageSize: q.PageSize,
	}
	if d := strings.TrimSpace(q.Date); d != "" {
		day, err := time.ParseInLocation("2006-01-02", d, time.UTC)
		if err != nil {
			return ShowtimePage{}, invalid([]FieldError{{Field: "date", Message: "must be YYYY-MM-DD"}})
		}
		rq.From, rq.To = day, day.AddDate(0, 0, 1)
	}
	items, total, err := c.showtimes.SearchUpcoming(ctx, rq, c.now().UTC())
	if err != nil {
		return ShowtimePage{}, persistence("search showtimes", err)
	}
	return ShowtimePage{
		Showtimes:  items,
		Total:      total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: (total + q.PageSize - 1) / q.PageSize,
	}, nil
}

func (c *CatalogService) CreateShowtime(ctx context.Context, req CreateShowtimeRequest, actor Actor) (*model.Showtime, error) {
	if err := c.requireAdmin(actor); err != nil {
		return nil, err
	}
	req.Cinema, req.Hall = strings.TrimSpace(req.Cinema), strings.TrimSpace(req.Hall)
	var fields []FieldError
	if err := validate.Struct(req); err != nil {
		fields = fieldErrors(err)
	}
	if !req.StartsAt.IsZero() && !req.StartsAt.After(c.now()) {
		fields = append(fields, FieldError{Field: "starts_at", Message: "must be in the future"})
	}
	if len(fields) > 0 {
		return nil, invalid(fields)
	}

	movie, err := c.movies.GetByID(ctx, req.MovieID)
	if errors.Is(err, repository.ErrMovieNotFound) {
		return nil, newError(KindNotFound, "movie not found", nil)
	}
	if err != nil {
		return nil, persistence("load movie", err)
	}
	if req.ScreenType == "" {
		req.ScreenType = "2D"
	}
	st := &model.Showtime{
		MovieID:    movie.ID,
		MovieTitle: movie.Title,
		Cinema:     req.Cinema,
		Hall:       req.Hall,
		StartsAt:   req.StartsAt.UTC(),
		Capacity:   req.Capacity,
		ScreenType: req.ScreenType,
		PriceCents: req.PriceCents,
		CreatedAt:  c.now().UTC(),
	}
	if err := c.showtimes.Create(ctx, st); err != nil {
		return nil, persistence("create showtime", err)
	}
	c.activity.LogCRUD(activity.ActionShowtimeCreate, actor.activity(), "showtime", strconv.FormatUint(st.ID, 10), nil, st)
	return st, nil
}

// DeleteShowtime removes a showtime no booking references.
func (c *CatalogService) DeleteShowtime(ctx context.Context, id uint64, actor Actor) error {
	if err := c.requireAdmin(actor); err != nil {
		return err
	}
	err := c.showtimes.Delete(ctx, id)
	switch {
	case errors.Is(err, repository.ErrShowtimeNotFound):
		return newError(KindNotFound, "showtime not found", nil)
	case errors.Is(err, repository.ErrConflict):
		return newError(KindConflict, "showtime still has bookings", nil)
	case err != nil:
		return persistence("delete showtime", err)
	}
	c.activity.LogCRUD(activity.ActionShowtimeDelete, actor.activity(), "showtime", strconv.FormatUint(id, 10), nil, nil)
	return nil
}
