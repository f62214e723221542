package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/service"
)

// CatalogHandler serves movies and showtimes, public reads and admin writes.
type CatalogHandler struct {
	Catalog *service.CatalogService
}

func NewCatalogHandler(c *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{Catalog: c}
}

// ListMovies: GET /v1/movies
func (h *CatalogHandler) ListMovies(c echo.Context) error {
	movies, err := h.Catalog.ListMovies(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"movies": movies})
}

// SearchShowtimes: GET /v1/showtimes?movie_id=&title=&cinema=&date=&page=&page_size=
func (h *CatalogHandler) SearchShowtimes(c echo.Context) error {
	movieID, _ := strconv.ParseUint(c.QueryParam("movie_id"), 10, 64)
	page, err := h.Catalog.SearchShowtimes(c.Request().Context(), service.ShowtimeQuery{
		MovieID:  movieID,
		Title:    c.QueryParam("title"),
		Cinema:   c.QueryParam("cinema"),
		Date:     c.QueryParam("date"),
		Page:     queryInt(c, "page"),
		PageSize: queryInt(c, "page_size"),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

// GetShowtime: GET /v1/showtimes/:id returns the showtime with its live seat count.
func (h *CatalogHandler) GetShowtime(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "id", "must be a positive integer")
	}
	st, err := h.Catalog.GetShowtime(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

// CreateMovie: POST /v1/admin/movies
func (h *CatalogHandler) CreateMovie(c echo.Context) error {
	var req service.CreateMovieRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "invalid body"})
	}
	m, err := h.Catalog.CreateMovie(c.Request().Context(), req, actorFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, m)
}

// CreateShowtime: POST /v1/admin/showtimes
func (h *CatalogHandler) CreateShowtime(c echo.Context) error {
	var req service.CreateShowtimeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "invalid body"})
	}
	st, err := h.Catalog.CreateShowtime(c.Request().Context(), req, actorFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, st)
}

// DeleteShowtime: DELETE /v1/admin/showtimes/:id
func (h *CatalogHandler) DeleteShowtime(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "id", "must be a positive integer")
	}
	if err := h.Catalog.DeleteShowtime(c.Request().Context(), id, actorFrom(c)); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
