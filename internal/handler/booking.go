package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/service"
	"github.com/iliyamo/cinema-booking/internal/utils"
)

// HeaderIdempotencyKey lets a client retry POST /bookings safely.
const HeaderIdempotencyKey = "Idempotency-Key"

// BookingHandler serves the customer and guest booking endpoints.
type BookingHandler struct {
	Bookings *service.BookingService
	Queries  *service.QueryService
}

func NewBookingHandler(b *service.BookingService, q *service.QueryService) *BookingHandler {
	return &BookingHandler{Bookings: b, Queries: q}
}

// Create: POST /v1/bookings (guest or authenticated).
func (h *BookingHandler) Create(c echo.Context) error {
	var req service.CreateBookingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "invalid body"})
	}
	req.IdempotencyKey = c.Request().Header.Get(HeaderIdempotencyKey)

	b, err := h.Bookings.Create(c.Request().Context(), req, actorFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	c.Response().Header().Set(echo.HeaderLocation, "/v1/bookings/reference/"+b.Reference)
	return c.JSON(http.StatusCreated, b)
}

// GetByReference: GET /v1/bookings/reference/:ref
func (h *BookingHandler) GetByReference(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	d, err := h.Queries.GetByReference(ctx, c.Param("ref"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

// QRCode: GET /v1/bookings/reference/:ref/qr?size=256 renders a PNG ticket code.
func (h *BookingHandler) QRCode(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	d, err := h.Queries.GetByReference(ctx, c.Param("ref"))
	if err != nil {
		return respondError(c, err)
	}

	size := queryInt(c, "size")
	if size < 128 || size > 1024 {
		size = 256
	}
	content := fmt.Sprintf("BOOKING:%s|SHOWTIME:%d|TICKETS:%d|STATUS:%s", d.Reference, d.ShowtimeID, d.Tickets, d.Status)
	png, err := utils.GenerateQRCode(content, size)
	if err != nil {
		return respondError(c, err)
	}
	c.Response().Header().Set("Content-Disposition", "inline; filename=\""+d.Reference+".png\"")
	c.Response().Header().Set("Content-Length", strconv.Itoa(len(png)))
	return c.Blob(http.StatusOK, "image/png", png)
}

// ListMine: GET /v1/bookings/user
func (h *BookingHandler) ListMine(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	items, err := h.Queries.ListForUser(ctx, actorFrom(c).UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": items, "total": len(items)})
}

// Cancel: PUT /v1/bookings/:id/cancel (owner or admin).
func (h *BookingHandler) Cancel(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "id", "must be a positive integer")
	}
	b, err := h.Bookings.Cancel(c.Request().Context(), id, actorFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}
