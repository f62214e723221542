package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/service"
)

// AdminBookingHandler serves /v1/admin/bookings.
type AdminBookingHandler struct {
	Bookings *service.BookingService
	Queries  *service.QueryService
}

func NewAdminBookingHandler(b *service.BookingService, q *service.QueryService) *AdminBookingHandler {
	return &AdminBookingHandler{Bookings: b, Queries: q}
}

// List: GET /v1/admin/bookings?status=&date=&page=&page_size=
func (h *AdminBookingHandler) List(c echo.Context) error {
	page, err := h.Queries.ListAll(c.Request().Context(),
		service.ListFilter{Status: c.QueryParam("status"), Date: c.QueryParam("date")},
		queryInt(c, "page"), queryInt(c, "page_size"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

type statusReq struct {
	Status string `json:"status"`
}

// UpdateStatus: PUT /v1/admin/bookings/:id/status
func (h *AdminBookingHandler) UpdateStatus(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "id", "must be a positive integer")
	}
	var req statusReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "invalid body"})
	}
	b, err := h.Bookings.UpdateStatus(c.Request().Context(), id, req.Status, actorFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// Delete: DELETE /v1/admin/bookings/:id purges a cancelled booking.
func (h *AdminBookingHandler) Delete(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "id", "must be a positive integer")
	}
	if err := h.Bookings.Purge(c.Request().Context(), id, actorFrom(c)); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
