package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/activity"
	"github.com/iliyamo/cinema-booking/internal/middleware"
	"github.com/iliyamo/cinema-booking/internal/service"
)

type errorBody struct {
	Error  string               `json:"error"`
	Fields []service.FieldError `json:"fields,omitempty"`
}

var kindStatus = map[service.Kind]int{
	service.KindInvalidRequest:       http.StatusBadRequest,
	service.KindUnauthorized:         http.StatusUnauthorized,
	service.KindForbidden:            http.StatusForbidden,
	service.KindNotFound:             http.StatusNotFound,
	service.KindInsufficientCapacity: http.StatusConflict,
	service.KindConflict:             http.StatusConflict,
	service.KindReferenceCollision:   http.StatusInternalServerError,
	service.KindPersistence:          http.StatusInternalServerError,
}

// respondError renders err as {"error","fields"}. Server-side failures get
// a generic message; the cause stays in the logs.
func respondError(c echo.Context, err error) error {
	if errors.Is(err, activity.ErrInvalidFormat) || errors.Is(err, activity.ErrInvalidDays) {
		return c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
	}
	var se *service.Error
	if !errors.As(err, &se) {
		middleware.SetError(c, err)
		return c.JSON(http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
	status, ok := kindStatus[se.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		middleware.SetError(c, err)
		msg := "internal error"
		if se.Kind == service.KindReferenceCollision {
			msg = se.Message
		}
		return c.JSON(status, errorBody{Error: msg})
	}
	return c.JSON(status, errorBody{Error: se.Message, Fields: se.Fields})
}

func badRequest(c echo.Context, field, msg string) error {
	return c.JSON(http.StatusBadRequest, errorBody{
		Error:  strings.TrimSpace(field + " " + msg),
		Fields: []service.FieldError{{Field: field, Message: msg}},
	})
}

// pathID parses a positive integer path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

func queryInt(c echo.Context, name string) int {
	n, _ := strconv.Atoi(c.QueryParam(name))
	return n
}

// queryTime accepts RFC3339 or YYYY-MM-DD (UTC midnight).
func queryTime(c echo.Context, name string) (time.Time, error) {
	v := strings.TrimSpace(c.QueryParam(name))
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", v, time.UTC)
}

func actorFrom(c echo.Context) service.Actor {
	id, _ := middleware.UserID(c)
	return service.Actor{UserID: id, Role: middleware.Role(c)}
}
