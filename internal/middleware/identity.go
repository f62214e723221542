package middleware

// identity.go holds the context keys written by the JWT middlewares and the
// accessors the rest of the HTTP layer reads them through.

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	ctxUserID    = "user_id"
	ctxRole      = "role"
	ctxRequestID = "request_id"
	ctxError     = "handler_error"
)

// UserID returns the authenticated user's id, or false for a guest.
func UserID(c echo.Context) (uint64, bool) {
	switch v := c.Get(ctxUserID).(type) {
	case uint64:
		return v, v != 0
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		return n, err == nil && n != 0
	}
	return 0, false
}

// Role returns the authenticated user's role, or "" for a guest.
func Role(c echo.Context) string {
	r, _ := c.Get(ctxRole).(string)
	return r
}

// userKey renders the caller for rate-limit keys and logs.
func userKey(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "guest"
}
