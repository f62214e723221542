package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ResponseInfo is the finalized view of one request, handed to observers
// after the handler and the echo error handler have run.
type ResponseInfo struct {
	RequestID string
	Method    string
	Path      string
	Route     string
	IP        string
	UserAgent string
	Status    int
	Duration  time.Duration
	Body      []byte // first maxBody bytes of the response
	UserID    uint64 // 0 for guests
	Role      string
	Err       error
}

// SetError records the cause behind a response the handler already rendered,
// so observers can log it.
func SetError(c echo.Context, err error) {
	c.Set(ctxError, err)
}

// Observer receives a ResponseInfo. Observers must not block.
type Observer func(ResponseInfo)

// Observe captures the response status and the leading maxBody bytes of the
// payload and calls every observer once the response is complete. Handler
// errors are rendered through echo's error handler first so the observed
// status is the one the client got.
func Observe(maxBody int, observers ...Observer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: int64(maxBody)}
			c.Response().Writer = cw

			err := next(c)
			if err != nil {
				c.Error(err)
			} else if cause, ok := c.Get(ctxError).(error); ok {
				err = cause
			}

			info := ResponseInfo{
				RequestID: RequestIDFrom(c),
				Method:    c.Request().Method,
				Path:      c.Request().URL.Path,
				Route:     c.Path(),
				IP:        c.RealIP(),
				UserAgent: c.Request().UserAgent(),
				Status:    c.Response().Status,
				Duration:  time.Since(start),
				Body:      cw.buf.Bytes(),
				Role:      Role(c),
				Err:       err,
			}
			info.UserID, _ = UserID(c)
			var he *echo.HTTPError
			if errors.As(err, &he) && info.Status < he.Code {
				info.Status = he.Code
			}
			for _, o := range observers {
				o(info)
			}
			return nil
		}
	}
}

// RequestLog is an Observer writing one structured line per request.
func RequestLog(log *zap.Logger) Observer {
	return func(r ResponseInfo) {
		route := r.Route
		if route == "" {
			route = "unknown"
		}
		fields := []zap.Field{
			zap.String("request_id", r.RequestID),
			zap.String("method", r.Method),
			zap.String("path", r.Path),
			zap.String("route", route),
			zap.Int("status", r.Status),
			zap.Int64("duration_ms", r.Duration.Milliseconds()),
			zap.String("ip", r.IP),
		}
		if r.UserID != 0 {
			fields = append(fields, zap.Uint64("user_id", r.UserID))
		}
		switch {
		case r.Status >= 500:
			log.Error("request failed", append(fields, zap.Error(r.Err))...)
		case r.Status >= 400:
			log.Warn("request rejected", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}
