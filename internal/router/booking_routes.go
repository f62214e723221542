package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/config"
	"github.com/iliyamo/cinema-booking/internal/handler"
	"github.com/iliyamo/cinema-booking/internal/middleware"
)

// RegisterBookings registers checkout and booking lookup routes. Checkout
// accepts guests, so identity is optional there and the rate limiter keys
// on IP for anonymous callers.
func RegisterBookings(e *echo.Echo, h *handler.BookingHandler, cfg config.Config, rdb *redis.Client, log *zap.Logger) {
	g := e.Group("/v1/bookings")

	g.POST("", h.Create,
		middleware.OptionalJWT(cfg.JWTSecret),
		middleware.RateLimit(cfg.RateLimit, rdb, log),
	)
	g.GET("/reference/:ref", h.GetByReference)
	g.GET("/reference/:ref/qr", h.QRCode)

	auth := middleware.JWTAuth(cfg.JWTSecret)
	g.GET("/user", h.ListMine, auth)
	g.PUT("/:id/cancel", h.Cancel, auth)
}
