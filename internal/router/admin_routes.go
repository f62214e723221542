package router

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/config"
	"github.com/iliyamo/cinema-booking/internal/handler"
	"github.com/iliyamo/cinema-booking/internal/middleware"
	"github.com/iliyamo/cinema-booking/internal/model"
)

// AdminHandlers groups the handlers mounted under /v1/admin.
type AdminHandlers struct {
	Bookings *handler.AdminBookingHandler
	Catalog  *handler.CatalogHandler
	Logs     *handler.LogHandler
}

// RegisterAdmin registers ADMIN-only endpoints under /v1/admin. Only the
// log statistics are served through the response cache, and clearing the
// logs invalidates it.
func RegisterAdmin(e *echo.Echo, h AdminHandlers, cfg config.Config, rdb *redis.Client, log *zap.Logger) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(cfg.JWTSecret),
		middleware.RequireRole(model.RoleAdmin),
	)

	// ---- Bookings ----
	g.GET("/bookings", h.Bookings.List)
	g.PUT("/bookings/:id/status", h.Bookings.UpdateStatus)
	g.DELETE("/bookings/:id", h.Bookings.Delete)

	// ---- Catalog ----
	g.POST("/movies", h.Catalog.CreateMovie)
	g.POST("/showtimes", h.Catalog.CreateShowtime)
	g.DELETE("/showtimes/:id", h.Catalog.DeleteShowtime)

	// ---- Activity logs ----
	g.GET("/logs", h.Logs.List)
	const statsRoute = "/v1/admin/logs/stats"
	h.Logs.OnClear = func(ctx context.Context) {
		if _, err := middleware.InvalidateCache(ctx, cfg.Cache, rdb, statsRoute); err != nil {
			log.Warn("stats cache not invalidated", zap.Error(err))
		}
	}
	g.GET("/logs/stats", h.Logs.Stats, middleware.ResponseCache(cfg.Cache, rdb, log))
	g.GET("/logs/export", h.Logs.Export)
	g.DELETE("/logs/clear", h.Logs.Clear)
}
