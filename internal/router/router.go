// Package router registers the HTTP routes on an echo instance.
package router

import (
	"database/sql"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/handler"
	"github.com/iliyamo/cinema-booking/internal/middleware"
)

// RegisterRoutes registers the health and metrics endpoints, which bypass auth.
func RegisterRoutes(e *echo.Echo, db *sql.DB, metrics http.Handler) {
	e.GET("/healthz", handler.Health(db))
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}
}

// RegisterAuth registers session endpoints under /v1/auth plus /v1/me.
// Logout parses the bearer itself so a client holding only a refresh token
// can still end its session.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/refresh-access", a.RefreshAccess)
	g.POST("/logout", a.Logout)
	e.POST("/v1/logout", a.Logout)

	e.GET("/v1/me", a.Me, middleware.JWTAuth(jwtSecret))
}

// RegisterPublic registers the browse endpoints guests can call.
func RegisterPublic(e *echo.Echo, h *handler.CatalogHandler) {
	e.GET("/v1/movies", h.ListMovies)
	e.GET("/v1/showtimes", h.SearchShowtimes)
	e.GET("/v1/showtimes/:id", h.GetShowtime)
}
