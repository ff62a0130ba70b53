package router // package router defines how HTTP routes are registered for the API

import (
	"database/sql"

	"github.com/labstack/echo/v4"

	"github.com/trailhub/trailhub-api/internal/handler"
	"github.com/trailhub/trailhub-api/internal/middleware"
)

// RegisterRoutes registers the unauthenticated probes: /healthz for
// liveness and /readyz, which also pings the database.
func RegisterRoutes(e *echo.Echo, db *sql.DB) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
}

// RegisterAuth registers the session endpoints under /v1/auth and the
// protected /v1/me.  limiter guards login and registration against
// brute force.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/auth", limiter)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// Rotates the refresh token.
	g.POST("/refresh", a.Refresh)
	// Issues a new access token and keeps the refresh token.
	g.POST("/refresh-access", a.RefreshAccess)
	// Logout works with either a refresh token in the body or a bearer
	// token, so it sits outside the JWT group.
	g.POST("/logout", a.Logout)

	e.GET("/v1/me", a.Me, middleware.JWTAuth(jwtSecret), anyRole())
}

// Routes under /v1 take their middleware per route, never on the group, so
// unknown /v1 paths answer 404 rather than running auth first.

// RegisterPublic registers the event browse endpoints.  A bearer token is
// optional; when present it lets organizers see their unpublished events.
// Anonymous responses go through the response cache.
func RegisterPublic(e *echo.Echo, h *handler.EventHandler, jwtSecret string, limiter, cache echo.MiddlewareFunc) {
	mw := []echo.MiddlewareFunc{middleware.OptionalJWTAuth(jwtSecret), limiter, cache}
	g := e.Group("/v1")
	g.GET("/events", h.Search, mw...)
	g.GET("/events/:id", h.Get, mw...)
}
