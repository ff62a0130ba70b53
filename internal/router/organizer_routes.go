package router

import (
	"github.com/labstack/echo/v4"

	"github.com/trailhub/trailhub-api/internal/handler"
	"github.com/trailhub/trailhub-api/internal/middleware"
	"github.com/trailhub/trailhub-api/internal/model"
)

// RegisterOrganizer registers event management and join-request review
// under /v1.  Routes require ORGANIZER or ADMIN; ownership of the event is
// checked by the services.
func RegisterOrganizer(e *echo.Echo, ev *handler.EventHandler, j *handler.JoinHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	mw := []echo.MiddlewareFunc{
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleOrganizer, model.RoleAdmin),
		limiter,
	}
	g := e.Group("/v1")

	// ---- Events ----
	g.POST("/events", ev.Create, mw...)
	g.PATCH("/events/:id", ev.Update, mw...)
	g.PUT("/events/:id/capacity", ev.UpdateCapacity, mw...)
	g.POST("/events/:id/publish", ev.Publish, mw...)
	g.POST("/events/:id/cancel", ev.Cancel, mw...)
	g.GET("/organizer/events", ev.ListMine, mw...)

	// ---- Join requests ----
	g.GET("/events/:id/join-requests", j.ListForEvent, mw...)
	g.POST("/join-requests/:id/approve", j.Approve, mw...)
	g.POST("/join-requests/:id/reject", j.Reject, mw...)

	// ---- Participants ----
	g.GET("/events/:id/participants", j.ListParticipants, mw...)
	g.POST("/events/:id/participants/:pid/check-in", j.CheckIn, mw...)
}

// RegisterAdmin registers moderation endpoints under /v1/admin.
func RegisterAdmin(e *echo.Echo, ev *handler.EventHandler, jwtSecret string) {
	mw := []echo.MiddlewareFunc{middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleAdmin)}
	g := e.Group("/v1/admin")
	g.POST("/events/:id/suspend", ev.Suspend, mw...)
	g.POST("/events/:id/reinstate", ev.Reinstate, mw...)
}
