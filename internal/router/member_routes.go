package router

import (
	"github.com/labstack/echo/v4"

	"github.com/trailhub/trailhub-api/internal/handler"
	"github.com/trailhub/trailhub-api/internal/middleware"
	"github.com/trailhub/trailhub-api/internal/model"
)

func anyRole() echo.MiddlewareFunc {
	return middleware.RequireRole(model.RoleMember, model.RoleOrganizer, model.RoleAdmin)
}

// RegisterMember registers the endpoints any signed-in user may call:
// requesting to join, cancelling their own requests and reading their
// notifications.
func RegisterMember(e *echo.Echo, j *handler.JoinHandler, n *handler.NotificationHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	mw := []echo.MiddlewareFunc{middleware.JWTAuth(jwtSecret), anyRole(), limiter}
	g := e.Group("/v1")
	g.POST("/events/:id/join-requests", j.Request, mw...)
	g.GET("/my/join-requests", j.ListMine, mw...)
	g.POST("/join-requests/:id/cancel", j.Cancel, mw...)

	g.GET("/notifications", n.List, mw...)
	g.POST("/notifications/:id/read", n.MarkRead, mw...)
}
