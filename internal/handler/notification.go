package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/trailhub/trailhub-api/internal/service"
)

// NotificationHandler serves the caller's in-app inbox.
type NotificationHandler struct {
	Notifications *service.NotificationService
}

// NewNotificationHandler wires the inbox endpoints to n.
func NewNotificationHandler(n *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{Notifications: n}
}

// List handles GET /v1/notifications?unread=true&limit=50.
func (h *NotificationHandler) List(c echo.Context) error {
	unread, _ := strconv.ParseBool(c.QueryParam("unread"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	ctx, cancel := requestContext(c)
	defer cancel()
	items, err := h.Notifications.List(ctx, actorFrom(c), unread, limit)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": items})
}

// MarkRead handles POST /v1/notifications/:id/read.
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.Notifications.MarkRead(ctx, actorFrom(c), c.Param("id")); err != nil {
		return writeServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
