package handler // handler defines http handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trailhub/trailhub-api/internal/middleware"
	"github.com/trailhub/trailhub-api/internal/service"
)

// requestTimeout bounds the database work done for one request.
const requestTimeout = 5 * time.Second

// actorFrom builds the service caller from the JWT claims placed in the
// context by middleware.JWTAuth or middleware.OptionalJWTAuth.
func actorFrom(c echo.Context) service.Actor {
	return service.Actor{UserID: middleware.UserID(c), Role: middleware.Role(c)}
}

func requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

func errorJSON(c echo.Context, status int, code, message string) error {
	return c.JSON(status, echo.Map{"error": code, "message": message})
}

// serviceErrorStatus maps service sentinels to an HTTP status and a stable
// error code.  Unknown errors map to 500.
func serviceErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, service.ErrRequestFinalized):
		return http.StatusConflict, "request_finalized"
	case errors.Is(err, service.ErrEventNotPublishable):
		return http.StatusConflict, "event_not_publishable"
	case errors.Is(err, service.ErrCapacityExceeded):
		return http.StatusConflict, "capacity_exceeded"
	case errors.Is(err, service.ErrAlreadyRequested):
		return http.StatusConflict, "already_requested"
	case errors.Is(err, service.ErrAlreadyCheckedIn):
		return http.StatusConflict, "already_checked_in"
	case errors.Is(err, service.ErrCapacityBelowParticipants):
		return http.StatusConflict, "capacity_below_participants"
	case errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, service.ErrEventClosed):
		return http.StatusConflict, "event_closed"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeServiceError renders err in the JSON error envelope.  Internal
// errors are logged and replaced by a generic message.
func writeServiceError(c echo.Context, err error) error {
	status, code := serviceErrorStatus(err)
	if status == http.StatusInternalServerError {
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
		return errorJSON(c, status, code, "internal server error")
	}
	return errorJSON(c, status, code, err.Error())
}

// parseTimeParam reads an optional RFC 3339 query parameter.
func parseTimeParam(c echo.Context, name string) (*time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
