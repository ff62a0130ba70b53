package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trailhub/trailhub-api/internal/service"
)

// JoinHandler exposes the join-request workflow: members request and
// cancel, organizers review, approve and check participants in.
type JoinHandler struct {
	Join *service.JoinService
}

// NewJoinHandler wires the join-request endpoints to the join service.
func NewJoinHandler(join *service.JoinService) *JoinHandler {
	if join == nil {
		panic("nil service passed to NewJoinHandler")
	}
	return &JoinHandler{Join: join}
}

type joinReq struct {
	Message string `json:"message"`
}

type reviewReq struct {
	Note string `json:"note"`
}

// Request handles POST /v1/events/:id/join-requests.
func (h *JoinHandler) Request(c echo.Context) error {
	var req joinReq
	// An empty body is a request without a message.
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return errorJSON(c, http.StatusBadRequest, "invalid_input", "invalid request body")
		}
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	jr, err := h.Join.RequestToJoin(ctx, c.Param("id"), actorFrom(c), req.Message)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, jr)
}

// Approve handles POST /v1/join-requests/:id/approve.  On success the new
// participant is returned; a full event answers 409 capacity_exceeded.
func (h *JoinHandler) Approve(c echo.Context) error {
	note, err := bindNote(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_input", "invalid request body")
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	p, err := h.Join.Approve(ctx, c.Param("id"), actorFrom(c), note)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

// Reject handles POST /v1/join-requests/:id/reject.
func (h *JoinHandler) Reject(c echo.Context) error {
	note, err := bindNote(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_input", "invalid request body")
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	jr, err := h.Join.Reject(ctx, c.Param("id"), actorFrom(c), note)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, jr)
}

// Cancel handles POST /v1/join-requests/:id/cancel.
func (h *JoinHandler) Cancel(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	jr, err := h.Join.Cancel(ctx, c.Param("id"), actorFrom(c))
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, jr)
}

// ListForEvent handles GET /v1/events/:id/join-requests?status=pending.
func (h *JoinHandler) ListForEvent(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	status := strings.ToLower(strings.TrimSpace(c.QueryParam("status")))
	items, err := h.Join.ListForEvent(ctx, c.Param("id"), actorFrom(c), status)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": items})
}

// ListMine handles GET /v1/my/join-requests.
func (h *JoinHandler) ListMine(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	items, err := h.Join.ListMine(ctx, actorFrom(c))
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": items})
}

// ListParticipants handles GET /v1/events/:id/participants.
func (h *JoinHandler) ListParticipants(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	items, err := h.Join.ListParticipants(ctx, c.Param("id"), actorFrom(c))
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": items})
}

// CheckIn handles POST /v1/events/:id/participants/:pid/check-in.
func (h *JoinHandler) CheckIn(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	p, err := h.Join.CheckIn(ctx, c.Param("id"), c.Param("pid"), actorFrom(c))
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func bindNote(c echo.Context) (string, error) {
	var req reviewReq
	if c.Request().ContentLength == 0 {
		return "", nil
	}
	if err := c.Bind(&req); err != nil {
		return "", err
	}
	return req.Note, nil
}
