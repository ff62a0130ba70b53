package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trailhub/trailhub-api/internal/model"
	"github.com/trailhub/trailhub-api/internal/repository"
	"github.com/trailhub/trailhub-api/internal/service"
)

// EventHandler serves the public listing plus organizer and admin event
// management.  Authorization beyond the route's role check happens in
// service.EventService.
type EventHandler struct {
	Events *service.EventService
}

// NewEventHandler panics when events is nil.
func NewEventHandler(events *service.EventService) *EventHandler {
	if events == nil {
		panic("nil service passed to NewEventHandler")
	}
	return &EventHandler{Events: events}
}

type eventReq struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Activity    string    `json:"activity"`
	Location    string    `json:"location"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	Capacity    int       `json:"capacity"`
}

type eventPatchReq struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Activity    *string    `json:"activity"`
	Location    *string    `json:"location"`
	StartsAt    *time.Time `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at"`
}

type capacityReq struct {
	Capacity int `json:"capacity"`
}

// eventView adds the derived remaining-places figure to an event.
type eventView struct {
	*model.Event
	Remaining int `json:"remaining"`
}

func viewOf(e *model.Event) eventView { return eventView{Event: e, Remaining: e.Remaining()} }

func viewsOf(es []model.Event) []eventView {
	out := make([]eventView, len(es))
	for i := range es {
		out[i] = viewOf(&es[i])
	}
	return out
}

// Search handles GET /v1/events.  Query parameters: q, activity, location,
// from, to (RFC 3339), page, page_size.
func (h *EventHandler) Search(c echo.Context) error {
	from, err := parseTimeParam(c, "from")
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_input", "from must be an RFC 3339 timestamp")
	}
	to, err := parseTimeParam(c, "to")
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_input", "to must be an RFC 3339 timestamp")
	}
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	if page > repository.MaxSearchPage {
		page = repository.MaxSearchPage
	}
	ps, _ := strconv.Atoi(c.QueryParam("page_size"))
	if ps < 1 {
		ps = 20
	}
	if ps > 100 {
		ps = 100
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	items, total, err := h.Events.Search(ctx, service.SearchParams{
		Text:     c.QueryParam("q"),
		Activity: c.QueryParam("activity"),
		Location: c.QueryParam("location"),
		From:     from,
		To:       to,
		Page:     page,
		PageSize: ps,
	})
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"data":      viewsOf(items),
		"total":     total,
		"page":      page,
		"page_size": ps,
	})
}

// Get handles GET /v1/events/:id.
func (h *EventHandler) Get(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	e, err := h.Events.Get(ctx, c.Param("id"), actorFrom(c))
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, viewOf(e))
}

// Create handles POST /v1/events.  New events start as drafts.
func (h *EventHandler) Create(c echo.Context) error {
	var req eventReq
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_input", "invalid request body")
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	e, err := h.Events.Create(ctx, actorFrom(c), service.EventInput{
		Title:       req.Title,
		Description: req.Description,
		Activity:    model.Activity(req.Activity),
		Location:    req.Location,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		Capacity:    req.Capacity,
	})
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, viewOf(e))
}

// Update handles PATCH /v1/events/:id.
func (h *EventHandler) Update(c echo.Context) error {
	var req eventPatchReq
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_input", "invalid request body")
	}
	patch := service.EventPatch{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
	}
	if req.Activity != nil {
		a := model.Activity(*req.Activity)
		patch.Activity = &a
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	e, err := h.Events.Update(ctx, c.Param("id"), actorFrom(c), patch)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, viewOf(e))
}

// UpdateCapacity handles PUT /v1/events/:id/capacity.
func (h *EventHandler) UpdateCapacity(c echo.Context) error {
	var req capacityReq
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_input", "invalid request body")
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	e, err := h.Events.UpdateCapacity(ctx, c.Param("id"), actorFrom(c), req.Capacity)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, viewOf(e))
}

// Publish handles POST /v1/events/:id/publish.
func (h *EventHandler) Publish(c echo.Context) error { return h.transition(c, h.Events.Publish) }

// Cancel handles POST /v1/events/:id/cancel.
func (h *EventHandler) Cancel(c echo.Context) error { return h.transition(c, h.Events.Cancel) }

// Suspend handles POST /v1/admin/events/:id/suspend.
func (h *EventHandler) Suspend(c echo.Context) error { return h.transition(c, h.Events.Suspend) }

// Reinstate handles POST /v1/admin/events/:id/reinstate.
func (h *EventHandler) Reinstate(c echo.Context) error { return h.transition(c, h.Events.Reinstate) }

type transitionFunc func(ctx context.Context, id string, actor service.Actor) (*model.Event, error)

func (h *EventHandler) transition(c echo.Context, fn transitionFunc) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	e, err := fn(ctx, c.Param("id"), actorFrom(c))
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, viewOf(e))
}

// ListMine handles GET /v1/organizer/events.
func (h *EventHandler) ListMine(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	items, err := h.Events.ListByOrganizer(ctx, actorFrom(c))
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": viewsOf(items)})
}
