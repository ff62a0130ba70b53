package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trailhub/trailhub-api/internal/model"
	"github.com/trailhub/trailhub-api/internal/repository"
)

const (
	MinCapacity = 1
	MaxCapacity = 10000

	maxTitleLen       = 200
	maxLocationLen    = 200
	maxDescriptionLen = 5000
	maxPageSize       = 100
)

// EventInput carries the organizer-editable fields of an event.
type EventInput struct {
	Title       string
	Description string
	Activity    model.Activity
	Location    string
	StartsAt    time.Time
	EndsAt      time.Time
	Capacity    int
}

// EventPatch is a partial update; nil fields are left unchanged.
type EventPatch struct {
	Title       *string
	Description *string
	Activity    *model.Activity
	Location    *string
	StartsAt    *time.Time
	EndsAt      *time.Time
}

// SearchParams are the public listing filters.
type SearchParams struct {
	Text     string
	Activity string
	Location string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// EventService manages the event lifecycle.
type EventService struct {
	events *repository.EventRepo
	now    func() time.Time
}

// NewEventService returns an EventService backed by events.
func NewEventService(events *repository.EventRepo) *EventService {
	if events == nil {
		panic("nil repository passed to NewEventService")
	}
	return &EventService{events: events, now: nowUTC}
}

// Create stores a new draft event owned by the actor.
func (s *EventService) Create(ctx context.Context, actor Actor, in EventInput) (*model.Event, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Location = strings.TrimSpace(in.Location)
	in.Description = strings.TrimSpace(in.Description)
	now := s.now()
	if err := validateDetails(in.Title, in.Description, in.Location, in.Activity, in.StartsAt, in.EndsAt); err != nil {
		return nil, err
	}
	if !in.StartsAt.After(now) {
		return nil, fmt.Errorf("%w: starts_at must be in the future", ErrInvalidInput)
	}
	if err := validateCapacity(in.Capacity); err != nil {
		return nil, err
	}
	e := &model.Event{
		ID:          uuid.NewString(),
		OrganizerID: actor.UserID,
		Title:       in.Title,
		Description: in.Description,
		Activity:    in.Activity,
		Location:    in.Location,
		StartsAt:    in.StartsAt.UTC().Truncate(time.Millisecond),
		EndsAt:      in.EndsAt.UTC().Truncate(time.Millisecond),
		Capacity:    in.Capacity,
		Status:      model.EventDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.events.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return e, nil
}

// Get returns an event.  Events that are not published are only visible
// to their organizer and to admins; everyone else gets ErrNotFound.
func (s *EventService) Get(ctx context.Context, id string, actor Actor) (*model.Event, error) {
	e, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, "load event")
	}
	if e.Status != model.EventPublished && !actor.canManage(e) {
		return nil, ErrNotFound
	}
	return e, nil
}

// Update applies a partial change to the descriptive fields.
func (s *EventService) Update(ctx context.Context, id string, actor Actor, p EventPatch) (*model.Event, error) {
	e, err := s.managed(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if p.Title != nil {
		e.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		e.Description = strings.TrimSpace(*p.Description)
	}
	if p.Activity != nil {
		e.Activity = *p.Activity
	}
	if p.Location != nil {
		e.Location = strings.TrimSpace(*p.Location)
	}
	if p.StartsAt != nil {
		e.StartsAt = p.StartsAt.UTC().Truncate(time.Millisecond)
	}
	if p.EndsAt != nil {
		e.EndsAt = p.EndsAt.UTC().Truncate(time.Millisecond)
	}
	if err := validateDetails(e.Title, e.Description, e.Location, e.Activity, e.StartsAt, e.EndsAt); err != nil {
		return nil, err
	}
	e.UpdatedAt = s.now()
	if err := s.events.UpdateDetails(ctx, e); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("update event: %w", err)
	}
	return e, nil
}

// UpdateCapacity changes the capacity of a draft or published event.  The
// new value can never be lower than the number of participants already
// approved.
func (s *EventService) UpdateCapacity(ctx context.Context, id string, actor Actor, capacity int) (*model.Event, error) {
	if err := validateCapacity(capacity); err != nil {
		return nil, err
	}
	if _, err := s.managed(ctx, id, actor); err != nil {
		return nil, err
	}
	if err := s.events.UpdateCapacity(ctx, id, capacity, s.now()); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("update capacity: %w", err)
		}
		cur, rerr := s.events.GetByID(ctx, id)
		if rerr != nil {
			return nil, mapRepoErr(rerr, "reload event")
		}
		if cur.Status != model.EventDraft && cur.Status != model.EventPublished {
			return nil, ErrInvalidTransition
		}
		return nil, ErrCapacityBelowParticipants
	}
	return s.reload(ctx, id)
}

// Publish moves a draft event to published.  Events that already started
// cannot be published.
func (s *EventService) Publish(ctx context.Context, id string, actor Actor) (*model.Event, error) {
	e, err := s.managed(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if e.Status == model.EventDraft && !e.StartsAt.After(s.now()) {
		return nil, ErrEventClosed
	}
	return s.transition(ctx, id, []model.EventStatus{model.EventDraft}, model.EventPublished)
}

// Cancel ends a draft or published event for good.
func (s *EventService) Cancel(ctx context.Context, id string, actor Actor) (*model.Event, error) {
	if _, err := s.managed(ctx, id, actor); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, []model.EventStatus{model.EventDraft, model.EventPublished}, model.EventCancelled)
}

// Suspend hides a published event.  Admin only.
func (s *EventService) Suspend(ctx context.Context, id string, actor Actor) (*model.Event, error) {
	if err := s.adminEvent(ctx, id, actor); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, []model.EventStatus{model.EventPublished}, model.EventSuspended)
}

// Reinstate republishes a suspended event.  Admin only.
func (s *EventService) Reinstate(ctx context.Context, id string, actor Actor) (*model.Event, error) {
	if err := s.adminEvent(ctx, id, actor); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, []model.EventStatus{model.EventSuspended}, model.EventPublished)
}

// Search lists published events matching the filters.
func (s *EventService) Search(ctx context.Context, p SearchParams) ([]model.Event, int64, error) {
	act := model.Activity(strings.ToLower(strings.TrimSpace(p.Activity)))
	if act != "" && !act.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown activity %q", ErrInvalidInput, p.Activity)
	}
	if p.From != nil && p.To != nil && p.To.Before(*p.From) {
		return nil, 0, fmt.Errorf("%w: to must not be before from", ErrInvalidInput)
	}
	if p.PageSize > maxPageSize {
		p.PageSize = maxPageSize
	}
	out, total, err := s.events.Search(ctx, repository.EventSearchQuery{
		Text:     strings.TrimSpace(p.Text),
		Activity: act,
		Location: strings.TrimSpace(p.Location),
		From:     p.From,
		To:       p.To,
		Page:     p.Page,
		PageSize: p.PageSize,
	}, s.now())
	if err != nil {
		return nil, 0, fmt.Errorf("search events: %w", err)
	}
	return out, total, nil
}

// ListByOrganizer returns the actor's own events in every status.
func (s *EventService) ListByOrganizer(ctx context.Context, actor Actor) ([]model.Event, error) {
	out, err := s.events.ListByOrganizer(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}

func (s *EventService) transition(ctx context.Context, id string, from []model.EventStatus, to model.EventStatus) (*model.Event, error) {
	if err := s.events.TransitionStatus(ctx, id, from, to, s.now()); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("change event status: %w", err)
	}
	return s.reload(ctx, id)
}

func (s *EventService) managed(ctx context.Context, id string, actor Actor) (*model.Event, error) {
	e, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, "load event")
	}
	if !actor.canManage(e) {
		return nil, ErrForbidden
	}
	return e, nil
}

func (s *EventService) adminEvent(ctx context.Context, id string, actor Actor) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	if _, err := s.events.GetByID(ctx, id); err != nil {
		return mapRepoErr(err, "load event")
	}
	return nil
}

func (s *EventService) reload(ctx context.Context, id string) (*model.Event, error) {
	e, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, "reload event")
	}
	return e, nil
}

func validateDetails(title, description, location string, activity model.Activity, startsAt, endsAt time.Time) error {
	switch {
	case title == "":
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	case len(title) > maxTitleLen:
		return fmt.Errorf("%w: title must be at most %d characters", ErrInvalidInput, maxTitleLen)
	case len(description) > maxDescriptionLen:
		return fmt.Errorf("%w: description must be at most %d characters", ErrInvalidInput, maxDescriptionLen)
	case location == "":
		return fmt.Errorf("%w: location is required", ErrInvalidInput)
	case len(location) > maxLocationLen:
		return fmt.Errorf("%w: location must be at most %d characters", ErrInvalidInput, maxLocationLen)
	case !activity.Valid():
		return fmt.Errorf("%w: unknown activity %q", ErrInvalidInput, activity)
	case startsAt.IsZero() || endsAt.IsZero():
		return fmt.Errorf("%w: starts_at and ends_at are required", ErrInvalidInput)
	case !endsAt.After(startsAt):
		return fmt.Errorf("%w: ends_at must be after starts_at", ErrInvalidInput)
	}
	return nil
}

func validateCapacity(c int) error {
	if c < MinCapacity || c > MaxCapacity {
		return fmt.Errorf("%w: capacity must be between %d and %d", ErrInvalidInput, MinCapacity, MaxCapacity)
	}
	return nil
}
