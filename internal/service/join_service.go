package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trailhub/trailhub-api/internal/model"
	"github.com/trailhub/trailhub-api/internal/queue"
	"github.com/trailhub/trailhub-api/internal/repository"
)

const (
	maxJoinMessageLen = 1000
	maxReviewNoteLen  = 1000
	publishTimeout    = 5 * time.Second
)

// JoinService owns the join-request workflow.  Every state change that
// touches capacity runs in a single transaction through Store.WithTx; the
// notifier and the publisher only run after that transaction committed.
type JoinService struct {
	store        *repository.Store
	events       *repository.EventRepo
	requests     *repository.JoinRequestRepo
	participants *repository.ParticipantRepo
	notifier     Notifier
	publisher    queue.Publisher

	now func() time.Time
}

// NewJoinService wires a JoinService.  notifier and publisher may be nil.
func NewJoinService(store *repository.Store, events *repository.EventRepo, requests *repository.JoinRequestRepo,
	participants *repository.ParticipantRepo, notifier Notifier, publisher queue.Publisher) *JoinService {
	if store == nil || events == nil || requests == nil || participants == nil {
		panic("nil repository passed to NewJoinService")
	}
	return &JoinService{
		store:        store,
		events:       events,
		requests:     requests,
		participants: participants,
		notifier:     notifier,
		publisher:    publisher,
		now:          nowUTC,
	}
}

// RequestToJoin files a pending join request for a published event that
// has not started yet.  A user holds at most one pending or approved
// request per event.
func (s *JoinService) RequestToJoin(ctx context.Context, eventID string, actor Actor, message string) (*model.JoinRequest, error) {
	message = strings.TrimSpace(message)
	if len(message) > maxJoinMessageLen {
		return nil, fmt.Errorf("%w: message must be at most %d characters", ErrInvalidInput, maxJoinMessageLen)
	}
	now := s.now()
	var (
		jr    *model.JoinRequest
		event *model.Event
	)
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		ev, err := s.events.GetByIDTx(ctx, tx, eventID)
		if err != nil {
			return mapRepoErr(err, "load event")
		}
		if ev.Status != model.EventPublished {
			return ErrEventNotPublishable
		}
		if ev.OrganizerID == actor.UserID {
			return fmt.Errorf("%w: organizers cannot join their own event", ErrInvalidInput)
		}
		if !ev.StartsAt.After(now) {
			return ErrEventClosed
		}
		if _, err := s.requests.FindActiveTx(ctx, tx, eventID, actor.UserID); err == nil {
			return ErrAlreadyRequested
		} else if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("find active request: %w", err)
		}
		req := &model.JoinRequest{
			ID:        uuid.NewString(),
			EventID:   eventID,
			UserID:    actor.UserID,
			Message:   message,
			Status:    model.JoinRequestPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.requests.CreateTx(ctx, tx, req); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrAlreadyRequested
			}
			return fmt.Errorf("create join request: %w", err)
		}
		jr, event = req, ev
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, model.Notification{
		UserID:        event.OrganizerID,
		Kind:          model.NotifyJoinRequestReceived,
		EventID:       &event.ID,
		JoinRequestID: &jr.ID,
		Message:       fmt.Sprintf("New request to join %q", event.Title),
	})
	return jr, nil
}

// Approve converts a pending join request into a participant while
// holding the capacity guard.  Checks run in this order: request exists,
// event exists, reviewer may manage the event, request is pending, event
// is published, a place is free.  Any failure rolls the whole transaction
// back, so the participant row, the request status and participant_count
// change together or not at all.
func (s *JoinService) Approve(ctx context.Context, requestID string, reviewer Actor, note string) (*model.Participant, error) {
	if len(note) > maxReviewNoteLen {
		return nil, fmt.Errorf("%w: note must be at most %d characters", ErrInvalidInput, maxReviewNoteLen)
	}
	now := s.now()
	var (
		participant *model.Participant
		event       *model.Event
	)
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		jr, ev, err := s.loadForReview(ctx, tx, requestID, reviewer)
		if err != nil {
			return err
		}
		if ev.Status != model.EventPublished {
			return ErrEventNotPublishable
		}

		if err := s.events.ClaimSeatTx(ctx, tx, ev.ID, now); err != nil {
			if !errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("claim place: %w", err)
			}
			// The guard also fails when the event stopped being published
			// after it was read above.
			if lerr := s.events.LockPublishedTx(ctx, tx, ev.ID); lerr != nil {
				if errors.Is(lerr, repository.ErrConflict) {
					return ErrEventNotPublishable
				}
				return fmt.Errorf("recheck event status: %w", lerr)
			}
			return ErrCapacityExceeded
		}

		if err := s.requests.DecideTx(ctx, tx, jr.ID, model.JoinRequestApproved, reviewer.UserID, optionalNote(note), now); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrRequestFinalized
			}
			return fmt.Errorf("approve request: %w", err)
		}

		p := &model.Participant{
			ID:            uuid.NewString(),
			EventID:       ev.ID,
			UserID:        jr.UserID,
			JoinRequestID: jr.ID,
			CreatedAt:     now,
		}
		if err := s.participants.CreateTx(ctx, tx, p); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrRequestFinalized
			}
			return fmt.Errorf("create participant: %w", err)
		}
		ev.ParticipantCount++
		participant, event = p, ev
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, model.Notification{
		UserID:        participant.UserID,
		Kind:          model.NotifyJoinRequestApproved,
		EventID:       &event.ID,
		JoinRequestID: &participant.JoinRequestID,
		Message:       fmt.Sprintf("Your request to join %q was approved", event.Title),
	})
	s.publish(ctx, queue.ActivityEvent{
		Kind:             queue.ActivityApproved,
		JoinRequestID:    participant.JoinRequestID,
		ParticipantID:    participant.ID,
		EventID:          event.ID,
		EventTitle:       event.Title,
		UserID:           participant.UserID,
		ActorID:          reviewer.UserID,
		Capacity:         event.Capacity,
		ParticipantCount: event.ParticipantCount,
		OccurredAt:       now.Format(time.RFC3339),
	})
	return participant, nil
}

// Reject marks a pending request rejected.  Capacity is untouched.
func (s *JoinService) Reject(ctx context.Context, requestID string, reviewer Actor, note string) (*model.JoinRequest, error) {
	if len(note) > maxReviewNoteLen {
		return nil, fmt.Errorf("%w: note must be at most %d characters", ErrInvalidInput, maxReviewNoteLen)
	}
	now := s.now()
	var (
		req   *model.JoinRequest
		event *model.Event
	)
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		jr, ev, err := s.loadForReview(ctx, tx, requestID, reviewer)
		if err != nil {
			return err
		}
		n := optionalNote(note)
		if err := s.requests.DecideTx(ctx, tx, jr.ID, model.JoinRequestRejected, reviewer.UserID, n, now); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrRequestFinalized
			}
			return fmt.Errorf("reject request: %w", err)
		}
		reviewerID := reviewer.UserID
		jr.Status = model.JoinRequestRejected
		jr.ReviewNote = n
		jr.ReviewedBy = &reviewerID
		jr.ReviewedAt = &now
		jr.UpdatedAt = now
		req, event = jr, ev
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, model.Notification{
		UserID:        req.UserID,
		Kind:          model.NotifyJoinRequestRejected,
		EventID:       &event.ID,
		JoinRequestID: &req.ID,
		Message:       fmt.Sprintf("Your request to join %q was declined", event.Title),
	})
	s.publish(ctx, queue.ActivityEvent{
		Kind:             queue.ActivityRejected,
		JoinRequestID:    req.ID,
		EventID:          event.ID,
		EventTitle:       event.Title,
		UserID:           req.UserID,
		ActorID:          reviewer.UserID,
		Capacity:         event.Capacity,
		ParticipantCount: event.ParticipantCount,
		OccurredAt:       now.Format(time.RFC3339),
	})
	return req, nil
}

// Cancel withdraws the caller's own request.  Cancelling an approved
// request also removes the participant and gives the place back.
func (s *JoinService) Cancel(ctx context.Context, requestID string, actor Actor) (*model.JoinRequest, error) {
	now := s.now()
	var (
		req         *model.JoinRequest
		event       *model.Event
		wasApproved bool
	)
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		jr, err := s.requests.GetByIDTx(ctx, tx, requestID)
		if err != nil {
			return mapRepoErr(err, "load join request")
		}
		if jr.UserID != actor.UserID {
			return ErrForbidden
		}
		if !jr.Status.Active() {
			return ErrRequestFinalized
		}
		ev, err := s.events.GetByIDTx(ctx, tx, jr.EventID)
		if err != nil {
			return mapRepoErr(err, "load event")
		}
		if err := s.requests.CancelTx(ctx, tx, jr.ID, jr.Status, now); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrRequestFinalized
			}
			return fmt.Errorf("cancel request: %w", err)
		}
		if jr.Status == model.JoinRequestApproved {
			if err := s.participants.DeleteByRequestTx(ctx, tx, jr.ID); err != nil {
				return fmt.Errorf("remove participant: %w", err)
			}
			if err := s.events.ReleaseSeatTx(ctx, tx, ev.ID, now); err != nil {
				return fmt.Errorf("release place: %w", err)
			}
			ev.ParticipantCount--
			wasApproved = true
		}
		jr.Status = model.JoinRequestCancelled
		jr.UpdatedAt = now
		req, event = jr, ev
		return nil
	})
	if err != nil {
		return nil, err
	}

	if wasApproved {
		s.publish(ctx, queue.ActivityEvent{
			Kind:             queue.ActivityCancelled,
			JoinRequestID:    req.ID,
			EventID:          event.ID,
			EventTitle:       event.Title,
			UserID:           req.UserID,
			ActorID:          actor.UserID,
			Capacity:         event.Capacity,
			ParticipantCount: event.ParticipantCount,
			OccurredAt:       now.Format(time.RFC3339),
		})
	}
	return req, nil
}

// ListForEvent returns the requests for an event the actor manages,
// optionally filtered by status.
func (s *JoinService) ListForEvent(ctx context.Context, eventID string, actor Actor, status string) ([]model.JoinRequest, error) {
	st := model.JoinRequestStatus(status)
	switch st {
	case "", model.JoinRequestPending, model.JoinRequestApproved, model.JoinRequestRejected, model.JoinRequestCancelled:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	if _, err := s.managedEvent(ctx, eventID, actor); err != nil {
		return nil, err
	}
	out, err := s.requests.ListByEvent(ctx, eventID, st)
	if err != nil {
		return nil, fmt.Errorf("list join requests: %w", err)
	}
	return out, nil
}

// ListMine returns every request the actor has made.
func (s *JoinService) ListMine(ctx context.Context, actor Actor) ([]model.JoinRequest, error) {
	out, err := s.requests.ListByUser(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("list join requests: %w", err)
	}
	return out, nil
}

// ListParticipants returns the roster of an event the actor manages.
func (s *JoinService) ListParticipants(ctx context.Context, eventID string, actor Actor) ([]model.Participant, error) {
	if _, err := s.managedEvent(ctx, eventID, actor); err != nil {
		return nil, err
	}
	out, err := s.participants.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return out, nil
}

// CheckIn records that a participant showed up.  A participant can be
// checked in once.
func (s *JoinService) CheckIn(ctx context.Context, eventID, participantID string, actor Actor) (*model.Participant, error) {
	if _, err := s.managedEvent(ctx, eventID, actor); err != nil {
		return nil, err
	}
	p, err := s.participants.GetByID(ctx, participantID)
	if err != nil {
		return nil, mapRepoErr(err, "load participant")
	}
	if p.EventID != eventID {
		return nil, ErrNotFound
	}
	now := s.now()
	if err := s.participants.CheckIn(ctx, eventID, participantID, now); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrAlreadyCheckedIn
		}
		return nil, fmt.Errorf("check in: %w", err)
	}
	p.CheckedInAt = &now
	return p, nil
}

// loadForReview loads a request and its event and applies the checks
// shared by Approve and Reject.
func (s *JoinService) loadForReview(ctx context.Context, tx *sql.Tx, requestID string, reviewer Actor) (*model.JoinRequest, *model.Event, error) {
	jr, err := s.requests.GetByIDTx(ctx, tx, requestID)
	if err != nil {
		return nil, nil, mapRepoErr(err, "load join request")
	}
	ev, err := s.events.GetByIDTx(ctx, tx, jr.EventID)
	if err != nil {
		return nil, nil, mapRepoErr(err, "load event")
	}
	if !reviewer.canManage(ev) {
		return nil, nil, ErrForbidden
	}
	if jr.Status != model.JoinRequestPending {
		return nil, nil, ErrRequestFinalized
	}
	return jr, ev, nil
}

func (s *JoinService) managedEvent(ctx context.Context, eventID string, actor Actor) (*model.Event, error) {
	ev, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, mapRepoErr(err, "load event")
	}
	if !actor.canManage(ev) {
		return nil, ErrForbidden
	}
	return ev, nil
}

func (s *JoinService) notify(ctx context.Context, n model.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		log.Printf("notify %s for user %s: %v", n.Kind, n.UserID, err)
	}
}

func (s *JoinService) publish(ctx context.Context, ev queue.ActivityEvent) {
	if s.publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.PublishActivity(pctx, ev); err != nil {
		log.Printf("publish %s for request %s: %v", ev.Kind, ev.JoinRequestID, err)
	}
}

// mapRepoErr turns repository.ErrNotFound into ErrNotFound and wraps
// anything else with op.
func mapRepoErr(err error, op string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
