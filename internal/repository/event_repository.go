package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/trailhub/trailhub-api/internal/model"
)

// EventRepo manages persistence for events and owns the participant_count
// counter that backs the capacity guard.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo constructs an EventRepo with the given DB handle.
func NewEventRepo(db *sql.DB) *EventRepo {
	return &EventRepo{db: db}
}

const eventColumns = `id, organizer_id, title, description, activity, location, starts_at, ends_at,
	capacity, participant_count, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*model.Event, error) {
	var (
		e                                      model.Event
		startsAt, endsAt, createdAt, updatedAt int64
	)
	err := row.Scan(&e.ID, &e.OrganizerID, &e.Title, &e.Description, &e.Activity, &e.Location,
		&startsAt, &endsAt, &e.Capacity, &e.ParticipantCount, &e.Status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	e.StartsAt = fromMillis(startsAt)
	e.EndsAt = fromMillis(endsAt)
	e.CreatedAt = fromMillis(createdAt)
	e.UpdatedAt = fromMillis(updatedAt)
	return &e, nil
}

// Create inserts a new event.  ParticipantCount is always stored as zero.
func (r *EventRepo) Create(ctx context.Context, e *model.Event) error {
	const q = `INSERT INTO events (id, organizer_id, title, description, activity, location, starts_at, ends_at,
		capacity, participant_count, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q, e.ID, e.OrganizerID, e.Title, e.Description, string(e.Activity), e.Location,
		toMillis(e.StartsAt), toMillis(e.EndsAt), e.Capacity, string(e.Status), toMillis(e.CreatedAt), toMillis(e.UpdatedAt))
	if err != nil {
		return err
	}
	e.ParticipantCount = 0
	return nil
}

// GetByID retrieves an event by its ID.  It returns ErrNotFound if there is
// no matching row.
func (r *EventRepo) GetByID(ctx context.Context, id string) (*model.Event, error) {
	return getEvent(ctx, r.db, id)
}

// GetByIDTx reads an event inside the caller's transaction.
func (r *EventRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id string) (*model.Event, error) {
	return getEvent(ctx, tx, id)
}

func getEvent(ctx context.Context, q querier, id string) (*model.Event, error) {
	e, err := scanEvent(q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

// UpdateDetails rewrites the descriptive fields of an event that is still
// draft or published.  ErrConflict means the event left those states.
func (r *EventRepo) UpdateDetails(ctx context.Context, e *model.Event) error {
	const q = `UPDATE events
		SET title = ?, description = ?, activity = ?, location = ?, starts_at = ?, ends_at = ?, updated_at = ?
		WHERE id = ? AND status IN ('draft', 'published')`
	res, err := r.db.ExecContext(ctx, q, e.Title, e.Description, string(e.Activity), e.Location,
		toMillis(e.StartsAt), toMillis(e.EndsAt), toMillis(e.UpdatedAt), e.ID)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

// UpdateCapacity sets a new capacity unless that would put the event below
// its current participant count or the event is no longer editable.  The
// comparison happens in the UPDATE itself so it cannot race an approval.
func (r *EventRepo) UpdateCapacity(ctx context.Context, id string, capacity int, now time.Time) error {
	const q = `UPDATE events SET capacity = ?, updated_at = ?
		WHERE id = ? AND status IN ('draft', 'published') AND participant_count <= ?`
	res, err := r.db.ExecContext(ctx, q, capacity, toMillis(now), id, capacity)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

// TransitionStatus moves an event to status `to` only if it is currently in
// one of `from`.
func (r *EventRepo) TransitionStatus(ctx context.Context, id string, from []model.EventStatus, to model.EventStatus, now time.Time) error {
	if len(from) == 0 {
		return ErrConflict
	}
	placeholders := make([]string, len(from))
	args := []any{string(to), toMillis(now), id}
	for i, s := range from {
		placeholders[i] = "?"
		args = append(args, string(s))
	}
	q := `UPDATE events SET status = ?, updated_at = ? WHERE id = ? AND status IN (` + strings.Join(placeholders, ",") + `)`
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

// ClaimSeatTx is the capacity guard.  It increments participant_count only
// while the event is published and below capacity; the database evaluates
// the guard and the increment as one statement and holds the row lock until
// the transaction ends, so concurrent approvals on the same event are
// serialised.  ErrConflict means no place could be claimed.
func (r *EventRepo) ClaimSeatTx(ctx context.Context, tx *sql.Tx, id string, now time.Time) error {
	const q = `UPDATE events SET participant_count = participant_count + 1, updated_at = ?
		WHERE id = ? AND status = 'published' AND participant_count < capacity`
	res, err := tx.ExecContext(ctx, q, toMillis(now), id)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

// LockPublishedTx locks the event row and returns ErrConflict unless the
// event is currently published.  It is a no-op UPDATE rather than a SELECT
// so it reads the latest committed status, not the transaction snapshot.
func (r *EventRepo) LockPublishedTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `UPDATE events SET status = status WHERE id = ? AND status = 'published'`, id)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

// ReleaseSeatTx gives a place back after a participant is removed.
func (r *EventRepo) ReleaseSeatTx(ctx context.Context, tx *sql.Tx, id string, now time.Time) error {
	const q = `UPDATE events SET participant_count = participant_count - 1, updated_at = ?
		WHERE id = ? AND participant_count > 0`
	res, err := tx.ExecContext(ctx, q, toMillis(now), id)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

// ListByOrganizer returns every event the organizer created, newest first.
func (r *EventRepo) ListByOrganizer(ctx context.Context, organizerID string) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE organizer_id = ? ORDER BY starts_at DESC`, organizerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}
