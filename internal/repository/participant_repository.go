package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/trailhub/trailhub-api/internal/model"
)

// ParticipantRepo stores confirmed attendees.  Inserts and deletes only
// happen inside the approval and cancellation transactions.
type ParticipantRepo struct {
	db *sql.DB
}

// NewParticipantRepo returns a ParticipantRepo bound to db.
func NewParticipantRepo(db *sql.DB) *ParticipantRepo { return &ParticipantRepo{db: db} }

// CreateTx inserts the participant row for an approved request.
func (r *ParticipantRepo) CreateTx(ctx context.Context, tx *sql.Tx, p *model.Participant) error {
	const q = `INSERT INTO participants (id, event_id, user_id, join_request_id, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, p.ID, p.EventID, p.UserID, p.JoinRequestID, toMillis(p.CreatedAt))
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// DeleteByRequestTx removes the participant created from a join request.
// ErrConflict means there was no such participant.
func (r *ParticipantRepo) DeleteByRequestTx(ctx context.Context, tx *sql.Tx, joinRequestID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM participants WHERE join_request_id = ?`, joinRequestID)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

// GetByID loads a single participant.
func (r *ParticipantRepo) GetByID(ctx context.Context, id string) (*model.Participant, error) {
	var (
		p         model.Participant
		checkedIn sql.NullInt64
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, event_id, user_id, join_request_id, checked_in_at, created_at FROM participants WHERE id = ?`, id).
		Scan(&p.ID, &p.EventID, &p.UserID, &p.JoinRequestID, &checkedIn, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.CheckedInAt = timePtr(checkedIn)
	p.CreatedAt = fromMillis(createdAt)
	return &p, nil
}

// CountByEvent counts participant rows for an event.
func (r *ParticipantRepo) CountByEvent(ctx context.Context, eventID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM participants WHERE event_id = ?`, eventID).Scan(&n)
	return n, err
}

// ListByEvent returns the event roster with display names, in approval
// order.
func (r *ParticipantRepo) ListByEvent(ctx context.Context, eventID string) ([]model.Participant, error) {
	const q = `SELECT p.id, p.event_id, p.user_id, p.join_request_id, u.display_name, p.checked_in_at, p.created_at
		FROM participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.event_id = ?
		ORDER BY p.created_at ASC, p.id ASC`
	rows, err := r.db.QueryContext(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Participant, 0)
	for rows.Next() {
		var (
			p         model.Participant
			checkedIn sql.NullInt64
			createdAt int64
		)
		if err := rows.Scan(&p.ID, &p.EventID, &p.UserID, &p.JoinRequestID, &p.DisplayName, &checkedIn, &createdAt); err != nil {
			return nil, err
		}
		p.CheckedInAt = timePtr(checkedIn)
		p.CreatedAt = fromMillis(createdAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// CheckIn stamps checked_in_at once.  ErrConflict means the participant was
// already checked in (or does not belong to the event).
func (r *ParticipantRepo) CheckIn(ctx context.Context, eventID, participantID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE participants SET checked_in_at = ? WHERE id = ? AND event_id = ? AND checked_in_at IS NULL`,
		toMillis(at), participantID, eventID)
	if err != nil {
		return err
	}
	return affectedOne(res)
}
