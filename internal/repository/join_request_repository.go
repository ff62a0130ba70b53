package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/trailhub/trailhub-api/internal/model"
)

// JoinRequestRepo stores join requests.  Status changes are conditional
// updates on the expected current status so a request can only be decided
// once even when two reviewers act at the same moment.
type JoinRequestRepo struct {
	db *sql.DB
}

// NewJoinRequestRepo returns a new JoinRequestRepo bound to the given database.
func NewJoinRequestRepo(db *sql.DB) *JoinRequestRepo { return &JoinRequestRepo{db: db} }

const joinRequestColumns = `id, event_id, user_id, message, status, review_note, reviewed_by, reviewed_at, created_at, updated_at`

func scanJoinRequest(row rowScanner) (*model.JoinRequest, error) {
	var (
		jr                   model.JoinRequest
		note, reviewer       sql.NullString
		reviewedAt           sql.NullInt64
		createdAt, updatedAt int64
	)
	if err := row.Scan(&jr.ID, &jr.EventID, &jr.UserID, &jr.Message, &jr.Status,
		&note, &reviewer, &reviewedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	jr.ReviewNote = strPtr(note)
	jr.ReviewedBy = strPtr(reviewer)
	jr.ReviewedAt = timePtr(reviewedAt)
	jr.CreatedAt = fromMillis(createdAt)
	jr.UpdatedAt = fromMillis(updatedAt)
	return &jr, nil
}

// activeSlot is the value stored in join_requests.active_slot for status s.
func activeSlot(s model.JoinRequestStatus) sql.NullInt64 {
	if s.Active() {
		return sql.NullInt64{Int64: 1, Valid: true}
	}
	return sql.NullInt64{}
}

// CreateTx inserts a pending request.  ErrDuplicate means the user already
// has an open request for the event.
func (r *JoinRequestRepo) CreateTx(ctx context.Context, tx *sql.Tx, jr *model.JoinRequest) error {
	const q = `INSERT INTO join_requests (id, event_id, user_id, message, status, active_slot, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, jr.ID, jr.EventID, jr.UserID, jr.Message, string(jr.Status),
		activeSlot(jr.Status), toMillis(jr.CreatedAt), toMillis(jr.UpdatedAt))
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetByID loads a join request or returns ErrNotFound.
func (r *JoinRequestRepo) GetByID(ctx context.Context, id string) (*model.JoinRequest, error) {
	return getJoinRequest(ctx, r.db, id)
}

// GetByIDTx loads a join request inside the caller's transaction.
func (r *JoinRequestRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id string) (*model.JoinRequest, error) {
	return getJoinRequest(ctx, tx, id)
}

func getJoinRequest(ctx context.Context, q querier, id string) (*model.JoinRequest, error) {
	jr, err := scanJoinRequest(q.QueryRowContext(ctx, `SELECT `+joinRequestColumns+` FROM join_requests WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return jr, nil
}

// FindActiveTx returns the user's pending or approved request for the event,
// or ErrNotFound when there is none.
func (r *JoinRequestRepo) FindActiveTx(ctx context.Context, tx *sql.Tx, eventID, userID string) (*model.JoinRequest, error) {
	jr, err := scanJoinRequest(tx.QueryRowContext(ctx,
		`SELECT `+joinRequestColumns+` FROM join_requests WHERE event_id = ? AND user_id = ? AND active_slot = 1`,
		eventID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return jr, nil
}

// DecideTx moves a pending request to approved or rejected and records the
// reviewer.  ErrConflict means the request was no longer pending.
func (r *JoinRequestRepo) DecideTx(ctx context.Context, tx *sql.Tx, id string, to model.JoinRequestStatus, reviewerID string, note *string, now time.Time) error {
	const q = `UPDATE join_requests
		SET status = ?, active_slot = ?, review_note = ?, reviewed_by = ?, reviewed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'`
	res, err := tx.ExecContext(ctx, q, string(to), activeSlot(to), nullStr(note), reviewerID,
		toMillis(now), toMillis(now), id)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

// CancelTx marks a request cancelled provided it is still in status `from`.
func (r *JoinRequestRepo) CancelTx(ctx context.Context, tx *sql.Tx, id string, from model.JoinRequestStatus, now time.Time) error {
	const q = `UPDATE join_requests SET status = 'cancelled', active_slot = NULL, updated_at = ?
		WHERE id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, q, toMillis(now), id, string(from))
	if err != nil {
		return err
	}
	return affectedOne(res)
}

// ListByEvent returns an event's requests, oldest first, optionally
// filtered by status.
func (r *JoinRequestRepo) ListByEvent(ctx context.Context, eventID string, status model.JoinRequestStatus) ([]model.JoinRequest, error) {
	q := `SELECT ` + joinRequestColumns + ` FROM join_requests WHERE event_id = ?`
	args := []any{eventID}
	if status != "" {
		q += ` AND status = ?`
		args = append(args, string(status))
	}
	q += ` ORDER BY created_at ASC, id ASC`
	return r.list(ctx, q, args...)
}

// ListByUser returns every request the user has made, newest first.
func (r *JoinRequestRepo) ListByUser(ctx context.Context, userID string) ([]model.JoinRequest, error) {
	return r.list(ctx, `SELECT `+joinRequestColumns+` FROM join_requests WHERE user_id = ? ORDER BY created_at DESC, id ASC`, userID)
}

func (r *JoinRequestRepo) list(ctx context.Context, q string, args ...any) ([]model.JoinRequest, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.JoinRequest, 0)
	for rows.Next() {
		jr, err := scanJoinRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *jr)
	}
	return out, rows.Err()
}
