package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/trailhub/trailhub-api/internal/model"
)

// NotificationRepo stores in-app notifications.
type NotificationRepo struct {
	db *sql.DB
}

// NewNotificationRepo returns a NotificationRepo bound to db.
func NewNotificationRepo(db *sql.DB) *NotificationRepo { return &NotificationRepo{db: db} }

// Notify inserts a notification, filling in ID and CreatedAt when unset.
func (r *NotificationRepo) Notify(ctx context.Context, n model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	const q = `INSERT INTO notifications (id, user_id, kind, event_id, join_request_id, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q, n.ID, n.UserID, n.Kind, nullStr(n.EventID), nullStr(n.JoinRequestID),
		n.Message, toMillis(n.CreatedAt))
	return err
}

// ListForUser returns the user's notifications, newest first.
func (r *NotificationRepo) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := `SELECT id, user_id, kind, event_id, join_request_id, message, read_at, created_at
		FROM notifications WHERE user_id = ?`
	if unreadOnly {
		q += ` AND read_at IS NULL`
	}
	q += ` ORDER BY created_at DESC, id ASC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Notification, 0)
	for rows.Next() {
		var (
			n                  model.Notification
			eventID, requestID sql.NullString
			readAt             sql.NullInt64
			createdAt          int64
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &eventID, &requestID, &n.Message, &readAt, &createdAt); err != nil {
			return nil, err
		}
		n.EventID = strPtr(eventID)
		n.JoinRequestID = strPtr(requestID)
		n.ReadAt = timePtr(readAt)
		n.CreatedAt = fromMillis(createdAt)
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead sets read_at on one of the user's notifications.  Marking an
// already-read notification succeeds; an unknown id or someone else's
// notification returns ErrNotFound.
func (r *NotificationRepo) MarkRead(ctx context.Context, id, userID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read_at = COALESCE(read_at, ?) WHERE id = ? AND user_id = ?`,
		toMillis(at), id, userID)
	if err != nil {
		return err
	}
	if err := affectedOne(res); err != nil {
		if err == ErrConflict {
			return ErrNotFound
		}
		return err
	}
	return nil
}
