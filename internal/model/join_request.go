package model

import "time"

// JoinRequestStatus tracks a join request through organizer review.
type JoinRequestStatus string

const (
	JoinRequestPending   JoinRequestStatus = "pending"
	JoinRequestApproved  JoinRequestStatus = "approved"
	JoinRequestRejected  JoinRequestStatus = "rejected"
	JoinRequestCancelled JoinRequestStatus = "cancelled"
)

// Active reports whether the request still occupies the (event, user) slot.
func (s JoinRequestStatus) Active() bool {
	return s == JoinRequestPending || s == JoinRequestApproved
}

// JoinRequest is a user's request to attend an event, subject to organizer
// approval.
type JoinRequest struct {
	ID         string            `json:"id"`
	EventID    string            `json:"event_id"`
	UserID     string            `json:"user_id"`
	Message    string            `json:"message"`
	Status     JoinRequestStatus `json:"status"`
	ReviewNote *string           `json:"review_note,omitempty"`
	ReviewedBy *string           `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time        `json:"reviewed_at,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}
