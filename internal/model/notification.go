package model

import "time"

// Notification kinds.
const (
	NotifyJoinRequestReceived = "join_request.received"
	NotifyJoinRequestApproved = "join_request.approved"
	NotifyJoinRequestRejected = "join_request.rejected"
)

type Notification struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Kind          string     `json:"kind"`
	EventID       *string    `json:"event_id,omitempty"`
	JoinRequestID *string    `json:"join_request_id,omitempty"`
	Message       string     `json:"message"`
	ReadAt        *time.Time `json:"read_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
