package model

import "time"

// Participant is a confirmed attendee, created once per approved join
// request.
type Participant struct {
	ID            string     `json:"id"`
	EventID       string     `json:"event_id"`
	UserID        string     `json:"user_id"`
	JoinRequestID string     `json:"join_request_id"`
	DisplayName   string     `json:"display_name,omitempty"`
	CheckedInAt   *time.Time `json:"checked_in_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
