package model

import "time"

// EventStatus is the publication state of an event.  Only published events
// accept join requests and approvals.
type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventPublished EventStatus = "published"
	EventCancelled EventStatus = "cancelled"
	EventSuspended EventStatus = "suspended"
)

// Activity classifies what kind of outing an event is.
type Activity string

const (
	ActivityHike   Activity = "hike"
	ActivityCamp   Activity = "camp"
	ActivityClimb  Activity = "climb"
	ActivityPaddle Activity = "paddle"
	ActivityBike   Activity = "bike"
	ActivityOther  Activity = "other"
)

// Valid reports whether a is one of the known activities.
func (a Activity) Valid() bool {
	switch a {
	case ActivityHike, ActivityCamp, ActivityClimb, ActivityPaddle, ActivityBike, ActivityOther:
		return true
	}
	return false
}

// Event is an organizer-scheduled outing with a fixed capacity.
//
// Fields:
//
//	ParticipantCount – live number of participant rows; never above Capacity.
//	Capacity         – maximum number of participants, always positive.
type Event struct {
	ID               string      `json:"id"`
	OrganizerID      string      `json:"organizer_id"`
	Title            string      `json:"title"`
	Description      string      `json:"description"`
	Activity         Activity    `json:"activity"`
	Location         string      `json:"location"`
	StartsAt         time.Time   `json:"starts_at"`
	EndsAt           time.Time   `json:"ends_at"`
	Capacity         int         `json:"capacity"`
	ParticipantCount int         `json:"participant_count"`
	Status           EventStatus `json:"status"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// Remaining returns the number of open places.
func (e *Event) Remaining() int {
	if e.ParticipantCount >= e.Capacity {
		return 0
	}
	return e.Capacity - e.ParticipantCount
}

// IsFull returns true when no places remain.
func (e *Event) IsFull() bool {
	return e.ParticipantCount >= e.Capacity
}
