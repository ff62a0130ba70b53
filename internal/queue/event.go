// Package queue defines message payloads exchanged over the message broker
// and the RabbitMQ publisher and consumer that carry them.
package queue

// Activity kinds published on the participant activity queue.
const (
	ActivityApproved  = "participant.approved"
	ActivityCancelled = "participant.cancelled"
	ActivityRejected  = "join_request.rejected"
)

// ActivityEvent is published after a join request decision or cancellation
// has been committed.  It carries enough information for downstream
// consumers to log, notify, or trigger analytics without querying the
// primary database.
type ActivityEvent struct {
	Kind             string `json:"kind"`
	JoinRequestID    string `json:"join_request_id"`
	ParticipantID    string `json:"participant_id,omitempty"`
	EventID          string `json:"event_id"`
	EventTitle       string `json:"event_title"`
	UserID           string `json:"user_id"`
	ActorID          string `json:"actor_id"`
	Capacity         int    `json:"capacity"`
	ParticipantCount int    `json:"participant_count"`
	OccurredAt       string `json:"occurred_at"`
}
