// Package service implements the business rules of the marketplace:
// event lifecycle, join requests and the capacity-guarded approval that
// turns a request into a participant.
package service

import "errors"

// Client-visible failures.  None of them is retried internally; the HTTP
// layer maps each to a status code.
var (
	ErrNotFound                  = errors.New("not found")
	ErrForbidden                 = errors.New("forbidden")
	ErrInvalidInput              = errors.New("invalid input")
	ErrRequestFinalized          = errors.New("join request already finalized")
	ErrEventNotPublishable       = errors.New("event is not published")
	ErrCapacityExceeded          = errors.New("event capacity exceeded")
	ErrAlreadyRequested          = errors.New("an open join request already exists")
	ErrAlreadyCheckedIn          = errors.New("participant already checked in")
	ErrCapacityBelowParticipants = errors.New("capacity cannot be lower than the current participant count")
	ErrInvalidTransition         = errors.New("event status does not allow this change")
	ErrEventClosed               = errors.New("event has already started")
)
