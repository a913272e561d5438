package rsvp

import "errors"

// Rule violations are returned as typed errors so callers can branch with
// errors.Is. Transient store failures are wrapped and propagated as-is,
// never masked as one of these.
var (
	ErrDuplicatePrimary    = errors.New("user already has a primary attendee for this event")
	ErrCapacityExceeded    = errors.New("event is at capacity")
	ErrPrimaryRequired     = errors.New("no primary attendee exists for this user")
	ErrPrimaryNotGoing     = errors.New("primary attendee is not going")
	ErrPrimaryNotRemovable = errors.New("primary attendees cannot be removed")
	ErrAlreadyLinked       = errors.New("own primary attendee cannot be linked to a profile")
	ErrNotFound            = errors.New("not found")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrInvalidStatus       = errors.New("invalid rsvp status")
	ErrInvalidType         = errors.New("invalid attendee type")
)
