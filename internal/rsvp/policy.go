package rsvp

import (
	"fmt"

	"github.com/jwhitden/muster/internal/model"
)

// Policy holds the deployment-level switches for the status engine.
type Policy struct {
	// PendingEnabled controls whether "pending" is an accepted target
	// status. Deployments that collapse pending into waitlisted turn
	// this off.
	PendingEnabled bool

	// AllowPrimaryRemoval permits deleting primary attendees. When off,
	// removal of a primary fails with ErrPrimaryNotRemovable.
	AllowPrimaryRemoval bool

	// AutoPromoteWaitlist promotes the oldest waitlisted attendees to
	// going whenever a transition or removal frees capacity.
	AutoPromoteWaitlist bool
}

func DefaultPolicy() Policy {
	return Policy{
		PendingEnabled:      true,
		AllowPrimaryRemoval: false,
		AutoPromoteWaitlist: true,
	}
}

// ValidTarget reports whether s is an acceptable target status under this
// policy.
func (p Policy) ValidTarget(s model.RSVPStatus) error {
	switch s {
	case model.StatusGoing, model.StatusNotGoing, model.StatusWaitlisted:
		return nil
	case model.StatusPending:
		if !p.PendingEnabled {
			return fmt.Errorf("%w: pending is disabled", ErrInvalidStatus)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// ParseStatus converts a wire string into a known RSVP status.
func ParseStatus(s string) (model.RSVPStatus, error) {
	switch model.RSVPStatus(s) {
	case model.StatusGoing, model.StatusNotGoing, model.StatusPending, model.StatusWaitlisted:
		return model.RSVPStatus(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// ParseAttendeeType converts a wire string into a known attendee type.
func ParseAttendeeType(s string) (model.AttendeeType, error) {
	switch model.AttendeeType(s) {
	case model.AttendeePrimary, model.AttendeeFamilyMember:
		return model.AttendeeType(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
}
