package rsvp_test

import (
	"errors"
	"testing"

	"github.com/jwhitden/muster/internal/model"
	"github.com/jwhitden/muster/internal/rsvp"
)

func TestValidTarget(t *testing.T) {
	p := rsvp.DefaultPolicy()

	for _, s := range []model.RSVPStatus{model.StatusGoing, model.StatusNotGoing, model.StatusPending, model.StatusWaitlisted} {
		if err := p.ValidTarget(s); err != nil {
			t.Errorf("ValidTarget(%s) = %v, want nil", s, err)
		}
	}
	if err := p.ValidTarget("maybe"); !errors.Is(err, rsvp.ErrInvalidStatus) {
		t.Errorf("ValidTarget(maybe) = %v, want ErrInvalidStatus", err)
	}

	p.PendingEnabled = false
	if err := p.ValidTarget(model.StatusPending); !errors.Is(err, rsvp.ErrInvalidStatus) {
		t.Errorf("ValidTarget(pending) with pending disabled = %v, want ErrInvalidStatus", err)
	}
	if err := p.ValidTarget(model.StatusGoing); err != nil {
		t.Errorf("ValidTarget(going) with pending disabled = %v, want nil", err)
	}
}

func TestParseStatus(t *testing.T) {
	got, err := rsvp.ParseStatus("waitlisted")
	if err != nil || got != model.StatusWaitlisted {
		t.Errorf("ParseStatus(waitlisted) = %s, %v", got, err)
	}
	if _, err := rsvp.ParseStatus(""); !errors.Is(err, rsvp.ErrInvalidStatus) {
		t.Errorf("ParseStatus(empty) = %v, want ErrInvalidStatus", err)
	}
	if _, err := rsvp.ParseStatus("GOING"); !errors.Is(err, rsvp.ErrInvalidStatus) {
		t.Errorf("ParseStatus(GOING) = %v, want ErrInvalidStatus", err)
	}
}

func TestParseAttendeeType(t *testing.T) {
	got, err := rsvp.ParseAttendeeType("family_member")
	if err != nil || got != model.AttendeeFamilyMember {
		t.Errorf("ParseAttendeeType(family_member) = %s, %v", got, err)
	}
	if _, err := rsvp.ParseAttendeeType("guest"); !errors.Is(err, rsvp.ErrInvalidType) {
		t.Errorf("ParseAttendeeType(guest) = %v, want ErrInvalidType", err)
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := rsvp.DefaultPolicy()
	if !p.PendingEnabled {
		t.Error("PendingEnabled = false, want true")
	}
	if p.AllowPrimaryRemoval {
		t.Error("AllowPrimaryRemoval = true, want false")
	}
	if !p.AutoPromoteWaitlist {
		t.Error("AutoPromoteWaitlist = false, want true")
	}
}
