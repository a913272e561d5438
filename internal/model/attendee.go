package model

import "time"

type AttendeeType string

const (
	AttendeePrimary      AttendeeType = "primary"
	AttendeeFamilyMember AttendeeType = "family_member"
)

type RSVPStatus string

const (
	StatusGoing      RSVPStatus = "going"
	StatusNotGoing   RSVPStatus = "not_going"
	StatusPending    RSVPStatus = "pending"
	StatusWaitlisted RSVPStatus = "waitlisted"
)

// Attendee is one RSVP slot for one event. UserID is nil for rows created
// by organizer bulk import (no linked account). Name and AgeGroup reflect
// the linked family profile when FamilyProfileID is set; the stored values
// remain as fallback after the profile is deleted.
type Attendee struct {
	ID              int64        `json:"id"`
	EventID         int64        `json:"event_id"`
	UserID          *int64       `json:"user_id"`
	Type            AttendeeType `json:"attendee_type"`
	Name            string       `json:"name"`
	AgeGroup        string       `json:"age_group"`
	Relationship    string       `json:"relationship"`
	FamilyProfileID *int64       `json:"family_profile_id"`
	Status          RSVPStatus   `json:"rsvp_status"`
	WaitlistedAt    *time.Time   `json:"waitlisted_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}
