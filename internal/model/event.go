package model

import "time"

type Event struct {
	ID              int64     `json:"id"`
	OrganizerID     int64     `json:"organizer_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Location        string    `json:"location"`
	StartsAt        time.Time `json:"starts_at"`
	MaxAttendees    *int      `json:"max_attendees"`
	WaitlistEnabled bool      `json:"waitlist_enabled"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// EventCapacity is derived from the attendee set, never persisted.
type EventCapacity struct {
	MaxAttendees    *int `json:"max_attendees"`
	GoingCount      int  `json:"going_count"`
	NotGoingCount   int  `json:"not_going_count"`
	PendingCount    int  `json:"pending_count"`
	WaitlistedCount int  `json:"waitlisted_count"`
}

// AtCapacity reports whether the going count has reached the limit.
// Events without a limit are never at capacity.
func (c *EventCapacity) AtCapacity() bool {
	return c.MaxAttendees != nil && c.GoingCount >= *c.MaxAttendees
}
