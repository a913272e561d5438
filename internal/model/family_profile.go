package model

import "time"

// FamilyProfile is a reusable, user-owned template (name + age group)
// independent of any event. Attendees link to one via FamilyProfileID.
type FamilyProfile struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	AgeGroup  string    `json:"age_group"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
