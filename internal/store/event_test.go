package store

import (
	"testing"
	"time"

	"github.com/jwhitden/muster/internal/database"
	"github.com/jwhitden/muster/internal/model"
)

func setupEventTestDB(t *testing.T) (*EventStore, *AttendeeStore, *UserStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewEventStore(db), NewAttendeeStore(db), NewUserStore(db)
}

func TestEventCreateAndGet(t *testing.T) {
	es, _, us := setupEventTestDB(t)
	u, _ := us.Create("organizer@example.com", "Organizer", "hash")

	max := 20
	starts := time.Date(2026, 9, 12, 10, 0, 0, 0, time.UTC)
	created, err := es.Create(u.ID, "Summer Picnic", "Bring a dish", "City Park", starts, &max, true)
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	if created.OrganizerID != u.ID {
		t.Errorf("organizer_id = %d, want %d", created.OrganizerID, u.ID)
	}
	if created.Title != "Summer Picnic" || created.Location != "City Park" {
		t.Errorf("fields = %q/%q", created.Title, created.Location)
	}
	if created.MaxAttendees == nil || *created.MaxAttendees != 20 {
		t.Errorf("max_attendees = %v, want 20", created.MaxAttendees)
	}
	if !created.WaitlistEnabled {
		t.Error("waitlist_enabled = false, want true")
	}
	if !created.StartsAt.Equal(starts) {
		t.Errorf("starts_at = %v, want %v", created.StartsAt, starts)
	}

	got, err := es.GetByID(created.ID)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if got == nil || got.ID != created.ID {
		t.Fatalf("got = %+v, want id %d", got, created.ID)
	}

	missing, err := es.GetByID(9999)
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for nonexistent id")
	}
}

func TestEventCreateNoLimit(t *testing.T) {
	es, _, us := setupEventTestDB(t)
	u, _ := us.Create("organizer@example.com", "Organizer", "hash")

	created, err := es.Create(u.ID, "Open House", "", "", time.Now().Add(24*time.Hour), nil, false)
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	if created.MaxAttendees != nil {
		t.Errorf("max_attendees = %v, want nil", created.MaxAttendees)
	}
	if created.WaitlistEnabled {
		t.Error("waitlist_enabled = true, want false")
	}
}

func TestEventListOrdersByStart(t *testing.T) {
	es, _, us := setupEventTestDB(t)
	u, _ := us.Create("organizer@example.com", "Organizer", "hash")

	later, _ := es.Create(u.ID, "Later", "", "", time.Now().Add(72*time.Hour), nil, false)
	sooner, _ := es.Create(u.ID, "Sooner", "", "", time.Now().Add(24*time.Hour), nil, false)

	events, err := es.List()
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].ID != sooner.ID || events[1].ID != later.ID {
		t.Errorf("order = [%d, %d], want [%d, %d]", events[0].ID, events[1].ID, sooner.ID, later.ID)
	}
}

func TestEventUpdate(t *testing.T) {
	es, _, us := setupEventTestDB(t)
	u, _ := us.Create("organizer@example.com", "Organizer", "hash")

	created, _ := es.Create(u.ID, "Draft", "", "", time.Now().Add(24*time.Hour), nil, false)

	max := 5
	newStart := time.Date(2026, 10, 1, 18, 30, 0, 0, time.UTC)
	updated, err := es.Update(created.ID, "Final", "Details", "Hall B", newStart, &max, true)
	if err != nil {
		t.Fatalf("update event: %v", err)
	}
	if updated.Title != "Final" || updated.Description != "Details" || updated.Location != "Hall B" {
		t.Errorf("fields = %q/%q/%q", updated.Title, updated.Description, updated.Location)
	}
	if updated.MaxAttendees == nil || *updated.MaxAttendees != 5 {
		t.Errorf("max_attendees = %v, want 5", updated.MaxAttendees)
	}
	if !updated.WaitlistEnabled {
		t.Error("waitlist_enabled = false, want true")
	}
	if !updated.StartsAt.Equal(newStart) {
		t.Errorf("starts_at = %v, want %v", updated.StartsAt, newStart)
	}

	missing, err := es.Update(9999, "X", "", "", newStart, nil, false)
	if err != nil {
		t.Fatalf("update missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil updating nonexistent event")
	}
}

func TestEventDeleteCascadesAttendees(t *testing.T) {
	es, as, us := setupEventTestDB(t)
	u, _ := us.Create("organizer@example.com", "Organizer", "hash")

	e, _ := es.Create(u.ID, "Doomed", "", "", time.Now().Add(24*time.Hour), nil, false)
	a, err := as.Create(&model.Attendee{EventID: e.ID, Type: model.AttendeePrimary, Name: "Guest", Status: model.StatusGoing}, -1)
	if err != nil {
		t.Fatalf("create attendee: %v", err)
	}

	if err := es.Delete(e.ID); err != nil {
		t.Fatalf("delete event: %v", err)
	}

	gone, err := as.Get(a.ID)
	if err != nil {
		t.Fatalf("get attendee: %v", err)
	}
	if gone != nil {
		t.Error("attendee survived event delete")
	}
}

func TestEventDescriptor(t *testing.T) {
	es, _, us := setupEventTestDB(t)
	u, _ := us.Create("organizer@example.com", "Organizer", "hash")

	max := 10
	e, _ := es.Create(u.ID, "Capped", "", "", time.Now().Add(24*time.Hour), &max, true)

	desc, err := es.Descriptor(e.ID)
	if err != nil {
		t.Fatalf("descriptor: %v", err)
	}
	if desc.EventID != e.ID || desc.OrganizerID != u.ID {
		t.Errorf("descriptor ids = %d/%d", desc.EventID, desc.OrganizerID)
	}
	if desc.MaxAttendees == nil || *desc.MaxAttendees != 10 || !desc.WaitlistEnabled {
		t.Errorf("descriptor = %+v", desc)
	}

	missing, err := es.Descriptor(9999)
	if err != nil {
		t.Fatalf("descriptor missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for nonexistent event")
	}
}

func TestEventListStartingBetween(t *testing.T) {
	es, _, us := setupEventTestDB(t)
	u, _ := us.Create("organizer@example.com", "Organizer", "hash")

	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	before, _ := es.Create(u.ID, "Before", "", "", base.Add(-time.Hour), nil, false)
	inside, _ := es.Create(u.ID, "Inside", "", "", base.Add(time.Hour), nil, false)
	atFrom, _ := es.Create(u.ID, "AtFrom", "", "", base, nil, false)
	atTo, _ := es.Create(u.ID, "AtTo", "", "", base.Add(2*time.Hour), nil, false)

	events, err := es.ListStartingBetween(base, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("list starting between: %v", err)
	}

	// from is inclusive, to is exclusive.
	ids := make(map[int64]bool, len(events))
	for _, e := range events {
		ids[e.ID] = true
	}
	if !ids[atFrom.ID] || !ids[inside.ID] {
		t.Errorf("window missing expected events: %v", ids)
	}
	if ids[before.ID] || ids[atTo.ID] {
		t.Errorf("window includes out-of-range events: %v", ids)
	}
	if len(events) != 2 {
		t.Errorf("len = %d, want 2", len(events))
	}
}
