package notify

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/jwhitden/muster/internal/database"
	"github.com/jwhitden/muster/internal/model"
	"github.com/jwhitden/muster/internal/store"
)

func setupSchedulerTest(t *testing.T) (*Scheduler, *store.NotificationLogStore, *store.EventStore, *store.AttendeeStore, *store.UserStore) {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logStore := store.NewNotificationLogStore(db)
	events := store.NewEventStore(db)
	attendees := store.NewAttendeeStore(db)
	users := store.NewUserStore(db)
	pushes := store.NewPushStore(db)

	// No sender and no subscriptions; the test observes the log only.
	notifier := NewNotifier(nil, pushes, logStore, events, slog.Default())
	s := NewScheduler(notifier, logStore, events, attendees, time.Hour, time.Minute, slog.Default())

	return s, logStore, events, attendees, users
}

func addAttendee(t *testing.T, attendees *store.AttendeeStore, eventID int64, userID *int64, name string, status model.RSVPStatus) *model.Attendee {
	t.Helper()

	a, err := attendees.Create(&model.Attendee{
		EventID: eventID,
		UserID:  userID,
		Type:    model.AttendeePrimary,
		Name:    name,
		Status:  status,
	}, -1)
	if err != nil {
		t.Fatalf("create attendee %s: %v", name, err)
	}
	return a
}

func TestSchedulerRemindsGoingAndPending(t *testing.T) {
	s, logStore, events, attendees, users := setupSchedulerTest(t)

	organizer, _ := users.Create("organizer@example.com", "Organizer", "hash")
	going, _ := users.Create("going@example.com", "Going", "hash")
	pending, _ := users.Create("pending@example.com", "Pending", "hash")
	declined, _ := users.Create("declined@example.com", "Declined", "hash")

	event, err := events.Create(organizer.ID, "Game Night", "", "Hall", time.Now().UTC().Add(30*time.Minute), nil, false)
	if err != nil {
		t.Fatalf("create event: %v", err)
	}

	addAttendee(t, attendees, event.ID, &going.ID, "Going", model.StatusGoing)
	addAttendee(t, attendees, event.ID, &pending.ID, "Pending", model.StatusPending)
	addAttendee(t, attendees, event.ID, &declined.ID, "Declined", model.StatusNotGoing)
	addAttendee(t, attendees, event.ID, nil, "Walk-in", model.StatusGoing)

	s.tick()

	for _, tc := range []struct {
		name   string
		userID int64
		want   bool
	}{
		{"going", going.ID, true},
		{"pending", pending.ID, true},
		{"declined", declined.ID, false},
	} {
		sent, err := logStore.WasSent(tc.userID, model.NotifKindEventReminder, event.ID)
		if err != nil {
			t.Fatalf("check sent for %s: %v", tc.name, err)
		}
		if sent != tc.want {
			t.Errorf("%s: reminder sent = %v, want %v", tc.name, sent, tc.want)
		}
	}
}

func TestSchedulerIgnoresEventsOutsideLeadWindow(t *testing.T) {
	s, logStore, events, attendees, users := setupSchedulerTest(t)

	organizer, _ := users.Create("organizer@example.com", "Organizer", "hash")
	member, _ := users.Create("member@example.com", "Member", "hash")

	soon, err := events.Create(organizer.ID, "Soon", "", "", time.Now().UTC().Add(45*time.Minute), nil, false)
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	later, err := events.Create(organizer.ID, "Later", "", "", time.Now().UTC().Add(3*time.Hour), nil, false)
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	past, err := events.Create(organizer.ID, "Past", "", "", time.Now().UTC().Add(-time.Hour), nil, false)
	if err != nil {
		t.Fatalf("create event: %v", err)
	}

	for _, e := range []*model.Event{soon, later, past} {
		addAttendee(t, attendees, e.ID, &member.ID, "Member", model.StatusGoing)
	}

	s.tick()

	for _, tc := range []struct {
		name    string
		eventID int64
		want    bool
	}{
		{"soon", soon.ID, true},
		{"later", later.ID, false},
		{"past", past.ID, false},
	} {
		sent, err := logStore.WasSent(member.ID, model.NotifKindEventReminder, tc.eventID)
		if err != nil {
			t.Fatalf("check sent for %s: %v", tc.name, err)
		}
		if sent != tc.want {
			t.Errorf("%s: reminder sent = %v, want %v", tc.name, sent, tc.want)
		}
	}
}

func TestSchedulerRemindsOncePerUser(t *testing.T) {
	s, logStore, events, attendees, users := setupSchedulerTest(t)

	organizer, _ := users.Create("organizer@example.com", "Organizer", "hash")
	parent, _ := users.Create("parent@example.com", "Parent", "hash")

	event, err := events.Create(organizer.ID, "Picnic", "", "Park", time.Now().UTC().Add(20*time.Minute), nil, false)
	if err != nil {
		t.Fatalf("create event: %v", err)
	}

	addAttendee(t, attendees, event.ID, &parent.ID, "Parent", model.StatusGoing)
	if _, err := attendees.Create(&model.Attendee{
		EventID:      event.ID,
		UserID:       &parent.ID,
		Type:         model.AttendeeFamilyMember,
		Name:         "Kid",
		Relationship: "child",
		Status:       model.StatusGoing,
	}, -1); err != nil {
		t.Fatalf("create family member: %v", err)
	}

	s.tick()
	// A second pass must not resend; the log already has the entry.
	s.tick()

	sent, err := logStore.WasSent(parent.ID, model.NotifKindEventReminder, event.ID)
	if err != nil {
		t.Fatalf("check sent: %v", err)
	}
	if !sent {
		t.Error("expected reminder to be recorded for parent")
	}
}

func TestSchedulerStartStop(t *testing.T) {
	// The interval is long enough that no tick fires before Stop.
	s := NewScheduler(nil, nil, nil, nil, time.Hour, time.Minute, slog.Default())

	s.Start(context.Background())
	s.Stop()

	// Stop on an already-stopped scheduler should not block or panic.
	s.Stop()
}

func TestSchedulerStopBeforeStart(t *testing.T) {
	s := NewScheduler(nil, nil, nil, nil, time.Hour, time.Minute, slog.Default())
	s.Stop()
}

func TestUntilText(t *testing.T) {
	for _, tc := range []struct {
		d    time.Duration
		want string
	}{
		{20 * time.Second, "1 minute"},
		{time.Minute, "1 minute"},
		{45 * time.Minute, "45 minutes"},
		{time.Hour, "1 hour"},
		{90 * time.Minute, "1 hour 30 minutes"},
		{2 * time.Hour, "2 hours"},
		{24 * time.Hour, "24 hours"},
		{26*time.Hour + time.Minute, "26 hours 1 minute"},
	} {
		if got := untilText(tc.d); got != tc.want {
			t.Errorf("untilText(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}
