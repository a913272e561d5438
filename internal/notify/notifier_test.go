package notify

import (
	"log/slog"
	"testing"
	"time"

	"github.com/jwhitden/muster/internal/database"
	"github.com/jwhitden/muster/internal/model"
	"github.com/jwhitden/muster/internal/store"
)

func setupNotifierTest(t *testing.T) (*Notifier, *store.NotificationLogStore, *store.EventStore, *store.AttendeeStore, *store.UserStore) {
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

	// The sender is wired but no subscriptions exist, so nothing is
	// delivered and only the notification log changes.
	sender := NewSender("pub", "priv", "mailto:admin@example.com")
	notifier := NewNotifier(sender, pushes, logStore, events, slog.Default())

	return notifier, logStore, events, attendees, users
}

func TestNotifyPromotedRecordsLog(t *testing.T) {
	notifier, logStore, events, attendees, users := setupNotifierTest(t)

	organizer, _ := users.Create("organizer@example.com", "Organizer", "hash")
	member, _ := users.Create("member@example.com", "Member", "hash")

	event, err := events.Create(organizer.ID, "Potluck", "", "Hall", time.Now().UTC().Add(24*time.Hour), nil, true)
	if err != nil {
		t.Fatalf("create event: %v", err)
	}

	promoted := addAttendee(t, attendees, event.ID, &member.ID, "Member", model.StatusGoing)
	walkIn := addAttendee(t, attendees, event.ID, nil, "Walk-in", model.StatusGoing)

	notifier.NotifyPromoted(event.ID, []model.Attendee{*promoted, *walkIn})

	sent, err := logStore.WasSent(member.ID, model.NotifKindWaitlistPromoted, promoted.ID)
	if err != nil {
		t.Fatalf("check sent: %v", err)
	}
	if !sent {
		t.Error("expected promotion to be recorded for member")
	}
}

func TestNotifyPromotedNilSender(t *testing.T) {
	_, logStore, events, attendees, users := setupNotifierTest(t)

	organizer, _ := users.Create("organizer@example.com", "Organizer", "hash")
	member, _ := users.Create("member@example.com", "Member", "hash")

	event, err := events.Create(organizer.ID, "Potluck", "", "Hall", time.Now().UTC().Add(24*time.Hour), nil, true)
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	promoted := addAttendee(t, attendees, event.ID, &member.ID, "Member", model.StatusGoing)

	// Push can be disabled entirely; promotions still work, nothing is logged.
	silent := NewNotifier(nil, nil, logStore, events, slog.Default())
	silent.NotifyPromoted(event.ID, []model.Attendee{*promoted})

	sent, err := logStore.WasSent(member.ID, model.NotifKindWaitlistPromoted, promoted.ID)
	if err != nil {
		t.Fatalf("check sent: %v", err)
	}
	if sent {
		t.Error("expected no log entry when push is disabled")
	}
}

func TestNotifyPromotedMissingEvent(t *testing.T) {
	notifier, logStore, _, _, users := setupNotifierTest(t)

	member, _ := users.Create("member@example.com", "Member", "hash")

	notifier.NotifyPromoted(9999, []model.Attendee{{ID: 1, UserID: &member.ID, Name: "Member"}})

	sent, err := logStore.WasSent(member.ID, model.NotifKindWaitlistPromoted, 1)
	if err != nil {
		t.Fatalf("check sent: %v", err)
	}
	if sent {
		t.Error("expected no log entry for a missing event")
	}
}
