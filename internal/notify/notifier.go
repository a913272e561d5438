package notify

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jwhitden/muster/internal/model"
	"github.com/jwhitden/muster/internal/monitoring"
	"github.com/jwhitden/muster/internal/store"
)

// Notifier sends RSVP-related push notifications. Each notification is
// recorded in the notification log so promotions observed through multiple
// code paths are delivered once.
type Notifier struct {
	sender *Sender
	subs   *store.PushStore
	log    *store.NotificationLogStore
	events *store.EventStore
	logger *slog.Logger
}

func NewNotifier(sender *Sender, subs *store.PushStore, log *store.NotificationLogStore, events *store.EventStore, logger *slog.Logger) *Notifier {
	return &Notifier{
		sender: sender,
		subs:   subs,
		log:    log,
		events: events,
		logger: logger,
	}
}

// NotifyPromoted tells promoted attendees they are off the waitlist. Only
// attendees tied to a user account can be reached; rows entered by an
// organizer on someone's behalf have no subscriptions.
func (n *Notifier) NotifyPromoted(eventID int64, promoted []model.Attendee) {
	if n.sender == nil || len(promoted) == 0 {
		return
	}

	event, err := n.events.GetByID(eventID)
	if err != nil || event == nil {
		n.logger.Warn("promotion notify: load event", "event_id", eventID, "error", err)
		return
	}

	for _, a := range promoted {
		if a.UserID == nil {
			continue
		}
		sent, err := n.log.WasSent(*a.UserID, model.NotifKindWaitlistPromoted, a.ID)
		if err != nil {
			n.logger.Warn("promotion notify: check sent", "attendee_id", a.ID, "error", err)
			continue
		}
		if sent {
			continue
		}

		payload := Payload{
			Title: "You're in!",
			Body:  fmt.Sprintf("%s is off the waitlist for %s", a.Name, event.Title),
			URL:   fmt.Sprintf("/events/%d", event.ID),
			Tag:   fmt.Sprintf("promoted-%d", a.ID),
		}
		n.sendToUser(*a.UserID, model.NotifKindWaitlistPromoted, payload)

		if err := n.log.RecordSent(*a.UserID, model.NotifKindWaitlistPromoted, a.ID); err != nil {
			n.logger.Warn("promotion notify: record sent", "attendee_id", a.ID, "error", err)
		}
	}
}

func (n *Notifier) sendToUser(userID int64, kind string, payload Payload) {
	subs, err := n.subs.ListByUser(userID)
	if err != nil {
		n.logger.Warn("push: list subscriptions", "user_id", userID, "error", err)
		return
	}

	for _, sub := range subs {
		if err := n.sender.Send(&sub, payload); err != nil {
			if errors.Is(err, ErrExpired) {
				n.subs.DeleteEndpoint(sub.Endpoint)
				monitoring.TrackPushSent(kind, "expired")
			} else {
				n.logger.Warn("push: send", "user_id", userID, "error", err)
				monitoring.TrackPushSent(kind, "error")
			}
			continue
		}
		monitoring.TrackPushSent(kind, "ok")
	}
}
