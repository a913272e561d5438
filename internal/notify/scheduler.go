package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jwhitden/muster/internal/model"
	"github.com/jwhitden/muster/internal/store"
)

// Scheduler periodically checks for upcoming events and sends reminders to
// attendees who are going.
type Scheduler struct {
	mu        sync.RWMutex
	notifier  *Notifier
	log       *store.NotificationLogStore
	events    *store.EventStore
	attendees *store.AttendeeStore
	lead      time.Duration
	interval  time.Duration
	logger    *slog.Logger
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewScheduler creates a reminder scheduler. Reminders fire when an event
// starts within the lead window.
func NewScheduler(notifier *Notifier, log *store.NotificationLogStore, events *store.EventStore, attendees *store.AttendeeStore, lead, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		notifier:  notifier,
		log:       log,
		events:    events,
		attendees: attendees,
		lead:      lead,
		interval:  interval,
		logger:    logger,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Scheduler) tick() {
	now := time.Now().UTC()

	events, err := s.events.ListStartingBetween(now, now.Add(s.lead))
	if err != nil {
		s.logger.Error("reminder scheduler: list events", "error", err)
		return
	}

	for _, event := range events {
		s.remindEvent(&event, now)
	}
}

func (s *Scheduler) remindEvent(event *model.Event, now time.Time) {
	attendees, err := s.attendees.List(event.ID)
	if err != nil {
		s.logger.Error("reminder scheduler: list attendees", "event_id", event.ID, "error", err)
		return
	}

	payload := Payload{
		Title: "Event Reminder",
		Body:  fmt.Sprintf("%s starts in %s", event.Title, untilText(event.StartsAt.Sub(now))),
		URL:   fmt.Sprintf("/events/%d", event.ID),
		Tag:   fmt.Sprintf("reminder-%d", event.ID),
	}

	for _, a := range attendees {
		if a.UserID == nil {
			continue
		}
		if a.Status != model.StatusGoing && a.Status != model.StatusPending {
			continue
		}
		// Family members share the primary's account; one reminder per user.
		sent, err := s.log.WasSent(*a.UserID, model.NotifKindEventReminder, event.ID)
		if err != nil {
			s.logger.Warn("reminder scheduler: check sent", "event_id", event.ID, "error", err)
			continue
		}
		if sent {
			continue
		}

		s.notifier.sendToUser(*a.UserID, model.NotifKindEventReminder, payload)

		if err := s.log.RecordSent(*a.UserID, model.NotifKindEventReminder, event.ID); err != nil {
			s.logger.Warn("reminder scheduler: record sent", "event_id", event.ID, "error", err)
		}
	}
}

// untilText renders a lead time in words: "45 minutes", "1 hour",
// "1 hour 30 minutes". Anything under a minute rounds up to one.
func untilText(d time.Duration) string {
	total := int(d.Round(time.Minute).Minutes())
	if total < 1 {
		total = 1
	}
	hours := total / 60
	minutes := total % 60
	switch {
	case hours == 0:
		return plural(minutes, "minute")
	case minutes == 0:
		return plural(hours, "hour")
	default:
		return plural(hours, "hour") + " " + plural(minutes, "minute")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
