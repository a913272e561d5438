package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jwhitden/muster/internal/auth"
	"github.com/jwhitden/muster/internal/invite"
	"github.com/jwhitden/muster/internal/model"
	"github.com/jwhitden/muster/internal/rsvp"
	"github.com/jwhitden/muster/internal/store"
	"github.com/jwhitden/muster/internal/websocket"
)

type InviteHandler struct {
	invites    *invite.Service
	eventStore *store.EventStore
	userStore  *store.UserStore
	registry   *rsvp.Registry
	policy     rsvp.Policy
	hub        *websocket.Hub
	logger     *slog.Logger
}

func NewInviteHandler(inv *invite.Service, es *store.EventStore, us *store.UserStore, reg *rsvp.Registry, policy rsvp.Policy, hub *websocket.Hub, logger *slog.Logger) *InviteHandler {
	return &InviteHandler{
		invites:    inv,
		eventStore: es,
		userStore:  us,
		registry:   reg,
		policy:     policy,
		hub:        hub,
		logger:     logger,
	}
}

// invitePreview is what an unauthenticated visitor sees when following
// an invite link.
type invitePreview struct {
	EventID     int64     `json:"event_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	StartsAt    time.Time `json:"starts_at"`
}

func (h *InviteHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	event, ok := h.resolveEvent(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, invitePreview{
		EventID:     event.ID,
		Title:       event.Title,
		Description: event.Description,
		Location:    event.Location,
		StartsAt:    event.StartsAt,
	})
}

func (h *InviteHandler) Accept(w http.ResponseWriter, r *http.Request) {
	event, ok := h.resolveEvent(w, r)
	if !ok {
		return
	}

	userID := auth.UserID(r.Context())
	user, err := h.userStore.GetByID(userID)
	if err != nil || user == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load account"})
		return
	}

	status := model.StatusPending
	if !h.policy.PendingEnabled {
		status = model.StatusGoing
	}

	res, err := h.registry.Add(actorFrom(r), rsvp.AddParams{
		EventID: event.ID,
		UserID:  &userID,
		Type:    model.AttendeePrimary,
		Name:    user.Name,
		Status:  status,
	})
	if err != nil {
		writeRSVPError(w, h.logger, err)
		return
	}

	h.logger.Info("invite accepted", "event_id", event.ID, "user_id", userID)
	h.hub.Broadcast(websocket.NewMessage("attendee", "created", event.ID, res.Attendee.ID,
		map[string]any{"status": res.EffectiveStatus}))
	writeJSON(w, http.StatusCreated, addAttendeeResponse{
		Attendee:         res.Attendee,
		RequestedStatus:  res.RequestedStatus,
		EffectiveStatus:  res.EffectiveStatus,
		WaitlistPosition: res.WaitlistPosition,
	})
}

func (h *InviteHandler) resolveEvent(w http.ResponseWriter, r *http.Request) (*model.Event, bool) {
	token := r.PathValue("token")

	eventID, err := h.invites.Resolve(token)
	if err != nil {
		if errors.Is(err, invite.ErrExpired) {
			writeJSON(w, http.StatusGone, map[string]string{"error": "invite has expired"})
			return nil, false
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "invite not found"})
		return nil, false
	}

	event, err := h.eventStore.GetByID(eventID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get event"})
		return nil, false
	}
	if event == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "event not found"})
		return nil, false
	}

	return event, true
}
