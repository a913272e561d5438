package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jwhitden/muster/internal/auth"
	"github.com/jwhitden/muster/internal/email"
	"github.com/jwhitden/muster/internal/invite"
	"github.com/jwhitden/muster/internal/model"
	"github.com/jwhitden/muster/internal/rsvp"
	"github.com/jwhitden/muster/internal/store"
	"github.com/jwhitden/muster/internal/websocket"
)

type EventHandler struct {
	eventStore *store.EventStore
	registry   *rsvp.Registry
	invites    *invite.Service
	email      *email.Client
	baseURL    string
	hub        *websocket.Hub
	logger     *slog.Logger
}

func NewEventHandler(es *store.EventStore, reg *rsvp.Registry, inv *invite.Service, mail *email.Client, baseURL string, hub *websocket.Hub, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		eventStore: es,
		registry:   reg,
		invites:    inv,
		email:      mail,
		baseURL:    strings.TrimRight(baseURL, "/"),
		hub:        hub,
		logger:     logger,
	}
}

type eventRequest struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	Location        string `json:"location"`
	StartsAt        string `json:"starts_at"`
	MaxAttendees    *int   `json:"max_attendees"`
	WaitlistEnabled bool   `json:"waitlist_enabled"`
}

func (h *EventHandler) parseAndValidate(r *http.Request, w http.ResponseWriter) (*eventRequest, time.Time, bool) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return nil, time.Time{}, false
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "title is required"})
		return nil, time.Time{}, false
	}

	startsAt, err := time.Parse(time.RFC3339, req.StartsAt)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "starts_at must be RFC3339 format"})
		return nil, time.Time{}, false
	}

	if req.MaxAttendees != nil && *req.MaxAttendees < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "max_attendees must be at least 1"})
		return nil, time.Time{}, false
	}

	return &req, startsAt, true
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	events, err := h.eventStore.List()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list events"})
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, startsAt, ok := h.parseAndValidate(r, w)
	if !ok {
		return
	}

	organizerID := auth.UserID(r.Context())
	event, err := h.eventStore.Create(organizerID, req.Title, req.Description, req.Location, startsAt, req.MaxAttendees, req.WaitlistEnabled)
	if err != nil {
		h.logger.Error("create event", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create event"})
		return
	}

	h.hub.Broadcast(websocket.NewMessage("event", "created", event.ID, event.ID, nil))
	writeJSON(w, http.StatusCreated, event)
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event ID"})
		return
	}

	event, err := h.eventStore.GetByID(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get event"})
		return
	}
	if event == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "event not found"})
		return
	}

	writeJSON(w, http.StatusOK, event)
}

func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event ID"})
		return
	}

	event, ok := h.loadManaged(w, r, id)
	if !ok {
		return
	}

	req, startsAt, ok := h.parseAndValidate(r, w)
	if !ok {
		return
	}

	// Shrinking max_attendees never rewrites existing statuses; the
	// lower limit only gates future transitions into going.
	updated, err := h.eventStore.Update(event.ID, req.Title, req.Description, req.Location, startsAt, req.MaxAttendees, req.WaitlistEnabled)
	if err != nil {
		h.logger.Error("update event", "error", err, "event_id", event.ID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update event"})
		return
	}

	h.hub.Broadcast(websocket.NewMessage("event", "updated", updated.ID, updated.ID, nil))
	writeJSON(w, http.StatusOK, updated)
}

func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event ID"})
		return
	}

	event, ok := h.loadManaged(w, r, id)
	if !ok {
		return
	}

	if err := h.eventStore.Delete(event.ID); err != nil {
		h.logger.Error("delete event", "error", err, "event_id", event.ID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete event"})
		return
	}

	h.hub.Broadcast(websocket.NewMessage("event", "deleted", event.ID, event.ID, nil))
	w.WriteHeader(http.StatusNoContent)
}

type capacityResponse struct {
	Counts   *model.EventCapacity `json:"counts"`
	Waitlist []model.Attendee     `json:"waitlist"`
}

func (h *EventHandler) Capacity(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event ID"})
		return
	}

	summary, err := h.registry.Capacity(id)
	if err != nil {
		writeRSVPError(w, h.logger, err)
		return
	}

	waitlist := summary.Waitlist
	if waitlist == nil {
		waitlist = []model.Attendee{}
	}
	writeJSON(w, http.StatusOK, capacityResponse{Counts: summary.Counts, Waitlist: waitlist})
}

type inviteRequest struct {
	Email string `json:"email"`
}

type inviteResponse struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
	EmailSent bool      `json:"email_sent,omitempty"`
}

func (h *EventHandler) Invite(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event ID"})
		return
	}

	if !h.invites.Enabled() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "invite links are not configured"})
		return
	}

	// The body is optional; an email address requests delivery.
	var req inviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.Email = strings.TrimSpace(req.Email)

	if req.Email != "" && !h.email.Configured() {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "email delivery is not configured"})
		return
	}

	event, ok := h.loadManaged(w, r, id)
	if !ok {
		return
	}

	token, expiresAt, err := h.invites.Mint(event.ID, event.StartsAt)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}

	resp := inviteResponse{
		Token:     token,
		URL:       h.baseURL + "/invites/" + token,
		ExpiresAt: expiresAt,
	}

	if req.Email != "" {
		if err := h.email.SendInvite(req.Email, event.Title, resp.URL, event.StartsAt); err != nil {
			h.logger.Error("send invite email", "error", err, "event_id", event.ID)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to send invite email"})
			return
		}
		resp.EmailSent = true
	}

	h.logger.Info("invite minted", "event_id", event.ID, "expires_at", expiresAt, "emailed", resp.EmailSent)
	writeJSON(w, http.StatusCreated, resp)
}

// loadManaged fetches the event and checks the caller may manage it.
// Only the organizer and admins can modify an event.
func (h *EventHandler) loadManaged(w http.ResponseWriter, r *http.Request, id int64) (*model.Event, bool) {
	event, err := h.eventStore.GetByID(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get event"})
		return nil, false
	}
	if event == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "event not found"})
		return nil, false
	}

	if event.OrganizerID != auth.UserID(r.Context()) && !auth.IsAdmin(r.Context()) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "only the organizer can modify this event"})
		return nil, false
	}

	return event, true
}
