package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jwhitden/muster/internal/auth"
	"github.com/jwhitden/muster/internal/model"
	"github.com/jwhitden/muster/internal/notify"
	"github.com/jwhitden/muster/internal/rsvp"
	"github.com/jwhitden/muster/internal/store"
	"github.com/jwhitden/muster/internal/websocket"
)

const maxBulkItems = 100

type AttendeeHandler struct {
	registry      *rsvp.Registry
	attendeeStore *store.AttendeeStore
	eventStore    *store.EventStore
	hub           *websocket.Hub
	notifier      *notify.Notifier
	logger        *slog.Logger
}

func NewAttendeeHandler(reg *rsvp.Registry, as *store.AttendeeStore, es *store.EventStore, hub *websocket.Hub, n *notify.Notifier, logger *slog.Logger) *AttendeeHandler {
	return &AttendeeHandler{
		registry:      reg,
		attendeeStore: as,
		eventStore:    es,
		hub:           hub,
		notifier:      n,
		logger:        logger,
	}
}

type addAttendeeRequest struct {
	UserID          *int64 `json:"user_id"`
	Type            string `json:"attendee_type"`
	Name            string `json:"name"`
	AgeGroup        string `json:"age_group"`
	Relationship    string `json:"relationship"`
	Status          string `json:"rsvp_status"`
	FamilyProfileID *int64 `json:"family_profile_id"`
}

func (req *addAttendeeRequest) toParams(eventID int64) rsvp.AddParams {
	typ := req.Type
	if typ == "" {
		typ = string(model.AttendeePrimary)
	}
	return rsvp.AddParams{
		EventID:         eventID,
		UserID:          req.UserID,
		Type:            model.AttendeeType(typ),
		Name:            strings.TrimSpace(req.Name),
		AgeGroup:        strings.TrimSpace(req.AgeGroup),
		Relationship:    strings.TrimSpace(req.Relationship),
		Status:          model.RSVPStatus(req.Status),
		FamilyProfileID: req.FamilyProfileID,
	}
}

type addAttendeeResponse struct {
	Attendee         *model.Attendee  `json:"attendee"`
	RequestedStatus  model.RSVPStatus `json:"requested_status"`
	EffectiveStatus  model.RSVPStatus `json:"effective_status"`
	WaitlistPosition int              `json:"waitlist_position,omitempty"`
}

type bulkItemError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

type bulkAddResponse struct {
	Created []model.Attendee `json:"created"`
	Errors  []bulkItemError  `json:"errors,omitempty"`
}

type cascadeFailure struct {
	AttendeeID int64  `json:"attendee_id"`
	Error      string `json:"error"`
}

type statusResponse struct {
	Attendee         *model.Attendee  `json:"attendee"`
	RequestedStatus  model.RSVPStatus `json:"requested_status"`
	EffectiveStatus  model.RSVPStatus `json:"effective_status"`
	WaitlistPosition int              `json:"waitlist_position,omitempty"`
	PrimaryPromoted  *model.Attendee  `json:"primary_promoted,omitempty"`
	Cascaded         []int64          `json:"cascaded,omitempty"`
	CascadeErrors    []cascadeFailure `json:"cascade_errors,omitempty"`
	Promoted         []model.Attendee `json:"promoted,omitempty"`
}

type removeResponse struct {
	Removed  *model.Attendee  `json:"removed"`
	Promoted []model.Attendee `json:"promoted,omitempty"`
}

func (h *AttendeeHandler) List(w http.ResponseWriter, r *http.Request) {
	eventID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event ID"})
		return
	}

	event, err := h.eventStore.GetByID(eventID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get event"})
		return
	}
	if event == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "event not found"})
		return
	}

	attendees, err := h.attendeeStore.List(eventID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list attendees"})
		return
	}
	if attendees == nil {
		attendees = []model.Attendee{}
	}
	writeJSON(w, http.StatusOK, attendees)
}

// MyRSVPs lists the caller's own attendee rows across all events.
func (h *AttendeeHandler) MyRSVPs(w http.ResponseWriter, r *http.Request) {
	attendees, err := h.attendeeStore.ListByUser(auth.UserID(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list RSVPs"})
		return
	}
	if attendees == nil {
		attendees = []model.Attendee{}
	}
	writeJSON(w, http.StatusOK, attendees)
}

func (h *AttendeeHandler) Add(w http.ResponseWriter, r *http.Request) {
	eventID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event ID"})
		return
	}

	var req addAttendeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if !h.validate(w, &req) {
		return
	}

	// Omitted user_id means the caller is registering themselves.
	// Accountless rows go through the bulk import endpoint.
	if req.UserID == nil {
		uid := auth.UserID(r.Context())
		req.UserID = &uid
	}

	res, err := h.registry.Add(actorFrom(r), req.toParams(eventID))
	if err != nil {
		writeRSVPError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(websocket.NewMessage("attendee", "created", eventID, res.Attendee.ID,
		map[string]any{"status": res.EffectiveStatus}))
	writeJSON(w, http.StatusCreated, addAttendeeResponse{
		Attendee:         res.Attendee,
		RequestedStatus:  res.RequestedStatus,
		EffectiveStatus:  res.EffectiveStatus,
		WaitlistPosition: res.WaitlistPosition,
	})
}

func (h *AttendeeHandler) BulkAdd(w http.ResponseWriter, r *http.Request) {
	eventID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event ID"})
		return
	}

	var reqs []addAttendeeRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON, expected an array"})
		return
	}
	if len(reqs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no attendees given"})
		return
	}
	if len(reqs) > maxBulkItems {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "too many attendees, max 100 per request"})
		return
	}

	// Malformed items fail the whole request; rule violations are
	// reported per item below. Bulk items carry user_id exactly as
	// sent; a missing user_id is an accountless import row, which only
	// organizers and admins may create.
	items := make([]rsvp.AddParams, len(reqs))
	for i := range reqs {
		if strings.TrimSpace(reqs[i].Name) == "" && reqs[i].FamilyProfileID == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("item %d: name is required", i)})
			return
		}
		if strings.TrimSpace(reqs[i].Status) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("item %d: rsvp_status is required", i)})
			return
		}
		items[i] = reqs[i].toParams(eventID)
	}

	res := h.registry.BulkAdd(actorFrom(r), items)

	resp := bulkAddResponse{Created: res.Created}
	if resp.Created == nil {
		resp.Created = []model.Attendee{}
	}
	for _, e := range res.Errors {
		resp.Errors = append(resp.Errors, bulkItemError{Index: e.Index, Error: e.Err.Error()})
	}

	for _, a := range res.Created {
		h.hub.Broadcast(websocket.NewMessage("attendee", "created", eventID, a.ID,
			map[string]any{"status": a.Status}))
	}
	writeJSON(w, http.StatusOK, resp)
}

type updateStatusRequest struct {
	Status string `json:"rsvp_status"`
}

func (h *AttendeeHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid attendee ID"})
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "rsvp_status is required"})
		return
	}
	status, err := rsvp.ParseStatus(req.Status)
	if err != nil {
		writeRSVPError(w, h.logger, err)
		return
	}

	res, err := h.registry.UpdateStatus(actorFrom(r), id, status)
	if err != nil {
		writeRSVPError(w, h.logger, err)
		return
	}

	eventID := res.Attendee.EventID
	extra := map[string]any{"status": res.EffectiveStatus}
	if len(res.Cascaded) > 0 {
		extra["cascaded"] = res.Cascaded
	}
	h.hub.Broadcast(websocket.NewMessage("attendee", "updated", eventID, res.Attendee.ID, extra))
	if res.PrimaryPromoted != nil {
		h.hub.Broadcast(websocket.NewMessage("attendee", "updated", eventID, res.PrimaryPromoted.ID,
			map[string]any{"status": res.PrimaryPromoted.Status}))
	}
	h.broadcastPromoted(eventID, res.Promoted)

	resp := statusResponse{
		Attendee:         res.Attendee,
		RequestedStatus:  res.RequestedStatus,
		EffectiveStatus:  res.EffectiveStatus,
		WaitlistPosition: res.WaitlistPosition,
		PrimaryPromoted:  res.PrimaryPromoted,
		Cascaded:         res.Cascaded,
		Promoted:         res.Promoted,
	}
	for _, ce := range res.CascadeErrors {
		resp.CascadeErrors = append(resp.CascadeErrors, cascadeFailure{AttendeeID: ce.AttendeeID, Error: ce.Err.Error()})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AttendeeHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid attendee ID"})
		return
	}

	res, err := h.registry.Remove(actorFrom(r), id)
	if err != nil {
		writeRSVPError(w, h.logger, err)
		return
	}

	eventID := res.Removed.EventID
	h.hub.Broadcast(websocket.NewMessage("attendee", "deleted", eventID, res.Removed.ID, nil))
	h.broadcastPromoted(eventID, res.Promoted)

	writeJSON(w, http.StatusOK, removeResponse{Removed: res.Removed, Promoted: res.Promoted})
}

type linkRequest struct {
	FamilyProfileID int64 `json:"family_profile_id"`
}

func (h *AttendeeHandler) Link(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid attendee ID"})
		return
	}

	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.FamilyProfileID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "family_profile_id is required"})
		return
	}

	attendee, err := h.registry.LinkProfile(actorFrom(r), id, req.FamilyProfileID)
	if err != nil {
		writeRSVPError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(websocket.NewMessage("attendee", "updated", attendee.EventID, attendee.ID,
		map[string]any{"family_profile_id": req.FamilyProfileID}))
	writeJSON(w, http.StatusOK, attendee)
}

func (h *AttendeeHandler) Promote(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid attendee ID"})
		return
	}

	attendee, err := h.registry.PromoteToProfile(actorFrom(r), id)
	if err != nil {
		writeRSVPError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(websocket.NewMessage("attendee", "updated", attendee.EventID, attendee.ID,
		map[string]any{"family_profile_id": attendee.FamilyProfileID}))
	writeJSON(w, http.StatusOK, attendee)
}

func (h *AttendeeHandler) validate(w http.ResponseWriter, req *addAttendeeRequest) bool {
	if strings.TrimSpace(req.Name) == "" && req.FamilyProfileID == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return false
	}
	if strings.TrimSpace(req.Status) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "rsvp_status is required"})
		return false
	}
	return true
}

// broadcastPromoted announces waitlist promotions and pushes a
// notification to each promoted attendee's account.
func (h *AttendeeHandler) broadcastPromoted(eventID int64, promoted []model.Attendee) {
	if len(promoted) == 0 {
		return
	}
	for _, p := range promoted {
		h.hub.Broadcast(websocket.NewMessage("attendee", "promoted", eventID, p.ID,
			map[string]any{"status": p.Status}))
	}
	go h.notifier.NotifyPromoted(eventID, promoted)
}
