package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jwhitden/muster/internal/auth"
	"github.com/jwhitden/muster/internal/model"
	"github.com/jwhitden/muster/internal/store"
)

type FamilyProfileHandler struct {
	profileStore *store.FamilyProfileStore
	logger       *slog.Logger
}

func NewFamilyProfileHandler(ps *store.FamilyProfileStore, logger *slog.Logger) *FamilyProfileHandler {
	return &FamilyProfileHandler{profileStore: ps, logger: logger}
}

type profileRequest struct {
	Name     string `json:"name"`
	AgeGroup string `json:"age_group"`
}

func (h *FamilyProfileHandler) List(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.profileStore.ListByUser(auth.UserID(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list family profiles"})
		return
	}
	if profiles == nil {
		profiles = []model.FamilyProfile{}
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (h *FamilyProfileHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	userID := auth.UserID(r.Context())
	existing, err := h.profileStore.FindByName(userID, req.Name)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to check name"})
		return
	}
	if existing != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "a family profile with that name already exists"})
		return
	}

	profile, err := h.profileStore.Create(userID, req.Name, strings.TrimSpace(req.AgeGroup))
	if err != nil {
		h.logger.Error("create family profile", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create family profile"})
		return
	}

	writeJSON(w, http.StatusCreated, profile)
}

func (h *FamilyProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid profile ID"})
		return
	}

	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	// The user_id predicate means a profile owned by someone else is
	// indistinguishable from a missing one.
	profile, err := h.profileStore.Update(id, auth.UserID(r.Context()), req.Name, strings.TrimSpace(req.AgeGroup))
	if err != nil {
		h.logger.Error("update family profile", "error", err, "profile_id", id)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update family profile"})
		return
	}
	if profile == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "family profile not found"})
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

func (h *FamilyProfileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid profile ID"})
		return
	}

	if err := h.profileStore.Delete(id, auth.UserID(r.Context())); err != nil {
		h.logger.Error("delete family profile", "error", err, "profile_id", id)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete family profile"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
