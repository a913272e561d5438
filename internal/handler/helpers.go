package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jwhitden/muster/internal/auth"
	"github.com/jwhitden/muster/internal/rsvp"
)

func parseIDParam(r *http.Request) (int64, error) {
	idStr := r.PathValue("id")
	return strconv.ParseInt(idStr, 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// actorFrom builds the registry actor for the authenticated request.
func actorFrom(r *http.Request) rsvp.Actor {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		return rsvp.Actor{}
	}
	return rsvp.Actor{UserID: ac.UserID, Role: ac.Role}
}

// writeRSVPError maps registry errors onto HTTP statuses. Conflicts with
// existing state are 409, rule violations are 422, and anything
// unrecognized is logged and reported as a 500.
func writeRSVPError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, rsvp.ErrDuplicatePrimary),
		errors.Is(err, rsvp.ErrAlreadyLinked),
		errors.Is(err, rsvp.ErrCapacityExceeded):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, rsvp.ErrPrimaryRequired),
		errors.Is(err, rsvp.ErrPrimaryNotGoing),
		errors.Is(err, rsvp.ErrPrimaryNotRemovable),
		errors.Is(err, rsvp.ErrInvalidStatus),
		errors.Is(err, rsvp.ErrInvalidType):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, rsvp.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, rsvp.ErrPermissionDenied):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	default:
		logger.Error("rsvp operation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
