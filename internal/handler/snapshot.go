package handler

import (
	"log/slog"
	"net/http"

	"github.com/jwhitden/muster/internal/model"
	"github.com/jwhitden/muster/internal/snapshot"
	"github.com/jwhitden/muster/internal/store"
)

const snapshotListLimit = 50

type SnapshotHandler struct {
	manager       *snapshot.Manager
	snapshotStore *store.SnapshotStore
	logger        *slog.Logger
}

func NewSnapshotHandler(m *snapshot.Manager, ss *store.SnapshotStore, logger *slog.Logger) *SnapshotHandler {
	return &SnapshotHandler{manager: m, snapshotStore: ss, logger: logger}
}

// RunNow handles POST /api/snapshots
func (h *SnapshotHandler) RunNow(w http.ResponseWriter, r *http.Request) {
	if !h.manager.Enabled() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "snapshots are not configured"})
		return
	}

	id, err := h.manager.RunNow(r.Context())
	if err != nil {
		h.logger.Error("manual snapshot failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "snapshot failed"})
		return
	}

	snap, err := h.snapshotStore.GetByID(id)
	if err != nil || snap == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load snapshot record"})
		return
	}

	writeJSON(w, http.StatusCreated, snap)
}

// List handles GET /api/snapshots
func (h *SnapshotHandler) List(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.snapshotStore.List(snapshotListLimit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list snapshots"})
		return
	}
	if snaps == nil {
		snaps = []model.Snapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

type snapshotStatusResponse struct {
	Enabled bool            `json:"enabled"`
	Status  snapshot.Status `json:"status"`
	Latest  *model.Snapshot `json:"latest,omitempty"`
}

// Status handles GET /api/snapshots/status
func (h *SnapshotHandler) Status(w http.ResponseWriter, r *http.Request) {
	latest, err := h.snapshotStore.LatestCompleted()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load snapshot status"})
		return
	}

	writeJSON(w, http.StatusOK, snapshotStatusResponse{
		Enabled: h.manager.Enabled(),
		Status:  h.manager.Status(),
		Latest:  latest,
	})
}
