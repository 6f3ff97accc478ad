package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/freelancequest/internal/cadence"
	"github.com/dukerupert/freelancequest/internal/store"
)

type MissionHandler struct {
	missionStore *store.MissionStore
	logger       *slog.Logger
}

func NewMissionHandler(ms *store.MissionStore, logger *slog.Logger) *MissionHandler {
	return &MissionHandler{missionStore: ms, logger: logger}
}

// List returns the active mission catalog, optionally narrowed by ?cadence=.
func (h *MissionHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("cadence")
	if filter != "" {
		if _, err := cadence.Parse(filter); err != nil {
			writeError(w, http.StatusBadRequest, "unknown cadence")
			return
		}
	}

	missions, err := h.missionStore.ListActive(filter)
	if err != nil {
		h.logger.Error("list missions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list missions")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(missions))
}
