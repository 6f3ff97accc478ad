package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/freelancequest/internal/auth"
	"github.com/dukerupert/freelancequest/internal/store"
)

// SeenMarker acknowledges delivered notifications.
type SeenMarker interface {
	MarkSeen(userID, progressID int64) error
	MarkBadgeSeen(userID, userBadgeID int64) error
}

type ProgressHandler struct {
	progressStore *store.ProgressStore
	seen          SeenMarker
	logger        *slog.Logger
}

func NewProgressHandler(ps *store.ProgressStore, seen SeenMarker, logger *slog.Logger) *ProgressHandler {
	return &ProgressHandler{progressStore: ps, seen: seen, logger: logger}
}

// List returns the caller's progress rows. ?mission_id= narrows to one
// mission and ?unseen=true to unacknowledged completions.
func (h *ProgressHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var f store.ProgressFilter
	if v := r.URL.Query().Get("mission_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid mission_id")
			return
		}
		f.MissionID = id
	}
	if v := r.URL.Query().Get("unseen"); v != "" {
		unseen, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid unseen")
			return
		}
		f.UnseenOnly = unseen
	}

	rows, err := h.progressStore.List(userID, f)
	if err != nil {
		h.logger.Error("list progress", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list progress")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

// Recent returns completions the caller has not acknowledged, oldest first.
// Clients call it after (re)connecting to catch up on missed pushes.
func (h *ProgressHandler) Recent(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	rows, err := h.progressStore.ListRecentUnseen(userID)
	if err != nil {
		h.logger.Error("list recent progress", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list recent missions")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

func (h *ProgressHandler) MarkSeen(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	userID := auth.UserID(r.Context())

	if err := h.seen.MarkSeen(userID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "completed mission not found")
			return
		}
		h.logger.Error("mark progress seen", "user_id", userID, "progress_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to mark seen")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "seen": true})
}
