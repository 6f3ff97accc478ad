package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/freelancequest/internal/auth"
	"github.com/dukerupert/freelancequest/internal/store"
)

type BadgeHandler struct {
	badgeStore *store.BadgeStore
	seen       SeenMarker
	logger     *slog.Logger
}

func NewBadgeHandler(bs *store.BadgeStore, seen SeenMarker, logger *slog.Logger) *BadgeHandler {
	return &BadgeHandler{badgeStore: bs, seen: seen, logger: logger}
}

// List returns every badge with the caller's unlocked flag.
func (h *BadgeHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	badges, err := h.badgeStore.ListWithStatus(userID)
	if err != nil {
		h.logger.Error("list badges", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list badges")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(badges))
}

func (h *BadgeHandler) UserBadges(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	badges, err := h.badgeStore.ListByUser(userID)
	if err != nil {
		h.logger.Error("list user badges", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list badges")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(badges))
}

func (h *BadgeHandler) Recent(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	badges, err := h.badgeStore.ListRecentUnseen(userID)
	if err != nil {
		h.logger.Error("list recent badges", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list badges")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(badges))
}

// MarkSeen acknowledges an unlock; {id} is the user badge id.
func (h *BadgeHandler) MarkSeen(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	userID := auth.UserID(r.Context())

	if err := h.seen.MarkBadgeSeen(userID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "badge not found")
			return
		}
		h.logger.Error("mark badge seen", "user_id", userID, "user_badge_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to mark seen")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "seen": true})
}
