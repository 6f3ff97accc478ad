package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/freelancequest/internal/auth"
	"github.com/dukerupert/freelancequest/internal/level"
	"github.com/dukerupert/freelancequest/internal/model"
	"github.com/dukerupert/freelancequest/internal/store"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

type ProfileHandler struct {
	profileStore *store.ProfileStore
	curve        level.Table
	logger       *slog.Logger
}

func NewProfileHandler(ps *store.ProfileStore, curve level.Table, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profileStore: ps, curve: curve, logger: logger}
}

type profileResponse struct {
	model.Profile
	// NextLevelXP is the cumulative xp of the next level, null at the cap.
	NextLevelXP *int64 `json:"next_level_xp"`
	// LevelXP is the cumulative xp the current level started at.
	LevelXP int64 `json:"level_xp"`
}

func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	p, err := h.profileStore.Get(userID)
	if err != nil {
		h.logger.Error("get profile", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}

	resp := profileResponse{Profile: *p}
	resp.LevelXP, _ = h.curve.Threshold(p.Level)
	if next, ok := h.curve.Threshold(p.Level + 1); ok {
		resp.NextLevelXP = &next
	}
	writeJSON(w, http.StatusOK, resp)
}

// Leaderboard serves /api/leaderboard/{role} for role freelancers or clients.
func (h *ProfileHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	var role string
	switch r.PathValue("role") {
	case "freelancers":
		role = model.RoleFreelancer
	case "clients":
		role = model.RoleClient
	default:
		writeError(w, http.StatusNotFound, "unknown leaderboard")
		return
	}

	limit := defaultLeaderboardLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxLeaderboardLimit)
	}

	entries, err := h.profileStore.Leaderboard(role, limit)
	if err != nil {
		h.logger.Error("leaderboard", "role", role, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load leaderboard")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(entries))
}
