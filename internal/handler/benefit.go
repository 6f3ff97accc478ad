package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/freelancequest/internal/auth"
	"github.com/dukerupert/freelancequest/internal/model"
	"github.com/dukerupert/freelancequest/internal/store"
)

type BenefitHandler struct {
	benefitStore *store.BenefitStore
	logger       *slog.Logger
}

func NewBenefitHandler(bs *store.BenefitStore, logger *slog.Logger) *BenefitHandler {
	return &BenefitHandler{benefitStore: bs, logger: logger}
}

func (h *BenefitHandler) List(w http.ResponseWriter, r *http.Request) {
	benefits, err := h.benefitStore.List()
	if err != nil {
		h.logger.Error("list benefits", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list benefits")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(benefits))
}

func (h *BenefitHandler) UserBenefits(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	owned, err := h.benefitStore.ListByUser(userID)
	if err != nil {
		h.logger.Error("list user benefits", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list benefits")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(owned))
}

type redeemResponse struct {
	Benefit model.UserBenefit `json:"benefit"`
	Points  int64             `json:"points"`
}

// Redeem buys a benefit with points. Each benefit can be owned once.
func (h *BenefitHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	userID := auth.UserID(r.Context())

	ub, profile, err := h.benefitStore.Redeem(r.Context(), userID, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "benefit not found")
		return
	case errors.Is(err, store.ErrAlreadyOwned):
		writeError(w, http.StatusConflict, "benefit already owned")
		return
	case errors.Is(err, store.ErrInsufficientPoints):
		writeError(w, http.StatusBadRequest, "not enough points")
		return
	case err != nil:
		h.logger.Error("redeem benefit", "user_id", userID, "benefit_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to redeem benefit")
		return
	}

	h.logger.Info("benefit redeemed", "user_id", userID, "benefit", ub.Benefit.Code, "points_left", profile.Points)
	writeJSON(w, http.StatusCreated, redeemResponse{Benefit: *ub, Points: profile.Points})
}
