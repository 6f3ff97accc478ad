package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/freelancequest/internal/gamification"
	"github.com/dukerupert/freelancequest/internal/ingest"
	"github.com/dukerupert/freelancequest/internal/model"
	"github.com/dukerupert/freelancequest/internal/store"
)

// Ingester applies events and actions reported by other services.
type Ingester interface {
	HandleEvent(ctx context.Context, ev gamification.Event) (*gamification.Outcome, error)
	HandleAction(ctx context.Context, a ingest.Action) ([]*gamification.Outcome, error)
}

// InternalHandler serves the service-to-service API behind the API key.
type InternalHandler struct {
	ingester  Ingester
	userStore *store.UserStore
	logger    *slog.Logger
}

func NewInternalHandler(in Ingester, us *store.UserStore, logger *slog.Logger) *InternalHandler {
	return &InternalHandler{ingester: in, userStore: us, logger: logger}
}

// RecordEvent accepts one gamification event. A redelivery answers 200 with
// duplicate set, so callers may retry freely; storage failures answer 500 and
// must be retried.
func (h *InternalHandler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	var ev gamification.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	out, err := h.ingester.HandleEvent(r.Context(), ev)
	if err != nil {
		if errors.Is(err, gamification.ErrInvalidEvent) || errors.Is(err, gamification.ErrReservedEvent) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("record event", "user_id", ev.UserID, "event_type", ev.Type, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to record event")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// RecordAction accepts a marketplace action and applies the events it maps to.
func (h *InternalHandler) RecordAction(w http.ResponseWriter, r *http.Request) {
	var a ingest.Action
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	outs, err := h.ingester.HandleAction(r.Context(), a)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrUnknownAction),
			errors.Is(err, ingest.ErrMissingActor),
			errors.Is(err, ingest.ErrMissingEntity),
			errors.Is(err, ingest.ErrMissingSubject),
			errors.Is(err, gamification.ErrInvalidEvent):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to record action")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"outcomes": nonNil(outs)})
}

type userRequest struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// PutUser registers or refreshes the identity of user {id}.
func (h *InternalHandler) PutUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}
	if !model.ValidRole(req.Role) {
		writeError(w, http.StatusBadRequest, "role must be client or freelancer")
		return
	}

	u, err := h.userStore.Upsert(id, req.Username, req.Role)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.username") {
			writeError(w, http.StatusConflict, "username already taken")
			return
		}
		h.logger.Error("upsert user", "user_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save user")
		return
	}
	writeJSON(w, http.StatusOK, u)
}
