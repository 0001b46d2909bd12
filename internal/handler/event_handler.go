package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"space-auth/internal/event"
	"space-auth/internal/middleware"
	"space-auth/internal/model"
)

type eventHistory interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]event.Event, error)
}

// EventHandler serves the caller's own auth event trail.
type EventHandler struct {
	history eventHistory
}

func NewEventHandler(history eventHistory) *EventHandler {
	return &EventHandler{history: history}
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, model.ErrUnauthorized)
		return
	}

	items, err := h.history.ListByUser(r.Context(), claims.UserID, parseIntOrDefault(r.URL.Query().Get("limit"), 50))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"items": items})
}

func parseIntOrDefault(raw string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return v
}
