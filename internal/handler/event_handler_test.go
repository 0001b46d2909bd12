package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"space-auth/internal/event"
	"space-auth/internal/middleware"
	"space-auth/internal/model"
)

type stubHistory struct {
	userID string
	limit  int
	events []event.Event
	err    error
}

func (s *stubHistory) ListByUser(_ context.Context, userID string, limit int) ([]event.Event, error) {
	s.userID = userID
	s.limit = limit
	return s.events, s.err
}

func TestEventHandlerList(t *testing.T) {
	auth := middleware.NewAuthMiddleware(staticValidator{claims: &model.AccessClaims{UserID: "u-1"}})

	t.Run("lists the caller's events", func(t *testing.T) {
		history := &stubHistory{events: []event.Event{{ID: "e-1", Type: event.TypeSessionIssued}}}
		endpoint := auth.RequireAuth(http.HandlerFunc(NewEventHandler(history).List))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/events?limit=5", nil)
		req.Header.Set("Authorization", "Bearer good")
		rec := httptest.NewRecorder()
		endpoint.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u-1", history.userID)
		assert.Equal(t, 5, history.limit)

		var data struct {
			Items []event.Event `json:"items"`
		}
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &data))
		require.Len(t, data.Items, 1)
		assert.Equal(t, event.TypeSessionIssued, data.Items[0].Type)
	})

	t.Run("hides storage errors", func(t *testing.T) {
		history := &stubHistory{err: errors.New("pool closed")}
		endpoint := auth.RequireAuth(http.HandlerFunc(NewEventHandler(history).List))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/events?limit=abc", nil)
		req.Header.Set("Authorization", "Bearer good")
		rec := httptest.NewRecorder()
		endpoint.ServeHTTP(rec, req)

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, 50, history.limit)
		assert.NotContains(t, rec.Body.String(), "pool closed")
	})
}
