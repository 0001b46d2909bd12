package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"space-auth/internal/model"
)

type stubValidator struct {
	claims *model.AccessClaims
	err    error
	seen   string
}

func (v *stubValidator) ParseAccessToken(token string) (*model.AccessClaims, error) {
	v.seen = token
	return v.claims, v.err
}

func TestRequireAuth(t *testing.T) {
	claims := &model.AccessClaims{UserID: "user-1", Email: "a@x.com"}

	var reached *model.AccessClaims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("passes claims through", func(t *testing.T) {
		validator := &stubValidator{claims: claims}
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		req.Header.Set("Authorization", "bearer  abc.def.ghi ")
		rec := httptest.NewRecorder()

		NewAuthMiddleware(validator).RequireAuth(next).ServeHTTP(rec, req)

		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, "abc.def.ghi", validator.seen)
		require.Equal(t, claims, reached)
	})

	t.Run("rejects a missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		rec := httptest.NewRecorder()

		NewAuthMiddleware(&stubValidator{claims: claims}).RequireAuth(next).ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
		require.Contains(t, rec.Body.String(), `"UNAUTHORIZED"`)
	})

	t.Run("rejects an invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		req.Header.Set("Authorization", "Bearer forged")
		rec := httptest.NewRecorder()

		NewAuthMiddleware(&stubValidator{err: errors.New("bad signature")}).RequireAuth(next).ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Body.String(), "invalid or expired token")
	})
}

func TestRecovery(t *testing.T) {
	handler := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), `"INTERNAL_ERROR"`)
	require.NotContains(t, rec.Body.String(), "boom")
}

func TestLoggingSetsRequestID(t *testing.T) {
	var seen string
	handler := Logging(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NotEmpty(t, seen)
	require.Equal(t, seen, rec.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "client-id")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, "client-id", seen)
}
