package middleware

import (
	"context"
	"net/http"
	"strings"

	"space-auth/internal/model"
)

type tokenValidator interface {
	ParseAccessToken(tokenString string) (*model.AccessClaims, error)
}

type contextKey string

const authClaimsContextKey contextKey = "auth_claims"

// AuthMiddleware verifies bearer access tokens by signature and expiry only;
// it never consults storage.
type AuthMiddleware struct {
	validator tokenValidator
}

func NewAuthMiddleware(validator tokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid authorization header")
			return
		}

		token := strings.TrimSpace(header[7:])
		claims, err := m.validator.ParseAccessToken(token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), authClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ClaimsFromContext(ctx context.Context) (*model.AccessClaims, bool) {
	claims, ok := ctx.Value(authClaimsContextKey).(*model.AccessClaims)
	return claims, ok
}
