package handler

import (
	"context"
	"net/http"
	"strings"

	"space-auth/internal/middleware"
	"space-auth/internal/model"
	"space-auth/internal/service"
	"space-auth/pkg/apierror"
)

const maxBodyBytes = 1 << 16

type sessionFlows interface {
	Register(ctx context.Context, input service.RegisterInput) (model.SessionBundle, error)
	Login(ctx context.Context, input service.LoginInput) (model.SessionBundle, error)
	Refresh(ctx context.Context, refreshToken string) (model.SessionBundle, error)
	Revoke(ctx context.Context, refreshToken string)
}

type AuthHandler struct {
	sessions sessionFlows
}

func NewAuthHandler(sessions sessionFlows) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.RegisterRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	bundle, err := h.sessions.Register(r.Context(), service.RegisterInput{
		Email:       payload.Email,
		Password:    payload.Password,
		DisplayName: payload.DisplayName,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusCreated, bundle)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.LoginRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	bundle, err := h.sessions.Login(r.Context(), service.LoginInput{
		Email:    payload.Email,
		Password: payload.Password,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, bundle)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.RefreshTokenRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	payload.RefreshToken = strings.TrimSpace(payload.RefreshToken)
	if payload.RefreshToken == "" {
		writeError(w, r, apierror.BadRequest("refreshToken is required", "refreshToken"))
		return
	}

	bundle, err := h.sessions.Refresh(r.Context(), payload.RefreshToken)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, bundle)
}

// Revoke answers 204 whether or not the token existed.
func (h *AuthHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.RefreshTokenRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	h.sessions.Revoke(r.Context(), strings.TrimSpace(payload.RefreshToken))
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, apierror.New("UNAUTHORIZED", "authentication required", "", http.StatusUnauthorized))
		return
	}

	roles := claims.Roles
	if roles == nil {
		roles = []string{}
	}

	writeSuccess(w, http.StatusOK, model.PublicUser{
		ID:          claims.UserID,
		Email:       claims.Email,
		DisplayName: claims.DisplayName,
		Roles:       roles,
	})
}
