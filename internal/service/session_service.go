package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"space-auth/internal/event"
	"space-auth/internal/middleware"
	"space-auth/internal/model"
)

// Accounts is the user collaborator the session flows depend on.
type Accounts interface {
	FindUserByEmail(ctx context.Context, email string) (model.User, error)
	FindUserByID(ctx context.Context, id string) (model.User, error)
	CreateUser(ctx context.Context, email string, password string, displayName *string) (model.User, error)
	VerifyPassword(user model.User, password string) bool
	EqualizeTiming(password string)
	RolesOf(user model.User) []string
}

// RefreshTokenStore persists refresh tokens. Rotate must be atomic: either the
// old token is revoked and next is stored, or nothing changes.
type RefreshTokenStore interface {
	Issue(ctx context.Context, token model.RefreshToken) error
	Find(ctx context.Context, token string) (model.RefreshToken, error)
	// Revoke reports the owner and true only when the token went from
	// unrevoked to revoked in this call.
	Revoke(ctx context.Context, token string, at time.Time) (userID string, revoked bool, err error)
	Rotate(ctx context.Context, oldToken string, next model.RefreshToken) error
}

type Signer interface {
	IssueAccessToken(user model.User, roles []string) (string, time.Time, error)
	IssueRefreshToken() (string, error)
}

type RegisterInput struct {
	Email       string
	Password    string
	DisplayName *string
}

type LoginInput struct {
	Email    string
	Password string
}

// SessionService runs the register, login, refresh and revoke flows. It never
// retries: a retried refresh would fail anyway because the token is spent.
type SessionService struct {
	accounts   Accounts
	tokens     RefreshTokenStore
	signer     Signer
	bus        event.Bus
	refreshTTL time.Duration
	now        func() time.Time
}

func NewSessionService(accounts Accounts, tokens RefreshTokenStore, signer Signer, bus event.Bus, refreshTTL time.Duration) *SessionService {
	return &SessionService{
		accounts:   accounts,
		tokens:     tokens,
		signer:     signer,
		bus:        bus,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

func (s *SessionService) Register(ctx context.Context, input RegisterInput) (model.SessionBundle, error) {
	_, err := s.accounts.FindUserByEmail(ctx, input.Email)
	switch {
	case err == nil:
		return model.SessionBundle{}, model.ErrEmailTaken
	case !errors.Is(err, model.ErrUserNotFound):
		return model.SessionBundle{}, err
	}

	user, err := s.accounts.CreateUser(ctx, input.Email, input.Password, input.DisplayName)
	if err != nil {
		return model.SessionBundle{}, err
	}

	s.publish(event.TypeUserRegistered, user.ID, nil)
	return s.startSession(ctx, user)
}

// Login answers model.ErrInvalidCredentials for both an unknown email and a
// wrong password.
func (s *SessionService) Login(ctx context.Context, input LoginInput) (model.SessionBundle, error) {
	user, err := s.accounts.FindUserByEmail(ctx, input.Email)
	if errors.Is(err, model.ErrUserNotFound) {
		s.accounts.EqualizeTiming(input.Password)
		s.publish(event.TypeLoginFailed, "", map[string]string{"reason": "invalid_credentials"})
		return model.SessionBundle{}, model.ErrInvalidCredentials
	}
	if err != nil {
		return model.SessionBundle{}, err
	}

	if !s.accounts.VerifyPassword(user, input.Password) {
		s.publish(event.TypeLoginFailed, "", map[string]string{"reason": "invalid_credentials"})
		return model.SessionBundle{}, model.ErrInvalidCredentials
	}

	return s.startSession(ctx, user)
}

// Refresh redeems refreshToken once and returns a bundle holding its
// successor. Unknown tokens yield model.ErrInvalidToken; expired or revoked
// ones, including a token a concurrent caller just redeemed, yield
// model.ErrTokenInactive wrapping the cause.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (model.SessionBundle, error) {
	stored, err := s.tokens.Find(ctx, refreshToken)
	if errors.Is(err, model.ErrTokenNotFound) {
		s.publish(event.TypeRefreshDenied, "", map[string]string{"reason": "unknown_token"})
		return model.SessionBundle{}, model.ErrInvalidToken
	}
	if err != nil {
		return model.SessionBundle{}, err
	}

	now := s.now().UTC()
	if cause := stored.InactiveCause(now); cause != nil {
		return model.SessionBundle{}, s.inactive(stored.UserID, cause)
	}

	user, err := s.accounts.FindUserByID(ctx, stored.UserID)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.SessionBundle{}, model.ErrInvalidToken
	}
	if err != nil {
		return model.SessionBundle{}, err
	}

	next, err := s.newRefreshToken(user.ID, now)
	if err != nil {
		return model.SessionBundle{}, err
	}

	if err := s.tokens.Rotate(ctx, refreshToken, next); err != nil {
		switch {
		case errors.Is(err, model.ErrTokenRevoked), errors.Is(err, model.ErrTokenExpired):
			return model.SessionBundle{}, s.inactive(user.ID, err)
		case errors.Is(err, model.ErrTokenNotFound):
			return model.SessionBundle{}, model.ErrInvalidToken
		default:
			return model.SessionBundle{}, err
		}
	}

	s.publish(event.TypeSessionRotated, user.ID, nil)
	return s.bundle(user, next)
}

// Revoke always succeeds for the caller. Unknown and already revoked tokens
// are no-ops; storage failures are logged, not returned.
func (s *SessionService) Revoke(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}

	userID, revoked, err := s.tokens.Revoke(ctx, refreshToken, s.now().UTC())
	if err != nil {
		slog.ErrorContext(ctx, "revoke refresh token failed",
			"request_id", middleware.RequestIDFromContext(ctx),
			"error", err)
		return
	}

	if revoked {
		s.publish(event.TypeSessionRevoked, userID, nil)
	}
}

func (s *SessionService) startSession(ctx context.Context, user model.User) (model.SessionBundle, error) {
	token, err := s.newRefreshToken(user.ID, s.now().UTC())
	if err != nil {
		return model.SessionBundle{}, err
	}

	if err := s.tokens.Issue(ctx, token); err != nil {
		return model.SessionBundle{}, err
	}

	s.publish(event.TypeSessionIssued, user.ID, nil)
	return s.bundle(user, token)
}

func (s *SessionService) newRefreshToken(userID string, now time.Time) (model.RefreshToken, error) {
	value, err := s.signer.IssueRefreshToken()
	if err != nil {
		return model.RefreshToken{}, err
	}

	return model.RefreshToken{
		Token:     value,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.refreshTTL),
	}, nil
}

func (s *SessionService) bundle(user model.User, refresh model.RefreshToken) (model.SessionBundle, error) {
	roles := s.accounts.RolesOf(user)

	accessToken, expiresAt, err := s.signer.IssueAccessToken(user, roles)
	if err != nil {
		return model.SessionBundle{}, err
	}

	return model.SessionBundle{
		AccessToken:  accessToken,
		RefreshToken: refresh.Token,
		ExpiresAt:    expiresAt,
		User:         user.Public(roles),
	}, nil
}

func (s *SessionService) inactive(userID string, cause error) error {
	reason := "revoked"
	if errors.Is(cause, model.ErrTokenExpired) {
		reason = "expired"
	}
	s.publish(event.TypeRefreshDenied, userID, map[string]string{"reason": reason})
	return fmt.Errorf("%w: %w", model.ErrTokenInactive, cause)
}

func (s *SessionService) publish(eventType event.Type, userID string, payload map[string]string) {
	if s.bus == nil {
		return
	}

	s.bus.Publish(event.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Payload:   payload,
		Timestamp: s.now().UTC().Format(time.RFC3339),
		ActorID:   userID,
	})
}
