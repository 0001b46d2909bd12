package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"space-auth/internal/model"
)

// MemoryTokenRepository is a process-local refresh token store used for
// development and tests. One mutex serializes every mutation, which also makes
// Rotate atomic.
type MemoryTokenRepository struct {
	mu     sync.RWMutex
	tokens map[string]model.RefreshToken
}

func NewMemoryTokenRepository() *MemoryTokenRepository {
	return &MemoryTokenRepository{tokens: map[string]model.RefreshToken{}}
}

func (r *MemoryTokenRepository) Issue(_ context.Context, token model.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tokens[token.Token]; exists {
		return errDuplicateToken
	}
	token.RevokedAt = nil
	r.tokens[token.Token] = token
	return nil
}

func (r *MemoryTokenRepository) Find(_ context.Context, token string) (model.RefreshToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, exists := r.tokens[token]
	if !exists {
		return model.RefreshToken{}, model.ErrTokenNotFound
	}
	return t, nil
}

func (r *MemoryTokenRepository) Revoke(_ context.Context, token string, at time.Time) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, exists := r.tokens[token]
	if !exists || t.Revoked() {
		return "", false, nil
	}
	revokedAt := at.UTC()
	t.RevokedAt = &revokedAt
	r.tokens[token] = t
	return t.UserID, true, nil
}

func (r *MemoryTokenRepository) Rotate(_ context.Context, oldToken string, next model.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.tokens[oldToken]
	if !exists || current.UserID != next.UserID {
		return model.ErrTokenNotFound
	}
	at := next.CreatedAt.UTC()
	if cause := current.InactiveCause(at); cause != nil {
		return cause
	}
	if _, taken := r.tokens[next.Token]; taken {
		return errDuplicateToken
	}

	current.RevokedAt = &at
	r.tokens[oldToken] = current
	next.RevokedAt = nil
	r.tokens[next.Token] = next
	return nil
}

// MemoryUserRepository keeps users in process memory, keyed by id and by
// normalized email.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]model.User
	byEmail map[string]string
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    map[string]model.User{},
		byEmail: map[string]string{},
	}
}

func (r *MemoryUserRepository) FindByID(_ context.Context, id string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, exists := r.byID[id]
	if !exists {
		return model.User{}, model.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.byEmail[model.NormalizeEmail(email)]
	if !exists {
		return model.User{}, model.ErrUserNotFound
	}
	return cloneUser(r.byID[id]), nil
}

func (r *MemoryUserRepository) Create(_ context.Context, u model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := model.NormalizeEmail(u.Email)
	if _, exists := r.byEmail[key]; exists {
		return model.ErrEmailTaken
	}
	r.byID[u.ID] = cloneUser(u)
	r.byEmail[key] = u.ID
	return nil
}

func (r *MemoryUserRepository) SetRoles(_ context.Context, id string, roles []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, exists := r.byID[id]
	if !exists {
		return model.ErrUserNotFound
	}
	u.Roles = slices.Clone(roles)
	r.byID[id] = u
	return nil
}

func cloneUser(u model.User) model.User {
	u.Roles = slices.Clone(u.Roles)
	return u
}
