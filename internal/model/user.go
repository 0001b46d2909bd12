package model

import (
	"strings"
	"time"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"displayName,omitempty"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"createdAt"`
}

// PublicUser is the projection of a user that is safe to hand to clients.
type PublicUser struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	DisplayName string   `json:"displayName,omitempty"`
	Roles       []string `json:"roles"`
}

func (u User) Public(roles []string) PublicUser {
	if roles == nil {
		roles = []string{}
	}
	return PublicUser{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Roles:       roles,
	}
}

// NormalizeEmail is the key used for case-insensitive email lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type AccessClaims struct {
	UserID      string   `json:"sub"`
	Email       string   `json:"email"`
	DisplayName string   `json:"name,omitempty"`
	Roles       []string `json:"roles"`
	TokenID     string   `json:"jti"`
}

type SessionBundle struct {
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
	ExpiresAt    time.Time  `json:"expiresAt"`
	User         PublicUser `json:"user"`
}
