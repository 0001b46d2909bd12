package model

import (
	"errors"
	"strings"
)

var (
	// User related errors
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Refresh token storage errors
	ErrTokenNotFound = errors.New("refresh token not found")
	ErrTokenExpired  = errors.New("refresh token expired")
	ErrTokenRevoked  = errors.New("refresh token revoked")

	// Session errors returned to callers
	ErrInvalidToken  = errors.New("invalid refresh token")
	ErrTokenInactive = errors.New("refresh token is expired or revoked")

	// Access token errors
	ErrUnauthorized = errors.New("unauthorized")
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects every problem found in a request so callers can
// surface them all at once.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, fe := range v {
		parts = append(parts, fe.Message)
	}
	return strings.Join(parts, ", ")
}

func (v *ValidationErrors) Add(field string, message string) {
	*v = append(*v, FieldError{Field: field, Message: message})
}

// Err returns nil when nothing was collected.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}
