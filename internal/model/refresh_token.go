package model

import "time"

// RefreshToken is a persisted, opaque, single-use bearer credential.
// A record moves from active to revoked at most once and is never deleted.
type RefreshToken struct {
	Token     string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

func (t RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

func (t RefreshToken) Revoked() bool {
	return t.RevokedAt != nil
}

func (t RefreshToken) Active(now time.Time) bool {
	return !t.Revoked() && !t.Expired(now)
}

// InactiveCause reports why a token cannot be redeemed at now, or nil when it is active.
func (t RefreshToken) InactiveCause(now time.Time) error {
	switch {
	case t.Revoked():
		return ErrTokenRevoked
	case t.Expired(now):
		return ErrTokenExpired
	default:
		return nil
	}
}
