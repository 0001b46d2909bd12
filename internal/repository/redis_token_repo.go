package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"space-auth/internal/model"
)

const redisTokenPrefix = "refresh_token:"

const (
	rotateStatusNotFound  int64 = 0
	rotateStatusRevoked   int64 = 1
	rotateStatusExpired   int64 = 2
	rotateStatusRotated   int64 = 3
	rotateStatusDuplicate int64 = 4
)

const issueTokenScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "user_id", ARGV[1], "created_at", ARGV[2], "expires_at", ARGV[3])
return 1
`

// Returns the owner when this call set revoked_at, nil otherwise.
const revokeTokenScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return false
end
if redis.call("HSETNX", KEYS[1], "revoked_at", ARGV[1]) == 0 then
  return false
end
return redis.call("HGET", KEYS[1], "user_id")
`

// KEYS[1] old token, KEYS[2] successor.
// ARGV[1] owner, ARGV[2] rotation time (unix ms), ARGV[3] successor expiry (unix ms).
const rotateTokenScript = `
local fields = redis.call("HMGET", KEYS[1], "user_id", "expires_at", "revoked_at")
if not fields[1] or fields[1] ~= ARGV[1] then
  return 0
end
if fields[3] then
  return 1
end
local now = tonumber(ARGV[2])
if tonumber(fields[2]) <= now then
  return 2
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  return 4
end
redis.call("HSET", KEYS[1], "revoked_at", ARGV[2])
redis.call("HSET", KEYS[2], "user_id", ARGV[1], "created_at", ARGV[2], "expires_at", ARGV[3])
return 3
`

var (
	issueTokenLua  = redis.NewScript(issueTokenScript)
	revokeTokenLua = redis.NewScript(revokeTokenScript)
	rotateTokenLua = redis.NewScript(rotateTokenScript)
)

// RedisTokenRepository stores each refresh token as a hash. Every mutation is a
// Lua script, so the check and the write happen in one server-side step.
// Rotation touches two keys and therefore needs a non-clustered deployment.
type RedisTokenRepository struct {
	client redis.UniversalClient
}

func NewRedisTokenRepository(client redis.UniversalClient) *RedisTokenRepository {
	return &RedisTokenRepository{client: client}
}

func (r *RedisTokenRepository) key(token string) string {
	return redisTokenPrefix + token
}

func (r *RedisTokenRepository) Issue(ctx context.Context, token model.RefreshToken) error {
	created, err := issueTokenLua.Run(ctx, r.client, []string{r.key(token.Token)},
		token.UserID, token.CreatedAt.UnixMilli(), token.ExpiresAt.UnixMilli()).Int64()
	if err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	if created == 0 {
		return errDuplicateToken
	}
	return nil
}

func (r *RedisTokenRepository) Find(ctx context.Context, token string) (model.RefreshToken, error) {
	fields, err := r.client.HGetAll(ctx, r.key(token)).Result()
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("find refresh token: %w", err)
	}
	if len(fields) == 0 {
		return model.RefreshToken{}, model.ErrTokenNotFound
	}

	t := model.RefreshToken{Token: token, UserID: fields["user_id"]}
	if t.CreatedAt, err = parseMillis(fields["created_at"]); err != nil {
		return model.RefreshToken{}, fmt.Errorf("decode refresh token created_at: %w", err)
	}
	if t.ExpiresAt, err = parseMillis(fields["expires_at"]); err != nil {
		return model.RefreshToken{}, fmt.Errorf("decode refresh token expires_at: %w", err)
	}
	if raw, ok := fields["revoked_at"]; ok {
		revokedAt, err := parseMillis(raw)
		if err != nil {
			return model.RefreshToken{}, fmt.Errorf("decode refresh token revoked_at: %w", err)
		}
		t.RevokedAt = &revokedAt
	}
	return t, nil
}

func (r *RedisTokenRepository) Revoke(ctx context.Context, token string, at time.Time) (string, bool, error) {
	userID, err := revokeTokenLua.Run(ctx, r.client, []string{r.key(token)}, at.UnixMilli()).Text()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return userID, true, nil
}

func (r *RedisTokenRepository) Rotate(ctx context.Context, oldToken string, next model.RefreshToken) error {
	status, err := rotateTokenLua.Run(ctx, r.client,
		[]string{r.key(oldToken), r.key(next.Token)},
		next.UserID, next.CreatedAt.UnixMilli(), next.ExpiresAt.UnixMilli()).Int64()
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}

	switch status {
	case rotateStatusRotated:
		return nil
	case rotateStatusNotFound:
		return model.ErrTokenNotFound
	case rotateStatusRevoked:
		return model.ErrTokenRevoked
	case rotateStatusExpired:
		return model.ErrTokenExpired
	case rotateStatusDuplicate:
		return errDuplicateToken
	default:
		return fmt.Errorf("rotate refresh token: unexpected script status %d", status)
	}
}

func parseMillis(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
