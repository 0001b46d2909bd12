package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"space-auth/internal/model"
)

// TokenRepository keeps refresh tokens in the refresh_tokens table.
// Rotation relies on the row lock taken by a conditional UPDATE: a second
// concurrent rotation of the same token blocks, then re-evaluates the WHERE
// clause against the committed revoked_at and matches nothing.
type TokenRepository struct {
	pool *pgxpool.Pool
}

func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

func (r *TokenRepository) Issue(ctx context.Context, token model.RefreshToken) error {
	if err := insertToken(ctx, r.pool, token); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

func (r *TokenRepository) Find(ctx context.Context, token string) (model.RefreshToken, error) {
	var t model.RefreshToken
	err := r.pool.QueryRow(ctx,
		`SELECT token, user_id::text, created_at, expires_at, revoked_at
		 FROM refresh_tokens WHERE token = $1`, token).
		Scan(&t.Token, &t.UserID, &t.CreatedAt, &t.ExpiresAt, &t.RevokedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.RefreshToken{}, model.ErrTokenNotFound
	}
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("find refresh token: %w", err)
	}
	return t, nil
}

// Revoke reports the owner and true only when this call moved the token from
// unrevoked to revoked.
func (r *TokenRepository) Revoke(ctx context.Context, token string, at time.Time) (string, bool, error) {
	var userID string
	err := r.pool.QueryRow(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2
		 WHERE token = $1 AND revoked_at IS NULL
		 RETURNING user_id::text`, token, at.UTC()).Scan(&userID)

	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return userID, true, nil
}

func (r *TokenRepository) Rotate(ctx context.Context, oldToken string, next model.RefreshToken) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rotation: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	at := next.CreatedAt.UTC()
	tag, err := tx.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = $3
		 WHERE token = $1 AND user_id = $2 AND revoked_at IS NULL AND expires_at > $3`,
		oldToken, next.UserID, at)
	if err != nil {
		return fmt.Errorf("consume refresh token: %w", err)
	}

	if tag.RowsAffected() == 0 {
		_ = tx.Rollback(ctx)
		return r.rejection(ctx, oldToken, next.UserID, at)
	}

	if err := insertToken(ctx, tx, next); err != nil {
		return fmt.Errorf("store rotated refresh token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rotation: %w", err)
	}
	return nil
}

// rejection explains why the conditional update matched no row.
func (r *TokenRepository) rejection(ctx context.Context, token string, userID string, at time.Time) error {
	current, err := r.Find(ctx, token)
	if err != nil {
		return err
	}
	if current.UserID != userID {
		return model.ErrTokenNotFound
	}
	if cause := current.InactiveCause(at); cause != nil {
		return cause
	}
	// Active again cannot happen: revoked_at is never cleared.
	return model.ErrTokenRevoked
}

// execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func insertToken(ctx context.Context, db execer, token model.RefreshToken) error {
	_, err := db.Exec(ctx,
		`INSERT INTO refresh_tokens (token, user_id, created_at, expires_at)
		 VALUES ($1, $2, $3, $4)`,
		token.Token, token.UserID, token.CreatedAt.UTC(), token.ExpiresAt.UTC())

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "refresh_tokens_pkey" {
		return errDuplicateToken
	}
	return err
}
