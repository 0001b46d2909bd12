package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"space-auth/internal/model"
)

const uniqueViolation = "23505"

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (model.User, error) {
	// A malformed id cannot match the uuid primary key.
	if _, err := uuid.Parse(id); err != nil {
		return model.User{}, model.ErrUserNotFound
	}

	return r.findOne(ctx,
		`SELECT id::text, email, password_hash, coalesce(display_name, ''), roles, created_at
		 FROM users WHERE id = $1`, id)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (model.User, error) {
	return r.findOne(ctx,
		`SELECT id::text, email, password_hash, coalesce(display_name, ''), roles, created_at
		 FROM users WHERE lower(email) = $1`, model.NormalizeEmail(email))
}

func (r *UserRepository) findOne(ctx context.Context, query string, arg string) (model.User, error) {
	var u model.User
	err := r.pool.QueryRow(ctx, query, arg).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.Roles, &u.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

// Create inserts u. The unique index on lower(email) turns a concurrent
// duplicate registration into model.ErrEmailTaken.
func (r *UserRepository) Create(ctx context.Context, u model.User) error {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, display_name, roles, created_at)
		 VALUES ($1, $2, $3, nullif($4, ''), $5, $6)`,
		u.ID, u.Email, u.PasswordHash, u.DisplayName, roles, u.CreatedAt.UTC())

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return model.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepository) SetRoles(ctx context.Context, id string, roles []string) error {
	if _, err := uuid.Parse(id); err != nil {
		return model.ErrUserNotFound
	}
	if roles == nil {
		roles = []string{}
	}

	tag, err := r.pool.Exec(ctx, `UPDATE users SET roles = $2 WHERE id = $1`, id, roles)
	if err != nil {
		return fmt.Errorf("set user roles: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrUserNotFound
	}
	return nil
}
