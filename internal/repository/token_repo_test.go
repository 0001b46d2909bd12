package repository

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"space-auth/internal/database"
	"space-auth/internal/model"
)

type tokenStore interface {
	Issue(ctx context.Context, token model.RefreshToken) error
	Find(ctx context.Context, token string) (model.RefreshToken, error)
	Revoke(ctx context.Context, token string, at time.Time) (string, bool, error)
	Rotate(ctx context.Context, oldToken string, next model.RefreshToken) error
}

type tokenStoreFixture struct {
	store   tokenStore
	newUser func(t *testing.T) string
}

func TestMemoryTokenRepository(t *testing.T) {
	runTokenStoreSuite(t, func(t *testing.T) tokenStoreFixture {
		return tokenStoreFixture{
			store:   NewMemoryTokenRepository(),
			newUser: func(*testing.T) string { return uuid.NewString() },
		}
	})
}

func TestRedisTokenRepository(t *testing.T) {
	runTokenStoreSuite(t, func(t *testing.T) tokenStoreFixture {
		server := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: server.Addr()})
		t.Cleanup(func() { _ = client.Close() })

		return tokenStoreFixture{
			store:   NewRedisTokenRepository(client),
			newUser: func(*testing.T) string { return uuid.NewString() },
		}
	})
}

func TestPostgresTokenRepository(t *testing.T) {
	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := database.New(ctx, databaseURL, 8, 1)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.EnsureSchema(ctx))

	runTokenStoreSuite(t, func(t *testing.T) tokenStoreFixture {
		return tokenStoreFixture{
			store:   NewTokenRepository(db.Pool),
			newUser: func(t *testing.T) string { return insertTestUser(t, db.Pool) },
		}
	})
}

func insertTestUser(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	users := NewUserRepository(pool)
	u := model.User{
		ID:           uuid.NewString(),
		Email:        fmt.Sprintf("%s@example.com", uuid.NewString()),
		PasswordHash: "x",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, users.Create(context.Background(), u))
	return u.ID
}

func runTokenStoreSuite(t *testing.T, setup func(t *testing.T) tokenStoreFixture) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	record := func(userID string, createdAt time.Time, ttl time.Duration) model.RefreshToken {
		return model.RefreshToken{
			Token:     uuid.NewString(),
			UserID:    userID,
			CreatedAt: createdAt,
			ExpiresAt: createdAt.Add(ttl),
		}
	}

	t.Run("issued token is found active", func(t *testing.T) {
		f := setup(t)
		issued := record(f.newUser(t), now, time.Hour)
		require.NoError(t, f.store.Issue(ctx, issued))

		found, err := f.store.Find(ctx, issued.Token)
		require.NoError(t, err)
		require.Equal(t, issued.UserID, found.UserID)
		require.True(t, found.ExpiresAt.Equal(issued.ExpiresAt))
		require.True(t, found.Active(now))
	})

	t.Run("issuing a stored token again fails", func(t *testing.T) {
		f := setup(t)
		issued := record(f.newUser(t), now, time.Hour)
		require.NoError(t, f.store.Issue(ctx, issued))
		require.ErrorIs(t, f.store.Issue(ctx, issued), errDuplicateToken)
	})

	t.Run("unknown token is not found", func(t *testing.T) {
		f := setup(t)
		_, err := f.store.Find(ctx, "missing")
		require.ErrorIs(t, err, model.ErrTokenNotFound)
	})

	t.Run("revoke is idempotent and tolerates unknown tokens", func(t *testing.T) {
		f := setup(t)
		issued := record(f.newUser(t), now, time.Hour)
		require.NoError(t, f.store.Issue(ctx, issued))

		owner, revoked, err := f.store.Revoke(ctx, issued.Token, now.Add(time.Minute))
		require.NoError(t, err)
		require.True(t, revoked)
		require.Equal(t, issued.UserID, owner)

		owner, revoked, err = f.store.Revoke(ctx, issued.Token, now.Add(2*time.Minute))
		require.NoError(t, err)
		require.False(t, revoked, "second revocation changes nothing")
		require.Empty(t, owner)

		owner, revoked, err = f.store.Revoke(ctx, "never-issued", now)
		require.NoError(t, err)
		require.False(t, revoked)
		require.Empty(t, owner)

		found, err := f.store.Find(ctx, issued.Token)
		require.NoError(t, err)
		require.True(t, found.Revoked())
		require.True(t, found.RevokedAt.Equal(now.Add(time.Minute)), "first revocation time is kept")

		_, err = f.store.Find(ctx, "never-issued")
		require.ErrorIs(t, err, model.ErrTokenNotFound)
	})

	t.Run("rotate revokes the old token and stores the successor", func(t *testing.T) {
		f := setup(t)
		userID := f.newUser(t)
		old := record(userID, now, time.Hour)
		require.NoError(t, f.store.Issue(ctx, old))

		next := record(userID, now.Add(time.Second), time.Hour)
		require.NoError(t, f.store.Rotate(ctx, old.Token, next))

		consumed, err := f.store.Find(ctx, old.Token)
		require.NoError(t, err)
		require.True(t, consumed.Revoked())

		successor, err := f.store.Find(ctx, next.Token)
		require.NoError(t, err)
		require.True(t, successor.Active(next.CreatedAt))
		require.Equal(t, userID, successor.UserID)
	})

	t.Run("rotate rejects inactive tokens without writing", func(t *testing.T) {
		f := setup(t)
		userID := f.newUser(t)

		revoked := record(userID, now, time.Hour)
		require.NoError(t, f.store.Issue(ctx, revoked))
		_, _, err := f.store.Revoke(ctx, revoked.Token, now)
		require.NoError(t, err)
		afterRevoked := record(userID, now.Add(time.Second), time.Hour)
		require.ErrorIs(t, f.store.Rotate(ctx, revoked.Token, afterRevoked), model.ErrTokenRevoked)

		expired := record(userID, now.Add(-2*time.Hour), time.Hour)
		require.NoError(t, f.store.Issue(ctx, expired))
		afterExpired := record(userID, now, time.Hour)
		require.ErrorIs(t, f.store.Rotate(ctx, expired.Token, afterExpired), model.ErrTokenExpired)

		afterMissing := record(userID, now, time.Hour)
		require.ErrorIs(t, f.store.Rotate(ctx, "missing", afterMissing), model.ErrTokenNotFound)

		for _, successor := range []model.RefreshToken{afterRevoked, afterExpired, afterMissing} {
			_, err := f.store.Find(ctx, successor.Token)
			require.ErrorIs(t, err, model.ErrTokenNotFound)
		}

		stillExpired, err := f.store.Find(ctx, expired.Token)
		require.NoError(t, err)
		require.False(t, stillExpired.Revoked())
	})

	t.Run("rotate requires the owning user", func(t *testing.T) {
		f := setup(t)
		old := record(f.newUser(t), now, time.Hour)
		require.NoError(t, f.store.Issue(ctx, old))

		stolen := record(f.newUser(t), now.Add(time.Second), time.Hour)
		require.ErrorIs(t, f.store.Rotate(ctx, old.Token, stolen), model.ErrTokenNotFound)

		found, err := f.store.Find(ctx, old.Token)
		require.NoError(t, err)
		require.False(t, found.Revoked())
	})

	t.Run("concurrent rotations consume a token once", func(t *testing.T) {
		f := setup(t)
		userID := f.newUser(t)
		old := record(userID, now, time.Hour)
		require.NoError(t, f.store.Issue(ctx, old))

		const callers = 16
		errs := make([]error, callers)
		successors := make([]model.RefreshToken, callers)

		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < callers; i++ {
			i := i
			successors[i] = record(userID, now.Add(time.Second), time.Hour)
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				errs[i] = f.store.Rotate(ctx, old.Token, successors[i])
			}()
		}
		close(start)
		wg.Wait()

		wins := 0
		for i, err := range errs {
			if err == nil {
				wins++
				_, findErr := f.store.Find(ctx, successors[i].Token)
				require.NoError(t, findErr)
				continue
			}
			require.ErrorIs(t, err, model.ErrTokenRevoked)
			_, findErr := f.store.Find(ctx, successors[i].Token)
			require.ErrorIs(t, findErr, model.ErrTokenNotFound)
		}
		require.Equal(t, 1, wins)
	})
}
