package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"space-auth/internal/config"
	"space-auth/internal/database"
	"space-auth/internal/event"
	"space-auth/internal/handler"
	"space-auth/internal/middleware"
	"space-auth/internal/repository"
	"space-auth/internal/router"
	"space-auth/internal/service"
)

type App struct {
	server       *http.Server
	cleanupFuncs []func()
}

func New(cfg *config.Config) (*App, error) {
	ctx := context.Background()
	a := &App{}

	var db *database.DB
	if cfg.NeedsPostgres() {
		slog.Info("connecting to PostgreSQL")
		var err error
		db, err = database.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.cleanupFuncs = append(a.cleanupFuncs, db.Close)

		if err := db.EnsureSchema(ctx); err != nil {
			a.cleanup()
			return nil, fmt.Errorf("failed to ensure database schema: %w", err)
		}
	}

	var users service.UserRepository
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		users = repository.NewUserRepository(db.Pool)
	default:
		slog.Warn("using in-memory user store; accounts are lost on restart")
		users = repository.NewMemoryUserRepository()
	}

	checks := []router.HealthCheck{}
	if db != nil {
		checks = append(checks, db.Health)
	}

	var tokens service.RefreshTokenStore
	switch cfg.TokenStoreDriver {
	case config.DriverPostgres:
		tokens = repository.NewTokenRepository(db.Pool)
	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.cleanupFuncs = append(a.cleanupFuncs, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			a.cleanup()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		checks = append(checks, func(ctx context.Context) error { return client.Ping(ctx).Err() })
		tokens = repository.NewRedisTokenRepository(client)
	default:
		slog.Warn("using in-memory refresh token store; sessions are lost on restart")
		tokens = repository.NewMemoryTokenRepository()
	}
	slog.Info("storage ready", "users", cfg.StoreDriver, "refresh_tokens", cfg.TokenStoreDriver)

	accounts, err := service.NewAccountService(users, cfg.BcryptCost)
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to initialize account service: %w", err)
	}

	if cfg.AdminEmail != "" {
		admin, err := accounts.SeedAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword)
		if err != nil {
			a.cleanup()
			return nil, fmt.Errorf("failed to seed admin user: %w", err)
		}
		slog.Info("admin user ready", "user_id", admin.ID)
	}

	signer, err := service.NewTokenSigner(service.SignerConfig{
		Secret:    cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		Audience:  cfg.JWTAudience,
		AccessTTL: cfg.AccessTokenTTL(),
	})
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to initialize token signer: %w", err)
	}

	bus := event.NewBus()
	auditCtx, auditCancel := context.WithCancel(context.Background())
	go event.LogAuditTrail(auditCtx, bus, slog.Default())
	a.cleanupFuncs = append(a.cleanupFuncs, auditCancel)

	var eventHandler *handler.EventHandler
	if db != nil {
		events := repository.NewEventRepository(db.Pool)
		go event.RecordAuditTrail(auditCtx, bus, events, slog.Default())
		eventHandler = handler.NewEventHandler(events)
	}

	sessions := service.NewSessionService(accounts, tokens, signer, bus, cfg.RefreshTokenTTL())

	appRouter := router.New(cfg,
		middleware.NewAuthMiddleware(signer),
		handler.NewAuthHandler(sessions),
		eventHandler,
		allHealthy(checks),
	)

	a.server = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return a, nil
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Drain requests before closing the stores they use.
	shutdownErr := a.server.Shutdown(ctx)
	a.cleanup()

	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	slog.Info("server stopped")
	return nil
}

func (a *App) cleanup() {
	for i := len(a.cleanupFuncs) - 1; i >= 0; i-- {
		a.cleanupFuncs[i]()
	}
	a.cleanupFuncs = nil
}

func allHealthy(checks []router.HealthCheck) router.HealthCheck {
	return func(ctx context.Context) error {
		for _, check := range checks {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}
