package router

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"space-auth/internal/config"
	"space-auth/internal/handler"
	"space-auth/internal/middleware"
)

// HealthCheck reports whether backing storage is reachable.
type HealthCheck func(ctx context.Context) error

func New(
	cfg *config.Config,
	authMiddleware *middleware.AuthMiddleware,
	authHandler *handler.AuthHandler,
	eventHandler *handler.EventHandler,
	health HealthCheck,
) http.Handler {
	r := chi.NewRouter()
	// Validate has already rejected malformed entries.
	trustedProxies, _ := cfg.TrustedProxyPrefixes()
	clientIP := middleware.NewClientIPResolver(trustedProxies)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM, clientIP)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging(clientIP))
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("unavailable"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/register", authHandler.Register)
			auth.Post("/login", authHandler.Login)
			auth.Post("/refresh", authHandler.Refresh)
			auth.Post("/revoke", authHandler.Revoke)
			auth.With(authMiddleware.RequireAuth).Get("/me", authHandler.Me)
			if eventHandler != nil {
				auth.With(authMiddleware.RequireAuth).Get("/events", eventHandler.List)
			}
		})
	})

	return r
}
