package main

import (
	"log/slog"
	"os"

	"space-auth/internal/app"
	"space-auth/internal/config"
	"space-auth/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The logger is not configured yet; fall back to the default one.
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logHandler := logger.NewPrettyHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})
	slog.SetDefault(slog.New(logHandler))

	application, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("application run failed", "error", err)
		os.Exit(1)
	}
}
