package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrettyHandler(t *testing.T) {
	t.Run("filters by level", func(t *testing.T) {
		var buf bytes.Buffer
		log := slog.New(NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

		log.Info("hidden")
		log.Warn("shown")

		require.NotContains(t, buf.String(), "hidden")
		require.Contains(t, buf.String(), "shown")
	})

	t.Run("defaults to info without options", func(t *testing.T) {
		var buf bytes.Buffer
		log := slog.New(NewPrettyHandler(&buf, nil))

		log.Debug("hidden")
		log.Info("shown")

		require.NotContains(t, buf.String(), "hidden")
		require.Contains(t, buf.String(), "shown")
	})

	t.Run("redacts credentials", func(t *testing.T) {
		var buf bytes.Buffer
		log := slog.New(NewPrettyHandler(&buf, nil))

		log.Info("login", "email", "a@x.com", "password", "secret1", "refresh_token", "abc")

		out := buf.String()
		require.Contains(t, out, "a@x.com")
		require.NotContains(t, out, "secret1")
		require.NotContains(t, out, "=abc")
		require.Contains(t, out, redacted)
	})

	t.Run("prefixes grouped attributes", func(t *testing.T) {
		var buf bytes.Buffer
		log := slog.New(NewPrettyHandler(&buf, nil)).WithGroup("session").With("user_id", "u1")

		log.Info("rotated", slog.Group("token", "age_ms", 12))

		out := buf.String()
		require.Contains(t, out, "session.user_id")
		require.Contains(t, out, "session.token.age_ms")
	})
}
