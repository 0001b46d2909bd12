package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("requires a signing secret", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")
		t.Setenv("STORE_DRIVER", DriverMemory)

		_, err := Load()
		require.EqualError(t, err, "JWT_SECRET is required")
	})

	t.Run("applies defaults", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "test-secret")
		t.Setenv("STORE_DRIVER", DriverMemory)
		t.Setenv("TOKEN_STORE_DRIVER", "")

		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, "8080", cfg.ServerPort)
		require.Equal(t, DriverMemory, cfg.TokenStoreDriver)
		require.Equal(t, time.Hour, cfg.AccessTokenTTL())
		require.Equal(t, 7*24*time.Hour, cfg.RefreshTokenTTL())
		require.Equal(t, []string{"*"}, cfg.CORSOrigins)
		require.Equal(t, slog.LevelInfo, cfg.LogLevel)
	})

	t.Run("reads lifetimes and drivers", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "test-secret")
		t.Setenv("STORE_DRIVER", DriverMemory)
		t.Setenv("TOKEN_STORE_DRIVER", "REDIS")
		t.Setenv("REDIS_ADDR", "localhost:6379")
		t.Setenv("JWT_EXPIRES_IN_MINUTES", "15")
		t.Setenv("JWT_REFRESH_EXPIRES_IN_DAYS", "30")
		t.Setenv("LOG_LEVEL", "debug")
		t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")

		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, DriverRedis, cfg.TokenStoreDriver)
		require.Equal(t, 15*time.Minute, cfg.AccessTokenTTL())
		require.Equal(t, 30*24*time.Hour, cfg.RefreshTokenTTL())
		require.Equal(t, slog.LevelDebug, cfg.LogLevel)
		require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			ServerPort:              "8080",
			RequestTimeout:          time.Second,
			JWTSecret:               "secret",
			JWTExpiresInMinutes:     60,
			JWTRefreshExpiresInDays: 7,
			StoreDriver:             DriverMemory,
			TokenStoreDriver:        DriverMemory,
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"non-positive access lifetime", func(c *Config) { c.JWTExpiresInMinutes = 0 }, "JWT_EXPIRES_IN_MINUTES must be positive"},
		{"non-positive refresh lifetime", func(c *Config) { c.JWTRefreshExpiresInDays = -1 }, "JWT_REFRESH_EXPIRES_IN_DAYS must be positive"},
		{"unknown store", func(c *Config) { c.StoreDriver = "sqlite" }, `STORE_DRIVER "sqlite" is not supported`},
		{"redis users are not supported", func(c *Config) { c.StoreDriver = DriverRedis }, `STORE_DRIVER "redis" is not supported`},
		{"postgres tokens over memory users", func(c *Config) {
			c.TokenStoreDriver = DriverPostgres
			c.DatabaseURL = "postgres://localhost/auth"
		}, "TOKEN_STORE_DRIVER postgres requires STORE_DRIVER postgres"},
		{"postgres without url", func(c *Config) {
			c.StoreDriver = DriverPostgres
			c.TokenStoreDriver = DriverPostgres
		}, "DATABASE_URL is required for the postgres driver"},
		{"malformed trusted proxy", func(c *Config) { c.TrustedProxies = []string{"10.0.0.0/8", "proxy.local"} }, `TRUSTED_PROXIES entry "proxy.local" is not an IP or CIDR`},
		{"redis without addr", func(c *Config) { c.TokenStoreDriver = DriverRedis }, "REDIS_ADDR is required for the redis token store"},
		{"admin email without password", func(c *Config) { c.AdminEmail = "admin@example.com" }, "ADMIN_EMAIL and ADMIN_PASSWORD must be set together"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			require.EqualError(t, cfg.Validate(), tc.want)
		})
	}
}

func TestValidateAcceptsStoreCombinations(t *testing.T) {
	base := Config{
		ServerPort:              "8080",
		RequestTimeout:          time.Second,
		JWTSecret:               "secret",
		JWTExpiresInMinutes:     60,
		JWTRefreshExpiresInDays: 7,
		DatabaseURL:             "postgres://localhost/auth",
		RedisAddr:               "localhost:6379",
	}

	for _, combo := range [][2]string{
		{DriverPostgres, DriverPostgres},
		{DriverPostgres, DriverRedis},
		{DriverPostgres, DriverMemory},
		{DriverMemory, DriverRedis},
		{DriverMemory, DriverMemory},
	} {
		cfg := base
		cfg.StoreDriver, cfg.TokenStoreDriver = combo[0], combo[1]
		require.NoError(t, cfg.Validate(), "users=%s tokens=%s", combo[0], combo[1])
	}
}

func TestTrustedProxyPrefixes(t *testing.T) {
	cfg := &Config{TrustedProxies: []string{"10.0.0.0/8", "192.0.2.10", "2001:db8::/32", "172.16.5.9/16"}}

	prefixes, err := cfg.TrustedProxyPrefixes()
	require.NoError(t, err)
	require.Len(t, prefixes, 4)
	require.Equal(t, "10.0.0.0/8", prefixes[0].String())
	require.Equal(t, "192.0.2.10/32", prefixes[1].String())
	require.Equal(t, "2001:db8::/32", prefixes[2].String())
	require.Equal(t, "172.16.0.0/16", prefixes[3].String())

	empty, err := (&Config{}).TrustedProxyPrefixes()
	require.NoError(t, err)
	require.Empty(t, empty)
}
