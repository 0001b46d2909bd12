package config

import (
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

type Config struct {
	ServerPort              string
	ServerReadHeaderTimeout time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	RequestTimeout          time.Duration
	LogLevel                slog.Level

	JWTSecret               string
	JWTIssuer               string
	JWTAudience             string
	JWTExpiresInMinutes     int
	JWTRefreshExpiresInDays int

	StoreDriver      string
	TokenStoreDriver string
	DatabaseURL      string
	DBMaxConns       int32
	DBMinConns       int32
	RedisAddr        string
	RedisPassword    string
	RedisDB          int

	CORSOrigins      []string
	TrustedProxies   []string
	RateLimitRPM     int
	AuthRateLimitRPM int
	BcryptCost       int

	AdminEmail    string
	AdminPassword string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	storeDriver := strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres))

	cfg := &Config{
		ServerPort:              getEnv("SERVER_PORT", "8080"),
		ServerReadHeaderTimeout: getDuration("SERVER_READ_HEADER_TIMEOUT", 10*time.Second),
		ServerWriteTimeout:      getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:       getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:          getDuration("REQUEST_TIMEOUT", 30*time.Second),
		LogLevel:                getLevel("LOG_LEVEL", slog.LevelInfo),
		JWTSecret:               strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTIssuer:               getEnv("JWT_ISSUER", "space-auth"),
		JWTAudience:             getEnv("JWT_AUDIENCE", "space-client"),
		JWTExpiresInMinutes:     getInt("JWT_EXPIRES_IN_MINUTES", 60),
		JWTRefreshExpiresInDays: getInt("JWT_REFRESH_EXPIRES_IN_DAYS", 7),
		StoreDriver:             storeDriver,
		TokenStoreDriver:        strings.ToLower(getEnv("TOKEN_STORE_DRIVER", storeDriver)),
		DatabaseURL:             strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:              int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:              int32(getInt("DB_MIN_CONNS", 2)),
		RedisAddr:               strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:           os.Getenv("REDIS_PASSWORD"),
		RedisDB:                 getInt("REDIS_DB", 0),
		CORSOrigins:             splitCSV(getEnv("CORS_ORIGINS", "*")),
		TrustedProxies:          splitCSV(os.Getenv("TRUSTED_PROXIES")),
		RateLimitRPM:            getInt("RATE_LIMIT_RPM", 100),
		AuthRateLimitRPM:        getInt("AUTH_RATE_LIMIT_RPM", 10),
		BcryptCost:              getInt("BCRYPT_COST", 12),
		AdminEmail:              strings.TrimSpace(os.Getenv("ADMIN_EMAIL")),
		AdminPassword:           os.Getenv("ADMIN_PASSWORD"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.JWTExpiresInMinutes <= 0 {
		return fmt.Errorf("JWT_EXPIRES_IN_MINUTES must be positive")
	}

	if c.JWTRefreshExpiresInDays <= 0 {
		return fmt.Errorf("JWT_REFRESH_EXPIRES_IN_DAYS must be positive")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	switch c.StoreDriver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER %q is not supported", c.StoreDriver)
	}

	switch c.TokenStoreDriver {
	case DriverPostgres, DriverRedis, DriverMemory:
	default:
		return fmt.Errorf("TOKEN_STORE_DRIVER %q is not supported", c.TokenStoreDriver)
	}

	// refresh_tokens.user_id references users(id).
	if c.TokenStoreDriver == DriverPostgres && c.StoreDriver != DriverPostgres {
		return fmt.Errorf("TOKEN_STORE_DRIVER postgres requires STORE_DRIVER postgres")
	}

	if c.NeedsPostgres() && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for the postgres driver")
	}

	if c.TokenStoreDriver == DriverRedis && c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required for the redis token store")
	}

	if _, err := c.TrustedProxyPrefixes(); err != nil {
		return err
	}

	if (c.AdminEmail == "") != (c.AdminPassword == "") {
		return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}

	return nil
}

func (c *Config) NeedsPostgres() bool {
	return c.StoreDriver == DriverPostgres || c.TokenStoreDriver == DriverPostgres
}

// TrustedProxyPrefixes parses TRUSTED_PROXIES. Bare addresses become
// single-host prefixes.
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, raw := range c.TrustedProxies {
		if prefix, err := netip.ParsePrefix(raw); err == nil {
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES entry %q is not an IP or CIDR", raw)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.JWTExpiresInMinutes) * time.Minute
}

func (c *Config) RefreshTokenTTL() time.Duration {
	return time.Duration(c.JWTRefreshExpiresInDays) * 24 * time.Hour
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getLevel(key string, fallback slog.Level) slog.Level {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return fallback
	}

	return level
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
