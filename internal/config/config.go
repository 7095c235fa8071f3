// config.go

// Environment variable loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MGallo-Code/moodlog/internal/clientip"
)

// Config holds all env configuration vars for moodlog.
type Config struct {
	DatabaseURL string
	// RedisURL is optional -- empty means per-route limits are kept in process memory.
	RedisURL string
	Port     string
	LogLevel slog.Level

	// JWTSecret signs bearer tokens. Required, at least 32 bytes.
	JWTSecret    []byte
	JWTExpiresIn time.Duration

	// Media storage. Temp files land in TempDir and are copied into UploadDir
	// once the content sniffer accepts them.
	UploadDir      string
	TempDir        string
	MaxUploadBytes int64
	TempMaxAge     time.Duration

	// Login throttle policy. Defaults: 5 failures, 5m lockout.
	LoginMaxFailures int
	LoginLockout     time.Duration

	// AllowedOrigins for CORS. Default ["*"].
	AllowedOrigins []string

	// TrustedProxies may report the client address via X-Forwarded-For.
	// Empty means forwarded headers are ignored.
	TrustedProxies clientip.Proxies
}

// minSecretLen is the shortest JWT_SECRET accepted for HS256.
const minSecretLen = 32

// LoadConfig reads environment variables and returns a validated Config.
// Returns an error if required variables (DATABASE_URL, JWT_SECRET) are missing.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	// Attempt to get db url, if missing, err
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("JWT_SECRET must be at least %d bytes", minSecretLen)
	}
	cfg.JWTSecret = []byte(secret)

	cfg.RedisURL = os.Getenv("REDIS_URL")

	// Attempt to get port num, default to 4000
	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		cfg.Port = "4000"
	}

	// Parse log level, default to info
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		cfg.LogLevel = slog.LevelInfo
	}

	cfg.JWTExpiresIn = envDuration("JWT_EXPIRES_IN", time.Hour)

	cfg.UploadDir = envString("UPLOAD_DIR", "storage/uploads")
	cfg.TempDir = envString("TEMP_DIR", "temp")
	cfg.MaxUploadBytes = int64(envInt("MAX_UPLOAD_BYTES", 5<<20))
	cfg.TempMaxAge = envDuration("TEMP_MAX_AGE", time.Hour)

	if cfg.UploadDir == cfg.TempDir {
		return nil, fmt.Errorf("UPLOAD_DIR and TEMP_DIR must differ")
	}

	// Misconfigured values fall back to defaults so a typo never disables the throttle.
	cfg.LoginMaxFailures = envInt("LOGIN_MAX_FAILURES", 5)
	cfg.LoginLockout = envDuration("LOGIN_LOCKOUT", 5*time.Minute)

	cfg.AllowedOrigins = envList("ALLOWED_ORIGINS", []string{"*"})

	// Unlike the throttle knobs, a bad proxy entry is fatal.
	proxies, err := clientip.ParseProxies(envList("TRUSTED_PROXIES", nil))
	if err != nil {
		return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}
	cfg.TrustedProxies = proxies

	return cfg, nil
}

// envString reads an env var, returning def if missing.
func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envInt reads an env var as int, returning def if missing or unparseable.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

// envDuration reads an env var as time.Duration, returning def if missing or unparseable.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

// envList reads a comma separated env var, trimming blanks. Returns def if nothing usable.
func envList(key string, def []string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
