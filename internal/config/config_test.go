package config

import (
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// --- LoadConfig ---

func TestLoadConfig(t *testing.T) {
	// Helper sets the minimum required env vars for a valid config
	setRequired := func(t *testing.T) {
		t.Helper()
		t.Setenv("DATABASE_URL", "postgres://localhost/moodlog")
		t.Setenv("JWT_SECRET", testSecret)
	}

	t.Run("returns valid config with all required vars", func(t *testing.T) {
		setRequired(t)

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.DatabaseURL != "postgres://localhost/moodlog" {
			t.Errorf("DatabaseURL: expected %q, got %q", "postgres://localhost/moodlog", cfg.DatabaseURL)
		}
		if string(cfg.JWTSecret) != testSecret {
			t.Errorf("JWTSecret: expected %q, got %q", testSecret, cfg.JWTSecret)
		}
	})

	t.Run("errors when DATABASE_URL is missing", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		t.Setenv("JWT_SECRET", testSecret)

		_, err := LoadConfig()
		if err == nil {
			t.Fatal("expected error for missing DATABASE_URL, got nil")
		}
	})

	t.Run("errors when JWT_SECRET is missing", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/moodlog")
		t.Setenv("JWT_SECRET", "")

		_, err := LoadConfig()
		if err == nil {
			t.Fatal("expected error for missing JWT_SECRET, got nil")
		}
	})

	t.Run("errors when JWT_SECRET is too short", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/moodlog")
		t.Setenv("JWT_SECRET", "short")

		_, err := LoadConfig()
		if err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
			t.Fatalf("expected JWT_SECRET length error, got %v", err)
		}
	})

	t.Run("REDIS_URL is optional", func(t *testing.T) {
		setRequired(t)
		t.Setenv("REDIS_URL", "")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.RedisURL != "" {
			t.Errorf("RedisURL: expected empty, got %q", cfg.RedisURL)
		}
	})

	t.Run("applies defaults", func(t *testing.T) {
		setRequired(t)
		for _, k := range []string{"PORT", "JWT_EXPIRES_IN", "UPLOAD_DIR", "TEMP_DIR", "MAX_UPLOAD_BYTES",
			"LOGIN_MAX_FAILURES", "LOGIN_LOCKOUT", "ALLOWED_ORIGINS", "TEMP_MAX_AGE", "LOG_LEVEL"} {
			t.Setenv(k, "")
		}

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Port != "4000" {
			t.Errorf("Port: expected 4000, got %q", cfg.Port)
		}
		if cfg.JWTExpiresIn != time.Hour {
			t.Errorf("JWTExpiresIn: expected 1h, got %v", cfg.JWTExpiresIn)
		}
		if cfg.UploadDir != "storage/uploads" || cfg.TempDir != "temp" {
			t.Errorf("dirs: got upload=%q temp=%q", cfg.UploadDir, cfg.TempDir)
		}
		if cfg.MaxUploadBytes != 5<<20 {
			t.Errorf("MaxUploadBytes: expected %d, got %d", 5<<20, cfg.MaxUploadBytes)
		}
		if cfg.LoginMaxFailures != 5 || cfg.LoginLockout != 5*time.Minute {
			t.Errorf("login throttle: got %d / %v", cfg.LoginMaxFailures, cfg.LoginLockout)
		}
		if !slices.Equal(cfg.AllowedOrigins, []string{"*"}) {
			t.Errorf("AllowedOrigins: expected [*], got %v", cfg.AllowedOrigins)
		}
		if cfg.TempMaxAge != time.Hour {
			t.Errorf("TempMaxAge: expected 1h, got %v", cfg.TempMaxAge)
		}
		if cfg.LogLevel != slog.LevelInfo {
			t.Errorf("LogLevel: expected info, got %v", cfg.LogLevel)
		}
	})

	t.Run("uses custom values when set", func(t *testing.T) {
		setRequired(t)
		t.Setenv("PORT", "9090")
		t.Setenv("JWT_EXPIRES_IN", "30m")
		t.Setenv("LOGIN_MAX_FAILURES", "3")
		t.Setenv("LOGIN_LOCKOUT", "10m")
		t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
		t.Setenv("LOG_LEVEL", "DEBUG")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Port != "9090" {
			t.Errorf("Port: expected 9090, got %q", cfg.Port)
		}
		if cfg.JWTExpiresIn != 30*time.Minute {
			t.Errorf("JWTExpiresIn: expected 30m, got %v", cfg.JWTExpiresIn)
		}
		if cfg.LoginMaxFailures != 3 || cfg.LoginLockout != 10*time.Minute {
			t.Errorf("login throttle: got %d / %v", cfg.LoginMaxFailures, cfg.LoginLockout)
		}
		want := []string{"https://a.example", "https://b.example"}
		if !slices.Equal(cfg.AllowedOrigins, want) {
			t.Errorf("AllowedOrigins: expected %v, got %v", want, cfg.AllowedOrigins)
		}
		if cfg.LogLevel != slog.LevelDebug {
			t.Errorf("LogLevel: expected debug, got %v", cfg.LogLevel)
		}
	})

	t.Run("invalid numeric values fall back to defaults", func(t *testing.T) {
		setRequired(t)
		t.Setenv("LOGIN_MAX_FAILURES", "-1")
		t.Setenv("LOGIN_LOCKOUT", "forever")
		t.Setenv("MAX_UPLOAD_BYTES", "lots")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.LoginMaxFailures != 5 {
			t.Errorf("LoginMaxFailures: expected 5, got %d", cfg.LoginMaxFailures)
		}
		if cfg.LoginLockout != 5*time.Minute {
			t.Errorf("LoginLockout: expected 5m, got %v", cfg.LoginLockout)
		}
		if cfg.MaxUploadBytes != 5<<20 {
			t.Errorf("MaxUploadBytes: expected default, got %d", cfg.MaxUploadBytes)
		}
	})

	t.Run("errors when UPLOAD_DIR equals TEMP_DIR", func(t *testing.T) {
		setRequired(t)
		t.Setenv("UPLOAD_DIR", "same")
		t.Setenv("TEMP_DIR", "same")

		if _, err := LoadConfig(); err == nil {
			t.Fatal("expected error for identical dirs, got nil")
		}
	})

	t.Run("trusts no proxies by default", func(t *testing.T) {
		setRequired(t)

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cfg.TrustedProxies) != 0 {
			t.Errorf("TrustedProxies: expected none, got %v", cfg.TrustedProxies)
		}
	})

	t.Run("parses TRUSTED_PROXIES", func(t *testing.T) {
		setRequired(t)
		t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 127.0.0.1")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cfg.TrustedProxies) != 2 {
			t.Fatalf("TrustedProxies: expected 2, got %v", cfg.TrustedProxies)
		}
		if got := cfg.TrustedProxies[1].String(); got != "127.0.0.1/32" {
			t.Errorf("TrustedProxies[1]: expected 127.0.0.1/32, got %s", got)
		}
	})

	t.Run("errors on invalid TRUSTED_PROXIES", func(t *testing.T) {
		setRequired(t)
		t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8,not-an-ip")

		if _, err := LoadConfig(); err == nil {
			t.Fatal("expected error for invalid proxy, got nil")
		}
	})
}
