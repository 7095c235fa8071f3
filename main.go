package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MGallo-Code/moodlog/internal/auth"
	"github.com/MGallo-Code/moodlog/internal/clientip"
	"github.com/MGallo-Code/moodlog/internal/config"
	"github.com/MGallo-Code/moodlog/internal/journal"
	"github.com/MGallo-Code/moodlog/internal/media"
	"github.com/MGallo-Code/moodlog/internal/metrics"
	"github.com/MGallo-Code/moodlog/internal/ratelimit"
	"github.com/MGallo-Code/moodlog/internal/store"
	"github.com/MGallo-Code/moodlog/internal/throttle"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// Embeds the migration files INTO the go bin

//go:embed migrations/*.sql
var migrationsDir embed.FS

// janitorInterval is how often the throttle table and temp dir are swept.
const janitorInterval = time.Minute

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

// newRootCmd builds the CLI. "moodlog" alone is the same as "moodlog serve".
func newRootCmd() *cobra.Command {
	var cfg *config.Config

	root := &cobra.Command{
		Use:           "moodlog",
		Short:         "Mood journal API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env is normal outside local development.
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("loading .env: %w", err)
			}
			c, err := config.LoadConfig()
			if err != nil {
				return err
			}
			cfg = c
			setupLogging(cfg.LogLevel)
			return nil
		},
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Apply migrations and start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Cancel ctx on SIGINT/SIGTERM; run() shuts down when ctx is done.
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, nil)
		},
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ps, err := store.NewPostgresStore(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to set up postgres store: %w", err)
			}
			defer ps.Close()
			return migrateUp(cmd.Context(), ps)
		},
	}

	root.RunE = serve.RunE
	root.AddCommand(serve, migrate)
	return root
}

// setupLogging installs a JSON slog handler as the default logger.
// Source locations are included at debug level only.
func setupLogging(level slog.Level) {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	})))
}

func migrateUp(ctx context.Context, ps *store.PostgresStore) error {
	migrationsFS, err := fs.Sub(migrationsDir, "migrations")
	if err != nil {
		return fmt.Errorf("failed to access embedded migrations: %w", err)
	}
	if err := ps.Migrate(ctx, migrationsFS); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// server groups everything buildRouter mounts.
type server struct {
	auth    *auth.AuthHandler
	journal *journal.JournalHandler
	health  *auth.HealthHandler
	limiter ratelimit.Limiter
	metrics *metrics.Metrics
	origins []string
	proxies clientip.Proxies
}

// run holds all server logic and returns error instead of calling os.Exit,
// so deferred resource cleanup always runs.
// Shuts down when ctx is cancelled (signal handling is the caller's concern).
// If ready is non-nil, the server's base URL is sent on it once the listener is bound.
func run(ctx context.Context, cfg *config.Config, ready chan<- string) error {
	ps, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to set up postgres store: %w", err)
	}
	defer ps.Close()

	if err := migrateUp(ctx, ps); err != nil {
		return err
	}

	// Background work stops when run() returns.
	bgCtx, cancelBg := context.WithCancel(ctx)
	defer cancelBg()

	health := &auth.HealthHandler{Postgres: ps}

	// Redis-backed limits survive restarts; without Redis, limits live in memory.
	var limiter ratelimit.Limiter
	if cfg.RedisURL != "" {
		rdb, err := store.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to set up redis client: %w", err)
		}
		defer rdb.Close()
		rl := store.NewRedisRateLimiter(rdb)
		limiter = rl
		health.Redis = rl
	} else {
		mem := ratelimit.NewMemory()
		go mem.Run(bgCtx, janitorInterval)
		limiter = mem
		slog.Info("REDIS_URL not set, using in-memory rate limits")
	}

	osFs := afero.NewOsFs()
	storage, err := media.NewStorage(osFs, cfg.TempDir, cfg.UploadDir)
	if err != nil {
		return fmt.Errorf("failed to set up media storage: %w", err)
	}
	reconciler := media.NewReconciler(ps, storage, media.NewSniffer(osFs, cfg.MaxUploadBytes))

	thr := throttle.NewThrottle(throttle.NewAttempts(), cfg.LoginMaxFailures, cfg.LoginLockout)
	m := metrics.New()

	s := &server{
		auth: &auth.AuthHandler{
			PS:       ps,
			Tokens:   auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpiresIn),
			Throttle: thr,
			Metrics:  m,
		},
		journal: &journal.JournalHandler{
			Store:          ps,
			Reconciler:     reconciler,
			Storage:        storage,
			MaxUploadBytes: cfg.MaxUploadBytes,
			Metrics:        m,
		},
		health:  health,
		limiter: limiter,
		metrics: m,
		origins: cfg.AllowedOrigins,
		proxies: cfg.TrustedProxies,
	}

	// Uploads interrupted by a previous crash are cleared before serving.
	sweep(thr, storage, cfg.TempMaxAge, time.Now())
	go runJanitor(bgCtx, thr, storage, cfg.TempMaxAge)

	// Bind listener; ":0" picks a free port (useful in tests).
	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	httpServer := &http.Server{
		Handler:           buildRouter(s),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine; run() continues past this.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("moodlog listening", "addr", ln.Addr().String())
		// Send error only if server stops for a reason other than explicit shutdown.
		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Signal readiness to caller (used by tests; nil in production).
	if ready != nil {
		ready <- "http://" + ln.Addr().String()
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	// Stops accepting, then waits for in-flight requests or the timeout.
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

// runJanitor sweeps every janitorInterval until ctx is done.
func runJanitor(ctx context.Context, thr *throttle.Throttle, storage *media.Storage, tempMaxAge time.Duration) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			sweep(thr, storage, tempMaxAge, now)
		case <-ctx.Done():
			return
		}
	}
}

// sweep drops expired login records and stale temp uploads.
func sweep(thr *throttle.Throttle, storage *media.Storage, tempMaxAge time.Duration, now time.Time) {
	if n := thr.Sweep(now); n > 0 {
		slog.Debug("login throttle sweep", "removed", n)
	}
	n, err := storage.SweepTemp(tempMaxAge, now)
	if err != nil {
		slog.Warn("temp upload sweep failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("temp upload sweep", "removed", n)
	}
}

// buildRouter wires all routes and middleware.
// Called from run() and from smoke tests.
func buildRouter(s *server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	// Forwarded headers are honored only from TRUSTED_PROXIES.
	r.Use(s.proxies.Middleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"Retry-After", "RateLimit-Limit", "RateLimit-Remaining", "RateLimit-Reset"},
		MaxAge:         300,
	}))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.health.CheckHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Post("/auth/register", s.auth.Register)
	r.Post("/auth/login", s.auth.Login)

	// Authentication required routes. RequireAuth runs first so limits key on the user.
	r.Group(func(r chi.Router) {
		r.Use(s.auth.RequireAuth)

		r.With(ratelimit.Middleware(s.limiter, ratelimit.EntryCreate, s.metrics)).
			Post("/mood-entry", s.journal.Create)
		r.With(ratelimit.Middleware(s.limiter, ratelimit.EntryUpdate, s.metrics)).
			Put("/mood-entry/{id}", s.journal.Update)
		r.With(ratelimit.Middleware(s.limiter, ratelimit.MediaUpload, s.metrics)).
			Post("/mood-entry/upload", s.journal.Upload)
		r.Get("/mood-entry/user", s.journal.Latest)
		r.Get("/uploads/{filename}", s.journal.ServeMedia)
	})

	return r
}
