// health_handler.go -- Health check handler for GET /health.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
)

// HealthChecker is anything that can report its own reachability.
// Satisfied by *store.PostgresStore and *store.RedisRateLimiter.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthHandler reports per-dependency status. Redis is nil when REDIS_URL is unset.
type HealthHandler struct {
	Postgres HealthChecker
	Redis    HealthChecker
}

// CheckHealth handles GET /health; pings Postgres and Redis, returns per-dependency status.
// Returns 200 if everything configured is healthy, 503 otherwise.
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	postgresStatus := "ok"
	redisStatus := "disabled"

	if err := h.Postgres.CheckHealth(r.Context()); err != nil {
		logError(r, "postgres health check failed", "error", err)
		postgresStatus = "error"
	}
	if h.Redis != nil {
		redisStatus = "ok"
		if err := h.Redis.CheckHealth(r.Context()); err != nil {
			logError(r, "redis health check failed", "error", err)
			redisStatus = "error"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if redisStatus == "error" || postgresStatus == "error" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(struct {
		Postgres string `json:"postgres"`
		Redis    string `json:"redis"`
	}{postgresStatus, redisStatus})
}
