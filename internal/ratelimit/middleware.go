package ratelimit

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/MGallo-Code/moodlog/internal/auth"
	"github.com/MGallo-Code/moodlog/internal/clientip"
	"github.com/MGallo-Code/moodlog/internal/metrics"
)

// Route policies.
var (
	EntryCreate = Policy{Name: "entry_create", Max: 1, Window: 30 * time.Second}
	EntryUpdate = Policy{Name: "entry_update", Max: 3, Window: 60 * time.Second}
	MediaUpload = Policy{Name: "media_upload", Max: 2, Window: 15 * time.Second}
)

// Key identifies the caller: the authenticated user when RequireAuth ran,
// otherwise the client address.
func Key(r *http.Request) string {
	if id, ok := auth.UserIDFromContext(r.Context()); ok {
		return "user:" + id.String()
	}
	return "ip:" + clientip.FromRequest(r)
}

func seconds(d float64) string {
	return strconv.Itoa(max(0, int(math.Ceil(d))))
}

// Middleware enforces policy with limiter. Denied requests get 429 with
// Retry-After and RateLimit-* headers. Limiter errors let the request through.
// m may be nil.
func Middleware(limiter Limiter, policy Policy, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := limiter.Allow(r.Context(), Key(r), policy)
			if err != nil {
				slog.Warn("rate limiter unavailable, allowing request",
					"policy", policy.Name, "path", r.URL.Path, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("RateLimit-Reset", seconds(d.ResetAfter.Seconds()))

			if !d.Allowed {
				m.RateLimited(policy.Name)
				slog.Info("rate limit exceeded", "policy", policy.Name, "path", r.URL.Path)
				auth.TooManyRequests(w, "too many requests, slow down", d.RetryAfter)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
