// logging.go -- Request-scoped logging helpers for journal handlers.
package journal

import (
	"log/slog"
	"net/http"

	"github.com/MGallo-Code/moodlog/internal/auth"
	"github.com/MGallo-Code/moodlog/internal/clientip"
	"github.com/go-chi/chi/v5/middleware"
)

// reqAttrs returns standard request-scoped attributes for logging.
func reqAttrs(r *http.Request) []any {
	attrs := []any{
		"request_id", middleware.GetReqID(r.Context()),
		"ip", clientip.FromRequest(r),
		"method", r.Method,
		"path", r.URL.Path,
	}
	if id, ok := auth.UserIDFromContext(r.Context()); ok {
		attrs = append(attrs, "user_id", id)
	}
	if name, ok := auth.UsernameFromContext(r.Context()); ok {
		attrs = append(attrs, "username", name)
	}
	return attrs
}

func logInfo(r *http.Request, msg string, args ...any) {
	slog.Info(msg, append(reqAttrs(r), args...)...)
}

func logWarn(r *http.Request, msg string, args ...any) {
	slog.Warn(msg, append(reqAttrs(r), args...)...)
}

func logError(r *http.Request, msg string, args ...any) {
	slog.Error(msg, append(reqAttrs(r), args...)...)
}
