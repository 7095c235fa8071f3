// middleware.go

// Bearer token authentication middleware.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofrs/uuid/v5"
)

// contextKey is unexported to prevent collisions with other packages using the same context.
type contextKey string

const userIDKey contextKey = "user_id"
const usernameKey contextKey = "username"

// UserIDFromContext retrieves authenticated user's ID from context.
// Returns zero UUID and false if RequireAuth hasn't run.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}

// UsernameFromContext retrieves authenticated user's username from context.
func UsernameFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(usernameKey).(string)
	return name, ok
}

// WithUser returns ctx carrying an authenticated identity, as RequireAuth would set it.
func WithUser(ctx context.Context, userID uuid.UUID, username string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, usernameKey, username)
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireAuth validates the bearer token.
// 401 when no token is sent, 403 when it fails validation; next never runs on failure.
// Injects user_id and username into context on success.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			logWarn(r, "require auth failed", "reason", "missing_bearer_token")
			Unauthorized(w, r, "no token provided")
			return
		}

		claims, err := h.Tokens.Validate(token)
		if err != nil {
			logWarn(r, "require auth failed", "reason", err.Error())
			ForbiddenMessage(w, "invalid token")
			return
		}
		// Validate already guarantees a parseable subject.
		userID, _ := claims.UserID()

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID, claims.Username)))
	})
}
