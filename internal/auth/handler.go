// handler.go -- HTTP handlers for /auth/register and /auth/login.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/MGallo-Code/moodlog/internal/clientip"
	"github.com/MGallo-Code/moodlog/internal/metrics"
	"github.com/MGallo-Code/moodlog/internal/store"
	"github.com/MGallo-Code/moodlog/internal/throttle"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Store defines database operations needed by auth handlers.
// Satisfied by *store.PostgresStore; defined here at the consumer.
type Store interface {
	// CreateUser inserts new user with username, email and hashed password.
	// Returns *pgconn.PgError 23505 naming the violated unique constraint on duplicates.
	CreateUser(ctx context.Context, id uuid.UUID, username, email, passwordHash string) error

	// GetUserByUsername fetches user for login verification.
	// Returns pgx.ErrNoRows if no such user.
	GetUserByUsername(ctx context.Context, username string) (*store.User, error)
}

// LoginThrottle gates login attempts per client address.
// Satisfied by *throttle.Throttle.
type LoginThrottle interface {
	Check(key string) error
	Fail(key string) int
	Succeed(key string)
	Threshold() int
}

// dummyPasswordHash is verified when a user doesn't exist so both paths take equal time.
// Generated from live constants so it tracks any parameter changes in password.go.
var dummyPasswordHash = sync.OnceValue(func() string {
	h, _ := HashPassword("dummy")
	return h
})

// AuthHandler holds dependencies for /auth/* handlers and RequireAuth.
type AuthHandler struct {
	PS       Store
	Tokens   *TokenIssuer
	Throttle LoginThrottle
	// Metrics may be nil.
	Metrics *metrics.Metrics
}

// publicUser is the user shape returned to clients.
type publicUser struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
}

type authResponse struct {
	Token string     `json:"token"`
	User  publicUser `json:"user"`
}

// Register handles POST /auth/register: username + email + password signup.
// Returns 201 with a token, 400 for validation errors or duplicates, 500 for server errors.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var registerInput struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&registerInput); err != nil {
		logWarn(r, "failed to decode register input", "error", err)
		BadRequest(w, r, "error decoding request body")
		return
	}

	username := strings.TrimSpace(registerInput.Username)
	email := strings.ToLower(strings.TrimSpace(registerInput.Email))
	if username == "" || email == "" || registerInput.Password == "" {
		BadRequest(w, r, "username, email and password required")
		return
	}

	if msg := ValidateUsername(username); msg != "" {
		BadRequest(w, r, msg)
		return
	}
	if msg := ValidateEmail(email); msg != "" {
		BadRequest(w, r, msg)
		return
	}
	if msg := ValidatePassword(registerInput.Password); msg != "" {
		BadRequest(w, r, msg)
		return
	}

	hashedPassword, err := HashPassword(registerInput.Password)
	if err != nil {
		InternalServerError(w, r, err)
		return
	}

	userID, err := uuid.NewV7()
	if err != nil {
		InternalServerError(w, r, err)
		return
	}

	err = h.PS.CreateUser(r.Context(), userID, username, email, hashedPassword)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			switch pgErr.ConstraintName {
			case store.ConstraintUsersUsername:
				logInfo(r, "registration attempted with existing username")
				BadRequest(w, r, "username already taken")
				return
			case store.ConstraintUsersEmail:
				logInfo(r, "registration attempted with existing email")
				BadRequest(w, r, "email already registered")
				return
			}
		}
		InternalServerError(w, r, err)
		return
	}

	token, err := h.Tokens.Issue(userID, username)
	if err != nil {
		InternalServerError(w, r, err)
		return
	}

	logInfo(r, "user registered", "user_id", userID)
	JSON(w, http.StatusCreated, authResponse{
		Token: token,
		User:  publicUser{ID: userID, Username: username, Email: email},
	})
}

// Login handles POST /auth/login: username + password authentication.
// Returns 200 with a token, 401 for bad credentials, 429 while the client
// address is locked out, 500 for server errors.
// Argon2id dummy-hash equalises timing when account doesn't exist.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var loginInput struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&loginInput); err != nil {
		logWarn(r, "failed to decode login input", "error", err)
		BadRequest(w, r, "error decoding request body")
		return
	}

	username := strings.TrimSpace(loginInput.Username)
	if username == "" || loginInput.Password == "" {
		BadRequest(w, r, "username and password required")
		return
	}

	// Throttle before any DB work -- locked clients never reach Argon2id.
	key := clientip.FromRequest(r)
	if err := h.Throttle.Check(key); err != nil {
		var locked *throttle.LockedError
		if errors.As(err, &locked) {
			h.Metrics.LoginLocked()
			logWarn(r, "login rejected by throttle", "retry_after", locked.RetryAfter)
			TooManyRequests(w, locked.Error(), locked.RetryAfter)
			return
		}
		InternalServerError(w, r, err)
		return
	}

	user, err := h.PS.GetUserByUsername(r.Context(), username)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			InternalServerError(w, r, err)
			return
		}
		// Run dummy hash to equalise timing with found-user path.
		VerifyPassword(loginInput.Password, dummyPasswordHash())
		logInfo(r, "login attempted with non-existent username")
		h.failLogin(w, r, key)
		return
	}

	valid, err := VerifyPassword(loginInput.Password, user.PasswordHash)
	if err != nil {
		logError(r, "password verification failed", "error", err, "user_id", user.ID)
		InternalServerError(w, r, err)
		return
	}
	if !valid {
		logInfo(r, "login attempted with incorrect password", "user_id", user.ID)
		h.failLogin(w, r, key)
		return
	}

	h.Throttle.Succeed(key)

	token, err := h.Tokens.Issue(user.ID, user.Username)
	if err != nil {
		InternalServerError(w, r, err)
		return
	}

	logInfo(r, "user logged in successfully", "user_id", user.ID)
	JSON(w, http.StatusOK, authResponse{
		Token: token,
		User:  publicUser{ID: user.ID, Username: user.Username, Email: user.Email},
	})
}

// failLogin records a failed credential check and writes the generic 401.
func (h *AuthHandler) failLogin(w http.ResponseWriter, r *http.Request, key string) {
	h.Metrics.LoginFailed()
	if n := h.Throttle.Fail(key); n == h.Throttle.Threshold() {
		logWarn(r, "login lockout triggered", "failures", n)
	}
	Unauthorized(w, r, "invalid credentials")
}
