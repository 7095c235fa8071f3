// models.go -- Shared domain types for the store package.
// Used by both Postgres (users, entries) and Redis (rate limit counters).
package store

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Unique constraint names from migrations. Handlers match on these to tell
// which field collided.
const (
	ConstraintUsersUsername = "users_username_key"
	ConstraintUsersEmail    = "users_email_key"
	ConstraintEntriesPhoto  = "mood_entries_photo_key"
)

// User represents a row in the users table.
type User struct {
	ID           uuid.UUID
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// MoodEntry represents a row in the mood_entries table.
// Photo is nil when no media is attached (SQL NULL).
type MoodEntry struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Description string    `json:"description"`
	Mood        string    `json:"mood"`
	Photo       *string   `json:"photo_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RateLimit defines the policy for a rate-limited route.
// Max requests are allowed per Window; Name namespaces the counter keys.
type RateLimit struct {
	Name   string
	Max    int
	Window time.Duration
}

// RateDecision is the outcome of a single rate limit check.
// RetryAfter is zero when Allowed is true.
type RateDecision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAfter time.Duration
}
