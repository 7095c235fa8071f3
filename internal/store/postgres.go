// Package store handles all database and cache interactions.
//
// postgres.go -- pgxpool connection setup and queries.
// Creates a connection pool at startup, shared across all handlers.
// All queries use parameterized statements (no string concatenation).
package store

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// The store used by program to connect with Postgres db
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates and returns a verified connection pool
// to PostgreSQL wrapped in a store.
// Call once at startup from main.go...the returned store is safe for concurrent use.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	// Create a pool w/ database url, return if err
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	// Ping db to make sure connection works
	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool}, nil
}

// Close shuts down the connection pool and releases all resources.
// Supposed to call via defer in main.go after creating the store.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// CheckHealth pings the pool; used by GET /health.
func (s *PostgresStore) CheckHealth(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUser inserts a new user.
// The caller has to generate the UUID v7 and Argon2id hash BEFORE calling this.
// Returns raw pgx error, handler inspects it for unique violations (username vs email).
func (s *PostgresStore) CreateUser(ctx context.Context, id uuid.UUID, username, email, passwordHash string) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO users (id, username, email, password_hash) VALUES ($1, $2, $3, $4)",
		id, username, email, passwordHash)
	return err
}

// GetUserByUsername fetches a user for login verification.
// Returns pgx.ErrNoRows if no user has that username.
func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, email, password_hash, created_at
		 FROM users WHERE username = $1`,
		username,
	).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

const entryColumns = "id, user_id, description, mood, photo, created_at, updated_at"

func scanEntry(row pgx.Row) (*MoodEntry, error) {
	var e MoodEntry
	err := row.Scan(&e.ID, &e.UserID, &e.Description, &e.Mood, &e.Photo, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateEntry inserts a mood entry and returns the stored row.
// Description must already be sanitized by the caller.
func (s *PostgresStore) CreateEntry(ctx context.Context, id, userID uuid.UUID, description, mood string, photo *string) (*MoodEntry, error) {
	return scanEntry(s.pool.QueryRow(ctx,
		`INSERT INTO mood_entries (id, user_id, description, mood, photo)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+entryColumns,
		id, userID, description, mood, photo,
	))
}

// GetEntry fetches an entry by id, scoped to its owner.
// Returns pgx.ErrNoRows if the entry does not exist or belongs to someone else.
func (s *PostgresStore) GetEntry(ctx context.Context, id, userID uuid.UUID) (*MoodEntry, error) {
	return scanEntry(s.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM mood_entries WHERE id = $1 AND user_id = $2`,
		id, userID,
	))
}

// GetLatestEntry fetches the user's most recently created entry.
// Returns pgx.ErrNoRows if the user has none.
func (s *PostgresStore) GetLatestEntry(ctx context.Context, userID uuid.UUID) (*MoodEntry, error) {
	return scanEntry(s.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM mood_entries
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		userID,
	))
}

// UpdateEntry overwrites description, mood and photo of an owned entry and bumps updated_at.
// Returns pgx.ErrNoRows if no owned entry matched.
func (s *PostgresStore) UpdateEntry(ctx context.Context, id, userID uuid.UUID, description, mood string, photo *string) (*MoodEntry, error) {
	return scanEntry(s.pool.QueryRow(ctx,
		`UPDATE mood_entries
		 SET description = $3, mood = $4, photo = $5, updated_at = NOW()
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+entryColumns,
		id, userID, description, mood, photo,
	))
}

// GetEntryPhoto returns the photo pointer of an owned entry (nil when unset).
// Returns pgx.ErrNoRows if no owned entry matched.
func (s *PostgresStore) GetEntryPhoto(ctx context.Context, id, userID uuid.UUID) (*string, error) {
	var photo *string
	err := s.pool.QueryRow(ctx,
		"SELECT photo FROM mood_entries WHERE id = $1 AND user_id = $2",
		id, userID,
	).Scan(&photo)
	if err != nil {
		return nil, err
	}
	return photo, nil
}

// SetEntryPhoto points an owned entry at a new media file.
// Returns pgx.ErrNoRows if no owned entry matched.
func (s *PostgresStore) SetEntryPhoto(ctx context.Context, id, userID uuid.UUID, photo string) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE mood_entries SET photo = $3, updated_at = NOW() WHERE id = $1 AND user_id = $2",
		id, userID, photo,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// PhotoInUse reports whether any of userID's entries points at photo.
func (s *PostgresStore) PhotoInUse(ctx context.Context, userID uuid.UUID, photo string) (bool, error) {
	var inUse bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM mood_entries WHERE user_id = $1 AND photo = $2)",
		userID, photo,
	).Scan(&inUse)
	return inUse, err
}
