// Package journal serves mood entries and their photos.
//
// handler.go -- POST /mood-entry, PUT /mood-entry/{id}, GET /mood-entry/user.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/MGallo-Code/moodlog/internal/auth"
	"github.com/MGallo-Code/moodlog/internal/media"
	"github.com/MGallo-Code/moodlog/internal/metrics"
	"github.com/MGallo-Code/moodlog/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Store defines the entry queries journal handlers need.
// Satisfied by *store.PostgresStore. All lookups are scoped to userID and
// return pgx.ErrNoRows when nothing owned by that user matches.
type Store interface {
	CreateEntry(ctx context.Context, id, userID uuid.UUID, description, mood string, photo *string) (*store.MoodEntry, error)
	GetEntry(ctx context.Context, id, userID uuid.UUID) (*store.MoodEntry, error)
	GetLatestEntry(ctx context.Context, userID uuid.UUID) (*store.MoodEntry, error)
	UpdateEntry(ctx context.Context, id, userID uuid.UUID, description, mood string, photo *string) (*store.MoodEntry, error)
}

// JournalHandler holds dependencies for entry and media routes.
type JournalHandler struct {
	Store      Store
	Reconciler *media.Reconciler
	Storage    *media.Storage
	// MaxUploadBytes caps a single photo; zero means media.DefaultMaxBytes.
	MaxUploadBytes int64
	// Metrics may be nil.
	Metrics *metrics.Metrics
}

type entryResponse struct {
	Entry *store.MoodEntry `json:"entry"`
}

// maxEntryBody bounds JSON bodies for create/update.
const maxEntryBody = 64 << 10

// Create handles POST /mood-entry.
// Returns 201 with the stored entry, 400 for bad input, 500 for server errors.
func (h *JournalHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		auth.Unauthorized(w, r, "no token provided")
		return
	}

	var input struct {
		Description string  `json:"description"`
		Mood        string  `json:"mood"`
		PhotoURL    *string `json:"photo_url"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxEntryBody)
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		logWarn(r, "failed to decode entry input", "error", err)
		auth.BadRequest(w, r, "error decoding request body")
		return
	}

	mood := strings.TrimSpace(input.Mood)
	if mood == "" {
		auth.BadRequest(w, r, "mood required")
		return
	}

	var photo *string
	if input.PhotoURL != nil && *input.PhotoURL != "" {
		err := h.Reconciler.Attachable(r.Context(), userID, *input.PhotoURL)
		if errors.Is(err, media.ErrPersistence) {
			auth.InternalServerError(w, r, err)
			return
		}
		if err != nil {
			logWarn(r, "rejected photo on create", "photo", *input.PhotoURL, "error", err)
			auth.BadRequest(w, r, "invalid photo")
			return
		}
		photo = input.PhotoURL
	}

	id, err := uuid.NewV7()
	if err != nil {
		auth.InternalServerError(w, r, err)
		return
	}

	entry, err := h.Store.CreateEntry(r.Context(), id, userID, sanitizeDescription(input.Description), mood, photo)
	if isPhotoTaken(err) {
		// Another entry claimed the photo after the check above.
		logWarn(r, "rejected photo on create", "photo", *photo, "error", err)
		auth.BadRequest(w, r, "invalid photo")
		return
	}
	if err != nil {
		auth.InternalServerError(w, r, err)
		return
	}

	logInfo(r, "entry created", "entry_id", entry.ID)
	auth.JSON(w, http.StatusCreated, entryResponse{Entry: entry})
}

// Update handles PUT /mood-entry/{id}.
// Omitted fields keep their stored values. A photo_url that is not the caller's
// does not exist or is already attached to another entry is ignored and the
// current photo is kept.
func (h *JournalHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		auth.Unauthorized(w, r, "no token provided")
		return
	}

	entryID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		auth.NotFound(w, "entry not found")
		return
	}

	var input struct {
		Description *string `json:"description"`
		Mood        *string `json:"mood"`
		PhotoURL    *string `json:"photo_url"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxEntryBody)
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		logWarn(r, "failed to decode entry input", "error", err)
		auth.BadRequest(w, r, "error decoding request body")
		return
	}

	current, err := h.Store.GetEntry(r.Context(), entryID, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		auth.NotFound(w, "entry not found")
		return
	}
	if err != nil {
		auth.InternalServerError(w, r, err)
		return
	}

	description := current.Description
	if input.Description != nil {
		description = sanitizeDescription(*input.Description)
	}
	mood := current.Mood
	if input.Mood != nil {
		if m := strings.TrimSpace(*input.Mood); m != "" {
			mood = m
		}
	}

	photo := current.Photo
	if p := input.PhotoURL; p != nil && *p != "" && (current.Photo == nil || *p != *current.Photo) {
		err := h.Reconciler.Attachable(r.Context(), userID, *p)
		switch {
		case errors.Is(err, media.ErrPersistence):
			auth.InternalServerError(w, r, err)
			return
		case err != nil:
			logWarn(r, "new photo rejected, keeping current", "photo", *p, "error", err)
		default:
			photo = p
		}
	}

	updated, err := h.Store.UpdateEntry(r.Context(), entryID, userID, description, mood, photo)
	if isPhotoTaken(err) {
		logWarn(r, "new photo claimed concurrently, keeping current", "photo", *photo, "error", err)
		updated, err = h.Store.UpdateEntry(r.Context(), entryID, userID, description, mood, current.Photo)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		auth.NotFound(w, "entry not found")
		return
	}
	if err != nil {
		auth.InternalServerError(w, r, err)
		return
	}

	if err := h.Reconciler.ReplacePhoto(current.Photo, updated.Photo); err != nil {
		logWarn(r, "removing replaced photo", "photo", *current.Photo, "error", err)
	}

	logInfo(r, "entry updated", "entry_id", updated.ID)
	auth.JSON(w, http.StatusOK, entryResponse{Entry: updated})
}

// Latest handles GET /mood-entry/user. Responds {"entry": null} when the
// caller has no entries.
func (h *JournalHandler) Latest(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		auth.Unauthorized(w, r, "no token provided")
		return
	}

	entry, err := h.Store.GetLatestEntry(r.Context(), userID)
	if errors.Is(err, pgx.ErrNoRows) {
		auth.JSON(w, http.StatusOK, entryResponse{})
		return
	}
	if err != nil {
		auth.InternalServerError(w, r, err)
		return
	}
	auth.JSON(w, http.StatusOK, entryResponse{Entry: entry})
}

// isPhotoTaken reports whether err is the unique violation raised when a
// photo is already referenced by another entry.
func isPhotoTaken(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == store.ConstraintEntriesPhoto
}
