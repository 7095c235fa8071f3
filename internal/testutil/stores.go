// stores.go
//
// Shared in-memory mock of the Postgres store. Satisfies auth.Store,
// journal.Store and media.EntryStore so handler tests across packages share one
// fake with real uniqueness and ownership semantics.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/MGallo-Code/moodlog/internal/store"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MockStore is always stateful...Users and Entries behave like real tables.
// Use *Err fields to inject errors for specific operations; zero value means no error.
type MockStore struct {
	CreateUserErr     error
	GetUserErr        error
	CreateEntryErr    error
	GetEntryErr       error
	GetLatestEntryErr error
	UpdateEntryErr    error
	GetEntryPhotoErr  error
	SetEntryPhotoErr  error
	PhotoInUseErr     error
	HealthErr         error

	// StalePhotoCheck makes PhotoInUse always report false, as if another
	// entry claimed the photo between the check and the write.
	StalePhotoCheck bool

	Users   map[string]*store.User // keyed by username
	Entries []*store.MoodEntry     // insertion order

	mu    sync.Mutex
	clock time.Time
}

// NewMockStore returns a MockStore seeded with the given users.
func NewMockStore(users ...*store.User) *MockStore {
	ms := &MockStore{Users: make(map[string]*store.User)}
	for _, u := range users {
		ms.Users[u.Username] = u
	}
	return ms
}

// tick returns a strictly increasing timestamp so "latest" is deterministic.
func (m *MockStore) tick() time.Time {
	if m.clock.IsZero() {
		m.clock = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint}
}

func (m *MockStore) CreateUser(_ context.Context, id uuid.UUID, username, email, passwordHash string) error {
	if m.CreateUserErr != nil {
		return m.CreateUserErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Users == nil {
		m.Users = make(map[string]*store.User)
	}
	if _, ok := m.Users[username]; ok {
		return uniqueViolation(store.ConstraintUsersUsername)
	}
	for _, u := range m.Users {
		if u.Email == email {
			return uniqueViolation(store.ConstraintUsersEmail)
		}
	}
	m.Users[username] = &store.User{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    m.tick(),
	}
	return nil
}

func (m *MockStore) GetUserByUsername(_ context.Context, username string) (*store.User, error) {
	if m.GetUserErr != nil {
		return nil, m.GetUserErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[username]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return u, nil
}

// findEntry returns the entry with id owned by userID. Caller holds mu.
func (m *MockStore) findEntry(id, userID uuid.UUID) *store.MoodEntry {
	for _, e := range m.Entries {
		if e.ID == id && e.UserID == userID {
			return e
		}
	}
	return nil
}

// photoTaken reports whether an entry other than id points at photo,
// mirroring the unique index on mood_entries.photo. Caller holds mu.
func (m *MockStore) photoTaken(photo *string, id uuid.UUID) bool {
	if photo == nil {
		return false
	}
	for _, e := range m.Entries {
		if e.ID != id && e.Photo != nil && *e.Photo == *photo {
			return true
		}
	}
	return false
}

// copyEntry hands out a snapshot so callers can't mutate stored state.
func copyEntry(e *store.MoodEntry) *store.MoodEntry {
	c := *e
	if e.Photo != nil {
		p := *e.Photo
		c.Photo = &p
	}
	return &c
}

func (m *MockStore) CreateEntry(_ context.Context, id, userID uuid.UUID, description, mood string, photo *string) (*store.MoodEntry, error) {
	if m.CreateEntryErr != nil {
		return nil, m.CreateEntryErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.photoTaken(photo, id) {
		return nil, uniqueViolation(store.ConstraintEntriesPhoto)
	}
	now := m.tick()
	e := copyEntry(&store.MoodEntry{
		ID:          id,
		UserID:      userID,
		Description: description,
		Mood:        mood,
		Photo:       photo,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	m.Entries = append(m.Entries, e)
	return copyEntry(e), nil
}

func (m *MockStore) GetEntry(_ context.Context, id, userID uuid.UUID) (*store.MoodEntry, error) {
	if m.GetEntryErr != nil {
		return nil, m.GetEntryErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.findEntry(id, userID)
	if e == nil {
		return nil, pgx.ErrNoRows
	}
	return copyEntry(e), nil
}

func (m *MockStore) GetLatestEntry(_ context.Context, userID uuid.UUID) (*store.MoodEntry, error) {
	if m.GetLatestEntryErr != nil {
		return nil, m.GetLatestEntryErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Entries) - 1; i >= 0; i-- {
		if m.Entries[i].UserID == userID {
			return copyEntry(m.Entries[i]), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *MockStore) UpdateEntry(_ context.Context, id, userID uuid.UUID, description, mood string, photo *string) (*store.MoodEntry, error) {
	if m.UpdateEntryErr != nil {
		return nil, m.UpdateEntryErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.findEntry(id, userID)
	if e == nil {
		return nil, pgx.ErrNoRows
	}
	if m.photoTaken(photo, id) {
		return nil, uniqueViolation(store.ConstraintEntriesPhoto)
	}
	if photo != nil {
		p := *photo
		photo = &p
	}
	e.Description, e.Mood, e.Photo = description, mood, photo
	e.UpdatedAt = m.tick()
	return copyEntry(e), nil
}

func (m *MockStore) GetEntryPhoto(_ context.Context, id, userID uuid.UUID) (*string, error) {
	if m.GetEntryPhotoErr != nil {
		return nil, m.GetEntryPhotoErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.findEntry(id, userID)
	if e == nil {
		return nil, pgx.ErrNoRows
	}
	return copyEntry(e).Photo, nil
}

func (m *MockStore) SetEntryPhoto(_ context.Context, id, userID uuid.UUID, photo string) error {
	if m.SetEntryPhotoErr != nil {
		return m.SetEntryPhotoErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.findEntry(id, userID)
	if e == nil {
		return pgx.ErrNoRows
	}
	if m.photoTaken(&photo, id) {
		return uniqueViolation(store.ConstraintEntriesPhoto)
	}
	e.Photo = &photo
	e.UpdatedAt = m.tick()
	return nil
}

func (m *MockStore) PhotoInUse(_ context.Context, userID uuid.UUID, photo string) (bool, error) {
	if m.PhotoInUseErr != nil {
		return false, m.PhotoInUseErr
	}
	if m.StalePhotoCheck {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Entries {
		if e.UserID == userID && e.Photo != nil && *e.Photo == photo {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockStore) CheckHealth(_ context.Context) error {
	return m.HealthErr
}

// Entry returns a snapshot of the entry with id, or nil. For assertions.
func (m *MockStore) Entry(id uuid.UUID) *store.MoodEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Entries {
		if e.ID == id {
			return copyEntry(e)
		}
	}
	return nil
}
