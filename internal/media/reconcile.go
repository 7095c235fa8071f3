package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// EntryStore is the slice of persistence the Reconciler needs.
// The entry methods return pgx.ErrNoRows when no entry owned by userID matches.
type EntryStore interface {
	GetEntryPhoto(ctx context.Context, id, userID uuid.UUID) (*string, error)
	SetEntryPhoto(ctx context.Context, id, userID uuid.UUID, photo string) error
	PhotoInUse(ctx context.Context, userID uuid.UUID, photo string) (bool, error)
}

// Result describes a successfully placed upload.
type Result struct {
	Filename string
	Kind     Kind
	// EntryID is nil when the file was staged rather than attached.
	EntryID *uuid.UUID
	// Previous is the photo the entry pointed at before, if any.
	Previous *string
}

// Reconciler turns a verified temp file into a stored media object and keeps
// the owning entry's photo pointer consistent with what is on disk.
type Reconciler struct {
	store   EntryStore
	storage *Storage
	sniffer *Sniffer
	// newToken generates the random half of stored names.
	newToken func() (uuid.UUID, error)
}

// NewReconciler wires the three collaborators.
func NewReconciler(store EntryStore, storage *Storage, sniffer *Sniffer) *Reconciler {
	return &Reconciler{
		store:    store,
		storage:  storage,
		sniffer:  sniffer,
		newToken: uuid.NewV4,
	}
}

// Reconcile verifies tempPath, places it under an unguessable owner-prefixed
// name and, when entryID is set, points that entry at it.
//
// The temp file is always gone on return. On any failure after placement the
// new file is deleted and the entry keeps its previous photo. The previous file
// is deleted only after the pointer update succeeded.
func (r *Reconciler) Reconcile(ctx context.Context, ownerID uuid.UUID, entryID *uuid.UUID, tempPath string) (*Result, error) {
	kind, err := r.sniffer.Sniff(tempPath)
	if err != nil {
		r.dropTemp(tempPath)
		return nil, err
	}

	token, err := r.newToken()
	if err != nil {
		r.dropTemp(tempPath)
		return nil, fmt.Errorf("generating media token: %w", err)
	}
	name := fmt.Sprintf("%s_%s.%s", ownerID, token, kind.Ext)

	if err := r.storage.Place(tempPath, name); err != nil {
		r.dropTemp(tempPath)
		return nil, fmt.Errorf("placing media: %w", err)
	}

	res := &Result{Filename: name, Kind: kind}
	if entryID == nil {
		return res, nil
	}
	res.EntryID = entryID

	prev, err := r.store.GetEntryPhoto(ctx, *entryID, ownerID)
	if err != nil {
		r.dropPlaced(name)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("%w: reading current photo: %v", ErrPersistence, err)
	}
	res.Previous = prev

	if err := r.store.SetEntryPhoto(ctx, *entryID, ownerID, name); err != nil {
		r.dropPlaced(name)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if err := r.ReplacePhoto(prev, &name); err != nil {
		slog.Warn("removing replaced photo", "name", *prev, "error", err)
	}
	return res, nil
}

// ReplacePhoto deletes prev once an entry no longer points at it.
// Call only after the pointer update has committed. No-op when prev is nil or
// equal to next.
func (r *Reconciler) ReplacePhoto(prev, next *string) error {
	if prev == nil || *prev == "" {
		return nil
	}
	if next != nil && *next == *prev {
		return nil
	}
	return r.storage.Remove(*prev)
}

// Attachable reports whether ownerID may point an entry at name. Only staged
// files qualify: ErrForbidden if the guard rejects it, ErrNotFound if nothing
// is stored there, ErrInUse if an entry already points at it.
func (r *Reconciler) Attachable(ctx context.Context, ownerID uuid.UUID, name string) error {
	if err := Authorize(ownerID, name); err != nil {
		return err
	}
	ok, err := r.storage.Exists(name)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	inUse, err := r.store.PhotoInUse(ctx, ownerID, name)
	if err != nil {
		return fmt.Errorf("%w: checking photo references: %v", ErrPersistence, err)
	}
	if inUse {
		return ErrInUse
	}
	return nil
}

func (r *Reconciler) dropTemp(path string) {
	if err := r.storage.RemoveTemp(path); err != nil {
		slog.Warn("removing rejected temp file", "path", path, "error", err)
	}
}

func (r *Reconciler) dropPlaced(name string) {
	if err := r.storage.Remove(name); err != nil {
		slog.Error("rolling back placed media", "name", name, "error", err)
	}
}
