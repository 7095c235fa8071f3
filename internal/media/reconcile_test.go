package media

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reconcileFixture struct {
	storage    *Storage
	entries    *fakeEntries
	reconciler *Reconciler
	owner      uuid.UUID
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()
	s := newTestStorage(t)
	entries := newFakeEntries()
	return &reconcileFixture{
		storage:    s,
		entries:    entries,
		reconciler: NewReconciler(entries, s, NewSniffer(s.Fs(), DefaultMaxBytes)),
		owner:      uuid.Must(uuid.NewV7()),
	}
}

func (f *reconcileFixture) exists(t *testing.T, name string) bool {
	t.Helper()
	ok, err := f.storage.Exists(name)
	require.NoError(t, err)
	return ok
}

func TestReconcile_RejectsNonImagesAndLeavesNoTemp(t *testing.T) {
	inputs := map[string][]byte{
		"text":       []byte("just some words"),
		"shell":      []byte("#!/bin/sh\nrm -rf /\n"),
		"svg":        []byte(`<svg xmlns="http://www.w3.org/2000/svg"><script>alert(1)</script></svg>`),
		"zero bytes": {},
	}
	for name, data := range inputs {
		t.Run(name, func(t *testing.T) {
			f := newReconcileFixture(t)
			entry := f.entries.add(f.owner, nil)
			tmp := writeTemp(t, f.storage, data)

			_, err := f.reconciler.Reconcile(context.Background(), f.owner, &entry, tmp)
			assert.ErrorIs(t, err, ErrInvalidMedia)
			assert.Empty(t, dirNames(t, f.storage, testTempDir), "temp file left behind")
			assert.Empty(t, dirNames(t, f.storage, testUploadDir), "nothing should be placed")
			assert.Nil(t, f.entries.photo(entry))
		})
	}
}

func TestReconcile_RejectsTruncatedImages(t *testing.T) {
	f := newReconcileFixture(t)
	entry := f.entries.add(f.owner, nil)
	full := jpegBytes(t)
	tmp := writeTemp(t, f.storage, full[:len(full)/2])

	_, err := f.reconciler.Reconcile(context.Background(), f.owner, &entry, tmp)
	assert.ErrorIs(t, err, ErrInvalidMedia)
	assert.Empty(t, dirNames(t, f.storage, testTempDir))
}

func TestReconcile_TooLarge(t *testing.T) {
	f := newReconcileFixture(t)
	f.reconciler.sniffer.MaxBytes = 10
	tmp := writeTemp(t, f.storage, pngBytes(t))

	_, err := f.reconciler.Reconcile(context.Background(), f.owner, nil, tmp)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Empty(t, dirNames(t, f.storage, testTempDir))
}

func TestReconcile_AttachesAndRemovesPrevious(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	entry := f.entries.add(f.owner, nil)

	first, err := f.reconciler.Reconcile(ctx, f.owner, &entry, writeTemp(t, f.storage, jpegBytes(t)))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.Filename, f.owner.String()+"_"))
	assert.True(t, strings.HasSuffix(first.Filename, ".jpg"))
	assert.NoError(t, Authorize(f.owner, first.Filename), "issued names must pass the guard")
	assert.Nil(t, first.Previous)
	require.NotNil(t, f.entries.photo(entry))
	assert.Equal(t, first.Filename, *f.entries.photo(entry))

	second, err := f.reconciler.Reconcile(ctx, f.owner, &entry, writeTemp(t, f.storage, pngBytes(t)))
	require.NoError(t, err)
	assert.Equal(t, "image/png", second.Kind.MIME)
	require.NotNil(t, second.Previous)
	assert.Equal(t, first.Filename, *second.Previous)
	assert.Equal(t, second.Filename, *f.entries.photo(entry))

	assert.False(t, f.exists(t, first.Filename), "previous photo should be removed")
	assert.True(t, f.exists(t, second.Filename))
	assert.Empty(t, dirNames(t, f.storage, testTempDir))
}

func TestReconcile_StagedWhenNoEntry(t *testing.T) {
	f := newReconcileFixture(t)

	res, err := f.reconciler.Reconcile(context.Background(), f.owner, nil, writeTemp(t, f.storage, gifBytes(t)))
	require.NoError(t, err)
	assert.Nil(t, res.EntryID)
	assert.True(t, f.exists(t, res.Filename))
}

func TestReconcile_UnknownEntryDeletesNewFile(t *testing.T) {
	f := newReconcileFixture(t)
	someoneElse := uuid.Must(uuid.NewV7())
	entry := f.entries.add(someoneElse, nil)

	_, err := f.reconciler.Reconcile(context.Background(), f.owner, &entry, writeTemp(t, f.storage, jpegBytes(t)))
	assert.ErrorIs(t, err, ErrEntryNotFound)
	assert.Empty(t, dirNames(t, f.storage, testUploadDir))
	assert.Empty(t, dirNames(t, f.storage, testTempDir))
}

// Entry points at P1; uploading P2 fails at the pointer update.
// P1 must stay referenced and readable, P2 must not exist.
func TestReconcile_PersistenceFailureRollsBack(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	entry := f.entries.add(f.owner, nil)

	p1, err := f.reconciler.Reconcile(ctx, f.owner, &entry, writeTemp(t, f.storage, jpegBytes(t)))
	require.NoError(t, err)

	f.entries.SetErr = errors.New("connection reset")
	_, err = f.reconciler.Reconcile(ctx, f.owner, &entry, writeTemp(t, f.storage, pngBytes(t)))
	assert.ErrorIs(t, err, ErrPersistence)

	require.NotNil(t, f.entries.photo(entry))
	assert.Equal(t, p1.Filename, *f.entries.photo(entry))
	assert.True(t, f.exists(t, p1.Filename), "P1 must still be on disk")
	assert.Equal(t, []string{p1.Filename}, dirNames(t, f.storage, testUploadDir), "P2 must be gone")
	assert.Empty(t, dirNames(t, f.storage, testTempDir))
}

func TestReconcile_ReadFailureRollsBack(t *testing.T) {
	f := newReconcileFixture(t)
	entry := f.entries.add(f.owner, nil)
	f.entries.GetErr = errors.New("timeout")

	_, err := f.reconciler.Reconcile(context.Background(), f.owner, &entry, writeTemp(t, f.storage, jpegBytes(t)))
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Empty(t, dirNames(t, f.storage, testUploadDir))
}

func TestReplacePhoto(t *testing.T) {
	f := newReconcileFixture(t)
	res, err := f.reconciler.Reconcile(context.Background(), f.owner, nil, writeTemp(t, f.storage, jpegBytes(t)))
	require.NoError(t, err)
	name := res.Filename

	t.Run("identical photo is untouched", func(t *testing.T) {
		same := name
		require.NoError(t, f.reconciler.ReplacePhoto(&name, &same))
		assert.True(t, f.exists(t, name))
	})

	t.Run("nil previous is a no-op", func(t *testing.T) {
		assert.NoError(t, f.reconciler.ReplacePhoto(nil, &name))
	})

	t.Run("different photo removes previous", func(t *testing.T) {
		other := "replacement.png"
		require.NoError(t, f.reconciler.ReplacePhoto(&name, &other))
		assert.False(t, f.exists(t, name))
	})
}

func TestAttachable(t *testing.T) {
	ctx := context.Background()
	f := newReconcileFixture(t)
	res, err := f.reconciler.Reconcile(ctx, f.owner, nil, writeTemp(t, f.storage, jpegBytes(t)))
	require.NoError(t, err)

	assert.NoError(t, f.reconciler.Attachable(ctx, f.owner, res.Filename))
	assert.ErrorIs(t, f.reconciler.Attachable(ctx, uuid.Must(uuid.NewV7()), res.Filename), ErrForbidden)

	missing := f.owner.String() + "_" + uuid.Must(uuid.NewV4()).String() + ".png"
	assert.ErrorIs(t, f.reconciler.Attachable(ctx, f.owner, missing), ErrNotFound)
}

func TestAttachable_RejectsPhotoOfAnotherEntry(t *testing.T) {
	ctx := context.Background()
	f := newReconcileFixture(t)
	first := f.entries.add(f.owner, nil)
	res, err := f.reconciler.Reconcile(ctx, f.owner, &first, writeTemp(t, f.storage, jpegBytes(t)))
	require.NoError(t, err)

	assert.ErrorIs(t, f.reconciler.Attachable(ctx, f.owner, res.Filename), ErrInUse)
}

func TestAttachable_StoreError(t *testing.T) {
	ctx := context.Background()
	f := newReconcileFixture(t)
	res, err := f.reconciler.Reconcile(ctx, f.owner, nil, writeTemp(t, f.storage, jpegBytes(t)))
	require.NoError(t, err)

	f.entries.InUseErr = errors.New("connection reset")
	assert.ErrorIs(t, f.reconciler.Attachable(ctx, f.owner, res.Filename), ErrPersistence)
}
