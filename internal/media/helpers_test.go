package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"sync"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const (
	testTempDir   = "/data/temp"
	testUploadDir = "/data/uploads"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 4), 128, 255})
		}
	}
	return img
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(64, 64), nil))
	return buf.Bytes()
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage(64, 64)))
	return buf.Bytes()
}

func gifBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, testImage(16, 16), nil))
	return buf.Bytes()
}

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(afero.NewMemMapFs(), testTempDir, testUploadDir)
	require.NoError(t, err)
	return s
}

// writeTemp drops data into a fresh temp file and returns its path.
func writeTemp(t *testing.T, s *Storage, data []byte) string {
	t.Helper()
	f, err := s.CreateTemp()
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

func dirNames(t *testing.T, s *Storage, dir string) []string {
	t.Helper()
	infos, err := afero.ReadDir(s.Fs(), dir)
	require.NoError(t, err)
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names
}

// fakeEntries is an in-memory EntryStore keyed by entry id.
type fakeEntries struct {
	mu     sync.Mutex
	owners map[uuid.UUID]uuid.UUID
	photos map[uuid.UUID]*string

	GetErr   error
	SetErr   error
	InUseErr error
}

func newFakeEntries() *fakeEntries {
	return &fakeEntries{
		owners: make(map[uuid.UUID]uuid.UUID),
		photos: make(map[uuid.UUID]*string),
	}
}

func (f *fakeEntries) add(owner uuid.UUID, photo *string) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.Must(uuid.NewV7())
	f.owners[id] = owner
	f.photos[id] = photo
	return id
}

func (f *fakeEntries) photo(id uuid.UUID) *string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.photos[id]
}

func (f *fakeEntries) GetEntryPhoto(_ context.Context, id, userID uuid.UUID) (*string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	if owner, ok := f.owners[id]; !ok || owner != userID {
		return nil, pgx.ErrNoRows
	}
	return f.photos[id], nil
}

func (f *fakeEntries) SetEntryPhoto(_ context.Context, id, userID uuid.UUID, photo string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetErr != nil {
		return f.SetErr
	}
	if owner, ok := f.owners[id]; !ok || owner != userID {
		return pgx.ErrNoRows
	}
	f.photos[id] = &photo
	return nil
}

func (f *fakeEntries) PhotoInUse(_ context.Context, userID uuid.UUID, photo string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InUseErr != nil {
		return false, f.InUseErr
	}
	for id, p := range f.photos {
		if p != nil && *p == photo && f.owners[id] == userID {
			return true, nil
		}
	}
	return false, nil
}
