package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/MGallo-Code/moodlog/internal/auth"
	"github.com/MGallo-Code/moodlog/internal/media"
	"github.com/MGallo-Code/moodlog/internal/store"
	"github.com/MGallo-Code/moodlog/internal/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"
	"github.com/spf13/afero"
)

const (
	testTempDir   = "/srv/temp"
	testUploadDir = "/srv/uploads"
)

// testEnv is a handler over an in-memory store and filesystem.
type testEnv struct {
	h       *JournalHandler
	store   *testutil.MockStore
	storage *media.Storage
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fs := afero.NewMemMapFs()
	storage, err := media.NewStorage(fs, testTempDir, testUploadDir)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	ms := testutil.NewMockStore()
	rec := media.NewReconciler(ms, storage, media.NewSniffer(fs, media.DefaultMaxBytes))
	return &testEnv{
		h:       &JournalHandler{Store: ms, Reconciler: rec, Storage: storage},
		store:   ms,
		storage: storage,
	}
}

// router mounts the journal routes and authenticates every request as userID.
func (e *testEnv) router(userID uuid.UUID) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(auth.WithUser(req.Context(), userID, "tester")))
		})
	})
	r.Post("/mood-entry", e.h.Create)
	r.Put("/mood-entry/{id}", e.h.Update)
	r.Get("/mood-entry/user", e.h.Latest)
	r.Post("/mood-entry/upload", e.h.Upload)
	r.Get("/uploads/{filename}", e.h.ServeMedia)
	return r
}

func (e *testEnv) do(userID uuid.UUID, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router(userID).ServeHTTP(w, req)
	return w
}

// seedEntry inserts an entry directly into the store.
func (e *testEnv) seedEntry(t *testing.T, userID uuid.UUID, photo *string) *store.MoodEntry {
	t.Helper()
	entry, err := e.store.CreateEntry(context.Background(), uuid.Must(uuid.NewV7()), userID, "seeded", "calm", photo)
	if err != nil {
		t.Fatalf("seeding entry: %v", err)
	}
	return entry
}

func (e *testEnv) dir(t *testing.T, dir string) []string {
	t.Helper()
	infos, err := afero.ReadDir(e.storage.Fs(), dir)
	if err != nil {
		t.Fatalf("reading %s: %v", dir, err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names
}

func newUser() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 48, 48))
	for x := 0; x < 48; x++ {
		for y := 0; y < 48; y++ {
			img.Set(x, y, color.RGBA{uint8(x * 5), uint8(y * 5), 90, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encoding jpeg: %v", err)
	}
	return buf.Bytes()
}

// uploadRequest builds a multipart upload with a "photo" part declared as
// contentType and, when entryID is non-empty, an "entry_id" field.
func uploadRequest(t *testing.T, data []byte, contentType, entryID string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if entryID != "" {
		if err := mw.WriteField("entry_id", entryID); err != nil {
			t.Fatal(err)
		}
	}
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="photo"; filename="photo.jpg"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/mood-entry/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeEntry(t *testing.T, w *httptest.ResponseRecorder) *store.MoodEntry {
	t.Helper()
	var resp struct {
		Entry *store.MoodEntry `json:"entry"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding entry response: %v", err)
	}
	return resp.Entry
}

func decodeUpload(t *testing.T, w *httptest.ResponseRecorder) uploadResponse {
	t.Helper()
	var resp uploadResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding upload response: %v", err)
	}
	return resp
}

func assertStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status: expected %d, got %d (body %s)", want, w.Code, w.Body.String())
	}
}

func assertMessage(t *testing.T, w *httptest.ResponseRecorder, want string) {
	t.Helper()
	var resp struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding message: %v", err)
	}
	if resp.Message != want {
		t.Errorf("message: expected %q, got %q", want, resp.Message)
	}
}

// uploadFor stores a photo as userID and returns its name.
func (e *testEnv) uploadFor(t *testing.T, userID uuid.UUID, entryID string) string {
	t.Helper()
	w := e.do(userID, uploadRequest(t, jpegBytes(t), "image/jpeg", entryID))
	assertStatus(t, w, http.StatusOK)
	return decodeUpload(t, w).PhotoURL
}

// placeFor stores a photo owned by userID without touching any entry.
func (e *testEnv) placeFor(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	f, err := e.storage.CreateTemp()
	if err != nil {
		t.Fatal(err)
	}
	f.Write(jpegBytes(t))
	f.Close()
	name := userID.String() + "_" + uuid.Must(uuid.NewV4()).String() + ".jpg"
	if err := e.storage.Place(f.Name(), name); err != nil {
		t.Fatalf("placing photo: %v", err)
	}
	return name
}
