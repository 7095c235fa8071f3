// upload.go -- POST /mood-entry/upload and GET /uploads/{filename}.
//
// Uploads are streamed part by part straight into the temp dir; nothing is
// buffered in memory beyond the copy buffer. The reconciler then decides
// whether the bytes become a stored photo.
package journal

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/MGallo-Code/moodlog/internal/auth"
	"github.com/MGallo-Code/moodlog/internal/media"
	"github.com/MGallo-Code/moodlog/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// multipartSlack covers boundaries, part headers and the entry_id field.
const multipartSlack = 64 << 10

type uploadResponse struct {
	PhotoURL string     `json:"photo_url"`
	EntryID  *uuid.UUID `json:"entry_id"`
}

func (h *JournalHandler) maxUpload() int64 {
	if h.MaxUploadBytes > 0 {
		return h.MaxUploadBytes
	}
	return media.DefaultMaxBytes
}

func (h *JournalHandler) tooLarge(w http.ResponseWriter) {
	h.Metrics.Upload(metrics.UploadTooLarge)
	auth.PayloadTooLarge(w, fmt.Sprintf("file too large, max %d MB", h.maxUpload()>>20))
}

func (h *JournalHandler) rejected(w http.ResponseWriter, r *http.Request, message string) {
	h.Metrics.Upload(metrics.UploadRejected)
	auth.BadRequest(w, r, message)
}

// Upload handles POST /mood-entry/upload.
// Form fields: "photo" (the file) and optional "entry_id". Without entry_id the
// caller's most recent entry is the target; with no entries the photo is staged
// and can be attached later through photo_url.
func (h *JournalHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		auth.Unauthorized(w, r, "no token provided")
		return
	}

	limit := h.maxUpload()
	if r.ContentLength > limit+multipartSlack {
		logWarn(r, "upload rejected by declared length", "content_length", r.ContentLength)
		h.tooLarge(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartSlack)

	mr, err := r.MultipartReader()
	if err != nil {
		h.rejected(w, r, "expected multipart form")
		return
	}

	var (
		entryID  *uuid.UUID
		tempPath string
	)
	// Until the reconciler takes it, the temp file is ours to delete.
	defer func() {
		if tempPath != "" {
			if err := h.Storage.RemoveTemp(tempPath); err != nil {
				logWarn(r, "removing abandoned temp file", "path", tempPath, "error", err)
			}
		}
	}()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if isTooLarge(err) {
				h.tooLarge(w)
				return
			}
			logWarn(r, "reading multipart body", "error", err)
			h.rejected(w, r, "error reading upload")
			return
		}

		switch part.FormName() {
		case "entry_id":
			raw, err := io.ReadAll(io.LimitReader(part, 64))
			if err != nil {
				h.rejected(w, r, "error reading upload")
				return
			}
			id, err := uuid.FromString(strings.TrimSpace(string(raw)))
			if err != nil {
				h.rejected(w, r, "invalid entry_id")
				return
			}
			entryID = &id

		case "photo":
			if tempPath != "" {
				h.rejected(w, r, "only one photo per upload")
				return
			}
			if !media.AllowedMIME(part.Header.Get("Content-Type")) {
				logWarn(r, "declared type not allowed", "content_type", part.Header.Get("Content-Type"))
				h.rejected(w, r, "invalid file type")
				return
			}
			path, err := h.spool(part, limit)
			if err != nil {
				if errors.Is(err, media.ErrTooLarge) || isTooLarge(err) {
					h.tooLarge(w)
					return
				}
				// Client disconnects land here too.
				logWarn(r, "streaming upload to temp", "error", err)
				h.rejected(w, r, "error reading upload")
				return
			}
			tempPath = path
		}
		part.Close()
	}

	if tempPath == "" {
		h.rejected(w, r, "no file uploaded")
		return
	}

	if entryID == nil {
		latest, err := h.Store.GetLatestEntry(r.Context(), userID)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			h.Metrics.Upload(metrics.UploadFailed)
			auth.InternalServerError(w, r, err)
			return
		default:
			entryID = &latest.ID
		}
	}

	path := tempPath
	tempPath = ""
	res, err := h.Reconciler.Reconcile(r.Context(), userID, entryID, path)
	switch {
	case err == nil:
	case errors.Is(err, media.ErrInvalidMedia):
		logWarn(r, "upload failed content check", "error", err)
		h.rejected(w, r, "corrupted or invalid image")
		return
	case errors.Is(err, media.ErrTooLarge):
		h.tooLarge(w)
		return
	case errors.Is(err, media.ErrEntryNotFound):
		h.Metrics.Upload(metrics.UploadRejected)
		auth.NotFound(w, "entry not found")
		return
	case errors.Is(err, media.ErrPersistence):
		h.Metrics.ReconcileRollback()
		h.Metrics.Upload(metrics.UploadFailed)
		logError(r, "photo pointer update failed, upload rolled back", "error", err)
		writeInternal(w, "failed to save photo")
		return
	default:
		h.Metrics.Upload(metrics.UploadFailed)
		auth.InternalServerError(w, r, err)
		return
	}

	h.Metrics.Upload(metrics.UploadAccepted)
	logInfo(r, "photo stored", "photo", res.Filename, "mime", res.Kind.MIME, "staged", res.EntryID == nil)
	auth.JSON(w, http.StatusOK, uploadResponse{PhotoURL: res.Filename, EntryID: res.EntryID})
}

// spool copies at most limit bytes of src into a new temp file and returns its
// path. The temp file is removed on any error.
func (h *JournalHandler) spool(src io.Reader, limit int64) (string, error) {
	f, err := h.Storage.CreateTemp()
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	path := f.Name()

	n, err := io.Copy(f, io.LimitReader(src, limit+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > limit {
		err = media.ErrTooLarge
	}
	if err != nil {
		h.Storage.RemoveTemp(path)
		return "", err
	}
	return path, nil
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func writeInternal(w http.ResponseWriter, message string) {
	auth.JSON(w, http.StatusInternalServerError, map[string]string{"message": message})
}

// ServeMedia handles GET /uploads/{filename}. Only the owner may read a file.
// Responses carry headers that keep browsers from treating the bytes as
// anything but an image.
func (h *JournalHandler) ServeMedia(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		auth.Unauthorized(w, r, "no token provided")
		return
	}

	name := chi.URLParam(r, "filename")
	if err := media.Authorize(userID, name); err != nil {
		logWarn(r, "media access denied", "filename", name)
		auth.Forbidden(w)
		return
	}

	f, err := h.Storage.Open(name)
	if errors.Is(err, media.ErrNotFound) {
		auth.NotFound(w, "file not found")
		return
	}
	if err != nil {
		auth.InternalServerError(w, r, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		auth.InternalServerError(w, r, err)
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", media.ContentType(name))
	hdr.Set("Content-Disposition", "inline")
	hdr.Set("X-Content-Type-Options", "nosniff")
	hdr.Set("Content-Security-Policy", "default-src 'none'; img-src 'self'; sandbox")
	hdr.Set("Cache-Control", "private, max-age=3600")
	http.ServeContent(w, r, name, info.ModTime(), f)
}
