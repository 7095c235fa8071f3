package media

import (
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"

	// Decoders registered for image.DecodeConfig / image.Decode.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/spf13/afero"
)

// Kind is a verified media type and the extension stored files get for it.
type Kind struct {
	MIME string
	Ext  string
}

// allowed maps a sniffed MIME type to its Kind and the image package format name.
var allowed = map[string]struct {
	kind   Kind
	format string
}{
	"image/jpeg": {Kind{"image/jpeg", "jpg"}, "jpeg"},
	"image/png":  {Kind{"image/png", "png"}, "png"},
	"image/gif":  {Kind{"image/gif", "gif"}, "gif"},
	"image/webp": {Kind{"image/webp", "webp"}, "webp"},
}

// AllowedMIME reports whether a declared content type is on the allow-list.
// Only used as a cheap early filter; Sniff is authoritative.
func AllowedMIME(mime string) bool {
	_, ok := allowed[mime]
	return ok
}

const (
	// DefaultMaxBytes caps uploads at 5 MiB.
	DefaultMaxBytes = 5 << 20
	// DefaultMaxPixels rejects images above 50 megapixels before a full decode.
	DefaultMaxPixels = 50_000_000
	sniffLen         = 512
)

// Sniffer decides what a file really is from its bytes.
type Sniffer struct {
	fs        afero.Fs
	MaxBytes  int64
	MaxPixels int64
}

// NewSniffer returns a Sniffer reading from fs with the default pixel cap.
func NewSniffer(fs afero.Fs, maxBytes int64) *Sniffer {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Sniffer{fs: fs, MaxBytes: maxBytes, MaxPixels: DefaultMaxPixels}
}

// Sniff inspects the file at path and returns its verified Kind.
// Returns ErrTooLarge for oversized files and ErrInvalidMedia (wrapping the cause)
// for anything that is not a decodable image of an allowed type.
func (s *Sniffer) Sniff(path string) (Kind, error) {
	info, err := s.fs.Stat(path)
	if err != nil {
		return Kind{}, fmt.Errorf("stat upload: %w", err)
	}
	if info.Size() > s.MaxBytes {
		return Kind{}, ErrTooLarge
	}
	if info.Size() == 0 {
		return Kind{}, fmt.Errorf("%w: empty file", ErrInvalidMedia)
	}

	f, err := s.fs.Open(path)
	if err != nil {
		return Kind{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return Kind{}, fmt.Errorf("read upload: %w", err)
	}
	detected := http.DetectContentType(head[:n])
	entry, ok := allowed[detected]
	if !ok {
		return Kind{}, fmt.Errorf("%w: detected %s", ErrInvalidMedia, detected)
	}

	// Header first so a decompression bomb is refused before pixels are allocated.
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Kind{}, fmt.Errorf("seek upload: %w", err)
	}
	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return Kind{}, fmt.Errorf("%w: %v", ErrInvalidMedia, err)
	}
	if format != entry.format {
		return Kind{}, fmt.Errorf("%w: content is %s, decoded as %s", ErrInvalidMedia, detected, format)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > s.MaxPixels {
		return Kind{}, fmt.Errorf("%w: dimensions %dx%d out of range", ErrInvalidMedia, cfg.Width, cfg.Height)
	}

	// Full decode catches truncated or corrupt bodies behind a valid header.
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Kind{}, fmt.Errorf("seek upload: %w", err)
	}
	if _, _, err := image.Decode(f); err != nil {
		return Kind{}, fmt.Errorf("%w: %v", ErrInvalidMedia, err)
	}

	return entry.kind, nil
}
