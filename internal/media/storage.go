package media

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// Storage keeps uploads in two directories on one afero.Fs: a scratch area for
// bytes still being verified and the durable upload directory.
type Storage struct {
	fs        afero.Fs
	tempDir   string
	uploadDir string
}

// NewStorage creates both directories if needed.
func NewStorage(fsys afero.Fs, tempDir, uploadDir string) (*Storage, error) {
	tempDir, uploadDir = filepath.Clean(tempDir), filepath.Clean(uploadDir)
	if tempDir == uploadDir {
		return nil, fmt.Errorf("temp and upload dirs must differ: %s", tempDir)
	}
	for _, dir := range []string{tempDir, uploadDir} {
		if err := fsys.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return &Storage{fs: fsys, tempDir: tempDir, uploadDir: uploadDir}, nil
}

// Fs exposes the underlying filesystem so a Sniffer can share it.
func (s *Storage) Fs() afero.Fs { return s.fs }

// CreateTemp opens a fresh scratch file. The caller writes, closes, and either
// hands its Name() to the Reconciler or calls RemoveTemp.
func (s *Storage) CreateTemp() (afero.File, error) {
	return afero.TempFile(s.fs, s.tempDir, "upload-*")
}

// uploadPath resolves name inside the upload dir. name must be a bare file name.
func (s *Storage) uploadPath(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", ErrInvalidName
	}
	return filepath.Join(s.uploadDir, name), nil
}

// inTemp reports whether path is a direct child of the temp dir.
func (s *Storage) inTemp(path string) bool {
	return filepath.Dir(filepath.Clean(path)) == s.tempDir
}

// Place copies the verified temp file to name in the upload dir, syncs it, then
// deletes the temp file. A copy is used rather than a rename so the two
// directories may live on different devices. A partial destination is removed
// on failure; an existing name is never overwritten.
func (s *Storage) Place(tempPath, name string) error {
	if !s.inTemp(tempPath) {
		return fmt.Errorf("%w: %s is not a temp file", ErrInvalidName, tempPath)
	}
	dest, err := s.uploadPath(name)
	if err != nil {
		return err
	}

	src, err := s.fs.Open(tempPath)
	if err != nil {
		return fmt.Errorf("open temp: %w", err)
	}
	defer src.Close()

	out, err := s.fs.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		s.fs.Remove(dest)
		return fmt.Errorf("copy to %s: %w", name, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		s.fs.Remove(dest)
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := out.Close(); err != nil {
		s.fs.Remove(dest)
		return fmt.Errorf("close %s: %w", name, err)
	}

	if err := s.RemoveTemp(tempPath); err != nil {
		// The placed file is good; a stray temp file is left for SweepTemp.
		slog.Warn("removing temp file after place", "path", tempPath, "error", err)
	}
	return nil
}

// Open opens a stored media object for reading.
// Returns ErrNotFound if it does not exist.
func (s *Storage) Open(name string) (afero.File, error) {
	p, err := s.uploadPath(name)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// Exists reports whether a stored media object is present.
func (s *Storage) Exists(name string) (bool, error) {
	p, err := s.uploadPath(name)
	if err != nil {
		return false, err
	}
	info, err := s.fs.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// Remove deletes a stored media object. Missing files are not an error.
func (s *Storage) Remove(name string) error {
	p, err := s.uploadPath(name)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// RemoveTemp deletes a scratch file. Missing files are not an error.
func (s *Storage) RemoveTemp(path string) error {
	if !s.inTemp(path) {
		return fmt.Errorf("%w: %s is not a temp file", ErrInvalidName, path)
	}
	if err := s.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// SweepTemp deletes scratch files last modified more than maxAge before now.
// Uploads interrupted by a crash end up here. Returns the number removed.
func (s *Storage) SweepTemp(maxAge time.Duration, now time.Time) (int, error) {
	infos, err := afero.ReadDir(s.fs, s.tempDir)
	if err != nil {
		return 0, fmt.Errorf("reading temp dir: %w", err)
	}
	removed := 0
	for _, info := range infos {
		if info.IsDir() || now.Sub(info.ModTime()) < maxAge {
			continue
		}
		if err := s.fs.Remove(filepath.Join(s.tempDir, info.Name())); err != nil {
			slog.Warn("sweeping temp file", "name", info.Name(), "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
