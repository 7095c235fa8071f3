// Package media owns everything between an uploaded byte stream and a stored photo:
// content sniffing, placement on disk, keeping mood entry pointers consistent
// with the files they reference, and deciding who may read a file back.
package media

import "errors"

var (
	// ErrInvalidMedia means the bytes are not an allowed, well-formed image.
	ErrInvalidMedia = errors.New("invalid media")
	// ErrTooLarge means the upload exceeds the configured byte cap.
	ErrTooLarge = errors.New("media too large")
	// ErrEntryNotFound means the target entry does not exist or is not the caller's.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrPersistence means the pointer update failed and the new file was rolled back.
	ErrPersistence = errors.New("persisting media pointer failed")
	// ErrForbidden means the caller does not own the requested file.
	ErrForbidden = errors.New("forbidden")
	// ErrInUse means another entry already points at the file.
	ErrInUse = errors.New("media already attached")
	// ErrNotFound means a stored media object does not exist.
	ErrNotFound = errors.New("media not found")
	// ErrInvalidName means a storage name is not a plain base name.
	ErrInvalidName = errors.New("invalid media name")
)
