// responses.go -- Package-wide HTTP response helpers.
//
// Shared by handlers and middleware here and in the journal and ratelimit
// packages. Messages passed to the plain helpers are fixed ASCII strings, never
// user input, so string concat is safe here.
package auth

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"
)

// InternalServerError logs the error and returns a generic 500 JSON response.
// Never exposes internal error details to prevent information leakage.
func InternalServerError(w http.ResponseWriter, r *http.Request, err error) {
	logError(r, "internal server error", "error", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	w.Write([]byte(`{"message":"internal server error"}`))
}

// BadRequest returns a 400 JSON response with the given message.
// Use for client input validation failures.
func BadRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeMessage(w, http.StatusBadRequest, message)
}

// Unauthorized returns a 401 JSON response with a generic message.
// Keep message generic to prevent user enumeration.
func Unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	writeMessage(w, http.StatusUnauthorized, message)
}

// Forbidden returns a 403 JSON response with a generic message.
func Forbidden(w http.ResponseWriter) {
	writeMessage(w, http.StatusForbidden, "forbidden")
}

// ForbiddenMessage returns a 403 JSON response with the given message.
func ForbiddenMessage(w http.ResponseWriter, message string) {
	writeMessage(w, http.StatusForbidden, message)
}

// NotFound returns a 404 JSON response with the given message.
func NotFound(w http.ResponseWriter, message string) {
	writeMessage(w, http.StatusNotFound, message)
}

// PayloadTooLarge returns a 413 JSON response.
func PayloadTooLarge(w http.ResponseWriter, message string) {
	writeMessage(w, http.StatusRequestEntityTooLarge, message)
}

// TooManyRequests returns a 429 JSON response with Retry-After in whole seconds (min 1).
func TooManyRequests(w http.ResponseWriter, message string, retryAfter time.Duration) {
	secs := int(math.Ceil(retryAfter.Seconds()))
	w.Header().Set("Retry-After", strconv.Itoa(max(1, secs)))
	writeMessage(w, http.StatusTooManyRequests, message)
}

// JSON encodes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"message":"` + message + `"}`))
}
