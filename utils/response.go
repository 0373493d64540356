package utils

import (
	"encoding/json"
	"errors"
	"net/http"

	"vigila/cache"
)

type M map[string]any

// Sends a JSON response
func RespondWithJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func RespondWithError(w http.ResponseWriter, code int, msg string) {
	RespondWithJSON(w, code, M{"error": msg})
}

// StatusOf maps store errors to HTTP statuses.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, cache.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, cache.ErrSessionEnded):
		return http.StatusUnauthorized
	case errors.Is(err, cache.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RespondWithStoreError writes err. A transport failure still carries the
// last known collection, flagged stale, when there is one.
func RespondWithStoreError(w http.ResponseWriter, err error, stale any) {
	code := StatusOf(err)
	if code == http.StatusBadGateway && stale != nil {
		RespondWithJSON(w, code, M{"error": "backend unavailable", "stale": true, "data": stale})
		return
	}
	msg := http.StatusText(code)
	switch code {
	case http.StatusNotFound:
		msg = "not found"
	case http.StatusUnauthorized:
		msg = "session ended"
	case http.StatusBadGateway:
		msg = "backend unavailable"
	}
	RespondWithError(w, code, msg)
}
