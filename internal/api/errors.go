package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/crptomonkeys/monKey-matching/internal/freeze"
	"github.com/crptomonkeys/monKey-matching/internal/session"
	"github.com/crptomonkeys/monKey-matching/internal/store"
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps domain failures to HTTP status codes. Anything
// unrecognised is an internal error.
func statusFor(err error) int {
	var incomplete *session.IncompleteSetError

	switch {
	case errors.Is(err, session.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, session.ErrMaintenance):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrCooldownActive),
		errors.Is(err, freeze.ErrStillFrozen),
		errors.Is(err, freeze.ErrAlreadyLocked):
		return http.StatusConflict
	case errors.Is(err, session.ErrNoActiveGame),
		errors.Is(err, session.ErrUnknownUser),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrOwnership),
		errors.Is(err, session.ErrMintUnknown):
		return http.StatusForbidden
	case errors.As(err, &incomplete):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrNoRewardTier):
		// Configuration gap; nothing the caller can do about it.
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}
