package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ignasirv/zkVaccionation/identity"
	"github.com/ignasirv/zkVaccionation/ledger"
	"github.com/ignasirv/zkVaccionation/zkapp"
)

var errBadRequest = errors.New("bad request")

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

// WriteError translates contract and ledger errors into HTTP responses.
func WriteError(w http.ResponseWriter, err error) {
	code, status := classify(err)
	WriteJSON(w, status, map[string]string{
		"error":             code,
		"error_description": err.Error(),
	})
}

func classify(err error) (string, int) {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, identity.ErrInvalidCredential):
		return "bad_request", http.StatusBadRequest
	case errors.Is(err, zkapp.ErrUnauthorized), errors.Is(err, ledger.ErrMissingAuth), errors.Is(err, ledger.ErrBadSignature):
		return "unauthorized", http.StatusForbidden
	case errors.Is(err, zkapp.ErrStale):
		return "stale", http.StatusConflict
	case errors.Is(err, zkapp.ErrInvalidCertificate):
		return "invalid_certificate", http.StatusUnprocessableEntity
	case errors.Is(err, zkapp.ErrOverflow):
		return "overflow", http.StatusUnprocessableEntity
	case errors.Is(err, zkapp.ErrUninitialized):
		return "uninitialized", http.StatusPreconditionFailed
	case errors.Is(err, zkapp.ErrAlreadyInitialized):
		return "already_initialized", http.StatusConflict
	}
	return "internal_error", http.StatusInternalServerError
}
