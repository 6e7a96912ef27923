// ABOUTME: Error to HTTP status mapping and JSON response helpers
// ABOUTME: Unknown errors are logged and hidden behind a generic 500

package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/northbridge/bankd/internal/auth"
	"github.com/northbridge/bankd/internal/bank"
)

// errMalformedRequest marks request bodies that could not be decoded or validated.
var errMalformedRequest = errors.New("malformed request")

// errorResponse returns the status and client-facing detail for err.
func errorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, errMalformedRequest):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, auth.ErrInvalidPassword):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, auth.ErrDuplicateIdentity):
		return http.StatusBadRequest, "Email already registered"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, bank.ErrAmountOutOfRange):
		return http.StatusBadRequest, "Amount out of range"
	case errors.Is(err, bank.ErrInvalidAmount):
		return http.StatusBadRequest, "Amount must be positive"
	case errors.Is(err, bank.ErrSelfTransfer):
		return http.StatusBadRequest, "Cannot transfer to yourself"
	case errors.Is(err, bank.ErrInsufficientFunds):
		return http.StatusBadRequest, "Insufficient funds"
	case errors.Is(err, bank.ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, bank.ErrRecipientNotFound):
		return http.StatusNotFound, "Recipient not found"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// writeError writes the mapped error response, logging system faults.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := errorResponse(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
