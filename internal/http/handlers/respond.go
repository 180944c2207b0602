package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ibhi/bitwarden-serverless/internal/auth"
	"github.com/ibhi/bitwarden-serverless/internal/logging"
	"github.com/ibhi/bitwarden-serverless/internal/twofactor"
)

// twoFactorMessages maps management errors to the messages shown to clients
var twoFactorMessages = map[error]string{
	twofactor.ErrInvalidPassword:     "Invalid password.",
	twofactor.ErrInvalidKey:          "Invalid key",
	twofactor.ErrInvalidToken:        "Invalid token",
	twofactor.ErrInvalidResponse:     "Invalid U2F response",
	twofactor.ErrKeyNotFound:         "U2F key not found",
	twofactor.ErrDuplicateKey:        "A U2F key with this id already exists",
	twofactor.ErrInvalidRecoveryCode: "Invalid recovery code",
	twofactor.ErrNotEnabled:          "Two-factor provider is not enabled",
	twofactor.ErrChallengeNotFound:   "No pending U2F challenge",
}

// respondJSON writes body with the given status
func respondJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// respondWithError sends a {Message, Object} error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, auth.NewErrorBody(message))
}

// respondValidation sends a 400 ValidationErrors response
func respondValidation(w http.ResponseWriter, message string) {
	respondJSON(w, http.StatusBadRequest, auth.NewValidationErrorBody(message))
}

// respondServiceError maps a service error to a client response; unexpected
// errors are logged and hidden behind a 500.
func respondServiceError(w http.ResponseWriter, r *http.Request, log logging.Logger, err error) {
	var validation *auth.ValidationError
	if errors.As(err, &validation) {
		respondValidation(w, validation.Message)
		return
	}
	for target, msg := range twoFactorMessages {
		if errors.Is(err, target) {
			respondValidation(w, msg)
			return
		}
	}
	if errors.Is(err, twofactor.ErrDeviceCompromised) {
		respondWithError(w, http.StatusForbidden, "This device might be compromised!")
		return
	}
	log.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	respondWithError(w, http.StatusInternalServerError, "Internal error")
}

// decodeJSON reads the request body into dst, answering 400 on failure
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondValidation(w, "Invalid request body")
		return false
	}
	return true
}
