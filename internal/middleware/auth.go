package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ibhi/bitwarden-serverless/internal/auth"
	"github.com/ibhi/bitwarden-serverless/internal/logging"
)

type contextKey string

const sessionKey contextKey = "session"

// TokenValidator resolves a bearer token into a session
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*auth.Session, error)
}

// AuthMiddleware validates the bearer token and attaches the session (account and device) to the context
func AuthMiddleware(tokens TokenValidator, log logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondWithError(w, http.StatusUnauthorized, "Missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				respondWithError(w, http.StatusUnauthorized, "Invalid authorization header format")
				return
			}

			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				respondWithError(w, http.StatusUnauthorized, "Missing token")
				return
			}

			session, err := tokens.Validate(r.Context(), tokenString)
			switch {
			case errors.Is(err, auth.ErrStaleSecurityStamp):
				respondWithError(w, http.StatusUnauthorized, "Security stamp has changed, log in again")
				return
			case errors.Is(err, auth.ErrInvalidToken):
				respondWithError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			case err != nil:
				log.Error(r.Context(), "token validation failed", "error", err)
				respondWithError(w, http.StatusInternalServerError, "Internal error")
				return
			}

			ctx := context.WithValue(r.Context(), sessionKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSession returns the session attached to the request context (set by AuthMiddleware)
func GetSession(ctx context.Context) (*auth.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*auth.Session)
	return s, ok
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(auth.NewErrorBody(message))
}
