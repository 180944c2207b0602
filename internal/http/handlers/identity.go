package handlers

import (
	"net/http"

	"github.com/ibhi/bitwarden-serverless/internal/auth"
)

// IdentityHandler serves the token endpoint
type IdentityHandler struct {
	login *auth.LoginService
}

func NewIdentityHandler(login *auth.LoginService) *IdentityHandler {
	return &IdentityHandler{login: login}
}

// HandleToken handles POST /identity/connect/token (form encoded)
func (h *IdentityHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondValidation(w, "Invalid request body")
		return
	}

	resp := h.login.HandleLogin(r.Context(), r.PostForm, r.Header)
	respondJSON(w, resp.Status, resp.Body)
}
