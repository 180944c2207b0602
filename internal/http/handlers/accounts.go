package handlers

import (
	"net/http"
	"strconv"

	"github.com/ibhi/bitwarden-serverless/internal/auth"
	"github.com/ibhi/bitwarden-serverless/internal/logging"
	"github.com/ibhi/bitwarden-serverless/internal/middleware"
)

// AccountsHandler handles /api/accounts endpoints
type AccountsHandler struct {
	accounts *auth.AccountService
	log      logging.Logger
}

func NewAccountsHandler(accounts *auth.AccountService, log logging.Logger) *AccountsHandler {
	return &AccountsHandler{accounts: accounts, log: log}
}

type preloginRequest struct {
	Email string `json:"email"`
}

type passwordRequest struct {
	MasterPasswordHash string `json:"masterPasswordHash"`
}

// session returns the authenticated session, answering 401 when missing
func session(w http.ResponseWriter, r *http.Request) (*auth.Session, bool) {
	s, ok := middleware.GetSession(r.Context())
	if !ok || s == nil {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}
	return s, true
}

// HandlePrelogin handles POST /api/accounts/prelogin
func (h *AccountsHandler) HandlePrelogin(w http.ResponseWriter, r *http.Request) {
	var req preloginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := h.accounts.Prelogin(r.Context(), req.Email)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// HandleRegister handles POST /api/accounts/register
func (h *AccountsHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.accounts.Register(r.Context(), req); err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleProfile handles GET /api/accounts/profile
func (h *AccountsHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, h.accounts.Profile(&s.Account))
}

// HandleUpdateProfile handles PUT /api/accounts/profile
func (h *AccountsHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	var req auth.ProfileUpdate
	if !decodeJSON(w, r, &req) {
		return
	}
	profile, err := h.accounts.UpdateProfile(r.Context(), &s.Account, req)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

// HandleKeys handles POST /api/accounts/keys
func (h *AccountsHandler) HandleKeys(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	var req auth.KeysRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	profile, err := h.accounts.SetKeys(r.Context(), &s.Account, req)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

// HandleRevisionDate handles GET /api/accounts/revision-date
func (h *AccountsHandler) HandleRevisionDate(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(strconv.FormatInt(h.accounts.RevisionDate(&s.Account), 10)))
}

// HandleSecurityStamp handles POST /api/accounts/security-stamp
func (h *AccountsHandler) HandleSecurityStamp(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	var req passwordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.accounts.RotateSecurityStamp(r.Context(), &s.Account, req.MasterPasswordHash); err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
