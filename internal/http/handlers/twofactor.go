package handlers

import (
	"net/http"

	"github.com/ibhi/bitwarden-serverless/internal/logging"
	"github.com/ibhi/bitwarden-serverless/internal/model"
	"github.com/ibhi/bitwarden-serverless/internal/twofactor"
)

// TwoFactorHandler handles /api/two-factor endpoints
type TwoFactorHandler struct {
	svc *twofactor.Service
	log logging.Logger
}

func NewTwoFactorHandler(svc *twofactor.Service, log logging.Logger) *TwoFactorHandler {
	return &TwoFactorHandler{svc: svc, log: log}
}

type authenticatorRequest struct {
	MasterPasswordHash string `json:"masterPasswordHash"`
	Key                string `json:"key"`
	Token              string `json:"token"`
}

type disableRequest struct {
	MasterPasswordHash string              `json:"masterPasswordHash"`
	Type               model.TwoFactorType `json:"type"`
}

type recoverRequest struct {
	Email              string `json:"email"`
	MasterPasswordHash string `json:"masterPasswordHash"`
	RecoveryCode       string `json:"recoveryCode"`
}

type u2fRequest struct {
	MasterPasswordHash string `json:"masterPasswordHash"`
	ID                 int    `json:"id"`
	Name               string `json:"name"`
	DeviceResponse     string `json:"deviceResponse"`
}

// reply writes body or maps err
func (h *TwoFactorHandler) reply(w http.ResponseWriter, r *http.Request, body any, err error) {
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, body)
}

// HandleList handles GET /api/two-factor
func (h *TwoFactorHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, h.svc.List(&s.Account))
}

// HandleGetAuthenticator handles POST /api/two-factor/get-authenticator
func (h *TwoFactorHandler) HandleGetAuthenticator(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	var req passwordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	body, err := h.svc.GetAuthenticator(r.Context(), &s.Account, req.MasterPasswordHash)
	h.reply(w, r, body, err)
}

// HandleActivateAuthenticator handles POST/PUT /api/two-factor/authenticator
func (h *TwoFactorHandler) HandleActivateAuthenticator(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	var req authenticatorRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	body, err := h.svc.ActivateAuthenticator(r.Context(), &s.Account, req.MasterPasswordHash, req.Key, req.Token)
	h.reply(w, r, body, err)
}

// HandleDisable handles POST/PUT /api/two-factor/disable
func (h *TwoFactorHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	var req disableRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	body, err := h.svc.Disable(r.Context(), &s.Account, req.MasterPasswordHash, req.Type)
	h.reply(w, r, body, err)
}

// HandleGetRecover handles POST /api/two-factor/get-recover
func (h *TwoFactorHandler) HandleGetRecover(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	var req passwordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	body, err := h.svc.GetRecover(r.Context(), &s.Account, req.MasterPasswordHash)
	h.reply(w, r, body, err)
}

// HandleRecover handles POST /api/two-factor/recover (unauthenticated)
func (h *TwoFactorHandler) HandleRecover(w http.ResponseWriter, r *http.Request) {
	var req recoverRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.Recover(r.Context(), req.Email, req.MasterPasswordHash, req.RecoveryCode); err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleGetU2F handles POST /api/two-factor/get-u2f
func (h *TwoFactorHandler) HandleGetU2F(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	var req passwordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	body, err := h.svc.GetU2F(r.Context(), &s.Account, req.MasterPasswordHash)
	h.reply(w, r, body, err)
}

// HandleU2FChallenge handles POST /api/two-factor/get-u2f-challenge
func (h *TwoFactorHandler) HandleU2FChallenge(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	var req passwordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	body, err := h.svc.U2FRegisterChallenge(r.Context(), &s.Account, req.MasterPasswordHash)
	h.reply(w, r, body, err)
}

// HandleActivateU2F handles POST/PUT /api/two-factor/u2f
func (h *TwoFactorHandler) HandleActivateU2F(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	var req u2fRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	body, err := h.svc.ActivateU2F(r.Context(), &s.Account, req.MasterPasswordHash, req.ID, req.Name, req.DeviceResponse)
	h.reply(w, r, body, err)
}

// HandleDeleteU2F handles DELETE /api/two-factor/u2f
func (h *TwoFactorHandler) HandleDeleteU2F(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	var req u2fRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	body, err := h.svc.DeleteU2F(r.Context(), &s.Account, req.MasterPasswordHash, req.ID)
	h.reply(w, r, body, err)
}
