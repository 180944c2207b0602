package auth

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ibhi/bitwarden-serverless/internal/model"
	"github.com/ibhi/bitwarden-serverless/internal/twofactor"
)

// Response is a status code plus a JSON-encodable body.
type Response struct {
	Status int
	Body   any
}

// TokenResponse is returned by both grant types on success.
type TokenResponse struct {
	AccessToken    string  `json:"access_token"`
	ExpiresIn      int     `json:"expires_in"`
	TokenType      string  `json:"token_type"`
	RefreshToken   string  `json:"refresh_token"`
	Key            string  `json:"Key"`
	PrivateKey     *string `json:"PrivateKey"`
	TwoFactorToken string  `json:"TwoFactorToken,omitempty"`
}

// TwoFactorRequiredBody tells the client which second factors it may use.
type TwoFactorRequiredBody struct {
	Error               string                              `json:"error"`
	ErrorDescription    string                              `json:"error_description"`
	TwoFactorProviders  []model.TwoFactorType               `json:"TwoFactorProviders"`
	TwoFactorProviders2 map[string]*twofactor.ChallengeData `json:"TwoFactorProviders2"`
}

// ValidationErrorBody is the shape of every 400 validation failure.
type ValidationErrorBody struct {
	ValidationErrors map[string][]string `json:"ValidationErrors"`
	Object           string              `json:"Object"`
}

// ErrorBody is the shape of non-validation failures.
type ErrorBody struct {
	Message string `json:"Message"`
	Object  string `json:"Object"`
}

func NewValidationErrorBody(msg string) ValidationErrorBody {
	return ValidationErrorBody{ValidationErrors: map[string][]string{"": {msg}}, Object: "error"}
}

func NewErrorBody(msg string) ErrorBody {
	return ErrorBody{Message: msg, Object: "error"}
}

func tokenResponse(account *model.Account, pair TokenPair, rememberToken string) TokenResponse {
	resp := TokenResponse{
		AccessToken:    pair.AccessToken,
		ExpiresIn:      pair.ExpiresIn,
		TokenType:      "Bearer",
		RefreshToken:   pair.RefreshToken,
		Key:            account.Key,
		TwoFactorToken: rememberToken,
	}
	if account.PrivateKey != "" {
		pk := account.PrivateKey
		resp.PrivateKey = &pk
	}
	return resp
}

func twoFactorRequiredBody(e *TwoFactorRequiredError) TwoFactorRequiredBody {
	extra := make(map[string]*twofactor.ChallengeData, len(e.Providers))
	for _, t := range e.Providers {
		extra[strconv.Itoa(int(t))] = e.Challenges[t]
	}
	return TwoFactorRequiredBody{
		Error:               "invalid_grant",
		ErrorDescription:    "Two factor required.",
		TwoFactorProviders:  e.Providers,
		TwoFactorProviders2: extra,
	}
}

// ErrorResponse converts a login error into one of the fixed response shapes.
// The bool reports whether err was unexpected and should be logged.
func ErrorResponse(err error) (Response, bool) {
	var (
		validation *ValidationError
		required   *TwoFactorRequiredError
	)
	switch {
	case errors.As(err, &validation):
		return Response{Status: http.StatusBadRequest, Body: NewValidationErrorBody(validation.Message)}, false
	case errors.As(err, &required):
		return Response{Status: http.StatusBadRequest, Body: twoFactorRequiredBody(required)}, false
	case errors.Is(err, ErrInvalidCredentials):
		return Response{Status: http.StatusBadRequest, Body: NewValidationErrorBody("Invalid username or password")}, false
	case errors.Is(err, twofactor.ErrDeviceCompromised):
		return Response{Status: http.StatusForbidden, Body: NewErrorBody("This device might be compromised!")}, false
	default:
		return Response{Status: http.StatusInternalServerError, Body: NewErrorBody("Internal error")}, true
	}
}
