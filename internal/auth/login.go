package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ibhi/bitwarden-serverless/internal/credential"
	"github.com/ibhi/bitwarden-serverless/internal/logging"
	"github.com/ibhi/bitwarden-serverless/internal/model"
	"github.com/ibhi/bitwarden-serverless/internal/repo"
	"github.com/ibhi/bitwarden-serverless/internal/twofactor"
)

const supportedScope = "api offline_access"

var requiredPasswordParams = []string{"client_id", "grant_type", "password", "scope", "username"}

// params holds the first value of every form field, keyed by lowercased name
type params map[string]string

func normalizeParams(values url.Values) params {
	p := make(params, len(values))
	for k, vs := range values {
		if len(vs) == 0 {
			continue
		}
		key := strings.ToLower(k)
		if p[key] == "" {
			p[key] = vs[0]
		}
	}
	return p
}

// LoginService runs the token endpoint
type LoginService struct {
	accounts  repo.AccountRepo
	devices   *DeviceRegistry
	tokens    *TokenIssuer
	generic   *twofactor.Generic
	providers *twofactor.Registry
	log       logging.Logger
}

// NewLoginService creates a new login service
func NewLoginService(
	accounts repo.AccountRepo,
	devices *DeviceRegistry,
	tokens *TokenIssuer,
	generic *twofactor.Generic,
	providers *twofactor.Registry,
	log logging.Logger,
) *LoginService {
	return &LoginService{
		accounts:  accounts,
		devices:   devices,
		tokens:    tokens,
		generic:   generic,
		providers: providers,
		log:       log,
	}
}

// HandleLogin processes a password or refresh_token grant. It never returns an
// error: every failure is mapped to a response.
func (s *LoginService) HandleLogin(ctx context.Context, values url.Values, headers http.Header) Response {
	p := normalizeParams(values)

	var (
		resp Response
		err  error
	)
	switch p["grant_type"] {
	case "password":
		resp, err = s.passwordGrant(ctx, p, headers)
	case "refresh_token":
		resp, err = s.refreshGrant(ctx, p)
	default:
		err = validationError("Unsupported grant type")
	}
	if err == nil {
		return resp
	}

	resp, unexpected := ErrorResponse(err)
	switch {
	case unexpected:
		s.log.Error(ctx, "login failed", "grant_type", p["grant_type"], "error", err)
	case errors.Is(err, twofactor.ErrDeviceCompromised):
		s.log.Warn(ctx, "login rejected, u2f counter regressed",
			"email", logging.MaskEmail(p["username"]))
	}
	return resp
}

func (s *LoginService) passwordGrant(ctx context.Context, p params, headers http.Header) (Response, error) {
	// Required parameters
	var missing []string
	for _, name := range requiredPasswordParams {
		if p[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Response{}, validationError(strings.Join(missing, ",") + " must be supplied")
	}
	if p["scope"] != supportedScope {
		return Response{}, validationError("Scope not supported")
	}

	// Credentials
	account, err := s.accounts.GetByEmail(ctx, p["username"])
	if errors.Is(err, repo.ErrNotFound) {
		return Response{}, ErrInvalidCredentials
	}
	if err != nil {
		return Response{}, fmt.Errorf("failed to load account: %w", err)
	}
	if !credential.HashesMatch(account.PasswordHash, p["password"]) {
		s.log.Info(ctx, "password mismatch", "account_id", account.ID.String())
		return Response{}, ErrInvalidCredentials
	}

	// Device
	device, err := s.devices.Resolve(ctx, &account, p["deviceidentifier"])
	if err != nil {
		return Response{}, err
	}

	// Second factor
	remember := false
	if available := s.generic.Available(&account); len(available) > 0 {
		remember, err = s.verifySecondFactor(ctx, &account, &device, available, p)
		if err != nil {
			return Response{}, err
		}
	}

	// Remember token and device metadata
	rememberToken, err := s.devices.UpdateRememberToken(&device, remember)
	if err != nil {
		return Response{}, err
	}
	ApplyMetadata(&device, metadataFrom(p, headers))

	// Tokens
	pair, err := s.tokens.RegenerateTokens(&account, &device)
	if err != nil {
		return Response{}, err
	}
	device.RefreshToken = pair.RefreshToken
	if err := s.devices.Save(ctx, device); err != nil {
		return Response{}, err
	}

	s.log.Info(ctx, "login succeeded",
		"account_id", account.ID.String(),
		"email", logging.MaskEmail(account.Email),
		"device_id", device.ID)

	return Response{Status: http.StatusOK, Body: tokenResponse(&account, pair, rememberToken)}, nil
}

// verifySecondFactor returns whether a remember token should be issued, or the
// error that stops the login.
func (s *LoginService) verifySecondFactor(
	ctx context.Context,
	account *model.Account,
	device *model.Device,
	available []model.TwoFactorType,
	p params,
) (bool, error) {
	selected := available[0]
	if v, err := strconv.Atoi(p["twofactorprovider"]); err == nil {
		selected = model.TwoFactorType(v)
	}

	token := p["twofactortoken"]
	if token == "" {
		return false, s.twoFactorRequired(ctx, account, available)
	}

	provider, ok := s.providers.Get(selected)
	if !ok {
		return false, validationError("Unsupported twofactor type")
	}
	if !provider.IsRegistered(account) {
		return false, s.twoFactorRequired(ctx, account, available)
	}

	verified, err := provider.Validate(ctx, account, device, token)
	switch {
	case errors.Is(err, twofactor.ErrChallengeNotFound):
		return false, s.twoFactorRequired(ctx, account, available)
	case err != nil:
		return false, err
	case !verified:
		s.log.Info(ctx, "second factor rejected",
			"account_id", account.ID.String(),
			"provider", int(selected))
		return false, s.twoFactorRequired(ctx, account, available)
	}

	if selected == model.TwoFactorRemember {
		return true, nil
	}
	return p["twofactorremember"] == "1", nil
}

// twoFactorRequired builds the challenge response, issuing a fresh challenge
// for every registered challenge provider.
func (s *LoginService) twoFactorRequired(ctx context.Context, account *model.Account, available []model.TwoFactorType) error {
	challenges := make(map[model.TwoFactorType]*twofactor.ChallengeData, len(available))
	for _, t := range available {
		challenges[t] = nil
		provider, ok := s.providers.Get(t)
		if !ok {
			continue
		}
		cp, ok := provider.(twofactor.ChallengeProvider)
		if !ok || !cp.IsRegistered(account) {
			continue
		}
		data, err := cp.CreateChallenge(ctx, account)
		if err != nil {
			return fmt.Errorf("failed to create %s challenge: %w", t.Key(), err)
		}
		challenges[t] = &data
	}
	return &TwoFactorRequiredError{Providers: available, Challenges: challenges}
}

func (s *LoginService) refreshGrant(ctx context.Context, p params) (Response, error) {
	token := p["refresh_token"]
	if token == "" {
		return Response{}, validationError("Refresh token must be supplied")
	}

	device, err := s.devices.GetByRefreshToken(ctx, token)
	if errors.Is(err, repo.ErrNotFound) {
		return Response{}, validationError("Invalid refresh token")
	}
	if err != nil {
		return Response{}, fmt.Errorf("failed to load device: %w", err)
	}

	account, err := s.accounts.GetByID(ctx, device.AccountID)
	if err != nil {
		return Response{}, fmt.Errorf("failed to load device owner: %w", err)
	}

	pair, err := s.tokens.RegenerateTokens(&account, &device)
	if err != nil {
		return Response{}, err
	}
	device.RefreshToken = pair.RefreshToken
	if err := s.devices.Save(ctx, device); err != nil {
		return Response{}, err
	}

	return Response{Status: http.StatusOK, Body: tokenResponse(&account, pair, "")}, nil
}

func metadataFrom(p params, headers http.Header) DeviceMetadata {
	meta := DeviceMetadata{Name: p["devicename"], PushToken: p["devicepushtoken"]}
	if v, err := strconv.Atoi(headers.Get("Device-Type")); err == nil {
		meta.Type, meta.HasType = v, true
	} else if v, err := strconv.Atoi(p["devicetype"]); err == nil {
		meta.Type, meta.HasType = v, true
	}
	return meta
}
