package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ibhi/bitwarden-serverless/internal/credential"
	"github.com/ibhi/bitwarden-serverless/internal/model"
	"github.com/ibhi/bitwarden-serverless/internal/repo"
)

const (
	accessTokenValidity = time.Hour
	notBeforeLeeway     = 2 * time.Minute
	tokenIssuer         = "/identity"
)

// Claims are the claims carried by an access token
type Claims struct {
	Device        string   `json:"device"`
	SecurityStamp string   `json:"sstamp"`
	Premium       bool     `json:"premium"`
	Name          string   `json:"name"`
	Email         string   `json:"email"`
	EmailVerified bool     `json:"email_verified"`
	Scope         []string `json:"scope"`
	AMR           []string `json:"amr"`
	jwt.RegisteredClaims
}

// TokenPair is the result of a successful login
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

// Session is the authenticated context behind a bearer token
type Session struct {
	Claims  *Claims
	Account model.Account
	Device  model.Device
}

// TokenIssuer signs and validates access tokens with per-account secrets
type TokenIssuer struct {
	accounts repo.AccountRepo
	devices  repo.DeviceRepo
	now      func() time.Time
}

// NewTokenIssuer creates a token issuer. A nil clock means time.Now.
func NewTokenIssuer(accounts repo.AccountRepo, devices repo.DeviceRepo, now func() time.Time) *TokenIssuer {
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{accounts: accounts, devices: devices, now: now}
}

// RegenerateTokens issues a new access token and returns the device's refresh
// token, generating one if the device has none yet.
func (s *TokenIssuer) RegenerateTokens(account *model.Account, device *model.Device) (TokenPair, error) {
	if account.JWTSecret == "" {
		return TokenPair{}, fmt.Errorf("account %s has no signing secret", account.ID)
	}

	refreshToken := device.RefreshToken
	if refreshToken == "" {
		var err error
		refreshToken, err = credential.NewRefreshToken()
		if err != nil {
			return TokenPair{}, err
		}
	}

	now := s.now()
	claims := &Claims{
		Device:        device.ID,
		SecurityStamp: account.SecurityStamp,
		Premium:       account.Premium,
		Name:          account.Name,
		Email:         account.Email,
		EmailVerified: account.EmailVerified,
		Scope:         []string{"api", "offline_access"},
		AMR:           []string{"Application"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID.String(),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-notBeforeLeeway)),
			ExpiresAt: jwt.NewNumericDate(now.Add(accessTokenValidity)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(account.JWTSecret))
	if err != nil {
		return TokenPair{}, fmt.Errorf("failed to sign access token: %w", err)
	}

	return TokenPair{
		AccessToken:  signed,
		RefreshToken: refreshToken,
		ExpiresIn:    int(accessTokenValidity / time.Second),
	}, nil
}

// Validate verifies an access token and loads its account and device.
// Store failures are returned as-is; everything else wraps ErrInvalidToken.
func (s *TokenIssuer) Validate(ctx context.Context, tokenString string) (*Session, error) {
	var (
		account  model.Account
		storeErr error
	)
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		sub, err := t.Claims.GetSubject()
		if err != nil {
			return nil, err
		}
		id, err := uuid.Parse(sub)
		if err != nil {
			return nil, fmt.Errorf("invalid subject: %w", err)
		}
		account, err = s.accounts.GetByID(ctx, id)
		if err != nil {
			if !errors.Is(err, repo.ErrNotFound) {
				storeErr = err
			}
			return nil, err
		}
		return []byte(account.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithIssuer(tokenIssuer),
	)
	if storeErr != nil {
		return nil, fmt.Errorf("failed to load token subject: %w", storeErr)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.SecurityStamp != account.SecurityStamp {
		return nil, ErrStaleSecurityStamp
	}

	device, err := s.devices.GetByID(ctx, claims.Device)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown device", ErrInvalidToken)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token device: %w", err)
	}
	if device.AccountID != account.ID {
		return nil, fmt.Errorf("%w: device belongs to another account", ErrInvalidToken)
	}

	return &Session{Claims: claims, Account: account, Device: device}, nil
}
