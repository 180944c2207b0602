package twofactor

import (
	"context"
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/ibhi/bitwarden-serverless/internal/model"
)

const (
	totpPeriod     = 30
	totpSecretSize = 20
	totpIssuer     = "Bitwarden"
)

// Authenticator verifies RFC 6238 codes from an authenticator app.
type Authenticator struct {
	skew uint
	now  func() time.Time
}

// NewAuthenticator creates a TOTP provider accepting codes up to skew periods away.
func NewAuthenticator(skew uint, now func() time.Time) *Authenticator {
	if now == nil {
		now = time.Now
	}
	return &Authenticator{skew: skew, now: now}
}

func (a *Authenticator) Type() model.TwoFactorType {
	return model.TwoFactorAuthenticator
}

func authenticatorSecret(account *model.Account) (string, bool) {
	rec, ok := account.TwoFactor(model.TwoFactorAuthenticator)
	if !ok || !rec.Enabled {
		return "", false
	}
	data, ok := rec.Data.(model.AuthenticatorData)
	if !ok || data.Secret == "" {
		return "", false
	}
	return data.Secret, true
}

func (a *Authenticator) IsRegistered(account *model.Account) bool {
	_, ok := authenticatorSecret(account)
	return ok
}

func (a *Authenticator) Validate(_ context.Context, account *model.Account, _ *model.Device, token string) (bool, error) {
	secret, ok := authenticatorSecret(account)
	if !ok {
		return false, nil
	}
	return a.Verify(secret, token), nil
}

// Verify checks code against a base32 secret at the current time.
func (a *Authenticator) Verify(secret, code string) bool {
	valid, err := totp.ValidateCustom(strings.TrimSpace(code), secret, a.now().UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      a.skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && valid
}

// GenerateKey returns a fresh base32 secret for enrollment.
func (a *Authenticator) GenerateKey(accountName string) (string, error) {
	if accountName == "" {
		accountName = "account"
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: accountName,
		Period:      totpPeriod,
		SecretSize:  totpSecretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("generate totp key: %w", err)
	}
	return key.Secret(), nil
}

// ValidateKey accepts base32 secrets of exactly 160 bits.
func ValidateKey(key string) error {
	key = strings.ToUpper(strings.TrimSpace(key))
	if key == "" {
		return ErrInvalidKey
	}
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.TrimRight(key, "="))
	if err != nil || len(raw) != totpSecretSize {
		return ErrInvalidKey
	}
	return nil
}
