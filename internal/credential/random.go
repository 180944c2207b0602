package credential

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/base64"
	"fmt"
)

const (
	refreshTokenBytes  = 64
	rememberTokenBytes = 180
	recoveryCodeBytes  = 20
	signingSecretBytes = 64
)

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return b, nil
}

// NewRefreshToken returns 64 random bytes as unpadded Base64URL
func NewRefreshToken() (string, error) {
	b, err := randomBytes(refreshTokenBytes)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewRememberToken returns 180 random bytes as standard Base64
func NewRememberToken() (string, error) {
	b, err := randomBytes(rememberTokenBytes)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// NewRecoveryCode returns 20 random bytes as unpadded base32 (32 characters)
func NewRecoveryCode() (string, error) {
	b, err := randomBytes(recoveryCodeBytes)
	if err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b), nil
}

// NewSigningSecret returns the per-account token signing secret
func NewSigningSecret() (string, error) {
	b, err := randomBytes(signingSecretBytes)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
