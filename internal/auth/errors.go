package auth

import (
	"errors"

	"github.com/ibhi/bitwarden-serverless/internal/model"
	"github.com/ibhi/bitwarden-serverless/internal/twofactor"
)

var (
	// ErrInvalidCredentials covers both unknown emails and wrong password hashes
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrInvalidToken is returned for access tokens that fail signature, time or device checks
	ErrInvalidToken = errors.New("invalid token")
	// ErrStaleSecurityStamp is returned for tokens issued before the account's security stamp changed
	ErrStaleSecurityStamp = errors.New("security stamp changed")
)

// ValidationError carries a message that is safe to show to the client.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationError(msg string) error {
	return &ValidationError{Message: msg}
}

// TwoFactorRequiredError stops a password login until a second factor is supplied.
type TwoFactorRequiredError struct {
	Providers  []model.TwoFactorType
	Challenges map[model.TwoFactorType]*twofactor.ChallengeData
}

func (e *TwoFactorRequiredError) Error() string {
	return "two factor required"
}
