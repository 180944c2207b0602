package twofactor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ibhi/bitwarden-serverless/internal/credential"
	"github.com/ibhi/bitwarden-serverless/internal/logging"
	"github.com/ibhi/bitwarden-serverless/internal/model"
	"github.com/ibhi/bitwarden-serverless/internal/repo"
)

// AuthenticatorStatus is returned by the authenticator endpoints.
type AuthenticatorStatus struct {
	Enabled bool   `json:"Enabled"`
	Key     string `json:"Key"`
	Object  string `json:"Object"`
}

// RecoverCode is returned by get-recover.
type RecoverCode struct {
	Code   string `json:"Code"`
	Object string `json:"Object"`
}

// U2FKey is the public view of an enrolled hardware key.
type U2FKey struct {
	ID          int    `json:"Id"`
	Name        string `json:"Name"`
	Compromised bool   `json:"Compromised"`
}

// U2FStatus is returned by the U2F endpoints.
type U2FStatus struct {
	Enabled bool     `json:"Enabled"`
	Keys    []U2FKey `json:"Keys"`
	Object  string   `json:"Object"`
}

// Service implements the two-factor management operations of an authenticated
// account. Every mutating call re-checks the master password hash.
type Service struct {
	accounts      repo.AccountRepo
	generic       *Generic
	authenticator *Authenticator
	u2f           *U2F
	log           logging.Logger
}

func NewService(accounts repo.AccountRepo, generic *Generic, authenticator *Authenticator, u2f *U2F, log logging.Logger) *Service {
	return &Service{
		accounts:      accounts,
		generic:       generic,
		authenticator: authenticator,
		u2f:           u2f,
		log:           log,
	}
}

func checkPassword(account *model.Account, masterPasswordHash string) error {
	if !credential.HashesMatch(account.PasswordHash, masterPasswordHash) {
		return ErrInvalidPassword
	}
	return nil
}

// List returns the configured providers.
func (s *Service) List(account *model.Account) ProviderList {
	return s.generic.Listing(account)
}

// GetAuthenticator returns the enabled secret or a fresh one to enroll with.
func (s *Service) GetAuthenticator(_ context.Context, account *model.Account, masterPasswordHash string) (AuthenticatorStatus, error) {
	if err := checkPassword(account, masterPasswordHash); err != nil {
		return AuthenticatorStatus{}, err
	}
	if secret, ok := authenticatorSecret(account); ok {
		return AuthenticatorStatus{Enabled: true, Key: secret, Object: "twoFactorAuthenticator"}, nil
	}
	key, err := s.authenticator.GenerateKey(account.Email)
	if err != nil {
		return AuthenticatorStatus{}, err
	}
	return AuthenticatorStatus{Enabled: false, Key: key, Object: "twoFactorAuthenticator"}, nil
}

// ActivateAuthenticator enables TOTP once the client proves it holds key.
func (s *Service) ActivateAuthenticator(ctx context.Context, account *model.Account, masterPasswordHash, key, token string) (AuthenticatorStatus, error) {
	if err := checkPassword(account, masterPasswordHash); err != nil {
		return AuthenticatorStatus{}, err
	}
	key = strings.ToUpper(strings.TrimSpace(key))
	if err := ValidateKey(key); err != nil {
		return AuthenticatorStatus{}, err
	}
	if !s.authenticator.Verify(key, token) {
		return AuthenticatorStatus{}, ErrInvalidToken
	}

	rec := model.TwoFactorRecord{
		Type:    model.TwoFactorAuthenticator,
		Enabled: true,
		Data:    model.AuthenticatorData{Secret: key},
	}
	if err := saveRecord(ctx, s.accounts, account, rec); err != nil {
		return AuthenticatorStatus{}, err
	}
	s.log.Info(ctx, "authenticator enabled", "account_id", account.ID)
	return AuthenticatorStatus{Enabled: true, Key: key, Object: "twoFactorAuthenticator"}, nil
}

// Disable removes the provider of type t.
func (s *Service) Disable(ctx context.Context, account *model.Account, masterPasswordHash string, t model.TwoFactorType) (ProviderStatus, error) {
	if err := checkPassword(account, masterPasswordHash); err != nil {
		return ProviderStatus{}, err
	}
	if err := s.generic.Remove(ctx, account, t); err != nil {
		return ProviderStatus{}, err
	}
	s.log.Info(ctx, "two-factor provider disabled", "account_id", account.ID, "type", int(t))
	return ProviderStatus{Enabled: false, Type: t, Object: "twoFactorProvider"}, nil
}

// GetRecover returns the recovery code, creating one if the account has none.
func (s *Service) GetRecover(ctx context.Context, account *model.Account, masterPasswordHash string) (RecoverCode, error) {
	if err := checkPassword(account, masterPasswordHash); err != nil {
		return RecoverCode{}, err
	}
	code, err := s.generic.EnsureRecoveryCode(ctx, account)
	if err != nil {
		return RecoverCode{}, err
	}
	return RecoverCode{Code: code, Object: "twoFactorRecover"}, nil
}

// Recover removes all two-factor configuration of the account identified by
// email. Unknown emails, wrong passwords and wrong codes are indistinguishable.
func (s *Service) Recover(ctx context.Context, email, masterPasswordHash, recoveryCode string) error {
	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrInvalidRecoveryCode
		}
		return fmt.Errorf("load account: %w", err)
	}
	if checkPassword(&account, masterPasswordHash) != nil {
		return ErrInvalidRecoveryCode
	}
	if err := s.generic.Recover(ctx, &account, recoveryCode); err != nil {
		return err
	}
	s.log.Warn(ctx, "two-factor removed with recovery code", "account_id", account.ID)
	return nil
}

func u2fStatus(account *model.Account) U2FStatus {
	rec, regs := registrations(account)
	keys := make([]U2FKey, 0, len(regs))
	for _, r := range regs {
		keys = append(keys, U2FKey{ID: r.ID, Name: r.Name, Compromised: r.Compromised})
	}
	return U2FStatus{Enabled: rec.Enabled && len(regs) > 0, Keys: keys, Object: "twoFactorU2f"}
}

// GetU2F lists the enrolled hardware keys.
func (s *Service) GetU2F(_ context.Context, account *model.Account, masterPasswordHash string) (U2FStatus, error) {
	if err := checkPassword(account, masterPasswordHash); err != nil {
		return U2FStatus{}, err
	}
	return u2fStatus(account), nil
}

// U2FRegisterChallenge starts enrollment of a new key.
func (s *Service) U2FRegisterChallenge(ctx context.Context, account *model.Account, masterPasswordHash string) (RegisterChallenge, error) {
	if err := checkPassword(account, masterPasswordHash); err != nil {
		return RegisterChallenge{}, err
	}
	return s.u2f.CreateRegisterChallenge(ctx, account)
}

// ActivateU2F finishes enrollment with the device's attestation response.
func (s *Service) ActivateU2F(ctx context.Context, account *model.Account, masterPasswordHash string, id int, name, deviceResponse string) (U2FStatus, error) {
	if err := checkPassword(account, masterPasswordHash); err != nil {
		return U2FStatus{}, err
	}
	if err := s.u2f.Register(ctx, account, id, name, deviceResponse); err != nil {
		return U2FStatus{}, err
	}
	s.log.Info(ctx, "u2f key registered", "account_id", account.ID, "key_id", id)
	return u2fStatus(account), nil
}

// DeleteU2F removes one enrolled key.
func (s *Service) DeleteU2F(ctx context.Context, account *model.Account, masterPasswordHash string, id int) (U2FStatus, error) {
	if err := checkPassword(account, masterPasswordHash); err != nil {
		return U2FStatus{}, err
	}
	if err := s.u2f.RemoveRegistration(ctx, account, id); err != nil {
		return U2FStatus{}, err
	}
	return u2fStatus(account), nil
}
