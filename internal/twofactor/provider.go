// Package twofactor implements the second-factor strategies used during login
// and the account-level operations that configure them.
package twofactor

import (
	"context"
	"fmt"

	"github.com/ibhi/bitwarden-serverless/internal/credential"
	"github.com/ibhi/bitwarden-serverless/internal/model"
	"github.com/ibhi/bitwarden-serverless/internal/repo"
)

// Provider verifies one kind of second factor.
type Provider interface {
	Type() model.TwoFactorType
	// IsRegistered reports whether the account can use this provider. Disabled
	// records do not count.
	IsRegistered(account *model.Account) bool
	Validate(ctx context.Context, account *model.Account, device *model.Device, token string) (bool, error)
}

// ChallengeProvider is a Provider whose verification needs a server-issued challenge.
type ChallengeProvider interface {
	Provider
	CreateChallenge(ctx context.Context, account *model.Account) (ChallengeData, error)
}

// ChallengeData is forwarded to the client inside TwoFactorProviders2.
type ChallengeData struct {
	Challenges string `json:"Challenges"`
}

// Registry maps provider types to implementations.
type Registry struct {
	providers map[model.TwoFactorType]Provider
}

// NewRegistry creates a registry from the given providers; later entries win on duplicate types.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[model.TwoFactorType]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Type()] = p
	}
	return r
}

// Get returns the provider for t.
func (r *Registry) Get(t model.TwoFactorType) (Provider, bool) {
	p, ok := r.providers[t]
	return p, ok
}

// saveRecord persists rec and mirrors the write on account. A recovery code is
// generated alongside the first two-factor mutation.
func saveRecord(ctx context.Context, accounts repo.AccountRepo, account *model.Account, rec model.TwoFactorRecord) error {
	code := account.RecoveryCode
	if code == "" {
		var err error
		if code, err = credential.NewRecoveryCode(); err != nil {
			return err
		}
	}
	if err := accounts.SetTwoFactor(ctx, account.ID, rec, code); err != nil {
		return fmt.Errorf("save %s: %w", rec.Type.Key(), err)
	}
	if account.TwoFactors == nil {
		account.TwoFactors = model.TwoFactorSet{}
	}
	account.TwoFactors[rec.Type] = rec
	account.RecoveryCode = code
	return nil
}

// dropRecord removes the record of type t from the store and from account.
func dropRecord(ctx context.Context, accounts repo.AccountRepo, account *model.Account, t model.TwoFactorType) error {
	if err := accounts.RemoveTwoFactor(ctx, account.ID, t); err != nil {
		return fmt.Errorf("remove %s: %w", t.Key(), err)
	}
	delete(account.TwoFactors, t)
	return nil
}
