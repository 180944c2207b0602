package twofactor

import (
	"context"
	"fmt"
	"sort"

	"github.com/ibhi/bitwarden-serverless/internal/credential"
	"github.com/ibhi/bitwarden-serverless/internal/model"
	"github.com/ibhi/bitwarden-serverless/internal/repo"
)

// ProviderStatus is the public view of one configured provider.
type ProviderStatus struct {
	Enabled bool                `json:"Enabled"`
	Type    model.TwoFactorType `json:"Type"`
	Object  string              `json:"Object"`
}

// ProviderList is the list envelope returned by the two-factor listing.
type ProviderList struct {
	ContinuationToken *string          `json:"ContinuationToken"`
	Data              []ProviderStatus `json:"Data"`
	Object            string           `json:"Object"`
}

// Generic holds provider-independent two-factor operations.
type Generic struct {
	accounts repo.AccountRepo
}

func NewGeneric(accounts repo.AccountRepo) *Generic {
	return &Generic{accounts: accounts}
}

// Available returns the enabled provider types of the account, ascending.
func (g *Generic) Available(account *model.Account) []model.TwoFactorType {
	return account.TwoFactors.Enabled()
}

// Listing maps the configured (non-challenge) records to their public view.
func (g *Generic) Listing(account *model.Account) ProviderList {
	data := make([]ProviderStatus, 0, len(account.TwoFactors))
	for t, rec := range account.TwoFactors {
		if t.IsChallenge() {
			continue
		}
		data = append(data, ProviderStatus{Enabled: rec.Enabled, Type: t, Object: "twoFactorProvider"})
	}
	sort.Slice(data, func(i, j int) bool { return data[i].Type < data[j].Type })
	return ProviderList{Data: data, Object: "list"}
}

// Remove deletes the record of type t.
func (g *Generic) Remove(ctx context.Context, account *model.Account, t model.TwoFactorType) error {
	if _, ok := account.TwoFactor(t); !ok {
		return ErrNotEnabled
	}
	return dropRecord(ctx, g.accounts, account, t)
}

// DeleteAll removes every two-factor record and the recovery code in one write.
func (g *Generic) DeleteAll(ctx context.Context, account *model.Account) error {
	if err := g.accounts.ClearAllTwoFactors(ctx, account.ID); err != nil {
		return fmt.Errorf("clear two-factor: %w", err)
	}
	account.TwoFactors = model.TwoFactorSet{}
	account.RecoveryCode = ""
	return nil
}

// EnsureRecoveryCode returns the account's recovery code, creating it first if needed.
func (g *Generic) EnsureRecoveryCode(ctx context.Context, account *model.Account) (string, error) {
	if account.RecoveryCode != "" {
		return account.RecoveryCode, nil
	}
	code, err := credential.NewRecoveryCode()
	if err != nil {
		return "", err
	}
	if err := g.accounts.Update(ctx, account.ID, model.AccountPatch{RecoveryCode: &code}); err != nil {
		return "", fmt.Errorf("store recovery code: %w", err)
	}
	account.RecoveryCode = code
	return code, nil
}

// Recover strips all two-factor configuration when code matches the stored recovery code.
func (g *Generic) Recover(ctx context.Context, account *model.Account, code string) error {
	if account.RecoveryCode == "" || !credential.RecoveryCodesMatch(account.RecoveryCode, code) {
		return ErrInvalidRecoveryCode
	}
	return g.DeleteAll(ctx, account)
}
