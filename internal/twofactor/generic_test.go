package twofactor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibhi/bitwarden-serverless/internal/model"
	"github.com/ibhi/bitwarden-serverless/internal/repo"
)

func authRecord(enabled bool) model.TwoFactorRecord {
	return model.TwoFactorRecord{Type: model.TwoFactorAuthenticator, Enabled: enabled, Data: model.AuthenticatorData{Secret: testSecret}}
}

func TestGeneric_AvailableAndListing(t *testing.T) {
	accounts := repo.NewMemoryStore().Accounts()
	key := newTestKey(t)
	acc := seedAccount(t, accounts,
		u2fRecord(key.registration(1, 0)),
		authRecord(true),
		model.TwoFactorRecord{Type: model.TwoFactorU2FLoginChallenge, Enabled: true, Data: model.U2FChallengeData{}},
		model.TwoFactorRecord{Type: model.TwoFactorDuo, Enabled: false, Data: model.OpaqueData{}},
	)
	g := NewGeneric(accounts)

	assert.Equal(t, []model.TwoFactorType{model.TwoFactorAuthenticator, model.TwoFactorU2F}, g.Available(acc))

	list := g.Listing(acc)
	assert.Equal(t, "list", list.Object)
	assert.Nil(t, list.ContinuationToken)
	assert.Equal(t, []ProviderStatus{
		{Enabled: true, Type: model.TwoFactorAuthenticator, Object: "twoFactorProvider"},
		{Enabled: false, Type: model.TwoFactorDuo, Object: "twoFactorProvider"},
		{Enabled: true, Type: model.TwoFactorU2F, Object: "twoFactorProvider"},
	}, list.Data)
}

func TestGeneric_Remove(t *testing.T) {
	ctx := context.Background()
	accounts := repo.NewMemoryStore().Accounts()
	acc := seedAccount(t, accounts, authRecord(true))
	g := NewGeneric(accounts)

	require.NoError(t, g.Remove(ctx, acc, model.TwoFactorAuthenticator))
	assert.Empty(t, reload(t, accounts, acc.ID).TwoFactors)
	assert.ErrorIs(t, g.Remove(ctx, acc, model.TwoFactorAuthenticator), ErrNotEnabled)
}

func TestGeneric_EnsureRecoveryCodeIsStable(t *testing.T) {
	ctx := context.Background()
	accounts := repo.NewMemoryStore().Accounts()
	acc := seedAccount(t, accounts)
	g := NewGeneric(accounts)

	first, err := g.EnsureRecoveryCode(ctx, acc)
	require.NoError(t, err)
	assert.Len(t, first, 32)

	stored := reload(t, accounts, acc.ID)
	again, err := g.EnsureRecoveryCode(ctx, stored)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestGeneric_RecoverClearsEverything(t *testing.T) {
	ctx := context.Background()
	accounts := repo.NewMemoryStore().Accounts()
	key := newTestKey(t)
	acc := seedAccount(t, accounts, authRecord(true))
	g := NewGeneric(accounts)

	require.NoError(t, saveRecord(ctx, accounts, acc, u2fRecord(key.registration(1, 0))))
	code := reload(t, accounts, acc.ID).RecoveryCode
	require.NotEmpty(t, code)

	assert.ErrorIs(t, g.Recover(ctx, acc, "WRONG"), ErrInvalidRecoveryCode)
	require.NoError(t, g.Recover(ctx, acc, code))

	stored := reload(t, accounts, acc.ID)
	assert.Empty(t, stored.TwoFactors)
	assert.Empty(t, stored.RecoveryCode)
	assert.Empty(t, g.Available(stored))
}
