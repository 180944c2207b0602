package twofactor

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibhi/bitwarden-serverless/internal/logging"
	"github.com/ibhi/bitwarden-serverless/internal/model"
	"github.com/ibhi/bitwarden-serverless/internal/repo"
)

func newTestService(accounts repo.AccountRepo, now time.Time) *Service {
	return NewService(
		accounts,
		NewGeneric(accounts),
		NewAuthenticator(1, fixedClock(now)),
		NewU2F(accounts, testAppID),
		logging.Nop(),
	)
}

func TestService_AuthenticatorEnrollment(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	accounts := repo.NewMemoryStore().Accounts()
	acc := seedAccount(t, accounts)
	svc := newTestService(accounts, now)

	_, err := svc.GetAuthenticator(ctx, acc, "wrong")
	assert.ErrorIs(t, err, ErrInvalidPassword)

	status, err := svc.GetAuthenticator(ctx, acc, testPasswordHash)
	require.NoError(t, err)
	assert.False(t, status.Enabled)
	assert.Equal(t, "twoFactorAuthenticator", status.Object)
	require.NoError(t, ValidateKey(status.Key))

	_, err = svc.ActivateAuthenticator(ctx, acc, testPasswordHash, status.Key, "000000x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	code, err := totp.GenerateCode(status.Key, now)
	require.NoError(t, err)
	activated, err := svc.ActivateAuthenticator(ctx, acc, testPasswordHash, status.Key, code)
	require.NoError(t, err)
	assert.True(t, activated.Enabled)

	stored := reload(t, accounts, acc.ID)
	assert.Equal(t, []model.TwoFactorType{model.TwoFactorAuthenticator}, stored.TwoFactors.Enabled())
	assert.NotEmpty(t, stored.RecoveryCode, "enabling a provider creates a recovery code")

	again, err := svc.GetAuthenticator(ctx, stored, testPasswordHash)
	require.NoError(t, err)
	assert.True(t, again.Enabled)
	assert.Equal(t, status.Key, again.Key)
}

func TestService_ActivateAuthenticatorRejectsBadKey(t *testing.T) {
	accounts := repo.NewMemoryStore().Accounts()
	acc := seedAccount(t, accounts)
	svc := newTestService(accounts, time.Now())

	_, err := svc.ActivateAuthenticator(context.Background(), acc, testPasswordHash, "short", "123456")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestService_DisableAndRecover(t *testing.T) {
	ctx := context.Background()
	accounts := repo.NewMemoryStore().Accounts()
	acc := seedAccount(t, accounts, authRecord(true))
	svc := newTestService(accounts, time.Now())

	rc, err := svc.GetRecover(ctx, acc, testPasswordHash)
	require.NoError(t, err)
	assert.Equal(t, "twoFactorRecover", rc.Object)

	status, err := svc.Disable(ctx, acc, testPasswordHash, model.TwoFactorAuthenticator)
	require.NoError(t, err)
	assert.Equal(t, ProviderStatus{Enabled: false, Type: model.TwoFactorAuthenticator, Object: "twoFactorProvider"}, status)

	_, err = svc.Disable(ctx, acc, testPasswordHash, model.TwoFactorAuthenticator)
	assert.ErrorIs(t, err, ErrNotEnabled)

	require.NoError(t, saveRecord(ctx, accounts, acc, authRecord(true)))

	assert.ErrorIs(t, svc.Recover(ctx, "nobody@example.com", testPasswordHash, rc.Code), ErrInvalidRecoveryCode)
	assert.ErrorIs(t, svc.Recover(ctx, acc.Email, "wrong", rc.Code), ErrInvalidRecoveryCode)
	require.NoError(t, svc.Recover(ctx, acc.Email, testPasswordHash, rc.Code))

	stored := reload(t, accounts, acc.ID)
	assert.Empty(t, stored.TwoFactors)
	assert.Empty(t, stored.RecoveryCode)
}

func TestService_U2FStatus(t *testing.T) {
	ctx := context.Background()
	accounts := repo.NewMemoryStore().Accounts()
	key := newTestKey(t)
	reg := key.registration(3, 0)
	reg.Name = "yubikey"
	reg.Compromised = true
	acc := seedAccount(t, accounts, u2fRecord(reg))
	svc := newTestService(accounts, time.Now())

	status, err := svc.GetU2F(ctx, acc, testPasswordHash)
	require.NoError(t, err)
	assert.True(t, status.Enabled)
	assert.Equal(t, "twoFactorU2f", status.Object)
	assert.Equal(t, []U2FKey{{ID: 3, Name: "yubikey", Compromised: true}}, status.Keys)

	challenge, err := svc.U2FRegisterChallenge(ctx, acc, testPasswordHash)
	require.NoError(t, err)
	assert.Equal(t, testAppID, challenge.AppID)

	status, err = svc.DeleteU2F(ctx, acc, testPasswordHash, 3)
	require.NoError(t, err)
	assert.False(t, status.Enabled)
	assert.Empty(t, status.Keys)
}
