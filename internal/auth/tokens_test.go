package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibhi/bitwarden-serverless/internal/model"
)

func issueFor(t *testing.T, f *fixture, acc model.Account) string {
	t.Helper()
	ctx := context.Background()
	device, err := f.devices.Create(ctx, acc.ID, "dev-"+acc.Email)
	require.NoError(t, err)
	pair, err := f.issuer.RegenerateTokens(&acc, &device)
	require.NoError(t, err)
	return pair.AccessToken
}

func TestTokenIssuer_Claims(t *testing.T) {
	f := newFixture(t)
	acc := f.seedAccount(t, testEmail)
	device := model.Device{ID: testDevice, AccountID: acc.ID, RefreshToken: "keep-me"}

	pair, err := f.issuer.RegenerateTokens(&acc, &device)
	require.NoError(t, err)
	assert.Equal(t, "keep-me", pair.RefreshToken)
	assert.Equal(t, 3600, pair.ExpiresIn)

	claims := &Claims{}
	_, _, err = jwt.NewParser().ParseUnverified(pair.AccessToken, claims)
	require.NoError(t, err)

	assert.Equal(t, acc.ID.String(), claims.Subject)
	assert.Equal(t, testDevice, claims.Device)
	assert.Equal(t, acc.SecurityStamp, claims.SecurityStamp)
	assert.Equal(t, testEmail, claims.Email)
	assert.Equal(t, []string{"api", "offline_access"}, claims.Scope)
	assert.Equal(t, []string{"Application"}, claims.AMR)
	assert.Equal(t, "/identity", claims.Issuer)
	assert.Equal(t, testNow.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, testNow.Add(-2*time.Minute).Unix(), claims.NotBefore.Unix())
	assert.Equal(t, testNow.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
}

func TestTokenIssuer_GeneratesRefreshTokenWhenMissing(t *testing.T) {
	f := newFixture(t)
	acc := f.seedAccount(t, testEmail)
	device := model.Device{ID: testDevice, AccountID: acc.ID}

	pair, err := f.issuer.RegenerateTokens(&acc, &device)
	require.NoError(t, err)
	assert.Len(t, pair.RefreshToken, 86)
}

func TestTokenIssuer_ValidateRejectsStaleStamp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	acc := f.seedAccount(t, testEmail)
	token := issueFor(t, f, acc)

	_, err := f.issuer.Validate(ctx, token)
	require.NoError(t, err)

	require.NoError(t, f.service.RotateSecurityStamp(ctx, &acc, testPassword))

	_, err = f.issuer.Validate(ctx, token)
	assert.ErrorIs(t, err, ErrStaleSecurityStamp)
}

func TestTokenIssuer_ValidateRejectsExpired(t *testing.T) {
	f := newFixture(t)
	acc := f.seedAccount(t, testEmail)
	token := issueFor(t, f, acc)

	later := NewTokenIssuer(f.accounts, f.devices, clock(testNow.Add(2*time.Hour)))
	_, err := later.Validate(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIssuer_ValidateRejectsForeignSecretAndAlgorithm(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	acc := f.seedAccount(t, testEmail)

	claims := &Claims{
		Device:        testDevice,
		SecurityStamp: acc.SecurityStamp,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acc.ID.String(),
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Hour)),
		},
	}

	wrongKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("not-the-secret"))
	require.NoError(t, err)
	_, err = f.issuer.Validate(ctx, wrongKey)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(acc.JWTSecret))
	require.NoError(t, err)
	_, err = f.issuer.Validate(ctx, wrongAlg)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIssuer_ValidateRequiresDevice(t *testing.T) {
	f := newFixture(t)
	acc := f.seedAccount(t, testEmail)
	device := model.Device{ID: "never-stored", AccountID: acc.ID}

	pair, err := f.issuer.RegenerateTokens(&acc, &device)
	require.NoError(t, err)

	_, err = f.issuer.Validate(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
