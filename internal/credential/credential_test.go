package credential

import (
	"encoding/base32"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashesMatch(t *testing.T) {
	assert.True(t, HashesMatch("H1", "H1"))
	assert.False(t, HashesMatch("H1", "H2"))
	assert.False(t, HashesMatch("H1", "H1 "))
	assert.False(t, HashesMatch("", ""))
	assert.False(t, HashesMatch("H1", ""))
	assert.False(t, HashesMatch("", "H1"))
}

func TestRecoveryCodesMatch(t *testing.T) {
	assert.True(t, RecoveryCodesMatch("ABCD EFGH", "abcdefgh"))
	assert.True(t, RecoveryCodesMatch("ABCDEFGH", " abcd efgh\n"))
	assert.False(t, RecoveryCodesMatch("ABCDEFGH", "ABCDEFGX"))
	assert.False(t, RecoveryCodesMatch("", ""))
}

func TestNewRefreshToken(t *testing.T) {
	a, err := NewRefreshToken()
	require.NoError(t, err)
	b, err := NewRefreshToken()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	raw, err := base64.RawURLEncoding.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, raw, 64)
}

func TestNewRememberToken(t *testing.T) {
	tok, err := NewRememberToken()
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(tok)
	require.NoError(t, err)
	assert.Len(t, raw, 180)
}

func TestNewRecoveryCode(t *testing.T) {
	code, err := NewRecoveryCode()
	require.NoError(t, err)

	assert.Len(t, code, 32)
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(code)
	require.NoError(t, err)
	assert.Len(t, raw, 20)
}

func TestNewSigningSecret(t *testing.T) {
	a, err := NewSigningSecret()
	require.NoError(t, err)
	b, err := NewSigningSecret()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
