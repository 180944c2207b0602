package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTwoFactorSetEnabledSkipsChallengesAndDisabled(t *testing.T) {
	set := TwoFactorSet{
		TwoFactorU2F:               {Type: TwoFactorU2F, Enabled: true, Data: U2FData{}},
		TwoFactorAuthenticator:     {Type: TwoFactorAuthenticator, Enabled: true, Data: AuthenticatorData{Secret: "ABC"}},
		TwoFactorU2FLoginChallenge: {Type: TwoFactorU2FLoginChallenge, Enabled: true, Data: U2FChallengeData{}},
		TwoFactorDuo:               {Type: TwoFactorDuo, Enabled: false, Data: OpaqueData{}},
	}

	assert.Equal(t, []TwoFactorType{TwoFactorAuthenticator, TwoFactorU2F}, set.Enabled())
}

func TestTwoFactorSetDecodesStoredDocument(t *testing.T) {
	doc := `{
		"authenticator": {"type": 0, "enabled": true, "data": ["JBSWY3DPEHPK3PXP"]},
		"u2f": {"type": 4, "enabled": true, "data": [{"id": 1, "name": "key", "keyHandle": "kh", "publicKey": "pk", "counter": 7}]},
		"duo": {"type": 2, "enabled": true, "data": [{"host": "api.example"}]},
		"u2fLoginChallenge": {"type": 1001, "enabled": true, "data": null}
	}`

	var set TwoFactorSet
	require.NoError(t, json.Unmarshal([]byte(doc), &set))
	require.Len(t, set, 4)

	auth, ok := set[TwoFactorAuthenticator].Data.(AuthenticatorData)
	require.True(t, ok)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", auth.Secret)

	u2f, ok := set[TwoFactorU2F].Data.(U2FData)
	require.True(t, ok)
	require.Len(t, u2f.Registrations, 1)
	assert.Equal(t, uint32(7), u2f.Registrations[0].Counter)

	duo, ok := set[TwoFactorDuo].Data.(OpaqueData)
	require.True(t, ok)
	assert.JSONEq(t, `[{"host": "api.example"}]`, string(duo.Raw))

	challenge, ok := set[TwoFactorU2FLoginChallenge].Data.(U2FChallengeData)
	require.True(t, ok)
	assert.Empty(t, challenge.Challenges)

	out, err := json.Marshal(set)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"duo":{"type":2,"enabled":true,"data":[{"host":"api.example"}]}`)
}

func TestTwoFactorSetCloneDoesNotShareRegistrations(t *testing.T) {
	set := TwoFactorSet{
		TwoFactorU2F: {Type: TwoFactorU2F, Enabled: true, Data: U2FData{Registrations: []U2FRegistration{{ID: 1, Counter: 1}}}},
	}

	clone := set.Clone()
	clone[TwoFactorU2F].Data.(U2FData).Registrations[0].Counter = 99

	assert.Equal(t, uint32(1), set[TwoFactorU2F].Data.(U2FData).Registrations[0].Counter)
}

func TestTwoFactorTypeKey(t *testing.T) {
	assert.Equal(t, "u2fLoginChallenge", TwoFactorU2FLoginChallenge.Key())
	assert.Equal(t, "type42", TwoFactorType(42).Key())
	assert.True(t, TwoFactorU2FRegisterChallenge.IsChallenge())
	assert.False(t, TwoFactorRemember.IsChallenge())
}
