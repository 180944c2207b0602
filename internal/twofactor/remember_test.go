package twofactor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ibhi/bitwarden-serverless/internal/model"
)

func TestRemember_Validate(t *testing.T) {
	r := NewRemember()
	ctx := context.Background()

	ok, _ := r.Validate(ctx, nil, &model.Device{RememberToken: "tok"}, "tok")
	assert.True(t, ok)

	ok, _ = r.Validate(ctx, nil, &model.Device{RememberToken: "tok"}, "other")
	assert.False(t, ok)

	ok, _ = r.Validate(ctx, nil, &model.Device{}, "")
	assert.False(t, ok, "an empty stored token never matches")

	ok, _ = r.Validate(ctx, nil, nil, "tok")
	assert.False(t, ok)
}

func TestRemember_IsRegisteredFollowsOtherProviders(t *testing.T) {
	r := NewRemember()

	assert.False(t, r.IsRegistered(&model.Account{}))
	assert.True(t, r.IsRegistered(accountWithAuthenticator(true)))
	assert.False(t, r.IsRegistered(accountWithAuthenticator(false)))
}

func TestRegistry_Get(t *testing.T) {
	reg := NewRegistry(NewRemember(), NewAuthenticator(1, nil))

	p, ok := reg.Get(model.TwoFactorRemember)
	assert.True(t, ok)
	assert.Equal(t, model.TwoFactorRemember, p.Type())

	_, ok = reg.Get(model.TwoFactorDuo)
	assert.False(t, ok)
}
