package twofactor

import (
	"context"
	"crypto/subtle"

	"github.com/ibhi/bitwarden-serverless/internal/model"
)

// Remember accepts the device-bound token issued after an earlier successful
// second factor on the same device.
type Remember struct{}

func NewRemember() *Remember {
	return &Remember{}
}

func (r *Remember) Type() model.TwoFactorType {
	return model.TwoFactorRemember
}

// IsRegistered is true while the account has any other provider enabled.
func (r *Remember) IsRegistered(account *model.Account) bool {
	for _, t := range account.TwoFactors.Enabled() {
		if t != model.TwoFactorRemember {
			return true
		}
	}
	return false
}

func (r *Remember) Validate(_ context.Context, _ *model.Account, device *model.Device, token string) (bool, error) {
	if device == nil || device.RememberToken == "" || token == "" {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(device.RememberToken), []byte(token)) == 1, nil
}
