package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ibhi/bitwarden-serverless/internal/credential"
	"github.com/ibhi/bitwarden-serverless/internal/logging"
	"github.com/ibhi/bitwarden-serverless/internal/model"
	"github.com/ibhi/bitwarden-serverless/internal/repo"
)

// DeviceMetadata is the client-supplied description of a device
type DeviceMetadata struct {
	Name      string
	Type      int
	HasType   bool
	PushToken string
}

// DeviceRegistry binds devices to accounts across logins
type DeviceRegistry struct {
	devices repo.DeviceRepo
	log     logging.Logger
}

func NewDeviceRegistry(devices repo.DeviceRepo, log logging.Logger) *DeviceRegistry {
	return &DeviceRegistry{devices: devices, log: log}
}

func (r *DeviceRegistry) GetByID(ctx context.Context, deviceID string) (model.Device, error) {
	return r.devices.GetByID(ctx, deviceID)
}

func (r *DeviceRegistry) GetByRefreshToken(ctx context.Context, token string) (model.Device, error) {
	return r.devices.GetByRefreshToken(ctx, token)
}

func (r *DeviceRegistry) Create(ctx context.Context, accountID uuid.UUID, deviceID string) (model.Device, error) {
	return r.devices.Create(ctx, accountID, deviceID)
}

// Resolve returns the account's device with the given id, creating it when
// needed. A device id held by another account is taken over.
func (r *DeviceRegistry) Resolve(ctx context.Context, account *model.Account, deviceID string) (model.Device, error) {
	if deviceID == "" {
		deviceID = uuid.NewString()
	}

	device, err := r.devices.GetByID(ctx, deviceID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return r.create(ctx, account.ID, deviceID)
	case err != nil:
		return model.Device{}, fmt.Errorf("failed to load device: %w", err)
	case device.AccountID != account.ID:
		r.log.Warn(ctx, "device rebound to another account",
			"device_id", deviceID,
			"account_id", account.ID.String())
		if err := r.devices.Destroy(ctx, device); err != nil {
			return model.Device{}, fmt.Errorf("failed to destroy foreign device: %w", err)
		}
		return r.create(ctx, account.ID, deviceID)
	}
	return device, nil
}

func (r *DeviceRegistry) create(ctx context.Context, accountID uuid.UUID, deviceID string) (model.Device, error) {
	device, err := r.devices.Create(ctx, accountID, deviceID)
	if err != nil {
		return model.Device{}, fmt.Errorf("failed to create device: %w", err)
	}
	return device, nil
}

// ApplyMetadata copies name and type together, and the push token when present
func ApplyMetadata(device *model.Device, meta DeviceMetadata) {
	if meta.Name != "" && meta.HasType {
		device.Name = meta.Name
		device.Type = meta.Type
	}
	if meta.PushToken != "" {
		device.PushToken = meta.PushToken
	}
}

// UpdateRememberToken issues a fresh remember token or clears the current one.
// It returns the new token, or "" when cleared.
func (r *DeviceRegistry) UpdateRememberToken(device *model.Device, remember bool) (string, error) {
	if !remember {
		device.RememberToken = ""
		return "", nil
	}
	token, err := credential.NewRememberToken()
	if err != nil {
		return "", err
	}
	device.RememberToken = token
	return token, nil
}

func (r *DeviceRegistry) Save(ctx context.Context, device model.Device) error {
	if err := r.devices.Update(ctx, device); err != nil {
		return fmt.Errorf("failed to save device: %w", err)
	}
	return nil
}
