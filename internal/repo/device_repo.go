package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ibhi/bitwarden-serverless/internal/model"
)

// DeviceRepo defines the interface for device repository operations
type DeviceRepo interface {
	// GetByID looks a device up by its client-chosen id regardless of owner
	GetByID(ctx context.Context, deviceID string) (model.Device, error)
	GetByRefreshToken(ctx context.Context, refreshToken string) (model.Device, error)
	Create(ctx context.Context, accountID uuid.UUID, deviceID string) (model.Device, error)
	Update(ctx context.Context, device model.Device) error
	Destroy(ctx context.Context, device model.Device) error
}

type deviceRepo struct {
	db *sql.DB
}

// NewDeviceRepo creates a new DeviceRepo instance
func NewDeviceRepo(db *sql.DB) DeviceRepo {
	return &deviceRepo{db: db}
}

const deviceColumns = `id, account_id, name, type, push_token, refresh_token, remember_token, created_at, updated_at`

func scanDevice(row rowScanner) (model.Device, error) {
	var d model.Device
	err := row.Scan(
		&d.ID,
		&d.AccountID,
		&d.Name,
		&d.Type,
		&d.PushToken,
		&d.RefreshToken,
		&d.RememberToken,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Device{}, ErrNotFound
		}
		return model.Device{}, fmt.Errorf("failed to query device: %w", err)
	}
	return d, nil
}

// GetByID retrieves a device by ID
func (r *deviceRepo) GetByID(ctx context.Context, deviceID string) (model.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = $1`
	return scanDevice(r.db.QueryRowContext(ctx, query, deviceID))
}

// GetByRefreshToken retrieves the device holding the given refresh token
func (r *deviceRepo) GetByRefreshToken(ctx context.Context, refreshToken string) (model.Device, error) {
	if refreshToken == "" {
		return model.Device{}, ErrNotFound
	}
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE refresh_token = $1 LIMIT 1`
	return scanDevice(r.db.QueryRowContext(ctx, query, refreshToken))
}

// Create creates a new, empty device record for an account
func (r *deviceRepo) Create(ctx context.Context, accountID uuid.UUID, deviceID string) (model.Device, error) {
	query := `
		INSERT INTO devices (id, account_id)
		VALUES ($1, $2)
		RETURNING created_at, updated_at
	`
	device := model.Device{ID: deviceID, AccountID: accountID}
	err := r.db.QueryRowContext(ctx, query, deviceID, accountID).Scan(
		&device.CreatedAt,
		&device.UpdatedAt,
	)
	if err != nil {
		return model.Device{}, fmt.Errorf("failed to create device: %w", err)
	}
	return device, nil
}

// Update persists metadata and token state of a device
func (r *deviceRepo) Update(ctx context.Context, d model.Device) error {
	query := `
		UPDATE devices SET
			name = $3,
			type = $4,
			push_token = $5,
			refresh_token = $6,
			remember_token = $7,
			updated_at = now()
		WHERE id = $1 AND account_id = $2
	`
	result, err := r.db.ExecContext(ctx, query,
		d.ID,
		d.AccountID,
		d.Name,
		d.Type,
		d.PushToken,
		d.RefreshToken,
		d.RememberToken,
	)
	if err != nil {
		return fmt.Errorf("failed to update device: %w", err)
	}
	return expectOneRow(result)
}

// Destroy deletes the device record
func (r *deviceRepo) Destroy(ctx context.Context, d model.Device) error {
	query := `DELETE FROM devices WHERE id = $1 AND account_id = $2`
	if _, err := r.db.ExecContext(ctx, query, d.ID, d.AccountID); err != nil {
		return fmt.Errorf("failed to destroy device: %w", err)
	}
	return nil
}
