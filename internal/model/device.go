package model

import (
	"time"

	"github.com/google/uuid"
)

// Device represents a client installation bound to an account
type Device struct {
	ID            string
	AccountID     uuid.UUID
	Name          string
	Type          int
	PushToken     string
	RefreshToken  string
	RememberToken string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
