package model

import (
	"time"

	"github.com/google/uuid"
)

// Key derivation settings accepted for an account
const (
	KdfPBKDF2SHA256      = 0
	DefaultKdfIterations = 100000
	MinKdfIterations     = 5000
	MaxKdfIterations     = 1000000
)

// Account represents a registered vault owner
type Account struct {
	ID            uuid.UUID
	Email         string
	PasswordHash  string
	PasswordHint  string
	Name          string
	Culture       string
	Key           string
	PrivateKey    string
	PublicKey     string
	JWTSecret     string
	SecurityStamp string
	Kdf           int
	KdfIterations int
	Premium       bool
	EmailVerified bool
	TwoFactors    TwoFactorSet
	RecoveryCode  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AccountPatch carries a partial account update; nil fields are left untouched
type AccountPatch struct {
	Name          *string
	PasswordHint  *string
	Culture       *string
	PrivateKey    *string
	PublicKey     *string
	SecurityStamp *string
	RecoveryCode  *string
}

// TwoFactor returns the record of the given type and whether it exists
func (a *Account) TwoFactor(t TwoFactorType) (TwoFactorRecord, bool) {
	if a.TwoFactors == nil {
		return TwoFactorRecord{}, false
	}
	rec, ok := a.TwoFactors[t]
	return rec, ok
}
