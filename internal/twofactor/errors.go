package twofactor

import "errors"

var (
	// ErrChallengeNotFound is returned when no outstanding challenge exists, e.g. it was already consumed
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrNoRegistrations means U2F was asked to verify for an account without any enrolled key
	ErrNoRegistrations = errors.New("no u2f registrations for account")
	// ErrDeviceCompromised is raised when a U2F counter did not increase
	ErrDeviceCompromised = errors.New("this device might be compromised")
	// ErrNotEnabled is returned when the provider record does not exist
	ErrNotEnabled = errors.New("two-factor provider not enabled")

	ErrInvalidPassword     = errors.New("invalid password")
	ErrInvalidKey          = errors.New("invalid key")
	ErrInvalidToken        = errors.New("invalid token")
	ErrInvalidResponse     = errors.New("invalid u2f response")
	ErrKeyNotFound         = errors.New("u2f key not found")
	ErrDuplicateKey        = errors.New("u2f key id already in use")
	ErrInvalidRecoveryCode = errors.New("invalid recovery code")
)
