package repo

import "errors"

var (
	// ErrNotFound is returned when the requested account or device does not exist
	ErrNotFound = errors.New("not found")
	// ErrEmailTaken is returned when an account with the same email already exists
	ErrEmailTaken = errors.New("email already taken")
)

// pqUniqueViolation is the Postgres SQLSTATE for unique_violation
const pqUniqueViolation = "23505"
