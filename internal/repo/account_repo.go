package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ibhi/bitwarden-serverless/internal/model"
)

// AccountRepo defines the interface for account repository operations
type AccountRepo interface {
	GetByEmail(ctx context.Context, email string) (model.Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.Account, error)
	Create(ctx context.Context, account model.Account) error
	Update(ctx context.Context, id uuid.UUID, patch model.AccountPatch) error
	// SetTwoFactor stores rec under its type key. recoveryCode is only written
	// when the account has no recovery code yet.
	SetTwoFactor(ctx context.Context, id uuid.UUID, rec model.TwoFactorRecord, recoveryCode string) error
	RemoveTwoFactor(ctx context.Context, id uuid.UUID, t model.TwoFactorType) error
	// ClearAllTwoFactors drops every two-factor record and the recovery code in one write
	ClearAllTwoFactors(ctx context.Context, id uuid.UUID) error
}

type accountRepo struct {
	db *sql.DB
}

// NewAccountRepo creates a new AccountRepo instance
func NewAccountRepo(db *sql.DB) AccountRepo {
	return &accountRepo{db: db}
}

const accountColumns = `id, email, password_hash, password_hint, name, culture, vault_key,
	private_key, public_key, jwt_secret, security_stamp, kdf, kdf_iterations,
	premium, email_verified, twofactors, COALESCE(recovery_code, ''), created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (model.Account, error) {
	var a model.Account
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.PasswordHash,
		&a.PasswordHint,
		&a.Name,
		&a.Culture,
		&a.Key,
		&a.PrivateKey,
		&a.PublicKey,
		&a.JWTSecret,
		&a.SecurityStamp,
		&a.Kdf,
		&a.KdfIterations,
		&a.Premium,
		&a.EmailVerified,
		&a.TwoFactors,
		&a.RecoveryCode,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, ErrNotFound
		}
		return model.Account{}, fmt.Errorf("failed to query account: %w", err)
	}
	return a, nil
}

// GetByEmail retrieves an account by its case-folded email
func (r *accountRepo) GetByEmail(ctx context.Context, email string) (model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, strings.ToLower(email)))
}

// GetByID retrieves an account by ID
func (r *accountRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, id))
}

// Create inserts a new account
func (r *accountRepo) Create(ctx context.Context, a model.Account) error {
	query := `
		INSERT INTO accounts (id, email, password_hash, password_hint, name, culture, vault_key,
			private_key, public_key, jwt_secret, security_stamp, kdf, kdf_iterations,
			premium, email_verified, twofactors)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	twoFactors := a.TwoFactors
	if twoFactors == nil {
		twoFactors = model.TwoFactorSet{}
	}
	_, err := r.db.ExecContext(ctx, query,
		a.ID,
		strings.ToLower(a.Email),
		a.PasswordHash,
		a.PasswordHint,
		a.Name,
		a.Culture,
		a.Key,
		a.PrivateKey,
		a.PublicKey,
		a.JWTSecret,
		a.SecurityStamp,
		a.Kdf,
		a.KdfIterations,
		a.Premium,
		a.EmailVerified,
		twoFactors,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// Update applies the non-nil fields of patch
func (r *accountRepo) Update(ctx context.Context, id uuid.UUID, patch model.AccountPatch) error {
	query := `
		UPDATE accounts SET
			name = COALESCE($2, name),
			password_hint = COALESCE($3, password_hint),
			culture = COALESCE($4, culture),
			private_key = COALESCE($5, private_key),
			public_key = COALESCE($6, public_key),
			security_stamp = COALESCE($7, security_stamp),
			recovery_code = COALESCE($8, recovery_code),
			updated_at = now()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		id,
		nullString(patch.Name),
		nullString(patch.PasswordHint),
		nullString(patch.Culture),
		nullString(patch.PrivateKey),
		nullString(patch.PublicKey),
		nullString(patch.SecurityStamp),
		nullString(patch.RecoveryCode),
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return expectOneRow(result)
}

// SetTwoFactor writes a single two-factor record into the account document
func (r *accountRepo) SetTwoFactor(ctx context.Context, id uuid.UUID, rec model.TwoFactorRecord, recoveryCode string) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode two-factor record: %w", err)
	}
	query := `
		UPDATE accounts SET
			twofactors = jsonb_set(twofactors, ARRAY[$2::text], $3::jsonb, true),
			recovery_code = COALESCE(recovery_code, NULLIF($4, '')),
			updated_at = now()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, rec.Type.Key(), string(doc), recoveryCode)
	if err != nil {
		return fmt.Errorf("failed to set two-factor %s: %w", rec.Type.Key(), err)
	}
	return expectOneRow(result)
}

// RemoveTwoFactor deletes the record of type t
func (r *accountRepo) RemoveTwoFactor(ctx context.Context, id uuid.UUID, t model.TwoFactorType) error {
	query := `
		UPDATE accounts SET
			twofactors = twofactors - $2::text,
			updated_at = now()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, t.Key())
	if err != nil {
		return fmt.Errorf("failed to remove two-factor %s: %w", t.Key(), err)
	}
	return expectOneRow(result)
}

// ClearAllTwoFactors resets two-factor configuration and the recovery code
func (r *accountRepo) ClearAllTwoFactors(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE accounts SET
			twofactors = '{}'::jsonb,
			recovery_code = NULL,
			updated_at = now()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to clear two-factor configuration: %w", err)
	}
	return expectOneRow(result)
}

func expectOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
