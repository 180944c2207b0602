package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ibhi/bitwarden-serverless/internal/credential"
	"github.com/ibhi/bitwarden-serverless/internal/logging"
	"github.com/ibhi/bitwarden-serverless/internal/model"
	"github.com/ibhi/bitwarden-serverless/internal/repo"
)

const defaultCulture = "en-US"

var (
	emailPattern       = regexp.MustCompile(`^.+@.+\..+$`)
	vaultKeyPattern    = regexp.MustCompile(`^\d\..+\|.+`)
	privateKeyPattern  = regexp.MustCompile(`^2\..+\|.+`)
	errInvalidPassword = validationError("Invalid password.")
)

// KeysRequest carries the account's asymmetric key pair
type KeysRequest struct {
	EncryptedPrivateKey string `json:"encryptedPrivateKey"`
	PublicKey           string `json:"publicKey"`
}

// RegisterRequest is the body of the registration endpoint
type RegisterRequest struct {
	Email              string       `json:"email"`
	MasterPasswordHash string       `json:"masterPasswordHash"`
	MasterPasswordHint string       `json:"masterPasswordHint"`
	Name               string       `json:"name"`
	Key                string       `json:"key"`
	Kdf                *int         `json:"kdf"`
	KdfIterations      *int         `json:"kdfIterations"`
	Keys               *KeysRequest `json:"keys"`
}

// ProfileUpdate changes the fields that are present
type ProfileUpdate struct {
	Name               *string `json:"name"`
	MasterPasswordHint *string `json:"masterPasswordHint"`
	Culture            *string `json:"culture"`
}

// Prelogin tells the client how to derive the master key
type Prelogin struct {
	Kdf           int `json:"Kdf"`
	KdfIterations int `json:"KdfIterations"`
}

// Profile is the public view of an account
type Profile struct {
	ID                 string   `json:"Id"`
	Name               string   `json:"Name"`
	Email              string   `json:"Email"`
	EmailVerified      bool     `json:"EmailVerified"`
	Premium            bool     `json:"Premium"`
	MasterPasswordHint *string  `json:"MasterPasswordHint"`
	Culture            string   `json:"Culture"`
	TwoFactorEnabled   bool     `json:"TwoFactorEnabled"`
	Key                string   `json:"Key"`
	PrivateKey         *string  `json:"PrivateKey"`
	SecurityStamp      string   `json:"SecurityStamp"`
	Organizations      []string `json:"Organizations"`
	Object             string   `json:"Object"`
}

// AccountService manages account records outside of login
type AccountService struct {
	accounts            repo.AccountRepo
	disableRegistration bool
	log                 logging.Logger
}

func NewAccountService(accounts repo.AccountRepo, disableRegistration bool, log logging.Logger) *AccountService {
	return &AccountService{accounts: accounts, disableRegistration: disableRegistration, log: log}
}

// Register creates a new account
func (s *AccountService) Register(ctx context.Context, req RegisterRequest) error {
	if s.disableRegistration {
		return validationError("Signups are not permitted")
	}
	if req.MasterPasswordHash == "" {
		return validationError("masterPasswordHash cannot be blank")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !emailPattern.MatchString(email) {
		return validationError("Invalid e-mail address")
	}
	if !vaultKeyPattern.MatchString(req.Key) {
		return validationError("Invalid key")
	}

	kdf := model.KdfPBKDF2SHA256
	if req.Kdf != nil {
		if *req.Kdf != model.KdfPBKDF2SHA256 {
			return validationError("Unsupported kdf")
		}
		kdf = *req.Kdf
	}
	iterations := model.DefaultKdfIterations
	if req.KdfIterations != nil {
		iterations = *req.KdfIterations
	}
	if iterations < model.MinKdfIterations || iterations > model.MaxKdfIterations {
		return validationError(fmt.Sprintf("kdfIterations must be between %d and %d",
			model.MinKdfIterations, model.MaxKdfIterations))
	}

	secret, err := credential.NewSigningSecret()
	if err != nil {
		return err
	}

	account := model.Account{
		ID:            uuid.New(),
		Email:         email,
		PasswordHash:  req.MasterPasswordHash,
		PasswordHint:  req.MasterPasswordHint,
		Name:          req.Name,
		Culture:       defaultCulture,
		Key:           req.Key,
		JWTSecret:     secret,
		SecurityStamp: uuid.NewString(),
		Kdf:           kdf,
		KdfIterations: iterations,
		Premium:       true,
		EmailVerified: true,
		TwoFactors:    model.TwoFactorSet{},
	}
	if req.Keys != nil {
		account.PrivateKey = req.Keys.EncryptedPrivateKey
		account.PublicKey = req.Keys.PublicKey
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repo.ErrEmailTaken) {
			return validationError("E-mail already taken")
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	s.log.Info(ctx, "account registered",
		"account_id", account.ID.String(),
		"email", logging.MaskEmail(email))
	return nil
}

// Prelogin returns the key derivation settings for email. Unknown emails get
// the defaults so the response does not reveal which accounts exist.
func (s *AccountService) Prelogin(ctx context.Context, email string) (Prelogin, error) {
	account, err := s.accounts.GetByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return Prelogin{Kdf: model.KdfPBKDF2SHA256, KdfIterations: model.DefaultKdfIterations}, nil
	}
	if err != nil {
		return Prelogin{}, fmt.Errorf("failed to load account: %w", err)
	}
	return Prelogin{Kdf: account.Kdf, KdfIterations: account.KdfIterations}, nil
}

// Profile maps an account to its public view
func (s *AccountService) Profile(account *model.Account) Profile {
	p := Profile{
		ID:               account.ID.String(),
		Name:             account.Name,
		Email:            account.Email,
		EmailVerified:    account.EmailVerified,
		Premium:          account.Premium,
		Culture:          account.Culture,
		TwoFactorEnabled: len(account.TwoFactors.Enabled()) > 0,
		Key:              account.Key,
		SecurityStamp:    account.SecurityStamp,
		Organizations:    []string{},
		Object:           "profile",
	}
	if account.PasswordHint != "" {
		hint := account.PasswordHint
		p.MasterPasswordHint = &hint
	}
	if account.PrivateKey != "" {
		pk := account.PrivateKey
		p.PrivateKey = &pk
	}
	return p
}

func (s *AccountService) UpdateProfile(ctx context.Context, account *model.Account, req ProfileUpdate) (Profile, error) {
	patch := model.AccountPatch{
		Name:         req.Name,
		PasswordHint: req.MasterPasswordHint,
		Culture:      req.Culture,
	}
	if err := s.accounts.Update(ctx, account.ID, patch); err != nil {
		return Profile{}, fmt.Errorf("failed to update profile: %w", err)
	}
	if req.Name != nil {
		account.Name = *req.Name
	}
	if req.MasterPasswordHint != nil {
		account.PasswordHint = *req.MasterPasswordHint
	}
	if req.Culture != nil {
		account.Culture = *req.Culture
	}
	return s.Profile(account), nil
}

// SetKeys stores the account's key pair
func (s *AccountService) SetKeys(ctx context.Context, account *model.Account, req KeysRequest) (Profile, error) {
	if !privateKeyPattern.MatchString(req.EncryptedPrivateKey) {
		return Profile{}, validationError("Invalid key")
	}
	patch := model.AccountPatch{PrivateKey: &req.EncryptedPrivateKey, PublicKey: &req.PublicKey}
	if err := s.accounts.Update(ctx, account.ID, patch); err != nil {
		return Profile{}, fmt.Errorf("failed to store keys: %w", err)
	}
	account.PrivateKey = req.EncryptedPrivateKey
	account.PublicKey = req.PublicKey
	return s.Profile(account), nil
}

// RotateSecurityStamp invalidates every access token issued for the account
func (s *AccountService) RotateSecurityStamp(ctx context.Context, account *model.Account, masterPasswordHash string) error {
	if !credential.HashesMatch(account.PasswordHash, masterPasswordHash) {
		return errInvalidPassword
	}
	stamp := uuid.NewString()
	if err := s.accounts.Update(ctx, account.ID, model.AccountPatch{SecurityStamp: &stamp}); err != nil {
		return fmt.Errorf("failed to rotate security stamp: %w", err)
	}
	account.SecurityStamp = stamp
	s.log.Info(ctx, "security stamp rotated", "account_id", account.ID.String())
	return nil
}

// RevisionDate returns the last account change in unix milliseconds
func (s *AccountService) RevisionDate(account *model.Account) int64 {
	ts := account.UpdatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return ts.UnixMilli()
}
