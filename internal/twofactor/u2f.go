package twofactor

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tstranex/u2f"

	"github.com/ibhi/bitwarden-serverless/internal/model"
	"github.com/ibhi/bitwarden-serverless/internal/repo"
)

const u2fVersion = "U2F_V2"

// SignResponse is the JSON a client submits as twofactortoken for U2F.
type SignResponse struct {
	KeyHandle     string `json:"keyHandle"`
	SignatureData string `json:"signatureData"`
	ClientData    string `json:"clientData"`
}

// RegisterResponse is the device attestation a client submits when adding a key.
type RegisterResponse struct {
	Version          string `json:"version"`
	RegistrationData string `json:"registrationData"`
	ClientData       string `json:"clientData"`
	ErrorCode        int    `json:"errorCode"`
}

// RegistrationResult is a verified attestation, ready to be stored.
type RegistrationResult struct {
	PublicKey       string
	KeyHandle       string
	AttestationCert string
}

// RegisterChallenge is handed to the client to start key enrollment.
type RegisterChallenge struct {
	UserID    string `json:"UserId"`
	AppID     string `json:"AppId"`
	Challenge string `json:"Challenge"`
	Version   string `json:"Version"`
}

type clientChallenge struct {
	AppID     string `json:"appId"`
	Challenge string `json:"challenge"`
	Version   string `json:"version"`
	KeyHandle string `json:"keyHandle"`
}

type (
	authenticateFunc func(reg *u2f.Registration, resp u2f.SignResponse, c u2f.Challenge) (uint32, error)
	registerFunc     func(resp u2f.RegisterResponse, c u2f.Challenge) (*u2f.Registration, error)
)

// U2F verifies hardware security keys using FIDO U2F signatures.
type U2F struct {
	accounts     repo.AccountRepo
	appID        string
	authenticate authenticateFunc
	register     registerFunc
}

// NewU2F creates a U2F provider for the given application id (the vault origin).
func NewU2F(accounts repo.AccountRepo, appID string) *U2F {
	return &U2F{
		accounts: accounts,
		appID:    appID,
		// The counter check is done by Validate so that a regression can be
		// told apart from a bad signature.
		authenticate: func(reg *u2f.Registration, resp u2f.SignResponse, c u2f.Challenge) (uint32, error) {
			return reg.Authenticate(resp, c, 0)
		},
		register: func(resp u2f.RegisterResponse, c u2f.Challenge) (*u2f.Registration, error) {
			return u2f.Register(resp, c, &u2f.Config{SkipAttestationVerify: true})
		},
	}
}

func (u *U2F) Type() model.TwoFactorType {
	return model.TwoFactorU2F
}

// AppID returns the configured application id.
func (u *U2F) AppID() string {
	return u.appID
}

func registrations(account *model.Account) (model.TwoFactorRecord, []model.U2FRegistration) {
	rec, ok := account.TwoFactor(model.TwoFactorU2F)
	if !ok {
		return model.TwoFactorRecord{}, nil
	}
	data, _ := rec.Data.(model.U2FData)
	return rec, data.Registrations
}

func (u *U2F) IsRegistered(account *model.Account) bool {
	rec, regs := registrations(account)
	return rec.Enabled && len(regs) > 0
}

func (u *U2F) newChallenge(keyHandle string) (model.U2FChallenge, error) {
	c, err := u2f.NewChallenge(u.appID, []string{u.appID})
	if err != nil {
		return model.U2FChallenge{}, fmt.Errorf("new u2f challenge: %w", err)
	}
	return model.U2FChallenge{
		AppID:     u.appID,
		Challenge: encodeBase64(c.Challenge),
		Version:   u2fVersion,
		KeyHandle: keyHandle,
		CreatedAt: c.Timestamp,
	}, nil
}

func (u *U2F) toLibChallenge(c model.U2FChallenge) (u2f.Challenge, error) {
	raw, err := decodeBase64(c.Challenge)
	if err != nil {
		return u2f.Challenge{}, fmt.Errorf("decode stored challenge: %w", err)
	}
	appID := c.AppID
	if appID == "" {
		appID = u.appID
	}
	return u2f.Challenge{
		Challenge:     raw,
		Timestamp:     c.CreatedAt,
		AppID:         appID,
		TrustedFacets: []string{appID},
	}, nil
}

// CreateChallenge issues one sign challenge per enrolled key and stores them as
// the account's login challenge, replacing any earlier one.
func (u *U2F) CreateChallenge(ctx context.Context, account *model.Account) (ChallengeData, error) {
	_, regs := registrations(account)
	if len(regs) == 0 {
		return ChallengeData{}, ErrNoRegistrations
	}

	stored := make([]model.U2FChallenge, 0, len(regs))
	forClient := make([]clientChallenge, 0, len(regs))
	for _, reg := range regs {
		c, err := u.newChallenge(reg.KeyHandle)
		if err != nil {
			return ChallengeData{}, err
		}
		stored = append(stored, c)
		forClient = append(forClient, clientChallenge{
			AppID:     c.AppID,
			Challenge: c.Challenge,
			Version:   c.Version,
			KeyHandle: c.KeyHandle,
		})
	}

	rec := model.TwoFactorRecord{
		Type:    model.TwoFactorU2FLoginChallenge,
		Enabled: true,
		Data:    model.U2FChallengeData{Challenges: stored},
	}
	if err := saveRecord(ctx, u.accounts, account, rec); err != nil {
		return ChallengeData{}, err
	}

	payload, err := json.Marshal(forClient)
	if err != nil {
		return ChallengeData{}, fmt.Errorf("encode u2f challenges: %w", err)
	}
	return ChallengeData{Challenges: string(payload)}, nil
}

// Validate consumes the outstanding login challenge and checks the signed
// response against the matching key. The challenge is deleted before the
// signature is looked at, so every challenge can be tried exactly once.
func (u *U2F) Validate(ctx context.Context, account *model.Account, _ *model.Device, token string) (bool, error) {
	var resp SignResponse
	if err := json.Unmarshal([]byte(token), &resp); err != nil || resp.KeyHandle == "" {
		return false, nil
	}

	challengeRec, ok := account.TwoFactor(model.TwoFactorU2FLoginChallenge)
	challenges, _ := challengeRec.Data.(model.U2FChallengeData)
	if !ok || len(challenges.Challenges) == 0 {
		return false, ErrChallengeNotFound
	}
	if err := dropRecord(ctx, u.accounts, account, model.TwoFactorU2FLoginChallenge); err != nil {
		return false, err
	}

	u2fRec, regs := registrations(account)
	if len(regs) == 0 {
		return false, ErrNoRegistrations
	}

	idx := -1
	for i := range regs {
		if regs[i].KeyHandle == resp.KeyHandle {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}
	if regs[idx].Compromised {
		return false, ErrDeviceCompromised
	}

	stored, ok := challengeFor(challenges.Challenges, resp.KeyHandle)
	if !ok {
		return false, nil
	}
	challenge, err := u.toLibChallenge(stored)
	if err != nil {
		return false, err
	}
	reg, err := libRegistration(regs[idx])
	if err != nil {
		return false, err
	}

	counter, err := u.authenticate(reg, u2f.SignResponse{
		KeyHandle:     resp.KeyHandle,
		SignatureData: resp.SignatureData,
		ClientData:    resp.ClientData,
	}, challenge)
	if err != nil {
		return false, nil
	}

	updated := append([]model.U2FRegistration(nil), regs...)
	if counter <= updated[idx].Counter {
		updated[idx].Compromised = true
		u2fRec.Data = model.U2FData{Registrations: updated}
		if err := saveRecord(ctx, u.accounts, account, u2fRec); err != nil {
			return false, err
		}
		return false, ErrDeviceCompromised
	}

	updated[idx].Counter = counter
	u2fRec.Data = model.U2FData{Registrations: updated}
	if err := saveRecord(ctx, u.accounts, account, u2fRec); err != nil {
		return false, err
	}
	return true, nil
}

func challengeFor(challenges []model.U2FChallenge, keyHandle string) (model.U2FChallenge, bool) {
	for _, c := range challenges {
		if c.KeyHandle == keyHandle {
			return c, true
		}
	}
	if len(challenges) == 1 && challenges[0].KeyHandle == "" {
		return challenges[0], true
	}
	return model.U2FChallenge{}, false
}

// CreateRegisterChallenge stores a new enrollment challenge for the account.
func (u *U2F) CreateRegisterChallenge(ctx context.Context, account *model.Account) (RegisterChallenge, error) {
	c, err := u.newChallenge("")
	if err != nil {
		return RegisterChallenge{}, err
	}
	rec := model.TwoFactorRecord{
		Type:    model.TwoFactorU2FRegisterChallenge,
		Enabled: true,
		Data:    model.U2FChallengeData{Challenges: []model.U2FChallenge{c}},
	}
	if err := saveRecord(ctx, u.accounts, account, rec); err != nil {
		return RegisterChallenge{}, err
	}
	return RegisterChallenge{
		UserID:    account.ID.String(),
		AppID:     c.AppID,
		Challenge: c.Challenge,
		Version:   c.Version,
	}, nil
}

// CheckRegistration verifies an attestation response against challenge.
func (u *U2F) CheckRegistration(challenge model.U2FChallenge, resp RegisterResponse) (RegistrationResult, error) {
	if resp.ErrorCode != 0 {
		return RegistrationResult{}, fmt.Errorf("%w: device error code %d", ErrInvalidResponse, resp.ErrorCode)
	}
	c, err := u.toLibChallenge(challenge)
	if err != nil {
		return RegistrationResult{}, err
	}
	version := resp.Version
	if version == "" {
		version = u2fVersion
	}
	reg, err := u.register(u2f.RegisterResponse{
		Version:          version,
		RegistrationData: resp.RegistrationData,
		ClientData:       resp.ClientData,
	}, c)
	if err != nil {
		return RegistrationResult{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	result := RegistrationResult{
		PublicKey: encodeBase64(elliptic.Marshal(elliptic.P256(), reg.PubKey.X, reg.PubKey.Y)),
		KeyHandle: encodeBase64(reg.KeyHandle),
	}
	if reg.AttestationCert != nil {
		result.AttestationCert = base64.StdEncoding.EncodeToString(reg.AttestationCert.Raw)
	}
	return result, nil
}

// Register consumes the enrollment challenge, verifies the device response and
// appends the new key to the account's U2F registrations.
func (u *U2F) Register(ctx context.Context, account *model.Account, id int, name, deviceResponse string) error {
	challengeRec, ok := account.TwoFactor(model.TwoFactorU2FRegisterChallenge)
	challenges, _ := challengeRec.Data.(model.U2FChallengeData)
	if !ok || len(challenges.Challenges) == 0 {
		return ErrChallengeNotFound
	}
	if err := dropRecord(ctx, u.accounts, account, model.TwoFactorU2FRegisterChallenge); err != nil {
		return err
	}

	var resp RegisterResponse
	if err := json.Unmarshal([]byte(deviceResponse), &resp); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	_, regs := registrations(account)
	for _, r := range regs {
		if r.ID == id {
			return ErrDuplicateKey
		}
	}

	result, err := u.CheckRegistration(challenges.Challenges[0], resp)
	if err != nil {
		return err
	}

	updated := append(append([]model.U2FRegistration(nil), regs...), model.U2FRegistration{
		ID:              id,
		Name:            name,
		PublicKey:       result.PublicKey,
		KeyHandle:       result.KeyHandle,
		AttestationCert: result.AttestationCert,
	})
	return saveRecord(ctx, u.accounts, account, model.TwoFactorRecord{
		Type:    model.TwoFactorU2F,
		Enabled: true,
		Data:    model.U2FData{Registrations: updated},
	})
}

// RemoveRegistration deletes one key; the U2F record goes away with the last key.
func (u *U2F) RemoveRegistration(ctx context.Context, account *model.Account, id int) error {
	rec, regs := registrations(account)
	kept := make([]model.U2FRegistration, 0, len(regs))
	for _, r := range regs {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(regs) {
		return ErrKeyNotFound
	}
	if len(kept) == 0 {
		return dropRecord(ctx, u.accounts, account, model.TwoFactorU2F)
	}
	rec.Data = model.U2FData{Registrations: kept}
	return saveRecord(ctx, u.accounts, account, rec)
}

func libRegistration(r model.U2FRegistration) (*u2f.Registration, error) {
	keyHandle, err := decodeBase64(r.KeyHandle)
	if err != nil {
		return nil, fmt.Errorf("decode key handle: %w", err)
	}
	raw, err := decodeBase64(r.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	x, y := elliptic.Unmarshal(elliptic.P256(), raw)
	if x == nil {
		return nil, fmt.Errorf("stored public key is not a P-256 point")
	}
	return &u2f.Registration{
		KeyHandle: keyHandle,
		PubKey:    ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y},
	}, nil
}

func encodeBase64(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodeBase64(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
