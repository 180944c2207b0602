package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// TwoFactorType identifies a two-factor provider or a transient challenge record
type TwoFactorType int

const (
	TwoFactorAuthenticator              TwoFactorType = 0
	TwoFactorEmail                      TwoFactorType = 1
	TwoFactorDuo                        TwoFactorType = 2
	TwoFactorYubiKey                    TwoFactorType = 3
	TwoFactorU2F                        TwoFactorType = 4
	TwoFactorRemember                   TwoFactorType = 5
	TwoFactorOrganizationDuo            TwoFactorType = 6
	TwoFactorU2FRegisterChallenge       TwoFactorType = 1000
	TwoFactorU2FLoginChallenge          TwoFactorType = 1001
	TwoFactorEmailVerificationChallenge TwoFactorType = 1002
)

var twoFactorKeys = map[TwoFactorType]string{
	TwoFactorAuthenticator:              "authenticator",
	TwoFactorEmail:                      "email",
	TwoFactorDuo:                        "duo",
	TwoFactorYubiKey:                    "yubiKey",
	TwoFactorU2F:                        "u2f",
	TwoFactorRemember:                   "remember",
	TwoFactorOrganizationDuo:            "organizationDuo",
	TwoFactorU2FRegisterChallenge:       "u2fRegisterChallenge",
	TwoFactorU2FLoginChallenge:          "u2fLoginChallenge",
	TwoFactorEmailVerificationChallenge: "emailVerificationChallenge",
}

// Key returns the document key the record is stored under
func (t TwoFactorType) Key() string {
	if k, ok := twoFactorKeys[t]; ok {
		return k
	}
	return fmt.Sprintf("type%d", int(t))
}

// IsChallenge reports whether records of this type are transient challenge state
func (t TwoFactorType) IsChallenge() bool {
	return t >= TwoFactorU2FRegisterChallenge
}

// Known reports whether t is one of the defined types
func (t TwoFactorType) Known() bool {
	_, ok := twoFactorKeys[t]
	return ok
}

// TwoFactorData is the type-specific payload of a TwoFactorRecord.
// Implementations are limited to this package.
type TwoFactorData interface {
	twoFactorData()
}

// AuthenticatorData holds the base32 TOTP secret
type AuthenticatorData struct {
	Secret string
}

// U2FRegistration is one enrolled hardware key
type U2FRegistration struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	PublicKey       string `json:"publicKey"`
	KeyHandle       string `json:"keyHandle"`
	AttestationCert string `json:"attestationCert"`
	Counter         uint32 `json:"counter"`
	Compromised     bool   `json:"compromised"`
}

// U2FData holds all hardware keys enrolled for an account
type U2FData struct {
	Registrations []U2FRegistration
}

// U2FChallenge is a pending registration or sign challenge
type U2FChallenge struct {
	AppID     string    `json:"appId"`
	Challenge string    `json:"challenge"`
	Version   string    `json:"version"`
	KeyHandle string    `json:"keyHandle,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// U2FChallengeData holds outstanding challenges of one challenge type
type U2FChallengeData struct {
	Challenges []U2FChallenge
}

// OpaqueData preserves payloads of record types this server does not interpret
type OpaqueData struct {
	Raw json.RawMessage
}

func (AuthenticatorData) twoFactorData() {}
func (U2FData) twoFactorData()           {}
func (U2FChallengeData) twoFactorData()  {}
func (OpaqueData) twoFactorData()        {}

// TwoFactorRecord is a single two-factor configuration entry of an account
type TwoFactorRecord struct {
	Type    TwoFactorType
	Enabled bool
	Data    TwoFactorData
}

type twoFactorRecordJSON struct {
	Type    TwoFactorType   `json:"type"`
	Enabled bool            `json:"enabled"`
	Data    json.RawMessage `json:"data"`
}

// MarshalJSON encodes the record as {"type","enabled","data":[...]}
func (r TwoFactorRecord) MarshalJSON() ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch d := r.Data.(type) {
	case nil:
		data = []byte("[]")
	case AuthenticatorData:
		data, err = json.Marshal([]string{d.Secret})
	case U2FData:
		regs := d.Registrations
		if regs == nil {
			regs = []U2FRegistration{}
		}
		data, err = json.Marshal(regs)
	case U2FChallengeData:
		challenges := d.Challenges
		if challenges == nil {
			challenges = []U2FChallenge{}
		}
		data, err = json.Marshal(challenges)
	case OpaqueData:
		data = d.Raw
		if len(data) == 0 {
			data = []byte("[]")
		}
	default:
		return nil, fmt.Errorf("unsupported two-factor payload %T", r.Data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode two-factor payload: %w", err)
	}
	return json.Marshal(twoFactorRecordJSON{Type: r.Type, Enabled: r.Enabled, Data: data})
}

// UnmarshalJSON decodes the payload according to the record type
func (r *TwoFactorRecord) UnmarshalJSON(b []byte) error {
	var raw twoFactorRecordJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	r.Type = raw.Type
	r.Enabled = raw.Enabled

	payload := raw.Data
	if len(payload) == 0 || string(payload) == "null" {
		payload = []byte("[]")
	}

	switch raw.Type {
	case TwoFactorAuthenticator:
		var secrets []string
		if err := json.Unmarshal(payload, &secrets); err != nil {
			return fmt.Errorf("invalid authenticator payload: %w", err)
		}
		var d AuthenticatorData
		if len(secrets) > 0 {
			d.Secret = secrets[0]
		}
		r.Data = d
	case TwoFactorU2F:
		var d U2FData
		if err := json.Unmarshal(payload, &d.Registrations); err != nil {
			return fmt.Errorf("invalid u2f payload: %w", err)
		}
		r.Data = d
	case TwoFactorU2FRegisterChallenge, TwoFactorU2FLoginChallenge:
		var d U2FChallengeData
		if err := json.Unmarshal(payload, &d.Challenges); err != nil {
			return fmt.Errorf("invalid u2f challenge payload: %w", err)
		}
		r.Data = d
	default:
		r.Data = OpaqueData{Raw: append(json.RawMessage(nil), payload...)}
	}
	return nil
}

// TwoFactorSet maps each two-factor type to its record
type TwoFactorSet map[TwoFactorType]TwoFactorRecord

// MarshalJSON encodes the set as an object keyed by type key
func (s TwoFactorSet) MarshalJSON() ([]byte, error) {
	out := make(map[string]TwoFactorRecord, len(s))
	for t, rec := range s {
		rec.Type = t
		out[t.Key()] = rec
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes an object keyed by type key
func (s *TwoFactorSet) UnmarshalJSON(b []byte) error {
	var raw map[string]TwoFactorRecord
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	set := make(TwoFactorSet, len(raw))
	for _, rec := range raw {
		set[rec.Type] = rec
	}
	*s = set
	return nil
}

// Value implements driver.Valuer for jsonb columns. The document is passed as
// text so drivers do not encode it as bytea.
func (s TwoFactorSet) Value() (driver.Value, error) {
	if s == nil {
		return "{}", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for jsonb columns
func (s *TwoFactorSet) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*s = TwoFactorSet{}
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into TwoFactorSet", src)
	}
	return json.Unmarshal(b, s)
}

// Enabled returns the enabled provider types (challenge records excluded), ascending
func (s TwoFactorSet) Enabled() []TwoFactorType {
	types := make([]TwoFactorType, 0, len(s))
	for t, rec := range s {
		if rec.Enabled && !t.IsChallenge() {
			types = append(types, t)
		}
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Clone returns a copy of the set that shares no slices with s
func (s TwoFactorSet) Clone() TwoFactorSet {
	out := make(TwoFactorSet, len(s))
	for t, rec := range s {
		switch d := rec.Data.(type) {
		case U2FData:
			rec.Data = U2FData{Registrations: append([]U2FRegistration(nil), d.Registrations...)}
		case U2FChallengeData:
			rec.Data = U2FChallengeData{Challenges: append([]U2FChallenge(nil), d.Challenges...)}
		case OpaqueData:
			rec.Data = OpaqueData{Raw: append(json.RawMessage(nil), d.Raw...)}
		}
		out[t] = rec
	}
	return out
}
