package repo

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ibhi/bitwarden-serverless/internal/model"
)

// MemoryStore keeps accounts and devices in process memory. It backs dev mode
// and tests; values are copied in and out so callers never share state.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]model.Account
	emails   map[string]uuid.UUID
	devices  map[string]model.Device
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[uuid.UUID]model.Account),
		emails:   make(map[string]uuid.UUID),
		devices:  make(map[string]model.Device),
		now:      time.Now,
	}
}

// Accounts returns an AccountRepo view of the store
func (s *MemoryStore) Accounts() AccountRepo {
	return memoryAccounts{s}
}

// Devices returns a DeviceRepo view of the store
func (s *MemoryStore) Devices() DeviceRepo {
	return memoryDevices{s}
}

func copyAccount(a model.Account) model.Account {
	a.TwoFactors = a.TwoFactors.Clone()
	return a
}

type memoryAccounts struct {
	s *MemoryStore
}

func (m memoryAccounts) GetByEmail(_ context.Context, email string) (model.Account, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	id, ok := m.s.emails[strings.ToLower(email)]
	if !ok {
		return model.Account{}, ErrNotFound
	}
	return copyAccount(m.s.accounts[id]), nil
}

func (m memoryAccounts) GetByID(_ context.Context, id uuid.UUID) (model.Account, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	a, ok := m.s.accounts[id]
	if !ok {
		return model.Account{}, ErrNotFound
	}
	return copyAccount(a), nil
}

func (m memoryAccounts) Create(_ context.Context, a model.Account) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	a.Email = strings.ToLower(a.Email)
	if _, taken := m.s.emails[a.Email]; taken {
		return ErrEmailTaken
	}
	now := m.s.now()
	a.CreatedAt, a.UpdatedAt = now, now
	if a.TwoFactors == nil {
		a.TwoFactors = model.TwoFactorSet{}
	}
	m.s.accounts[a.ID] = copyAccount(a)
	m.s.emails[a.Email] = a.ID
	return nil
}

// mutate runs fn against the stored account under the write lock
func (m memoryAccounts) mutate(id uuid.UUID, fn func(a *model.Account)) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	a, ok := m.s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a = copyAccount(a)
	fn(&a)
	a.UpdatedAt = m.s.now()
	m.s.accounts[id] = a
	return nil
}

func (m memoryAccounts) Update(_ context.Context, id uuid.UUID, p model.AccountPatch) error {
	return m.mutate(id, func(a *model.Account) {
		setIf(&a.Name, p.Name)
		setIf(&a.PasswordHint, p.PasswordHint)
		setIf(&a.Culture, p.Culture)
		setIf(&a.PrivateKey, p.PrivateKey)
		setIf(&a.PublicKey, p.PublicKey)
		setIf(&a.SecurityStamp, p.SecurityStamp)
		setIf(&a.RecoveryCode, p.RecoveryCode)
	})
}

func setIf(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func (m memoryAccounts) SetTwoFactor(_ context.Context, id uuid.UUID, rec model.TwoFactorRecord, recoveryCode string) error {
	single := model.TwoFactorSet{rec.Type: rec}.Clone()
	return m.mutate(id, func(a *model.Account) {
		a.TwoFactors[rec.Type] = single[rec.Type]
		if a.RecoveryCode == "" {
			a.RecoveryCode = recoveryCode
		}
	})
}

func (m memoryAccounts) RemoveTwoFactor(_ context.Context, id uuid.UUID, t model.TwoFactorType) error {
	return m.mutate(id, func(a *model.Account) {
		delete(a.TwoFactors, t)
	})
}

func (m memoryAccounts) ClearAllTwoFactors(_ context.Context, id uuid.UUID) error {
	return m.mutate(id, func(a *model.Account) {
		a.TwoFactors = model.TwoFactorSet{}
		a.RecoveryCode = ""
	})
}

type memoryDevices struct {
	s *MemoryStore
}

func (m memoryDevices) GetByID(_ context.Context, deviceID string) (model.Device, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	d, ok := m.s.devices[deviceID]
	if !ok {
		return model.Device{}, ErrNotFound
	}
	return d, nil
}

func (m memoryDevices) GetByRefreshToken(_ context.Context, refreshToken string) (model.Device, error) {
	if refreshToken == "" {
		return model.Device{}, ErrNotFound
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	for _, d := range m.s.devices {
		if d.RefreshToken == refreshToken {
			return d, nil
		}
	}
	return model.Device{}, ErrNotFound
}

func (m memoryDevices) Create(_ context.Context, accountID uuid.UUID, deviceID string) (model.Device, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, exists := m.s.devices[deviceID]; exists {
		return model.Device{}, fmt.Errorf("device %s already exists", deviceID)
	}
	now := m.s.now()
	d := model.Device{ID: deviceID, AccountID: accountID, CreatedAt: now, UpdatedAt: now}
	m.s.devices[deviceID] = d
	return d, nil
}

func (m memoryDevices) Update(_ context.Context, d model.Device) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	cur, ok := m.s.devices[d.ID]
	if !ok || cur.AccountID != d.AccountID {
		return ErrNotFound
	}
	d.CreatedAt = cur.CreatedAt
	d.UpdatedAt = m.s.now()
	m.s.devices[d.ID] = d
	return nil
}

func (m memoryDevices) Destroy(_ context.Context, d model.Device) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if cur, ok := m.s.devices[d.ID]; ok && cur.AccountID == d.AccountID {
		delete(m.s.devices, d.ID)
	}
	return nil
}
