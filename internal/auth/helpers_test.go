package auth

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ibhi/bitwarden-serverless/internal/logging"
	"github.com/ibhi/bitwarden-serverless/internal/model"
	"github.com/ibhi/bitwarden-serverless/internal/repo"
	"github.com/ibhi/bitwarden-serverless/internal/twofactor"
)

const (
	testEmail    = "a@b.com"
	testPassword = "H1"
	testDevice   = "dev-1"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 10, 0, time.UTC)

type fixture struct {
	accounts repo.AccountRepo
	devices  repo.DeviceRepo
	issuer   *TokenIssuer
	login    *LoginService
	service  *AccountService
}

func clock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newFixture(t *testing.T, extra ...twofactor.Provider) *fixture {
	t.Helper()
	store := repo.NewMemoryStore()
	accounts, devices := store.Accounts(), store.Devices()

	providers := append([]twofactor.Provider{
		twofactor.NewAuthenticator(1, clock(testNow)),
		twofactor.NewRemember(),
	}, extra...)

	issuer := NewTokenIssuer(accounts, devices, clock(testNow))
	login := NewLoginService(
		accounts,
		NewDeviceRegistry(devices, logging.Nop()),
		issuer,
		twofactor.NewGeneric(accounts),
		twofactor.NewRegistry(providers...),
		logging.Nop(),
	)
	return &fixture{
		accounts: accounts,
		devices:  devices,
		issuer:   issuer,
		login:    login,
		service:  NewAccountService(accounts, false, logging.Nop()),
	}
}

func (f *fixture) seedAccount(t *testing.T, email string, records ...model.TwoFactorRecord) model.Account {
	t.Helper()
	set := model.TwoFactorSet{}
	for _, r := range records {
		set[r.Type] = r
	}
	acc := model.Account{
		ID:            uuid.New(),
		Email:         email,
		PasswordHash:  testPassword,
		Key:           "2.key|mac",
		JWTSecret:     "secret-" + email,
		SecurityStamp: uuid.NewString(),
		Kdf:           model.KdfPBKDF2SHA256,
		KdfIterations: model.DefaultKdfIterations,
		TwoFactors:    set,
	}
	require.NoError(t, f.accounts.Create(context.Background(), acc))
	stored, err := f.accounts.GetByEmail(context.Background(), email)
	require.NoError(t, err)
	return stored
}

func (f *fixture) device(t *testing.T, id string) model.Device {
	t.Helper()
	d, err := f.devices.GetByID(context.Background(), id)
	require.NoError(t, err)
	return d
}

func passwordForm(email string, extra map[string]string) url.Values {
	v := url.Values{
		"grant_type":       {"password"},
		"Username":         {email},
		"password":         {testPassword},
		"scope":            {"api offline_access"},
		"client_id":        {"web"},
		"deviceIdentifier": {testDevice},
		"deviceName":       {"firefox"},
		"deviceType":       {"3"},
	}
	for k, val := range extra {
		v.Set(k, val)
	}
	return v
}

func (f *fixture) do(ctx context.Context, v url.Values) Response {
	return f.login.HandleLogin(ctx, v, http.Header{})
}

func tokenBody(t *testing.T, resp Response) TokenResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, resp.Status, "body: %+v", resp.Body)
	body, ok := resp.Body.(TokenResponse)
	require.True(t, ok)
	return body
}

func validationMessage(t *testing.T, resp Response) string {
	t.Helper()
	require.Equal(t, http.StatusBadRequest, resp.Status)
	body, ok := resp.Body.(ValidationErrorBody)
	require.True(t, ok, "unexpected body %#v", resp.Body)
	require.Len(t, body.ValidationErrors[""], 1)
	return body.ValidationErrors[""][0]
}

func twoFactorBody(t *testing.T, resp Response) TwoFactorRequiredBody {
	t.Helper()
	require.Equal(t, http.StatusBadRequest, resp.Status)
	body, ok := resp.Body.(TwoFactorRequiredBody)
	require.True(t, ok, "unexpected body %#v", resp.Body)
	return body
}

// stubProvider stands in for a second factor with fixed behavior.
type stubProvider struct {
	typ        model.TwoFactorType
	ok         bool
	err        error
	challenges string
	issued     int
}

func (p *stubProvider) Type() model.TwoFactorType { return p.typ }

func (p *stubProvider) IsRegistered(account *model.Account) bool {
	rec, ok := account.TwoFactor(p.typ)
	return ok && rec.Enabled
}

func (p *stubProvider) Validate(context.Context, *model.Account, *model.Device, string) (bool, error) {
	return p.ok, p.err
}

func (p *stubProvider) CreateChallenge(context.Context, *model.Account) (twofactor.ChallengeData, error) {
	p.issued++
	return twofactor.ChallengeData{Challenges: p.challenges}, nil
}
