package twofactor

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ibhi/bitwarden-serverless/internal/model"
	"github.com/ibhi/bitwarden-serverless/internal/repo"
)

const testPasswordHash = "H1"

// seedAccount stores an account with the given records and returns the stored copy.
func seedAccount(t *testing.T, accounts repo.AccountRepo, records ...model.TwoFactorRecord) *model.Account {
	t.Helper()
	set := model.TwoFactorSet{}
	for _, r := range records {
		set[r.Type] = r
	}
	acc := model.Account{
		ID:            uuid.New(),
		Email:         uuid.NewString() + "@example.com",
		PasswordHash:  testPasswordHash,
		SecurityStamp: uuid.NewString(),
		TwoFactors:    set,
	}
	require.NoError(t, accounts.Create(context.Background(), acc))
	return reload(t, accounts, acc.ID)
}

func reload(t *testing.T, accounts repo.AccountRepo, id uuid.UUID) *model.Account {
	t.Helper()
	acc, err := accounts.GetByID(context.Background(), id)
	require.NoError(t, err)
	return &acc
}
