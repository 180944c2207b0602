package repo

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibhi/bitwarden-serverless/internal/model"
)

var deviceRowColumns = []string{
	"id", "account_id", "name", "type", "push_token", "refresh_token", "remember_token", "created_at", "updated_at",
}

func TestDeviceRepo_GetByRefreshToken(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewDeviceRepo(db)

	accountID := uuid.New()
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .* FROM devices WHERE refresh_token = \$1 LIMIT 1`).
		WithArgs("rt").
		WillReturnRows(sqlmock.NewRows(deviceRowColumns).
			AddRow("dev-1", accountID.String(), "phone", int64(1), "", "rt", "", now, now))

	d, err := r.GetByRefreshToken(context.Background(), "rt")
	require.NoError(t, err)
	assert.Equal(t, "dev-1", d.ID)
	assert.Equal(t, accountID, d.AccountID)
	assert.Equal(t, 1, d.Type)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRepo_GetByRefreshToken_EmptyTokenSkipsQuery(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewDeviceRepo(db)

	_, err := r.GetByRefreshToken(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRepo_GetByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewDeviceRepo(db)

	mock.ExpectQuery(`SELECT .* FROM devices WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := r.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeviceRepo_Create(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewDeviceRepo(db)

	accountID := uuid.New()
	now := time.Now().UTC()
	mock.ExpectQuery(`INSERT INTO devices \(id, account_id\) VALUES \(\$1, \$2\) RETURNING created_at, updated_at`).
		WithArgs("dev-1", accountID).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	d, err := r.Create(context.Background(), accountID, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "dev-1", d.ID)
	assert.Equal(t, accountID, d.AccountID)
	assert.Equal(t, now, d.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRepo_Update(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewDeviceRepo(db)

	d := model.Device{ID: "dev-1", AccountID: uuid.New(), Name: "cli", Type: 8, RefreshToken: "rt", RememberToken: "rem"}
	mock.ExpectExec(`UPDATE devices SET .* WHERE id = \$1 AND account_id = \$2`).
		WithArgs(d.ID, d.AccountID, "cli", 8, "", "rt", "rem").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.Update(context.Background(), d))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRepo_Destroy(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewDeviceRepo(db)

	d := model.Device{ID: "dev-1", AccountID: uuid.New()}
	mock.ExpectExec(`DELETE FROM devices WHERE id = \$1 AND account_id = \$2`).
		WithArgs(d.ID, d.AccountID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.Destroy(context.Background(), d))
	require.NoError(t, mock.ExpectationsWereMet())
}
