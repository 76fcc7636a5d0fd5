package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-migrate/migrate/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codr1/courtdesk/internal/apperr"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func TestEnsureDSNParams(t *testing.T) {
	assert.Equal(t, "a.db?_fk=1", ensureForeignKeysEnabledDSN("a.db"))
	assert.Equal(t, "a.db?mode=rwc&_fk=1", ensureForeignKeysEnabledDSN("a.db?mode=rwc"))
	assert.Equal(t, "a.db?_fk=0", ensureForeignKeysEnabledDSN("a.db?_fk=0"))
	assert.Equal(t, "a.db?_fk=1&_txlock=immediate", ensureImmediateTxLockDSN(ensureForeignKeysEnabledDSN("a.db")))
}

func TestMigratorUpAndDown(t *testing.T) {
	sqlDB, err := Open(filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	m, err := NewMigrator(sqlDB, "")
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = m.Close() })

	require.NoError(t, m.Up())
	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
	assert.ErrorIs(t, m.Up(), migrate.ErrNoChange)

	require.NoError(t, m.Down())
	_, _, err = m.Version()
	assert.ErrorIs(t, err, migrate.ErrNilVersion)
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := database.RunInTx(ctx, func(tx *DB) error {
		if _, err := tx.Queries.CreateCourt(ctx, CreateCourtParams{Name: "Court 1"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	courts, err := database.Queries.ListCourts(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, courts)
}

func TestForeignKeyBlocksReservationDeleteWithLedgerRows(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	q := database.Queries

	court, err := q.CreateCourt(ctx, CreateCourtParams{Name: "Court 1"})
	require.NoError(t, err)
	client, err := q.CreateClient(ctx, CreateClientParams{Name: "Ana", Code: "C-1"})
	require.NoError(t, err)
	res, err := q.CreateReservation(ctx, CreateReservationParams{
		CourtID: court.ID, ClientID: client.ID, Date: "2024-05-01",
		StartMinutes: 540, EndMinutes: 600,
		Cash: decimal.NewFromInt(40), Card: decimal.Zero, Wallet: decimal.Zero,
		CreatedByRole: "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Version)
	assert.True(t, res.Cash.Equal(decimal.NewFromInt(40)))

	_, err = q.InsertTransaction(ctx, InsertTransactionParams{
		ReservationID: sql.NullInt64{Int64: res.ID, Valid: true},
		Tender:        TenderCash,
		Amount:        decimal.NewFromInt(40),
		Date:          res.Date,
	})
	require.NoError(t, err)

	_, err = q.DeleteReservation(ctx, res.ID)
	require.Error(t, err)

	n, err := q.DeleteTransactionsByReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = q.DeleteReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestUpdateReservationChecksVersion(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	q := database.Queries

	court, err := q.CreateCourt(ctx, CreateCourtParams{Name: "Court 1"})
	require.NoError(t, err)
	client, err := q.CreateClient(ctx, CreateClientParams{Name: "Ana", Code: "C-1"})
	require.NoError(t, err)
	res, err := q.CreateReservation(ctx, CreateReservationParams{
		CourtID: court.ID, ClientID: client.ID, Date: "2024-05-01",
		StartMinutes: 540, EndMinutes: 600,
		Cash: decimal.Zero, Card: decimal.Zero, Wallet: decimal.Zero,
		CreatedByRole: "employee",
	})
	require.NoError(t, err)

	params := UpdateReservationParams{
		ID: res.ID, ExpectedVersion: 1,
		CourtID: court.ID, ClientID: client.ID, Date: res.Date,
		StartMinutes: 600, EndMinutes: 660,
		Cash: decimal.NewFromInt(10), Card: decimal.Zero, Wallet: decimal.Zero,
	}
	updated, err := q.UpdateReservation(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	_, err = q.UpdateReservation(ctx, params)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRunInTxWrapsCommitFailure(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("disk I/O error"))

	database := Wrap(sqlDB)
	err = database.RunInTx(context.Background(), func(*DB) error { return nil })

	var storeErr *apperr.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "commit", storeErr.Op)
	assert.NoError(t, mock.ExpectationsWereMet())
}
