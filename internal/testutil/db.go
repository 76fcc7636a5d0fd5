package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/codr1/courtdesk/internal/db"
)

var clientSeq atomic.Int64

// NewTestDB creates a temporary SQLite database with migrations applied.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.New(dbPath)
	if err != nil {
		t.Fatalf("create test db: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	return database
}

// SeedGroup inserts a court group.
func SeedGroup(t *testing.T, database *db.DB, name string) db.CourtGroup {
	t.Helper()
	group, err := database.Queries.CreateCourtGroup(context.Background(), name)
	if err != nil {
		t.Fatalf("insert court group: %v", err)
	}
	return group
}

// SeedCourt inserts a court, optionally in a group (groupID 0 means none).
func SeedCourt(t *testing.T, database *db.DB, name string, groupID int64) db.Court {
	t.Helper()
	court, err := database.Queries.CreateCourt(context.Background(), db.CreateCourtParams{
		Name:    name,
		GroupID: sql.NullInt64{Int64: groupID, Valid: groupID > 0},
	})
	if err != nil {
		t.Fatalf("insert court: %v", err)
	}
	return court
}

// SeedClient inserts a client with a unique code.
func SeedClient(t *testing.T, database *db.DB, name string) db.Client {
	t.Helper()
	client, err := database.Queries.CreateClient(context.Background(), db.CreateClientParams{
		Name: name,
		Code: fmt.Sprintf("T-%04d", clientSeq.Add(1)),
	})
	if err != nil {
		t.Fatalf("insert client: %v", err)
	}
	return client
}

// SeedReservation inserts a reservation row directly, bypassing validation
// and ledger reconciliation.
func SeedReservation(t *testing.T, database *db.DB, courtID, clientID int64, date string, start, end int64, cash, card, wallet int64) db.Reservation {
	t.Helper()
	res, err := database.Queries.CreateReservation(context.Background(), db.CreateReservationParams{
		CourtID:       courtID,
		ClientID:      clientID,
		Date:          date,
		StartMinutes:  start,
		EndMinutes:    end,
		Cash:          decimal.NewFromInt(cash),
		Card:          decimal.NewFromInt(card),
		Wallet:        decimal.NewFromInt(wallet),
		CreatedByRole: "admin",
	})
	if err != nil {
		t.Fatalf("insert reservation: %v", err)
	}
	return res
}
