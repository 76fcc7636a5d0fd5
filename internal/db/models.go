package db

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// Collection names used by the change feed.
const (
	CollectionCourts       = "courts"
	CollectionCourtGroups  = "court_groups"
	CollectionClients      = "clients"
	CollectionReservations = "reservations"
	CollectionTransactions = "transactions"
	CollectionExpenses     = "expenses"
)

type Tender string

const (
	TenderCash   Tender = "cash"
	TenderCard   Tender = "card"
	TenderWallet Tender = "wallet"
)

// Tenders lists every payment channel in display order.
var Tenders = []Tender{TenderCash, TenderCard, TenderWallet}

type CourtGroup struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Court struct {
	ID        int64         `json:"id"`
	Name      string        `json:"name"`
	GroupID   sql.NullInt64 `json:"group_id"`
	CreatedAt time.Time     `json:"created_at"`
	DeletedAt sql.NullTime  `json:"deleted_at"`
}

type Client struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Phone     sql.NullString `json:"phone"`
	Code      string         `json:"code"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt sql.NullTime   `json:"deleted_at"`
}

type Reservation struct {
	ID            int64           `json:"id"`
	CourtID       int64           `json:"court_id"`
	ClientID      int64           `json:"client_id"`
	Date          string          `json:"date"`
	StartMinutes  int64           `json:"start_minutes"`
	EndMinutes    int64           `json:"end_minutes"`
	Cash          decimal.Decimal `json:"cash"`
	Card          decimal.Decimal `json:"card"`
	Wallet        decimal.Decimal `json:"wallet"`
	CreatedByRole string          `json:"created_by_role"`
	CreatedByName sql.NullString  `json:"created_by_name"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type Transaction struct {
	ID            int64           `json:"id"`
	ReservationID sql.NullInt64   `json:"reservation_id"`
	Tender        Tender          `json:"tender"`
	Amount        decimal.Decimal `json:"amount"`
	Date          string          `json:"date"`
	CreatedAt     time.Time       `json:"created_at"`
}

// LedgerRow is a transaction joined to whatever of its reservation, court
// and group still resolves.
type LedgerRow struct {
	TransactionID int64
	ReservationID sql.NullInt64
	Tender        Tender
	Amount        decimal.Decimal
	Date          string
	CourtID       sql.NullInt64
	CourtName     sql.NullString
	GroupID       sql.NullInt64
	GroupName     sql.NullString
	ClientID      sql.NullInt64
}

type ExpenseCategory struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Expense struct {
	ID         int64           `json:"id"`
	Title      string          `json:"title"`
	Amount     decimal.Decimal `json:"amount"`
	Date       string          `json:"date"`
	CategoryID sql.NullInt64   `json:"category_id"`
	Notes      sql.NullString  `json:"notes"`
	CreatedAt  time.Time       `json:"created_at"`
}
