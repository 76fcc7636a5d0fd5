package apiutil

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/codr1/courtdesk/internal/db"
	"github.com/codr1/courtdesk/internal/timeslot"
)

// Reservation is the wire form of a reservation: clock times instead of
// minute offsets and the derived total alongside the split.
type Reservation struct {
	ID            int64            `json:"id"`
	CourtID       int64            `json:"court_id"`
	ClientID      int64            `json:"client_id"`
	Date          string           `json:"date"`
	Start         timeslot.Minutes `json:"start"`
	End           timeslot.Minutes `json:"end"`
	Cash          decimal.Decimal  `json:"cash"`
	Card          decimal.Decimal  `json:"card"`
	Wallet        decimal.Decimal  `json:"wallet"`
	Total         decimal.Decimal  `json:"total"`
	CreatedByRole string           `json:"created_by_role"`
	CreatedByName *string          `json:"created_by_name,omitempty"`
	Version       int64            `json:"version"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func ReservationView(r db.Reservation) Reservation {
	return Reservation{
		ID:            r.ID,
		CourtID:       r.CourtID,
		ClientID:      r.ClientID,
		Date:          r.Date,
		Start:         timeslot.Minutes(r.StartMinutes),
		End:           timeslot.Minutes(r.EndMinutes),
		Cash:          r.Cash,
		Card:          r.Card,
		Wallet:        r.Wallet,
		Total:         r.Cash.Add(r.Card).Add(r.Wallet),
		CreatedByRole: r.CreatedByRole,
		CreatedByName: StringPtr(r.CreatedByName),
		Version:       r.Version,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

type Court struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	GroupID   *int64     `json:"group_id"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

func CourtView(c db.Court) Court {
	return Court{
		ID:        c.ID,
		Name:      c.Name,
		GroupID:   Int64Ptr(c.GroupID),
		CreatedAt: c.CreatedAt,
		DeletedAt: TimePtr(c.DeletedAt),
	}
}

type Client struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Phone     *string    `json:"phone"`
	Code      string     `json:"code"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

func ClientView(c db.Client) Client {
	return Client{
		ID:        c.ID,
		Name:      c.Name,
		Phone:     StringPtr(c.Phone),
		Code:      c.Code,
		CreatedAt: c.CreatedAt,
		DeletedAt: TimePtr(c.DeletedAt),
	}
}

type Expense struct {
	ID         int64           `json:"id"`
	Title      string          `json:"title"`
	Amount     decimal.Decimal `json:"amount"`
	Date       string          `json:"date"`
	CategoryID *int64          `json:"category_id"`
	Notes      *string         `json:"notes,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

func ExpenseView(e db.Expense) Expense {
	return Expense{
		ID:         e.ID,
		Title:      e.Title,
		Amount:     e.Amount,
		Date:       e.Date,
		CategoryID: Int64Ptr(e.CategoryID),
		Notes:      StringPtr(e.Notes),
		CreatedAt:  e.CreatedAt,
	}
}

type Transaction struct {
	ID            int64           `json:"id"`
	ReservationID *int64          `json:"reservation_id"`
	Tender        db.Tender       `json:"tender"`
	Amount        decimal.Decimal `json:"amount"`
	Date          string          `json:"date"`
	CreatedAt     time.Time       `json:"created_at"`
}

func TransactionView(t db.Transaction) Transaction {
	return Transaction{
		ID:            t.ID,
		ReservationID: Int64Ptr(t.ReservationID),
		Tender:        t.Tender,
		Amount:        t.Amount,
		Date:          t.Date,
		CreatedAt:     t.CreatedAt,
	}
}

func Int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func StringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func TimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	return &v.Time
}

// Views maps rows through fn.
func Views[T, V any](rows []T, fn func(T) V) []V {
	out := make([]V, 0, len(rows))
	for _, row := range rows {
		out = append(out, fn(row))
	}
	return out
}
