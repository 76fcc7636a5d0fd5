// Package ledger keeps the per-tender transaction rows of every reservation
// in step with the reservation's payment split. The rows are a disposable
// projection: the split on the reservation is authoritative.
package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/codr1/courtdesk/internal/apperr"
	"github.com/codr1/courtdesk/internal/db"
	"github.com/codr1/courtdesk/internal/metrics"
)

// Split is how a reservation was paid across tenders.
type Split struct {
	Cash   decimal.Decimal `json:"cash"`
	Card   decimal.Decimal `json:"card"`
	Wallet decimal.Decimal `json:"wallet"`
}

// Total is the derived reservation total.
func (s Split) Total() decimal.Decimal {
	return s.Cash.Add(s.Card).Add(s.Wallet)
}

// Amount returns the split's share for tender.
func (s Split) Amount(t db.Tender) decimal.Decimal {
	switch t {
	case db.TenderCash:
		return s.Cash
	case db.TenderCard:
		return s.Card
	case db.TenderWallet:
		return s.Wallet
	default:
		return decimal.Zero
	}
}

// IsZero reports a free booking.
func (s Split) IsZero() bool {
	return s.Cash.IsZero() && s.Card.IsZero() && s.Wallet.IsZero()
}

// SplitOf reads the split stored on a reservation row.
func SplitOf(r db.Reservation) Split {
	return Split{Cash: r.Cash, Card: r.Card, Wallet: r.Wallet}
}

// Entry is one ledger row that must exist.
type Entry struct {
	Tender db.Tender
	Amount decimal.Decimal
	Date   string
}

// Expected projects split onto the rows that must exist: one per tender
// with a positive amount, none for zero tenders.
func Expected(split Split, date string) []Entry {
	entries := make([]Entry, 0, len(db.Tenders))
	for _, tender := range db.Tenders {
		amount := split.Amount(tender)
		if !amount.IsPositive() {
			continue
		}
		entries = append(entries, Entry{Tender: tender, Amount: amount, Date: date})
	}
	return entries
}

// Reconciler rewrites ledger rows. Its methods run on the caller's queries so
// they share the caller's transaction.
type Reconciler struct{}

func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// Sync deletes every row of the reservation and inserts the expected ones.
// When an insert fails after the delete ran, the error is a
// PartialReconciliationError and the caller's transaction must be rolled back.
func (r *Reconciler) Sync(ctx context.Context, q *db.Queries, reservation db.Reservation) ([]db.Transaction, error) {
	logger := log.Ctx(ctx).With().
		Str("component", "ledger_reconciler").
		Int64("reservation_id", reservation.ID).
		Logger()

	removed, err := q.DeleteTransactionsByReservation(ctx, reservation.ID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to clear ledger rows")
		return nil, apperr.Store("delete ledger rows", err)
	}

	entries := Expected(SplitOf(reservation), reservation.Date)
	rows := make([]db.Transaction, 0, len(entries))
	for _, entry := range entries {
		row, err := q.InsertTransaction(ctx, db.InsertTransactionParams{
			ReservationID: sql.NullInt64{Int64: reservation.ID, Valid: true},
			Tender:        entry.Tender,
			Amount:        entry.Amount,
			Date:          entry.Date,
		})
		if err != nil {
			logger.Error().Err(err).Str("tender", string(entry.Tender)).Msg("Failed to insert ledger row")
			return nil, &apperr.PartialReconciliationError{
				ReservationID: reservation.ID,
				Err:           apperr.Store("insert ledger row", err),
			}
		}
		rows = append(rows, row)
	}

	for _, row := range rows {
		metrics.AddLedgerRows(string(row.Tender), 1)
	}
	logger.Debug().Int64("removed", removed).Int("inserted", len(rows)).Msg("Ledger rows reconciled")
	return rows, nil
}

// Purge removes every row of the reservation; it must run before the
// reservation itself is deleted.
func (r *Reconciler) Purge(ctx context.Context, q *db.Queries, reservationID int64) ([]db.Transaction, error) {
	existing, err := q.ListTransactionsByReservation(ctx, reservationID)
	if err != nil {
		return nil, apperr.Store("list ledger rows", err)
	}
	if _, err := q.DeleteTransactionsByReservation(ctx, reservationID); err != nil {
		return nil, apperr.Store("delete ledger rows", err)
	}
	return existing, nil
}

// Matches reports whether rows are exactly the projection of split: per
// tender sums agree and no zero or negative row exists.
func Matches(split Split, date string, rows []db.Transaction) bool {
	sums := make(map[db.Tender]decimal.Decimal, len(db.Tenders))
	for _, row := range rows {
		if !row.Amount.IsPositive() || row.Date != date {
			return false
		}
		if _, ok := sums[row.Tender]; !ok {
			sums[row.Tender] = decimal.Zero
		}
		sums[row.Tender] = sums[row.Tender].Add(row.Amount)
	}
	for _, tender := range db.Tenders {
		want := split.Amount(tender)
		got, present := sums[tender]
		if !want.IsPositive() {
			if present {
				return false
			}
			continue
		}
		if !present || !got.Equal(want) {
			return false
		}
	}
	return true
}

// describe is used in log lines and audit results.
func describe(split Split) string {
	return fmt.Sprintf("cash=%s card=%s wallet=%s", split.Cash, split.Card, split.Wallet)
}
