package db

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"
)

const transactionColumns = `id, reservation_id, tender, amount, date, created_at`

func scanTransaction(row rowScanner) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.ReservationID, &t.Tender, &t.Amount, &t.Date, &t.CreatedAt)
	return t, err
}

type InsertTransactionParams struct {
	ReservationID sql.NullInt64
	Tender        Tender
	Amount        decimal.Decimal
	Date          string
}

func (q *Queries) InsertTransaction(ctx context.Context, arg InsertTransactionParams) (Transaction, error) {
	result, err := q.db.ExecContext(ctx,
		`INSERT INTO transactions (reservation_id, tender, amount, date) VALUES (?, ?, ?, ?)`,
		arg.ReservationID, string(arg.Tender), arg.Amount, arg.Date)
	if err != nil {
		return Transaction{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return Transaction{}, err
	}
	row := q.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	return scanTransaction(row)
}

func (q *Queries) DeleteTransactionsByReservation(ctx context.Context, reservationID int64) (int64, error) {
	result, err := q.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE reservation_id = ?`, reservationID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (q *Queries) ListTransactionsByReservation(ctx context.Context, reservationID int64) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE reservation_id = ? ORDER BY id`,
		reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

// ListTransactionsByDateRange returns reservation-bound rows for the window,
// used by the ledger audit.
func (q *Queries) ListTransactionsByDateRange(ctx context.Context, from, to string) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE date >= ? AND date <= ? ORDER BY id`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

// ListLedgerRows joins every transaction in [from,to] to its reservation,
// court and group. Unresolvable links come back as NULLs.
func (q *Queries) ListLedgerRows(ctx context.Context, from, to string) ([]LedgerRow, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT t.id, t.reservation_id, t.tender, t.amount, t.date,
			r.court_id, c.name, c.group_id, g.name, r.client_id
		FROM transactions t
		LEFT JOIN reservations r ON r.id = t.reservation_id
		LEFT JOIN courts c ON c.id = r.court_id
		LEFT JOIN court_groups g ON g.id = c.group_id
		WHERE t.date >= ? AND t.date <= ?
		ORDER BY t.date, t.id`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []LedgerRow
	for rows.Next() {
		var row LedgerRow
		if err := rows.Scan(
			&row.TransactionID, &row.ReservationID, &row.Tender, &row.Amount, &row.Date,
			&row.CourtID, &row.CourtName, &row.GroupID, &row.GroupName, &row.ClientID,
		); err != nil {
			return nil, err
		}
		items = append(items, row)
	}
	return items, rows.Err()
}
