package db

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"
)

const reservationColumns = `id, court_id, client_id, date, start_minutes, end_minutes, cash, card, wallet,
	created_by_role, created_by_name, version, created_at, updated_at`

func scanReservation(row rowScanner) (Reservation, error) {
	var r Reservation
	err := row.Scan(
		&r.ID, &r.CourtID, &r.ClientID, &r.Date, &r.StartMinutes, &r.EndMinutes,
		&r.Cash, &r.Card, &r.Wallet,
		&r.CreatedByRole, &r.CreatedByName, &r.Version, &r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}

func collectReservations(rows *sql.Rows) ([]Reservation, error) {
	defer rows.Close()
	var items []Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

type CreateReservationParams struct {
	CourtID       int64
	ClientID      int64
	Date          string
	StartMinutes  int64
	EndMinutes    int64
	Cash          decimal.Decimal
	Card          decimal.Decimal
	Wallet        decimal.Decimal
	CreatedByRole string
	CreatedByName sql.NullString
}

func (q *Queries) CreateReservation(ctx context.Context, arg CreateReservationParams) (Reservation, error) {
	result, err := q.db.ExecContext(ctx, `
		INSERT INTO reservations (
			court_id, client_id, date, start_minutes, end_minutes, cash, card, wallet,
			created_by_role, created_by_name
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		arg.CourtID, arg.ClientID, arg.Date, arg.StartMinutes, arg.EndMinutes,
		arg.Cash, arg.Card, arg.Wallet, arg.CreatedByRole, arg.CreatedByName,
	)
	if err != nil {
		return Reservation{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return Reservation{}, err
	}
	return q.GetReservation(ctx, id)
}

func (q *Queries) GetReservation(ctx context.Context, id int64) (Reservation, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	return scanReservation(row)
}

// ListReservationsOnCourtDate returns every reservation booked on the court
// for the date, ordered by start.
func (q *Queries) ListReservationsOnCourtDate(ctx context.Context, courtID int64, date string) ([]Reservation, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		WHERE court_id = ? AND date = ?
		ORDER BY start_minutes, id`, courtID, date)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

type ListReservationsByDateRangeParams struct {
	CourtID sql.NullInt64
	From    string
	To      string
}

// ListReservationsByDateRange returns reservations with from <= date <= to.
func (q *Queries) ListReservationsByDateRange(ctx context.Context, arg ListReservationsByDateRangeParams) ([]Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE date >= ? AND date <= ?`
	args := []any{arg.From, arg.To}
	if arg.CourtID.Valid {
		query += ` AND court_id = ?`
		args = append(args, arg.CourtID.Int64)
	}
	query += ` ORDER BY date, court_id, start_minutes, id`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

type UpdateReservationParams struct {
	ID              int64
	ExpectedVersion int64
	CourtID         int64
	ClientID        int64
	Date            string
	StartMinutes    int64
	EndMinutes      int64
	Cash            decimal.Decimal
	Card            decimal.Decimal
	Wallet          decimal.Decimal
}

// UpdateReservation writes the row only while its version still equals
// ExpectedVersion and bumps the version. It returns sql.ErrNoRows otherwise.
func (q *Queries) UpdateReservation(ctx context.Context, arg UpdateReservationParams) (Reservation, error) {
	result, err := q.db.ExecContext(ctx, `
		UPDATE reservations SET
			court_id = ?, client_id = ?, date = ?, start_minutes = ?, end_minutes = ?,
			cash = ?, card = ?, wallet = ?,
			version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?`,
		arg.CourtID, arg.ClientID, arg.Date, arg.StartMinutes, arg.EndMinutes,
		arg.Cash, arg.Card, arg.Wallet, arg.ID, arg.ExpectedVersion,
	)
	if err != nil {
		return Reservation{}, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return Reservation{}, err
	}
	if n == 0 {
		return Reservation{}, sql.ErrNoRows
	}
	return q.GetReservation(ctx, arg.ID)
}

func (q *Queries) DeleteReservation(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
