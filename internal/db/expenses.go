package db

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"
)

func (q *Queries) CreateExpenseCategory(ctx context.Context, name string) (ExpenseCategory, error) {
	result, err := q.db.ExecContext(ctx, `INSERT INTO expense_categories (name) VALUES (?)`, name)
	if err != nil {
		return ExpenseCategory{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return ExpenseCategory{}, err
	}
	return q.GetExpenseCategory(ctx, id)
}

func (q *Queries) GetExpenseCategory(ctx context.Context, id int64) (ExpenseCategory, error) {
	var c ExpenseCategory
	err := q.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM expense_categories WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.CreatedAt)
	return c, err
}

func (q *Queries) ListExpenseCategories(ctx context.Context) ([]ExpenseCategory, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, name, created_at FROM expense_categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ExpenseCategory
	for rows.Next() {
		var c ExpenseCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

const expenseColumns = `id, title, amount, date, category_id, notes, created_at`

func scanExpense(row rowScanner) (Expense, error) {
	var e Expense
	err := row.Scan(&e.ID, &e.Title, &e.Amount, &e.Date, &e.CategoryID, &e.Notes, &e.CreatedAt)
	return e, err
}

type CreateExpenseParams struct {
	Title      string
	Amount     decimal.Decimal
	Date       string
	CategoryID sql.NullInt64
	Notes      sql.NullString
}

func (q *Queries) CreateExpense(ctx context.Context, arg CreateExpenseParams) (Expense, error) {
	result, err := q.db.ExecContext(ctx,
		`INSERT INTO expenses (title, amount, date, category_id, notes) VALUES (?, ?, ?, ?, ?)`,
		arg.Title, arg.Amount, arg.Date, arg.CategoryID, arg.Notes)
	if err != nil {
		return Expense{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return Expense{}, err
	}
	return q.GetExpense(ctx, id)
}

func (q *Queries) GetExpense(ctx context.Context, id int64) (Expense, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)
	return scanExpense(row)
}

type UpdateExpenseParams struct {
	ID         int64
	Title      string
	Amount     decimal.Decimal
	Date       string
	CategoryID sql.NullInt64
	Notes      sql.NullString
}

// UpdateExpense returns sql.ErrNoRows when the expense does not exist.
func (q *Queries) UpdateExpense(ctx context.Context, arg UpdateExpenseParams) (Expense, error) {
	result, err := q.db.ExecContext(ctx,
		`UPDATE expenses SET title = ?, amount = ?, date = ?, category_id = ?, notes = ? WHERE id = ?`,
		arg.Title, arg.Amount, arg.Date, arg.CategoryID, arg.Notes, arg.ID)
	if err != nil {
		return Expense{}, err
	}
	if n, err := result.RowsAffected(); err != nil {
		return Expense{}, err
	} else if n == 0 {
		return Expense{}, sql.ErrNoRows
	}
	return q.GetExpense(ctx, arg.ID)
}

func (q *Queries) DeleteExpense(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type ListExpensesParams struct {
	From       string
	To         string
	CategoryID sql.NullInt64
}

func (q *Queries) ListExpensesByDateRange(ctx context.Context, arg ListExpensesParams) ([]Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE date >= ? AND date <= ?`
	args := []any{arg.From, arg.To}
	if arg.CategoryID.Valid {
		query += ` AND category_id = ?`
		args = append(args, arg.CategoryID.Int64)
	}
	query += ` ORDER BY date, id`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
