package db

import (
	"context"
	"database/sql"
)

const clientColumns = `id, name, phone, code, created_at, deleted_at`

func scanClient(row rowScanner) (Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Code, &c.CreatedAt, &c.DeletedAt)
	return c, err
}

type CreateClientParams struct {
	Name  string
	Phone sql.NullString
	Code  string
}

func (q *Queries) CreateClient(ctx context.Context, arg CreateClientParams) (Client, error) {
	result, err := q.db.ExecContext(ctx,
		`INSERT INTO clients (name, phone, code) VALUES (?, ?, ?)`, arg.Name, arg.Phone, arg.Code)
	if err != nil {
		return Client{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return Client{}, err
	}
	return q.GetClient(ctx, id)
}

// GetClient returns the client even when it is soft-deleted.
func (q *Queries) GetClient(ctx context.Context, id int64) (Client, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE id = ?`, id)
	return scanClient(row)
}

type ListClientsParams struct {
	SearchTerm     string
	IncludeDeleted bool
	Limit          int64
	Offset         int64
}

func (q *Queries) ListClients(ctx context.Context, arg ListClientsParams) ([]Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE 1 = 1`
	var args []any
	if !arg.IncludeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	if arg.SearchTerm != "" {
		like := "%" + arg.SearchTerm + "%"
		query += ` AND (name LIKE ? OR code LIKE ? OR phone LIKE ?)`
		args = append(args, like, like, like)
	}
	limit := arg.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY name, id LIMIT ? OFFSET ?`
	args = append(args, limit, arg.Offset)

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

type UpdateClientParams struct {
	ID    int64
	Name  string
	Phone sql.NullString
}

// UpdateClient returns sql.ErrNoRows when the client is missing or soft-deleted.
func (q *Queries) UpdateClient(ctx context.Context, arg UpdateClientParams) (Client, error) {
	result, err := q.db.ExecContext(ctx,
		`UPDATE clients SET name = ?, phone = ? WHERE id = ? AND deleted_at IS NULL`,
		arg.Name, arg.Phone, arg.ID)
	if err != nil {
		return Client{}, err
	}
	if n, err := result.RowsAffected(); err != nil {
		return Client{}, err
	} else if n == 0 {
		return Client{}, sql.ErrNoRows
	}
	return q.GetClient(ctx, arg.ID)
}

func (q *Queries) SoftDeleteClient(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx,
		`UPDATE clients SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
