package db

import (
	"context"
	"database/sql"
)

const courtGroupColumns = `id, name, created_at`

func scanCourtGroup(row rowScanner) (CourtGroup, error) {
	var g CourtGroup
	err := row.Scan(&g.ID, &g.Name, &g.CreatedAt)
	return g, err
}

func (q *Queries) CreateCourtGroup(ctx context.Context, name string) (CourtGroup, error) {
	result, err := q.db.ExecContext(ctx, `INSERT INTO court_groups (name) VALUES (?)`, name)
	if err != nil {
		return CourtGroup{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return CourtGroup{}, err
	}
	return q.GetCourtGroup(ctx, id)
}

func (q *Queries) GetCourtGroup(ctx context.Context, id int64) (CourtGroup, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+courtGroupColumns+` FROM court_groups WHERE id = ?`, id)
	return scanCourtGroup(row)
}

func (q *Queries) ListCourtGroups(ctx context.Context) ([]CourtGroup, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+courtGroupColumns+` FROM court_groups ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []CourtGroup
	for rows.Next() {
		g, err := scanCourtGroup(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, g)
	}
	return items, rows.Err()
}

const courtColumns = `id, name, group_id, created_at, deleted_at`

func scanCourt(row rowScanner) (Court, error) {
	var c Court
	err := row.Scan(&c.ID, &c.Name, &c.GroupID, &c.CreatedAt, &c.DeletedAt)
	return c, err
}

type CreateCourtParams struct {
	Name    string
	GroupID sql.NullInt64
}

func (q *Queries) CreateCourt(ctx context.Context, arg CreateCourtParams) (Court, error) {
	result, err := q.db.ExecContext(ctx,
		`INSERT INTO courts (name, group_id) VALUES (?, ?)`, arg.Name, arg.GroupID)
	if err != nil {
		return Court{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return Court{}, err
	}
	return q.GetCourt(ctx, id)
}

// GetCourt returns the court even when it is soft-deleted.
func (q *Queries) GetCourt(ctx context.Context, id int64) (Court, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+courtColumns+` FROM courts WHERE id = ?`, id)
	return scanCourt(row)
}

func (q *Queries) ListCourts(ctx context.Context, includeDeleted bool) ([]Court, error) {
	query := `SELECT ` + courtColumns + ` FROM courts`
	if !includeDeleted {
		query += ` WHERE deleted_at IS NULL`
	}
	query += ` ORDER BY name, id`

	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Court
	for rows.Next() {
		c, err := scanCourt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

type UpdateCourtParams struct {
	ID      int64
	Name    string
	GroupID sql.NullInt64
}

// UpdateCourt returns sql.ErrNoRows when the court is missing or soft-deleted.
func (q *Queries) UpdateCourt(ctx context.Context, arg UpdateCourtParams) (Court, error) {
	result, err := q.db.ExecContext(ctx,
		`UPDATE courts SET name = ?, group_id = ? WHERE id = ? AND deleted_at IS NULL`,
		arg.Name, arg.GroupID, arg.ID)
	if err != nil {
		return Court{}, err
	}
	if n, err := result.RowsAffected(); err != nil {
		return Court{}, err
	} else if n == 0 {
		return Court{}, sql.ErrNoRows
	}
	return q.GetCourt(ctx, arg.ID)
}

func (q *Queries) SoftDeleteCourt(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx,
		`UPDATE courts SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
