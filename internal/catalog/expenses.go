package catalog

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/codr1/courtdesk/internal/apperr"
	"github.com/codr1/courtdesk/internal/db"
	"github.com/codr1/courtdesk/internal/feed"
)

const dateLayout = "2006-01-02"

type CategoryInput struct {
	Name string `json:"name" validate:"required,max=80"`
}

// ExpenseInput creates or replaces an expense.
type ExpenseInput struct {
	Title      string          `json:"title" validate:"required,max=120"`
	Amount     decimal.Decimal `json:"amount"`
	Date       string          `json:"date" validate:"required,datetime=2006-01-02"`
	CategoryID *int64          `json:"category_id" validate:"omitempty,gt=0"`
	Notes      string          `json:"notes" validate:"max=500"`
}

// ManualEntryInput is a ledger row that belongs to no reservation, such as
// a walk-in sale.
type ManualEntryInput struct {
	Tender string          `json:"tender" validate:"required,oneof=cash card wallet"`
	Amount decimal.Decimal `json:"amount"`
	Date   string          `json:"date" validate:"required,datetime=2006-01-02"`
}

func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (db.ExpenseCategory, error) {
	if err := apperr.ValidateStruct(in); err != nil {
		return db.ExpenseCategory{}, err
	}
	category, err := s.db.Queries.CreateExpenseCategory(ctx, strings.TrimSpace(in.Name))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return db.ExpenseCategory{}, &apperr.ConflictError{Reason: "expense category name already exists"}
		}
		return db.ExpenseCategory{}, apperr.Store("insert expense category", err)
	}
	return category, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]db.ExpenseCategory, error) {
	categories, err := s.db.Queries.ListExpenseCategories(ctx)
	if err != nil {
		return nil, apperr.Store("list expense categories", err)
	}
	return categories, nil
}

func (s *Service) CreateExpense(ctx context.Context, in ExpenseInput) (db.Expense, error) {
	categoryID, err := s.checkExpense(ctx, in)
	if err != nil {
		return db.Expense{}, err
	}
	expense, err := s.db.Queries.CreateExpense(ctx, db.CreateExpenseParams{
		Title:      strings.TrimSpace(in.Title),
		Amount:     in.Amount,
		Date:       in.Date,
		CategoryID: categoryID,
		Notes:      sql.NullString{String: in.Notes, Valid: in.Notes != ""},
	})
	if err != nil {
		return db.Expense{}, apperr.Store("insert expense", err)
	}
	log.Ctx(ctx).Info().Int64("expense_id", expense.ID).Str("amount", expense.Amount.String()).Msg("Expense recorded")
	s.publish(ctx, db.CollectionExpenses, feed.OpInsert, expense.ID, expense)
	return expense, nil
}

func (s *Service) UpdateExpense(ctx context.Context, id int64, in ExpenseInput) (db.Expense, error) {
	categoryID, err := s.checkExpense(ctx, in)
	if err != nil {
		return db.Expense{}, err
	}
	expense, err := s.db.Queries.UpdateExpense(ctx, db.UpdateExpenseParams{
		ID:         id,
		Title:      strings.TrimSpace(in.Title),
		Amount:     in.Amount,
		Date:       in.Date,
		CategoryID: categoryID,
		Notes:      sql.NullString{String: in.Notes, Valid: in.Notes != ""},
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return db.Expense{}, apperr.NotFound("expense", id)
		}
		return db.Expense{}, apperr.Store("update expense", err)
	}
	s.publish(ctx, db.CollectionExpenses, feed.OpUpdate, expense.ID, expense)
	return expense, nil
}

func (s *Service) DeleteExpense(ctx context.Context, id int64) error {
	n, err := s.db.Queries.DeleteExpense(ctx, id)
	if err != nil {
		return apperr.Store("delete expense", err)
	}
	if n == 0 {
		return apperr.NotFound("expense", id)
	}
	s.publish(ctx, db.CollectionExpenses, feed.OpDelete, id, nil)
	return nil
}

// ListExpenses returns expenses dated in [from,to], optionally in one
// category.
func (s *Service) ListExpenses(ctx context.Context, from, to string, categoryID *int64) ([]db.Expense, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	params := db.ListExpensesParams{From: from, To: to}
	if categoryID != nil {
		params.CategoryID = sql.NullInt64{Int64: *categoryID, Valid: true}
	}
	expenses, err := s.db.Queries.ListExpensesByDateRange(ctx, params)
	if err != nil {
		return nil, apperr.Store("list expenses", err)
	}
	return expenses, nil
}

// RecordManualEntry writes a ledger row with no reservation. Such rows count
// in flat totals only.
func (s *Service) RecordManualEntry(ctx context.Context, in ManualEntryInput) (db.Transaction, error) {
	if err := apperr.ValidateStruct(in); err != nil {
		return db.Transaction{}, err
	}
	if !in.Amount.IsPositive() {
		return db.Transaction{}, apperr.Invalid("amount", "must be greater than 0")
	}
	row, err := s.db.Queries.InsertTransaction(ctx, db.InsertTransactionParams{
		Tender: db.Tender(in.Tender),
		Amount: in.Amount,
		Date:   in.Date,
	})
	if err != nil {
		return db.Transaction{}, apperr.Store("insert ledger row", err)
	}
	log.Ctx(ctx).Info().Int64("transaction_id", row.ID).Str("tender", in.Tender).Msg("Manual ledger entry recorded")
	s.publish(ctx, db.CollectionTransactions, feed.OpInsert, row.ID, row)
	return row, nil
}

func (s *Service) checkExpense(ctx context.Context, in ExpenseInput) (sql.NullInt64, error) {
	if err := apperr.ValidateStruct(in); err != nil {
		return sql.NullInt64{}, err
	}
	verr := &apperr.ValidationError{}
	if !in.Amount.IsPositive() {
		verr.Add("amount", "must be greater than 0")
	}
	var categoryID sql.NullInt64
	if in.CategoryID != nil {
		_, err := s.db.Queries.GetExpenseCategory(ctx, *in.CategoryID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			verr.Add("category_id", "does not exist")
		case err != nil:
			return sql.NullInt64{}, apperr.Store("get expense category", err)
		default:
			categoryID = sql.NullInt64{Int64: *in.CategoryID, Valid: true}
		}
	}
	return categoryID, verr.OrNil()
}

func checkRange(from, to string) error {
	verr := &apperr.ValidationError{}
	fromDate, err := time.Parse(dateLayout, from)
	if err != nil {
		verr.Add("from", "must be a YYYY-MM-DD date")
	}
	toDate, err := time.Parse(dateLayout, to)
	if err != nil {
		verr.Add("to", "must be a YYYY-MM-DD date")
	}
	if len(verr.Fields) == 0 && toDate.Before(fromDate) {
		verr.Add("to", "must not be before from")
	}
	return verr.OrNil()
}
