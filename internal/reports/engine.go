// Package reports computes windowed revenue and expense aggregates from the
// ledger. Nothing here is persisted; every call reads the current rows.
package reports

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"slices"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/codr1/courtdesk/internal/apperr"
	"github.com/codr1/courtdesk/internal/db"
	"github.com/codr1/courtdesk/internal/metrics"
)

// DefaultMaxWindowDays caps a window when no limit is configured.
const DefaultMaxWindowDays = 366

// Filters narrow a summary. Court, group and client apply to ledger rows;
// category applies to expenses only.
type Filters struct {
	CourtID    *int64 `json:"court_id,omitempty"`
	GroupID    *int64 `json:"group_id,omitempty"`
	ClientID   *int64 `json:"client_id,omitempty"`
	CategoryID *int64 `json:"category_id,omitempty"`
}

func (f Filters) ledgerScoped() bool {
	return f.CourtID != nil || f.GroupID != nil || f.ClientID != nil
}

// keep reports whether a ledger row passes the court, group and client
// filters. A scoped filter needs a resolvable reservation.
func (f Filters) keep(row db.LedgerRow) bool {
	if !f.ledgerScoped() {
		return true
	}
	if !row.CourtID.Valid {
		return false
	}
	if f.CourtID != nil && row.CourtID.Int64 != *f.CourtID {
		return false
	}
	if f.GroupID != nil && (!row.GroupID.Valid || row.GroupID.Int64 != *f.GroupID) {
		return false
	}
	if f.ClientID != nil && (!row.ClientID.Valid || row.ClientID.Int64 != *f.ClientID) {
		return false
	}
	return true
}

type CourtSales struct {
	CourtID   int64           `json:"court_id"`
	CourtName string          `json:"court_name"`
	Sales     decimal.Decimal `json:"sales"`
}

// GroupSales is one group's court lines; Total is always the sum of Courts.
type GroupSales struct {
	GroupID   int64           `json:"group_id"`
	GroupName string          `json:"group_name"`
	Total     decimal.Decimal `json:"total"`
	Courts    []CourtSales    `json:"courts"`
}

type SeriesPoint struct {
	Date     string          `json:"date"`
	Revenue  decimal.Decimal `json:"revenue"`
	Expenses decimal.Decimal `json:"expenses"`
}

// Summary is the aggregate of one window.
type Summary struct {
	Window            Window          `json:"window"`
	TotalSales        decimal.Decimal `json:"total_sales"`
	TotalCash         decimal.Decimal `json:"total_cash"`
	TotalCard         decimal.Decimal `json:"total_card"`
	TotalWallet       decimal.Decimal `json:"total_wallet"`
	TotalExpenses     decimal.Decimal `json:"total_expenses"`
	NetCashPosition   decimal.Decimal `json:"net_cash_position"`
	GroupedCourtSales []GroupSales    `json:"grouped_court_sales"`
	RevenueSeries     []SeriesPoint   `json:"revenue_series"`
}

// DaySummary is the single-day view.
type DaySummary struct {
	Date     string          `json:"date"`
	Sales    decimal.Decimal `json:"sales"`
	Cash     decimal.Decimal `json:"cash"`
	Card     decimal.Decimal `json:"card"`
	Wallet   decimal.Decimal `json:"wallet"`
	Expenses decimal.Decimal `json:"expenses"`
	Net      decimal.Decimal `json:"net"`
}

type Engine struct {
	db            *db.DB
	maxWindowDays int
}

func NewEngine(database *db.DB, maxWindowDays int) (*Engine, error) {
	if database == nil {
		return nil, errors.New("reports engine requires a database")
	}
	if maxWindowDays <= 0 {
		maxWindowDays = DefaultMaxWindowDays
	}
	return &Engine{db: database, maxWindowDays: maxWindowDays}, nil
}

// Validate checks a window without computing anything.
func (e *Engine) Validate(w Window) error {
	_, _, err := w.parse(e.maxWindowDays)
	return err
}

// Summary computes every aggregate for the window. Ledger rows and expenses
// are loaded concurrently.
func (e *Engine) Summary(ctx context.Context, w Window, f Filters) (Summary, error) {
	started := time.Now()
	defer metrics.ObserveAggregate("summary", started)

	if _, _, err := w.parse(e.maxWindowDays); err != nil {
		return Summary{}, err
	}

	var (
		ledger   []db.LedgerRow
		expenses []db.Expense
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := e.db.Queries.ListLedgerRows(gctx, w.From, w.To)
		if err != nil {
			return apperr.Store("list ledger rows", err)
		}
		ledger = rows
		return nil
	})
	g.Go(func() error {
		params := db.ListExpensesParams{From: w.From, To: w.To}
		if f.CategoryID != nil {
			params.CategoryID = sql.NullInt64{Int64: *f.CategoryID, Valid: true}
		}
		rows, err := e.db.Queries.ListExpensesByDateRange(gctx, params)
		if err != nil {
			return apperr.Store("list expenses", err)
		}
		expenses = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("from", w.From).Str("to", w.To).Msg("Failed to load aggregate inputs")
		return Summary{}, err
	}

	return summarize(w, f, ledger, expenses), nil
}

// DaySummary reports sales, tenders, expenses and net cash for one date.
func (e *Engine) DaySummary(ctx context.Context, date string) (DaySummary, error) {
	s, err := e.Summary(ctx, Day(date), Filters{})
	if err != nil {
		return DaySummary{}, err
	}
	return DaySummary{
		Date:     date,
		Sales:    s.TotalSales,
		Cash:     s.TotalCash,
		Card:     s.TotalCard,
		Wallet:   s.TotalWallet,
		Expenses: s.TotalExpenses,
		Net:      s.NetCashPosition,
	}, nil
}

// summarize is the pure part of Summary.
func summarize(w Window, f Filters, ledger []db.LedgerRow, expenses []db.Expense) Summary {
	s := Summary{
		Window:        w,
		TotalSales:    decimal.Zero,
		TotalCash:     decimal.Zero,
		TotalCard:     decimal.Zero,
		TotalWallet:   decimal.Zero,
		TotalExpenses: decimal.Zero,
	}

	revenueByDay := make(map[string]decimal.Decimal)
	expensesByDay := make(map[string]decimal.Decimal)

	type courtKey struct{ group, court int64 }
	courtLines := make(map[courtKey]*CourtSales)
	groupNames := make(map[int64]string)

	for _, row := range ledger {
		if !f.keep(row) {
			continue
		}
		s.TotalSales = s.TotalSales.Add(row.Amount)
		switch row.Tender {
		case db.TenderCash:
			s.TotalCash = s.TotalCash.Add(row.Amount)
		case db.TenderCard:
			s.TotalCard = s.TotalCard.Add(row.Amount)
		case db.TenderWallet:
			s.TotalWallet = s.TotalWallet.Add(row.Amount)
		}
		revenueByDay[row.Date] = addTo(revenueByDay, row.Date, row.Amount)

		// Grouping needs the whole court to group chain.
		if !row.CourtID.Valid || !row.GroupID.Valid || !row.GroupName.Valid {
			continue
		}
		key := courtKey{group: row.GroupID.Int64, court: row.CourtID.Int64}
		line, ok := courtLines[key]
		if !ok {
			line = &CourtSales{CourtID: row.CourtID.Int64, CourtName: row.CourtName.String, Sales: decimal.Zero}
			courtLines[key] = line
			groupNames[row.GroupID.Int64] = row.GroupName.String
		}
		line.Sales = line.Sales.Add(row.Amount)
	}

	for _, e := range expenses {
		s.TotalExpenses = s.TotalExpenses.Add(e.Amount)
		expensesByDay[e.Date] = addTo(expensesByDay, e.Date, e.Amount)
	}
	s.NetCashPosition = s.TotalCash.Sub(s.TotalExpenses)

	groups := make(map[int64]*GroupSales)
	for key, line := range courtLines {
		g, ok := groups[key.group]
		if !ok {
			g = &GroupSales{GroupID: key.group, GroupName: groupNames[key.group], Total: decimal.Zero}
			groups[key.group] = g
		}
		g.Courts = append(g.Courts, *line)
	}
	s.GroupedCourtSales = make([]GroupSales, 0, len(groups))
	for _, g := range groups {
		slices.SortFunc(g.Courts, func(a, b CourtSales) int {
			return cmp.Or(cmp.Compare(a.CourtName, b.CourtName), cmp.Compare(a.CourtID, b.CourtID))
		})
		for _, c := range g.Courts {
			g.Total = g.Total.Add(c.Sales)
		}
		s.GroupedCourtSales = append(s.GroupedCourtSales, *g)
	}
	slices.SortFunc(s.GroupedCourtSales, func(a, b GroupSales) int {
		return cmp.Or(cmp.Compare(a.GroupName, b.GroupName), cmp.Compare(a.GroupID, b.GroupID))
	})

	s.RevenueSeries = make([]SeriesPoint, 0)
	for day := range w.Days() {
		s.RevenueSeries = append(s.RevenueSeries, SeriesPoint{
			Date:     day,
			Revenue:  valueOr(revenueByDay, day),
			Expenses: valueOr(expensesByDay, day),
		})
	}
	return s
}

func addTo(m map[string]decimal.Decimal, key string, amount decimal.Decimal) decimal.Decimal {
	return valueOr(m, key).Add(amount)
}

func valueOr(m map[string]decimal.Decimal, key string) decimal.Decimal {
	if v, ok := m[key]; ok {
		return v
	}
	return decimal.Zero
}
