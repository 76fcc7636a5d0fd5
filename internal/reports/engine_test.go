package reports

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codr1/courtdesk/internal/apperr"
	"github.com/codr1/courtdesk/internal/db"
	"github.com/codr1/courtdesk/internal/ledger"
	"github.com/codr1/courtdesk/internal/testutil"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func nullInt(v int64) sql.NullInt64 { return sql.NullInt64{Int64: v, Valid: true} }

func nullStr(v string) sql.NullString { return sql.NullString{String: v, Valid: true} }

func TestSummarizeGroupsAndSeries(t *testing.T) {
	rows := []db.LedgerRow{
		{Tender: db.TenderCash, Amount: d("40"), Date: "2024-05-01", ReservationID: nullInt(1),
			CourtID: nullInt(1), CourtName: nullStr("Court B"), GroupID: nullInt(1), GroupName: nullStr("Indoor"), ClientID: nullInt(1)},
		{Tender: db.TenderCard, Amount: d("25"), Date: "2024-05-01", ReservationID: nullInt(2),
			CourtID: nullInt(2), CourtName: nullStr("Court A"), GroupID: nullInt(1), GroupName: nullStr("Indoor"), ClientID: nullInt(1)},
		{Tender: db.TenderWallet, Amount: d("15"), Date: "2024-05-03", ReservationID: nullInt(3),
			CourtID: nullInt(3), CourtName: nullStr("Beach"), GroupID: nullInt(2), GroupName: nullStr("Outdoor"), ClientID: nullInt(2)},
		// Court without a group: counted in totals, not grouped.
		{Tender: db.TenderCash, Amount: d("5"), Date: "2024-05-03", ReservationID: nullInt(4),
			CourtID: nullInt(4), CourtName: nullStr("Loose"), ClientID: nullInt(2)},
		// Manual entry without a reservation.
		{Tender: db.TenderCash, Amount: d("7.50"), Date: "2024-05-02"},
	}
	expenses := []db.Expense{
		{Title: "Balls", Amount: d("12.25"), Date: "2024-05-02"},
	}

	s := summarize(Window{From: "2024-05-01", To: "2024-05-03"}, Filters{}, rows, expenses)

	assert.True(t, s.TotalSales.Equal(d("92.50")))
	assert.True(t, s.TotalCash.Equal(d("52.50")))
	assert.True(t, s.TotalCard.Equal(d("25")))
	assert.True(t, s.TotalWallet.Equal(d("15")))
	assert.True(t, s.TotalExpenses.Equal(d("12.25")))
	assert.True(t, s.NetCashPosition.Equal(d("40.25")))

	require.Len(t, s.GroupedCourtSales, 2)
	indoor := s.GroupedCourtSales[0]
	assert.Equal(t, "Indoor", indoor.GroupName)
	require.Len(t, indoor.Courts, 2)
	assert.Equal(t, "Court A", indoor.Courts[0].CourtName)
	assert.Equal(t, "Court B", indoor.Courts[1].CourtName)
	for _, g := range s.GroupedCourtSales {
		sum := decimal.Zero
		for _, c := range g.Courts {
			sum = sum.Add(c.Sales)
		}
		assert.True(t, g.Total.Equal(sum), "group %s total", g.GroupName)
	}
	assert.True(t, indoor.Total.Equal(d("65")))

	require.Len(t, s.RevenueSeries, 3)
	assert.Equal(t, "2024-05-01", s.RevenueSeries[0].Date)
	assert.True(t, s.RevenueSeries[0].Revenue.Equal(d("65")))
	assert.True(t, s.RevenueSeries[1].Revenue.Equal(d("7.5")))
	assert.True(t, s.RevenueSeries[1].Expenses.Equal(d("12.25")))
	assert.True(t, s.RevenueSeries[2].Revenue.Equal(d("20")))
	assert.True(t, s.RevenueSeries[2].Expenses.IsZero())
}

func TestSummarizeDenseSeriesWhenEmpty(t *testing.T) {
	s := summarize(Window{From: "2024-02-27", To: "2024-03-02"}, Filters{}, nil, nil)
	require.Len(t, s.RevenueSeries, 5)
	assert.Equal(t, "2024-02-29", s.RevenueSeries[2].Date)
	for _, p := range s.RevenueSeries {
		assert.True(t, p.Revenue.IsZero())
		assert.True(t, p.Expenses.IsZero())
	}
	assert.Empty(t, s.GroupedCourtSales)
	assert.True(t, s.TotalSales.IsZero())
}

func TestFiltersRequireResolvableReservation(t *testing.T) {
	court := int64(1)
	f := Filters{CourtID: &court}
	assert.True(t, f.keep(db.LedgerRow{CourtID: nullInt(1)}))
	assert.False(t, f.keep(db.LedgerRow{CourtID: nullInt(2)}))
	assert.False(t, f.keep(db.LedgerRow{}))

	group := int64(5)
	f = Filters{GroupID: &group}
	assert.False(t, f.keep(db.LedgerRow{CourtID: nullInt(1)}))
	assert.True(t, f.keep(db.LedgerRow{CourtID: nullInt(1), GroupID: nullInt(5)}))

	assert.True(t, Filters{}.keep(db.LedgerRow{}))
}

func TestWindowValidation(t *testing.T) {
	database := testutil.NewTestDB(t)
	engine, err := NewEngine(database, 31)
	require.NoError(t, err)

	var verr *apperr.ValidationError
	assert.ErrorAs(t, engine.Validate(Window{From: "2024-05-02", To: "2024-05-01"}), &verr)
	assert.ErrorAs(t, engine.Validate(Window{From: "2024-05-01", To: "2024-06-01"}), &verr)
	assert.ErrorAs(t, engine.Validate(Window{From: "May 1", To: "2024-06-01"}), &verr)
	assert.NoError(t, engine.Validate(Window{From: "2024-05-01", To: "2024-05-31"}))
}

func TestPreset(t *testing.T) {
	now := time.Date(2024, time.March, 15, 17, 4, 0, 0, time.UTC)
	cases := []struct {
		name string
		want Window
	}{
		{PresetToday, Window{From: "2024-03-15", To: "2024-03-15"}},
		{PresetLast7Days, Window{From: "2024-03-09", To: "2024-03-15"}},
		{PresetLast30Days, Window{From: "2024-02-15", To: "2024-03-15"}},
		{PresetThisMonth, Window{From: "2024-03-01", To: "2024-03-15"}},
		{PresetThisYear, Window{From: "2024-01-01", To: "2024-03-15"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Preset(tc.name, now)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := Preset("fortnight", now)
	var verr *apperr.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestSummaryTenderScenarios(t *testing.T) {
	database := testutil.NewTestDB(t)
	ctx := context.Background()

	group := testutil.SeedGroup(t, database, "Indoor")
	court := testutil.SeedCourt(t, database, "Court 1", group.ID)
	client := testutil.SeedClient(t, database, "Ana")
	res := testutil.SeedReservation(t, database, court.ID, client.ID, "2024-05-01", 540, 600, 40, 0, 0)

	reconciler := ledger.NewReconciler()
	_, err := reconciler.Sync(ctx, database.Queries, res)
	require.NoError(t, err)

	engine, err := NewEngine(database, 0)
	require.NoError(t, err)

	s, err := engine.Summary(ctx, Day("2024-05-01"), Filters{})
	require.NoError(t, err)
	assert.True(t, s.TotalCash.Equal(d("40")))
	assert.True(t, s.TotalSales.Equal(d("40")))
	require.Len(t, s.GroupedCourtSales, 1)
	assert.True(t, s.GroupedCourtSales[0].Total.Equal(d("40")))

	res.Cash, res.Card, res.Wallet = decimal.Zero, d("25"), d("15")
	_, err = reconciler.Sync(ctx, database.Queries, res)
	require.NoError(t, err)

	s, err = engine.Summary(ctx, Day("2024-05-01"), Filters{})
	require.NoError(t, err)
	assert.True(t, s.TotalCash.IsZero())
	assert.True(t, s.TotalCard.Equal(d("25")))
	assert.True(t, s.TotalWallet.Equal(d("15")))
	assert.True(t, s.TotalSales.Equal(d("40")))
}

func TestSummaryAfterDeleteAndExpenses(t *testing.T) {
	database := testutil.NewTestDB(t)
	ctx := context.Background()

	court := testutil.SeedCourt(t, database, "Court 1", 0)
	client := testutil.SeedClient(t, database, "Ana")
	res := testutil.SeedReservation(t, database, court.ID, client.ID, "2024-05-01", 540, 600, 30, 0, 0)
	_, err := ledger.NewReconciler().Sync(ctx, database.Queries, res)
	require.NoError(t, err)

	category, err := database.Queries.CreateExpenseCategory(ctx, "Supplies")
	require.NoError(t, err)
	_, err = database.Queries.CreateExpense(ctx, db.CreateExpenseParams{
		Title: "Nets", Amount: d("10"), Date: "2024-05-01", CategoryID: nullInt(category.ID),
	})
	require.NoError(t, err)
	_, err = database.Queries.CreateExpense(ctx, db.CreateExpenseParams{
		Title: "Water", Amount: d("4"), Date: "2024-05-01",
	})
	require.NoError(t, err)

	engine, err := NewEngine(database, 0)
	require.NoError(t, err)

	day, err := engine.DaySummary(ctx, "2024-05-01")
	require.NoError(t, err)
	assert.True(t, day.Sales.Equal(d("30")))
	assert.True(t, day.Expenses.Equal(d("14")))
	assert.True(t, day.Net.Equal(d("16")))

	categoryID := category.ID
	s, err := engine.Summary(ctx, Day("2024-05-01"), Filters{CategoryID: &categoryID})
	require.NoError(t, err)
	assert.True(t, s.TotalExpenses.Equal(d("10")))
	assert.True(t, s.TotalSales.Equal(d("30")))
	assert.Empty(t, s.GroupedCourtSales, "court has no group")

	otherClient := int64(999)
	s, err = engine.Summary(ctx, Day("2024-05-01"), Filters{ClientID: &otherClient})
	require.NoError(t, err)
	assert.True(t, s.TotalSales.IsZero())
}
