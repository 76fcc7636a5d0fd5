package expenses

// NOTE: Tests cannot use t.Parallel() due to shared package state.

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codr1/courtdesk/internal/api/apiutil"
	"github.com/codr1/courtdesk/internal/catalog"
	"github.com/codr1/courtdesk/internal/db"
	"github.com/codr1/courtdesk/internal/feed"
	"github.com/codr1/courtdesk/internal/testutil"
)

func setupExpensesTest(t *testing.T) *feed.Hub {
	t.Helper()
	hub := feed.NewHub(16)
	t.Cleanup(hub.Close)
	svc, err := catalog.NewService(testutil.NewTestDB(t), hub, "US")
	require.NoError(t, err)

	service = nil
	serviceOnce = sync.Once{}
	InitHandlers(svc)
	t.Cleanup(func() {
		service = nil
		serviceOnce = sync.Once{}
	})
	return hub
}

func do(handler http.HandlerFunc, method, target, body, id string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if id != "" {
		req.SetPathValue("id", id)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestExpenseHandlers(t *testing.T) {
	hub := setupExpensesTest(t)
	sub := hub.Subscribe(feed.MaskAll, db.CollectionExpenses)
	defer sub.Close()

	rec := do(HandleCategoryCreate, http.MethodPost, "/api/v1/expense-categories", `{"name":"Supplies"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var category db.ExpenseCategory
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &category))

	body := fmt.Sprintf(`{"title":"Nets","amount":"30.50","date":"2024-05-01","category_id":%d}`, category.ID)
	rec = do(HandleExpenseCreate, http.MethodPost, "/api/v1/expenses", body, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var expense apiutil.Expense
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &expense))
	assert.True(t, expense.Amount.Equal(decimal.RequireFromString("30.5")))
	assert.Equal(t, feed.OpInsert, (<-sub.C()).Op)

	rec = do(HandleExpensesList, http.MethodGet, fmt.Sprintf("/api/v1/expenses?from=2024-05-01&to=2024-05-31&category_id=%d", category.ID), "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Expenses []apiutil.Expense `json:"expenses"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed.Expenses, 1)

	id := fmt.Sprint(expense.ID)
	rec = do(HandleExpenseUpdate, http.MethodPatch, "/api/v1/expenses/"+id, `{"title":"Nets","amount":"-1","date":"2024-05-01"}`, id)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(HandleExpenseDelete, http.MethodDelete, "/api/v1/expenses/"+id, "", id)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(HandleExpenseDelete, http.MethodDelete, "/api/v1/expenses/"+id, "", id)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(HandleCategoriesList, http.MethodGet, "/api/v1/expense-categories", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Supplies")
}

func TestManualEntryHandler(t *testing.T) {
	setupExpensesTest(t)

	rec := do(HandleManualEntryCreate, http.MethodPost, "/api/v1/ledger/entries", `{"tender":"cash","amount":"12","date":"2024-05-01"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var row apiutil.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &row))
	assert.Nil(t, row.ReservationID)
	assert.Equal(t, db.TenderCash, row.Tender)

	rec = do(HandleManualEntryCreate, http.MethodPost, "/api/v1/ledger/entries", `{"tender":"cheque","amount":"12","date":"2024-05-01"}`, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
