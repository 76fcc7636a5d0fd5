// Package expenses serves expenses, their categories and manual ledger
// entries.
package expenses

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtdesk/internal/api/apiutil"
	"github.com/codr1/courtdesk/internal/catalog"
	"github.com/codr1/courtdesk/internal/db"
)

var (
	service     *catalog.Service
	serviceOnce sync.Once
)

const expensesQueryTimeout = 5 * time.Second

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(svc *catalog.Service) {
	if svc == nil {
		return
	}
	serviceOnce.Do(func() {
		service = svc
	})
}

// GET /api/v1/expenses?from=&to=&category_id=
func HandleExpensesList(w http.ResponseWriter, r *http.Request) {
	if service == nil {
		notInitialized(w, r)
		return
	}
	categoryID, err := apiutil.OptionalInt64Query(r, "category_id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	query := r.URL.Query()
	from := strings.TrimSpace(query.Get("from"))
	to := strings.TrimSpace(query.Get("to"))
	if to == "" {
		to = from
	}

	ctx, cancel := context.WithTimeout(r.Context(), expensesQueryTimeout)
	defer cancel()

	expenses, err := service.ListExpenses(ctx, from, to, categoryID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.Respond(w, r, http.StatusOK, map[string]any{"expenses": apiutil.Views(expenses, apiutil.ExpenseView)})
}

// POST /api/v1/expenses
func HandleExpenseCreate(w http.ResponseWriter, r *http.Request) {
	if service == nil {
		notInitialized(w, r)
		return
	}
	var in catalog.ExpenseInput
	if err := apiutil.DecodeJSON(r, &in); err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest("invalid request body", err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), expensesQueryTimeout)
	defer cancel()

	expense, err := service.CreateExpense(ctx, in)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.Respond(w, r, http.StatusCreated, apiutil.ExpenseView(expense))
}

// PATCH /api/v1/expenses/{id}
func HandleExpenseUpdate(w http.ResponseWriter, r *http.Request) {
	if service == nil {
		notInitialized(w, r)
		return
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	var in catalog.ExpenseInput
	if err := apiutil.DecodeJSON(r, &in); err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest("invalid request body", err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), expensesQueryTimeout)
	defer cancel()

	expense, err := service.UpdateExpense(ctx, id, in)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.Respond(w, r, http.StatusOK, apiutil.ExpenseView(expense))
}

// DELETE /api/v1/expenses/{id}
func HandleExpenseDelete(w http.ResponseWriter, r *http.Request) {
	if service == nil {
		notInitialized(w, r)
		return
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), expensesQueryTimeout)
	defer cancel()

	if err := service.DeleteExpense(ctx, id); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/expense-categories
func HandleCategoriesList(w http.ResponseWriter, r *http.Request) {
	if service == nil {
		notInitialized(w, r)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), expensesQueryTimeout)
	defer cancel()

	categories, err := service.ListCategories(ctx)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if categories == nil {
		categories = []db.ExpenseCategory{}
	}
	apiutil.Respond(w, r, http.StatusOK, map[string]any{"categories": categories})
}

// POST /api/v1/expense-categories
func HandleCategoryCreate(w http.ResponseWriter, r *http.Request) {
	if service == nil {
		notInitialized(w, r)
		return
	}
	var in catalog.CategoryInput
	if err := apiutil.DecodeJSON(r, &in); err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest("invalid request body", err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), expensesQueryTimeout)
	defer cancel()

	category, err := service.CreateCategory(ctx, in)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.Respond(w, r, http.StatusCreated, category)
}

// POST /api/v1/ledger/entries
func HandleManualEntryCreate(w http.ResponseWriter, r *http.Request) {
	if service == nil {
		notInitialized(w, r)
		return
	}
	var in catalog.ManualEntryInput
	if err := apiutil.DecodeJSON(r, &in); err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest("invalid request body", err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), expensesQueryTimeout)
	defer cancel()

	row, err := service.RecordManualEntry(ctx, in)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.Respond(w, r, http.StatusCreated, apiutil.TransactionView(row))
}

func notInitialized(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Error().Msg("Catalog service not initialized")
	apiutil.Respond(w, r, http.StatusInternalServerError, apiutil.ErrorBody{Error: "Internal Server Error"})
}
