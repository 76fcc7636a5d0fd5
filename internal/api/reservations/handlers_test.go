package reservations

// NOTE: Tests cannot use t.Parallel() due to shared package state.

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codr1/courtdesk/internal/api/apiutil"
	"github.com/codr1/courtdesk/internal/api/authz"
	"github.com/codr1/courtdesk/internal/db"
	"github.com/codr1/courtdesk/internal/feed"
	"github.com/codr1/courtdesk/internal/ledger"
	booking "github.com/codr1/courtdesk/internal/reservations"
	"github.com/codr1/courtdesk/internal/testutil"
)

func setupReservationsTest(t *testing.T) (*db.DB, db.Court, db.Client) {
	t.Helper()

	database := testutil.NewTestDB(t)
	hub := feed.NewHub(16)
	t.Cleanup(hub.Close)

	svc, err := booking.NewService(database, ledger.NewReconciler(), hub, 30)
	require.NoError(t, err)

	service = nil
	serviceOnce = sync.Once{}
	InitHandlers(svc)
	t.Cleanup(func() {
		service = nil
		serviceOnce = sync.Once{}
	})

	return database, testutil.SeedCourt(t, database, "Court 1", 0), testutil.SeedClient(t, database, "Ana")
}

func createBody(court db.Court, client db.Client, start, end, cash string) string {
	return fmt.Sprintf(`{"court_id":%d,"client_id":%d,"date":"2024-05-01","start":%q,"end":%q,`+
		`"cash":%q,"created_by_role":"employee","created_by_name":"Sam"}`, court.ID, client.ID, start, end, cash)
}

func postReservation(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	HandleReservationCreate(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHandleReservationCreateAndConflict(t *testing.T) {
	database, court, client := setupReservationsTest(t)

	rec := postReservation(t, createBody(court, client, "09:00", "10:00", "40"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[apiutil.Reservation](t, rec)
	assert.Equal(t, "09:00", created.Start.String())
	assert.Equal(t, "40", created.Total.String())
	assert.Equal(t, int64(1), created.Version)

	rows, err := database.Queries.ListTransactionsByReservation(t.Context(), created.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, db.TenderCash, rows[0].Tender)

	rec = postReservation(t, createBody(court, client, "09:30", "10:30", "20"))
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode[apiutil.ErrorBody](t, rec)
	assert.Equal(t, []int64{created.ID}, body.IDs)
}

func TestHandleReservationCreateValidation(t *testing.T) {
	_, court, client := setupReservationsTest(t)

	rec := postReservation(t, createBody(court, client, "10:00", "09:00", "5"))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode[apiutil.ErrorBody](t, rec)
	require.NotEmpty(t, body.Fields)
	assert.Equal(t, "end", body.Fields[0].Field)

	rec = postReservation(t, `{"court_id":1,"unknown":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleReservationCreateMissingStart(t *testing.T) {
	_, court, client := setupReservationsTest(t)

	body := fmt.Sprintf(`{"court_id":%d,"client_id":%d,"date":"2024-05-01","end":"10:00",`+
		`"cash":"5","created_by_role":"employee","created_by_name":"Sam"}`, court.ID, client.ID)
	rec := postReservation(t, body)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	out := decode[apiutil.ErrorBody](t, rec)
	require.NotEmpty(t, out.Fields)
	assert.Equal(t, "start", out.Fields[0].Field)
}

func TestHandleReservationCreateUsesActor(t *testing.T) {
	_, court, client := setupReservationsTest(t)

	body := fmt.Sprintf(`{"court_id":%d,"client_id":%d,"date":"2024-05-01","start":"08:00","end":"09:00"}`, court.ID, client.ID)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations", strings.NewReader(body))
	req = req.WithContext(authz.ContextWithActor(req.Context(), &authz.Actor{Role: authz.RoleManager, Name: "Pat"}))
	rec := httptest.NewRecorder()
	HandleReservationCreate(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[apiutil.Reservation](t, rec)
	assert.Equal(t, authz.RoleManager, created.CreatedByRole)
	require.NotNil(t, created.CreatedByName)
	assert.Equal(t, "Pat", *created.CreatedByName)
	assert.True(t, created.Total.IsZero())
}

func TestHandleReservationUpdateAndDelete(t *testing.T) {
	database, court, client := setupReservationsTest(t)

	rec := postReservation(t, createBody(court, client, "09:00", "10:00", "40"))
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[apiutil.Reservation](t, rec)
	path := fmt.Sprintf("/api/v1/reservations/%d", created.ID)

	patch := func(ifMatch, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPatch, path, strings.NewReader(body))
		req.SetPathValue("id", fmt.Sprint(created.ID))
		if ifMatch != "" {
			req.Header.Set("If-Match", ifMatch)
		}
		rec := httptest.NewRecorder()
		HandleReservationUpdate(rec, req)
		return rec
	}

	rec = patch(`"1"`, `{"cash":"0","card":"25","wallet":"15"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[apiutil.Reservation](t, rec)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, "40", updated.Total.String())

	rows, err := database.Queries.ListTransactionsByReservation(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rec = patch("1", `{"card":"30"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = patch("abc", `{"card":"30"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	del := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodDelete, path, nil)
		req.SetPathValue("id", fmt.Sprint(created.ID))
		rec := httptest.NewRecorder()
		HandleReservationDelete(rec, req)
		return rec
	}
	assert.Equal(t, http.StatusNoContent, del().Code)
	assert.Equal(t, http.StatusNotFound, del().Code)

	rows, err = database.Queries.ListTransactionsByReservation(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestHandleReservationsListAndGet(t *testing.T) {
	_, court, client := setupReservationsTest(t)
	require.Equal(t, http.StatusCreated, postReservation(t, createBody(court, client, "09:00", "10:00", "10")).Code)
	require.Equal(t, http.StatusCreated, postReservation(t, createBody(court, client, "11:00", "12:00", "10")).Code)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/reservations?court_id=%d&from=2024-05-01&to=2024-05-31", court.ID), nil)
	rec := httptest.NewRecorder()
	HandleReservationsList(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[struct {
		Reservations []apiutil.Reservation `json:"reservations"`
	}](t, rec)
	require.Len(t, listed.Reservations, 2)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/reservations/999", nil)
	req.SetPathValue("id", "999")
	rec = httptest.NewRecorder()
	HandleReservationGet(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/reservations?from=2024-05-31&to=2024-05-01", nil)
	rec = httptest.NewRecorder()
	HandleReservationsList(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleScheduleGrid(t *testing.T) {
	_, court, client := setupReservationsTest(t)
	require.Equal(t, http.StatusCreated, postReservation(t, createBody(court, client, "09:00", "10:00", "10")).Code)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/schedule?date=2024-05-01&court_id=%d", court.ID), nil)
	rec := httptest.NewRecorder()
	HandleScheduleGrid(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	grid := decode[gridResponse](t, rec)
	assert.Equal(t, 30, grid.SlotMinutes)
	require.Len(t, grid.Rows, 1)
	cells := grid.Rows[0].Cells
	require.Len(t, cells, 48)
	assert.Equal(t, "09:00", cells[18].Start)
	assert.NotNil(t, cells[18].Reservation)
	assert.NotNil(t, cells[19].Reservation)
	assert.Nil(t, cells[20].Reservation)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/schedule?date=2024-05-01&court_id=abc", nil)
	rec = httptest.NewRecorder()
	HandleScheduleGrid(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
