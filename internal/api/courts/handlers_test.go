package courts

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
	"github.com/codr1/courtdesk/internal/catalog"
	"github.com/codr1/courtdesk/internal/db"
	"github.com/codr1/courtdesk/internal/testutil"
)

func setupCourtsTest(t *testing.T) {
	t.Helper()
	svc, err := catalog.NewService(testutil.NewTestDB(t), nil, "US")
	require.NoError(t, err)

	service = nil
	serviceOnce = sync.Once{}
	InitHandlers(svc)
	t.Cleanup(func() {
		service = nil
		serviceOnce = sync.Once{}
	})
}

func serve(handler http.HandlerFunc, method, target, body, id string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if id != "" {
		req.SetPathValue("id", id)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestCourtHandlersCRUD(t *testing.T) {
	setupCourtsTest(t)

	rec := serve(HandleGroupCreate, http.MethodPost, "/api/v1/court-groups", `{"name":"Indoor"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var group db.CourtGroup
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &group))

	rec = serve(HandleGroupCreate, http.MethodPost, "/api/v1/court-groups", `{"name":"Indoor"}`, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(HandleCourtCreate, http.MethodPost, "/api/v1/courts", fmt.Sprintf(`{"name":"Court 1","group_id":%d}`, group.ID), "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var court apiutil.Court
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &court))
	require.NotNil(t, court.GroupID)
	assert.Equal(t, group.ID, *court.GroupID)
	id := fmt.Sprint(court.ID)

	rec = serve(HandleCourtUpdate, http.MethodPatch, "/api/v1/courts/"+id, `{"name":"Center"}`, id)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &court))
	assert.Equal(t, "Center", court.Name)
	assert.Nil(t, court.GroupID)

	rec = serve(HandleCourtDelete, http.MethodDelete, "/api/v1/courts/"+id, "", id)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = serve(HandleCourtDelete, http.MethodDelete, "/api/v1/courts/"+id, "", id)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(HandleCourtsList, http.MethodGet, "/api/v1/courts", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"courts":[]}`, rec.Body.String())

	rec = serve(HandleCourtsList, http.MethodGet, "/api/v1/courts?include_deleted=true", "", "")
	var listed struct {
		Courts []apiutil.Court `json:"courts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Courts, 1)
	assert.NotNil(t, listed.Courts[0].DeletedAt)

	rec = serve(HandleCourtGet, http.MethodGet, "/api/v1/courts/"+id, "", id)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCourtCreateValidation(t *testing.T) {
	setupCourtsTest(t)

	rec := serve(HandleCourtCreate, http.MethodPost, "/api/v1/courts", `{"name":""}`, "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body apiutil.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "name", body.Fields[0].Field)

	rec = serve(HandleCourtCreate, http.MethodPost, "/api/v1/courts", `{"name":"A","group_id":99}`, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = serve(HandleCourtUpdate, http.MethodPatch, "/api/v1/courts/x", `{"name":"A"}`, "x")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
