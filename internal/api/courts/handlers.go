// Package courts serves courts and court groups.
package courts

import (
	"context"
	"net/http"
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

const courtsQueryTimeout = 5 * time.Second

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(svc *catalog.Service) {
	if svc == nil {
		return
	}
	serviceOnce.Do(func() {
		service = svc
	})
}

// GET /api/v1/courts?include_deleted=
func HandleCourtsList(w http.ResponseWriter, r *http.Request) {
	if service == nil {
		notInitialized(w, r)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), courtsQueryTimeout)
	defer cancel()

	courts, err := service.ListCourts(ctx, apiutil.BoolQuery(r, "include_deleted"))
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.Respond(w, r, http.StatusOK, map[string]any{"courts": apiutil.Views(courts, apiutil.CourtView)})
}

// POST /api/v1/courts
func HandleCourtCreate(w http.ResponseWriter, r *http.Request) {
	if service == nil {
		notInitialized(w, r)
		return
	}
	var in catalog.CourtInput
	if err := apiutil.DecodeJSON(r, &in); err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest("invalid request body", err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), courtsQueryTimeout)
	defer cancel()

	court, err := service.CreateCourt(ctx, in)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.Respond(w, r, http.StatusCreated, apiutil.CourtView(court))
}

// GET /api/v1/courts/{id}
func HandleCourtGet(w http.ResponseWriter, r *http.Request) {
	if service == nil {
		notInitialized(w, r)
		return
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), courtsQueryTimeout)
	defer cancel()

	court, err := service.GetCourt(ctx, id)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.Respond(w, r, http.StatusOK, apiutil.CourtView(court))
}

// PATCH /api/v1/courts/{id}
func HandleCourtUpdate(w http.ResponseWriter, r *http.Request) {
	if service == nil {
		notInitialized(w, r)
		return
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	var in catalog.CourtInput
	if err := apiutil.DecodeJSON(r, &in); err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest("invalid request body", err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), courtsQueryTimeout)
	defer cancel()

	court, err := service.UpdateCourt(ctx, id, in)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.Respond(w, r, http.StatusOK, apiutil.CourtView(court))
}

// DELETE /api/v1/courts/{id}
func HandleCourtDelete(w http.ResponseWriter, r *http.Request) {
	if service == nil {
		notInitialized(w, r)
		return
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), courtsQueryTimeout)
	defer cancel()

	if err := service.DeleteCourt(ctx, id); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/court-groups
func HandleGroupsList(w http.ResponseWriter, r *http.Request) {
	if service == nil {
		notInitialized(w, r)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), courtsQueryTimeout)
	defer cancel()

	groups, err := service.ListGroups(ctx)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if groups == nil {
		groups = []db.CourtGroup{}
	}
	apiutil.Respond(w, r, http.StatusOK, map[string]any{"groups": groups})
}

// POST /api/v1/court-groups
func HandleGroupCreate(w http.ResponseWriter, r *http.Request) {
	if service == nil {
		notInitialized(w, r)
		return
	}
	var in catalog.GroupInput
	if err := apiutil.DecodeJSON(r, &in); err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest("invalid request body", err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), courtsQueryTimeout)
	defer cancel()

	group, err := service.CreateGroup(ctx, in)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.Respond(w, r, http.StatusCreated, group)
}

func notInitialized(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Error().Msg("Catalog service not initialized")
	apiutil.Respond(w, r, http.StatusInternalServerError, apiutil.ErrorBody{Error: "Internal Server Error"})
}
