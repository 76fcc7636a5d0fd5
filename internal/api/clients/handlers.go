// Package clients serves the client directory.
package clients

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtdesk/internal/api/apiutil"
	"github.com/codr1/courtdesk/internal/catalog"
)

var (
	service     *catalog.Service
	serviceOnce sync.Once
)

const (
	clientsQueryTimeout = 5 * time.Second
	defaultPageSize     = 50
	maxPageSize         = 200
)

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(svc *catalog.Service) {
	if svc == nil {
		return
	}
	serviceOnce.Do(func() {
		service = svc
	})
}

// GET /api/v1/clients?q=&include_deleted=&limit=&offset=
func HandleClientsList(w http.ResponseWriter, r *http.Request) {
	if service == nil {
		notInitialized(w, r)
		return
	}
	query := r.URL.Query()
	q := catalog.ClientQuery{
		Search:         strings.TrimSpace(query.Get("q")),
		IncludeDeleted: apiutil.BoolQuery(r, "include_deleted"),
		Limit:          defaultPageSize,
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := apiutil.ParsePositiveInt64Field(raw, "limit")
		if err != nil {
			apiutil.WriteError(w, r, apiutil.BadRequest(err.Error(), err))
			return
		}
		q.Limit = min(limit, maxPageSize)
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err := apiutil.ParseNonNegativeInt64Field(raw, "offset")
		if err != nil {
			apiutil.WriteError(w, r, apiutil.BadRequest(err.Error(), err))
			return
		}
		q.Offset = offset
	}

	ctx, cancel := context.WithTimeout(r.Context(), clientsQueryTimeout)
	defer cancel()

	clients, err := service.ListClients(ctx, q)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.Respond(w, r, http.StatusOK, map[string]any{"clients": apiutil.Views(clients, apiutil.ClientView)})
}

// POST /api/v1/clients
func HandleClientCreate(w http.ResponseWriter, r *http.Request) {
	if service == nil {
		notInitialized(w, r)
		return
	}
	var in catalog.ClientInput
	if err := apiutil.DecodeJSON(r, &in); err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest("invalid request body", err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), clientsQueryTimeout)
	defer cancel()

	client, err := service.CreateClient(ctx, in)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.Respond(w, r, http.StatusCreated, apiutil.ClientView(client))
}

// GET /api/v1/clients/{id}
func HandleClientGet(w http.ResponseWriter, r *http.Request) {
	if service == nil {
		notInitialized(w, r)
		return
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), clientsQueryTimeout)
	defer cancel()

	client, err := service.GetClient(ctx, id)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.Respond(w, r, http.StatusOK, apiutil.ClientView(client))
}

// PATCH /api/v1/clients/{id}
func HandleClientUpdate(w http.ResponseWriter, r *http.Request) {
	if service == nil {
		notInitialized(w, r)
		return
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	var in catalog.ClientInput
	if err := apiutil.DecodeJSON(r, &in); err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest("invalid request body", err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), clientsQueryTimeout)
	defer cancel()

	client, err := service.UpdateClient(ctx, id, in)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.Respond(w, r, http.StatusOK, apiutil.ClientView(client))
}

// DELETE /api/v1/clients/{id}
func HandleClientDelete(w http.ResponseWriter, r *http.Request) {
	if service == nil {
		notInitialized(w, r)
		return
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), clientsQueryTimeout)
	defer cancel()

	if err := service.DeleteClient(ctx, id); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func notInitialized(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Error().Msg("Catalog service not initialized")
	apiutil.Respond(w, r, http.StatusInternalServerError, apiutil.ErrorBody{Error: "Internal Server Error"})
}
