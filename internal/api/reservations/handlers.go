package reservations

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtdesk/internal/api/apiutil"
	"github.com/codr1/courtdesk/internal/api/authz"
	booking "github.com/codr1/courtdesk/internal/reservations"
)

var (
	service     *booking.Service
	serviceOnce sync.Once
)

const reservationQueryTimeout = 5 * time.Second

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(svc *booking.Service) {
	if svc == nil {
		return
	}
	serviceOnce.Do(func() {
		service = svc
	})
}

func loadService() *booking.Service {
	return service
}

// POST /api/v1/reservations
func HandleReservationCreate(w http.ResponseWriter, r *http.Request) {
	svc := loadService()
	if svc == nil {
		notInitialized(w, r)
		return
	}

	var in booking.Input
	if err := apiutil.DecodeJSON(r, &in); err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest("invalid request body", err))
		return
	}
	stampActor(r, &in)

	ctx, cancel := context.WithTimeout(r.Context(), reservationQueryTimeout)
	defer cancel()

	created, err := svc.Create(ctx, in)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.Respond(w, r, http.StatusCreated, apiutil.ReservationView(created))
}

// GET /api/v1/reservations?court_id=&from=&to=
func HandleReservationsList(w http.ResponseWriter, r *http.Request) {
	svc := loadService()
	if svc == nil {
		notInitialized(w, r)
		return
	}

	courtID, err := apiutil.OptionalInt64Query(r, "court_id")
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

	ctx, cancel := context.WithTimeout(r.Context(), reservationQueryTimeout)
	defer cancel()

	rows, err := svc.ListByDateRange(ctx, courtID, from, to)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.Respond(w, r, http.StatusOK, map[string]any{
		"reservations": apiutil.Views(rows, apiutil.ReservationView),
	})
}

// GET /api/v1/reservations/{id}
func HandleReservationGet(w http.ResponseWriter, r *http.Request) {
	svc := loadService()
	if svc == nil {
		notInitialized(w, r)
		return
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), reservationQueryTimeout)
	defer cancel()

	reservation, err := svc.Get(ctx, id)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.Respond(w, r, http.StatusOK, apiutil.ReservationView(reservation))
}

// PATCH /api/v1/reservations/{id}
func HandleReservationUpdate(w http.ResponseWriter, r *http.Request) {
	svc := loadService()
	if svc == nil {
		notInitialized(w, r)
		return
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	var patch booking.Patch
	if err := apiutil.DecodeJSON(r, &patch); err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest("invalid request body", err))
		return
	}
	// An If-Match header stands in for expected_version.
	if patch.ExpectedVersion == nil {
		if raw := strings.Trim(strings.TrimSpace(r.Header.Get("If-Match")), `"`); raw != "" {
			version, err := apiutil.ParsePositiveInt64Field(raw, "If-Match")
			if err != nil {
				apiutil.WriteError(w, r, apiutil.BadRequest(err.Error(), err))
				return
			}
			patch.ExpectedVersion = &version
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), reservationQueryTimeout)
	defer cancel()

	updated, err := svc.Update(ctx, id, patch)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.Respond(w, r, http.StatusOK, apiutil.ReservationView(updated))
}

// DELETE /api/v1/reservations/{id}
func HandleReservationDelete(w http.ResponseWriter, r *http.Request) {
	svc := loadService()
	if svc == nil {
		notInitialized(w, r)
		return
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), reservationQueryTimeout)
	defer cancel()

	if err := svc.Delete(ctx, id); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type gridCell struct {
	Start       string               `json:"start"`
	Reservation *apiutil.Reservation `json:"reservation"`
}

type gridRow struct {
	Court apiutil.Court `json:"court"`
	Cells []gridCell    `json:"cells"`
}

type gridResponse struct {
	Date        string    `json:"date"`
	SlotMinutes int       `json:"slot_minutes"`
	Rows        []gridRow `json:"rows"`
}

// GET /api/v1/schedule?date=&court_id=
func HandleScheduleGrid(w http.ResponseWriter, r *http.Request) {
	svc := loadService()
	if svc == nil {
		notInitialized(w, r)
		return
	}
	courtIDs, err := apiutil.Int64ListQuery(r, "court_id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		date = time.Now().Format(time.DateOnly)
	}

	ctx, cancel := context.WithTimeout(r.Context(), reservationQueryTimeout)
	defer cancel()

	grid, err := svc.ScheduleGrid(ctx, courtIDs, date)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	resp := gridResponse{Date: grid.Date, SlotMinutes: grid.SlotMinutes, Rows: make([]gridRow, 0, len(grid.Rows))}
	for _, row := range grid.Rows {
		out := gridRow{Court: apiutil.CourtView(row.Court), Cells: make([]gridCell, 0, len(row.Cells))}
		for _, cell := range row.Cells {
			c := gridCell{Start: cell.Start}
			if cell.Reservation != nil {
				view := apiutil.ReservationView(*cell.Reservation)
				c.Reservation = &view
			}
			out.Cells = append(out.Cells, c)
		}
		resp.Rows = append(resp.Rows, out)
	}
	apiutil.Respond(w, r, http.StatusOK, resp)
}

// stampActor records who made the booking when the request carries a
// resolved actor; otherwise the body's provenance fields stand.
func stampActor(r *http.Request, in *booking.Input) {
	actor := authz.ActorFromContext(r.Context())
	if actor == nil {
		return
	}
	in.CreatedByRole = actor.Role
	in.CreatedByName = actor.Name
}

func notInitialized(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Error().Msg("Reservation service not initialized")
	apiutil.Respond(w, r, http.StatusInternalServerError, apiutil.ErrorBody{Error: "Internal Server Error"})
}
