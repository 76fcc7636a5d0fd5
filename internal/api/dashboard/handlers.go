// Package dashboard serves the revenue and expense aggregates.
package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtdesk/internal/api/apiutil"
	"github.com/codr1/courtdesk/internal/apperr"
	"github.com/codr1/courtdesk/internal/feed"
	"github.com/codr1/courtdesk/internal/reports"
)

var (
	engine     *reports.Engine
	adapter    *feed.Adapter
	engineOnce sync.Once

	// now is swapped by tests.
	now = time.Now
)

const (
	dashboardQueryTimeout = 10 * time.Second
	streamPingInterval    = 25 * time.Second
)

// InitHandlers must be called during server startup before handling requests.
// A nil feed adapter disables the live summary stream.
func InitHandlers(e *reports.Engine, a *feed.Adapter) {
	if e == nil {
		return
	}
	engineOnce.Do(func() {
		engine = e
		adapter = a
	})
}

// GET /api/v1/reports/summary?date_range=&from=&to=&court_id=&group_id=&client_id=&category_id=
func HandleSummary(w http.ResponseWriter, r *http.Request) {
	if engine == nil {
		notInitialized(w, r)
		return
	}
	window, preset, err := parseDateRange(r, now())
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	filters, err := parseFilters(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), dashboardQueryTimeout)
	defer cancel()

	summary, err := engine.Summary(ctx, window, filters)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.Respond(w, r, http.StatusOK, summaryResponse{DateRange: preset, Summary: summary})
}

// GET /api/v1/reports/day?date=
func HandleDaySummary(w http.ResponseWriter, r *http.Request) {
	if engine == nil {
		notInitialized(w, r)
		return
	}
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		date = now().Format(time.DateOnly)
	}

	ctx, cancel := context.WithTimeout(r.Context(), dashboardQueryTimeout)
	defer cancel()

	day, err := engine.DaySummary(ctx, date)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.Respond(w, r, http.StatusOK, day)
}

// GET /api/v1/reports/summary/stream takes the same query as HandleSummary
// and pushes a fresh summary whenever the ledger or expenses change.
func HandleSummaryStream(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if engine == nil || adapter == nil {
		notInitialized(w, r)
		return
	}
	window, preset, err := parseDateRange(r, now())
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	filters, err := parseFilters(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if err := engine.Validate(window); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	stream, err := apiutil.NewEventStream(w)
	if err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusNotImplemented, Message: err.Error(), Err: err})
		return
	}

	// Only the newest pending result matters.
	results := make(chan reports.Result, 1)
	live, err := engine.NewLive(r.Context(), adapter, window, filters, func(res reports.Result) {
		select {
		case <-results:
		default:
		}
		select {
		case results <- res:
		default:
		}
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to start live summary")
		return
	}
	defer live.Close()

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := stream.Ping(); err != nil {
				return
			}
		case res := <-results:
			id := fmt.Sprint(res.Generation)
			if res.Err != nil {
				body := apiutil.ErrorBody{Error: "aggregate failed"}
				if apiutil.StatusFor(res.Err) < http.StatusInternalServerError {
					body.Error = res.Err.Error()
				}
				if err := stream.Send("error", id, body); err != nil {
					return
				}
				continue
			}
			if err := stream.Send("summary", id, summaryResponse{DateRange: preset, Generation: res.Generation, Summary: res.Summary}); err != nil {
				logger.Debug().Err(err).Msg("Summary stream closed")
				return
			}
		}
	}
}

type summaryResponse struct {
	DateRange  string `json:"date_range"`
	Generation uint64 `json:"generation,omitempty"`
	reports.Summary
}

// parseDateRange accepts a preset name, "YYYY-MM-DD to YYYY-MM-DD", or
// explicit from and to dates. Nothing at all means the last 30 days.
func parseDateRange(r *http.Request, current time.Time) (reports.Window, string, error) {
	query := r.URL.Query()
	rangeRaw := strings.TrimSpace(query.Get("date_range"))
	preset := strings.ToLower(rangeRaw)
	from := strings.TrimSpace(query.Get("from"))
	to := strings.TrimSpace(query.Get("to"))

	if rangeRaw != "" && strings.Contains(rangeRaw, " to ") {
		parts := strings.SplitN(rangeRaw, " to ", 2)
		from = strings.TrimSpace(parts[0])
		to = strings.TrimSpace(parts[1])
		preset = reports.PresetCustom
	}

	if preset != "" && preset != reports.PresetCustom {
		window, err := reports.Preset(preset, current)
		return window, preset, err
	}

	if from == "" && to == "" {
		if preset == reports.PresetCustom {
			return reports.Window{}, "", apperr.Invalid("from", "is required")
		}
		window, err := reports.Preset(reports.PresetLast30Days, current)
		return window, reports.PresetLast30Days, err
	}
	if to == "" {
		to = from
	}
	return reports.Window{From: from, To: to}, reports.PresetCustom, nil
}

func parseFilters(r *http.Request) (reports.Filters, error) {
	var (
		f   reports.Filters
		err error
	)
	if f.CourtID, err = apiutil.OptionalInt64Query(r, "court_id"); err != nil {
		return f, err
	}
	if f.GroupID, err = apiutil.OptionalInt64Query(r, "group_id"); err != nil {
		return f, err
	}
	if f.ClientID, err = apiutil.OptionalInt64Query(r, "client_id"); err != nil {
		return f, err
	}
	if f.CategoryID, err = apiutil.OptionalInt64Query(r, "category_id"); err != nil {
		return f, err
	}
	return f, nil
}

func notInitialized(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Error().Msg("Reports engine not initialized")
	apiutil.Respond(w, r, http.StatusInternalServerError, apiutil.ErrorBody{Error: "Internal Server Error"})
}
