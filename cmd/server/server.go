// cmd/server/server.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/codr1/courtdesk/internal/api"
	"github.com/codr1/courtdesk/internal/api/authz"
	"github.com/codr1/courtdesk/internal/api/clients"
	"github.com/codr1/courtdesk/internal/api/courts"
	"github.com/codr1/courtdesk/internal/api/dashboard"
	"github.com/codr1/courtdesk/internal/api/expenses"
	"github.com/codr1/courtdesk/internal/api/notifications"
	reservationsapi "github.com/codr1/courtdesk/internal/api/reservations"
	"github.com/codr1/courtdesk/internal/catalog"
	"github.com/codr1/courtdesk/internal/config"
	"github.com/codr1/courtdesk/internal/db"
	"github.com/codr1/courtdesk/internal/feed"
	"github.com/codr1/courtdesk/internal/ledger"
	"github.com/codr1/courtdesk/internal/metrics"
	"github.com/codr1/courtdesk/internal/ratelimit"
	"github.com/codr1/courtdesk/internal/reports"
	"github.com/codr1/courtdesk/internal/reservations"
	"github.com/codr1/courtdesk/internal/scheduler"
)

// application owns the long-lived resources behind the HTTP server.
type application struct {
	cfg     *config.Config
	db      *db.DB
	hub     *feed.Hub
	relay   *feed.RedisRelay
	limiter *ratelimit.Limiter
}

func newApplication(ctx context.Context, cfg *config.Config) (_ *application, err error) {
	database, err := db.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	app := &application{cfg: cfg, db: database, hub: feed.NewHub(cfg.Feed.BufferSize)}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	if cfg.Redis.Enabled {
		app.relay, err = feed.NewRedisRelay(cfg.Redis, app.hub)
		if err != nil {
			return nil, err
		}
		app.relay.Start(ctx)
	}

	reconciler := ledger.NewReconciler()
	bookings, err := reservations.NewService(database, reconciler, app.hub, cfg.Schedule.SlotMinutes)
	if err != nil {
		return nil, err
	}
	catalogService, err := catalog.NewService(database, app.hub, cfg.Clients.PhoneRegion)
	if err != nil {
		return nil, err
	}
	engine, err := reports.NewEngine(database, cfg.Reports.MaxWindowDays)
	if err != nil {
		return nil, err
	}
	auditor, err := ledger.NewAuditor(database, reconciler, app.hub)
	if err != nil {
		return nil, err
	}

	reservationsapi.InitHandlers(bookings)
	courts.InitHandlers(catalogService)
	clients.InitHandlers(catalogService)
	expenses.InitHandlers(catalogService)
	dashboard.InitHandlers(engine, feed.NewAdapter(app.hub))
	notifications.InitHandlers(app.hub)

	if cfg.RateLimit.Enabled {
		app.limiter = ratelimit.New(&ratelimit.Config{
			PerMinute: cfg.RateLimit.WritesPerMinute,
			Burst:     cfg.RateLimit.Burst,
		})
	}

	if cfg.Features.EnableMetrics {
		metrics.Register()
		metrics.RegisterFeed(app.hub.Len, app.hub.Dropped)
	}

	if err := scheduler.Init(); err != nil {
		return nil, fmt.Errorf("init scheduler: %w", err)
	}
	job, err := scheduler.NewLedgerAuditJob(auditor, cfg.Ledger.AuditLookbackDays, cfg.Ledger.RepairOnAudit)
	if err != nil {
		return nil, err
	}
	if err := scheduler.RegisterLedgerAudit(cfg.Ledger.AuditCron, job); err != nil {
		return nil, fmt.Errorf("register ledger audit: %w", err)
	}
	if err := scheduler.Start(); err != nil {
		return nil, err
	}

	log.Info().
		Int("slot_minutes", cfg.Schedule.SlotMinutes).
		Bool("redis_relay", app.relay != nil).
		Bool("metrics", cfg.Features.EnableMetrics).
		Bool("rate_limit", app.limiter != nil).
		Msg("Application initialized")
	return app, nil
}

// Close stops background work and releases the database.
func (a *application) Close() error {
	var errs []error
	if err := scheduler.Stop(); err != nil && !errors.Is(err, scheduler.ErrNotInitialized) {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}
	if a.relay != nil {
		if err := a.relay.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop feed relay: %w", err))
		}
	}
	if a.limiter != nil {
		a.limiter.Close()
	}
	a.hub.Close()
	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	return errors.Join(errs...)
}

func newServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:        ":" + strconv.Itoa(cfg.App.Port),
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// Event streams clear their own write deadline.
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func (a *application) routes() http.Handler {
	router := http.NewServeMux()
	registerRoutes(router, a.cfg)

	var handler http.Handler = router
	if a.limiter != nil {
		handler = api.WithRateLimit(a.limiter, a.cfg.RateLimit.TrustProxy)(handler)
	}

	// Setup middleware chain
	return api.ChainMiddleware(
		handler,
		api.WithActor(authz.HeaderResolver{}),
		api.WithLogging,
		api.WithRecovery,
		api.WithRequestID,
		api.WithContentType,
	)
}

func registerRoutes(mux *http.ServeMux, cfg *config.Config) {
	staff := api.RequireRole()
	managers := api.RequireRole(authz.RoleManager, authz.RoleAdmin)
	handle := func(pattern string, gate api.Middleware, h http.HandlerFunc) {
		mux.Handle(pattern, gate(h))
	}

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	if cfg.Features.EnableMetrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	// Reservation routes
	handle("GET /api/v1/reservations", staff, reservationsapi.HandleReservationsList)
	handle("POST /api/v1/reservations", staff, reservationsapi.HandleReservationCreate)
	handle("GET /api/v1/reservations/{id}", staff, reservationsapi.HandleReservationGet)
	handle("PATCH /api/v1/reservations/{id}", staff, reservationsapi.HandleReservationUpdate)
	handle("DELETE /api/v1/reservations/{id}", staff, reservationsapi.HandleReservationDelete)
	handle("GET /api/v1/schedule", staff, reservationsapi.HandleScheduleGrid)

	// Report routes
	handle("GET /api/v1/reports/summary", managers, dashboard.HandleSummary)
	handle("GET /api/v1/reports/summary/stream", managers, dashboard.HandleSummaryStream)
	handle("GET /api/v1/reports/day", managers, dashboard.HandleDaySummary)

	// Court routes
	handle("GET /api/v1/courts", staff, courts.HandleCourtsList)
	handle("POST /api/v1/courts", managers, courts.HandleCourtCreate)
	handle("GET /api/v1/courts/{id}", staff, courts.HandleCourtGet)
	handle("PATCH /api/v1/courts/{id}", managers, courts.HandleCourtUpdate)
	handle("DELETE /api/v1/courts/{id}", managers, courts.HandleCourtDelete)
	handle("GET /api/v1/court-groups", staff, courts.HandleGroupsList)
	handle("POST /api/v1/court-groups", managers, courts.HandleGroupCreate)

	// Client routes
	handle("GET /api/v1/clients", staff, clients.HandleClientsList)
	handle("POST /api/v1/clients", staff, clients.HandleClientCreate)
	handle("GET /api/v1/clients/{id}", staff, clients.HandleClientGet)
	handle("PATCH /api/v1/clients/{id}", staff, clients.HandleClientUpdate)
	handle("DELETE /api/v1/clients/{id}", staff, clients.HandleClientDelete)

	// Expense and ledger routes
	handle("GET /api/v1/expenses", managers, expenses.HandleExpensesList)
	handle("POST /api/v1/expenses", managers, expenses.HandleExpenseCreate)
	handle("PATCH /api/v1/expenses/{id}", managers, expenses.HandleExpenseUpdate)
	handle("DELETE /api/v1/expenses/{id}", managers, expenses.HandleExpenseDelete)
	handle("GET /api/v1/expense-categories", managers, expenses.HandleCategoriesList)
	handle("POST /api/v1/expense-categories", managers, expenses.HandleCategoryCreate)
	handle("POST /api/v1/ledger/entries", managers, expenses.HandleManualEntryCreate)

	// Change feed
	handle("GET /api/v1/feed", staff, notifications.HandleFeedStream)
}
