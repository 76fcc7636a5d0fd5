// Package reservations owns reservation writes: validation, the per court
// and date overlap rule, optimistic versioning and ledger reconciliation in
// the same unit of work.
package reservations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/codr1/courtdesk/internal/apperr"
	"github.com/codr1/courtdesk/internal/db"
	"github.com/codr1/courtdesk/internal/feed"
	"github.com/codr1/courtdesk/internal/ledger"
	"github.com/codr1/courtdesk/internal/metrics"
	"github.com/codr1/courtdesk/internal/timeslot"
)

const dateLayout = "2006-01-02"

// Roles allowed to create reservations.
const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleEmployee = "employee"
)

// Input is a new reservation.
type Input struct {
	CourtID       int64             `json:"court_id" validate:"required,gt=0"`
	ClientID      int64             `json:"client_id" validate:"required,gt=0"`
	Date          string            `json:"date" validate:"required,datetime=2006-01-02"`
	Start         *timeslot.Minutes `json:"start" validate:"required,gte=0,lte=1440"`
	End           *timeslot.Minutes `json:"end" validate:"required,gt=0,lte=1440"`
	Cash          decimal.Decimal   `json:"cash"`
	Card          decimal.Decimal   `json:"card"`
	Wallet        decimal.Decimal   `json:"wallet"`
	CreatedByRole string            `json:"created_by_role" validate:"required,oneof=admin manager employee"`
	CreatedByName string            `json:"created_by_name" validate:"max=120"`
	// AllowOverlap books the slot even when it clashes with another
	// reservation on the same court and date.
	AllowOverlap bool `json:"allow_overlap"`
}

// Patch changes the fields that are set. ExpectedVersion, when set, must
// equal the stored version.
type Patch struct {
	ExpectedVersion *int64            `json:"expected_version" validate:"omitempty,gt=0"`
	CourtID         *int64            `json:"court_id" validate:"omitempty,gt=0"`
	ClientID        *int64            `json:"client_id" validate:"omitempty,gt=0"`
	Date            *string           `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Start           *timeslot.Minutes `json:"start" validate:"omitempty,gte=0,lte=1440"`
	End             *timeslot.Minutes `json:"end" validate:"omitempty,gt=0,lte=1440"`
	Cash            *decimal.Decimal  `json:"cash"`
	Card            *decimal.Decimal  `json:"card"`
	Wallet          *decimal.Decimal  `json:"wallet"`
	AllowOverlap    bool              `json:"allow_overlap"`
}

// Service is the reservation repository.
type Service struct {
	db          *db.DB
	reconciler  *ledger.Reconciler
	publisher   feed.Publisher
	locks       *slotLocks
	granularity int
}

// NewService builds the repository. A nil publisher disables change
// notifications; a non-positive granularity uses the default slot length.
func NewService(database *db.DB, reconciler *ledger.Reconciler, publisher feed.Publisher, granularity int) (*Service, error) {
	if database == nil {
		return nil, errors.New("reservations service requires a database")
	}
	if reconciler == nil {
		reconciler = ledger.NewReconciler()
	}
	if granularity <= 0 {
		granularity = timeslot.DefaultGranularity
	}
	return &Service{
		db:          database,
		reconciler:  reconciler,
		publisher:   publisher,
		locks:       newSlotLocks(),
		granularity: granularity,
	}, nil
}

// Granularity is the slot length used by ScheduleGrid.
func (s *Service) Granularity() int { return s.granularity }

// Create validates and stores a reservation and its ledger rows.
func (s *Service) Create(ctx context.Context, in Input) (db.Reservation, error) {
	logger := log.Ctx(ctx).With().Str("component", "reservations").Logger()

	if err := validateInput(in); err != nil {
		metrics.IncReservationWrite("create", outcome(err))
		return db.Reservation{}, err
	}

	unlock := s.locks.lock(slotKey(in.CourtID, in.Date))
	defer unlock()

	var (
		created db.Reservation
		rows    []db.Transaction
	)
	err := s.db.RunInTx(ctx, func(tx *db.DB) error {
		if err := checkReferences(ctx, tx.Queries, in.CourtID, in.ClientID); err != nil {
			return err
		}
		if !in.AllowOverlap {
			if err := checkOverlap(ctx, tx.Queries, 0, in.CourtID, in.Date, *in.Start, *in.End); err != nil {
				return err
			}
		}

		var err error
		created, err = tx.Queries.CreateReservation(ctx, db.CreateReservationParams{
			CourtID:       in.CourtID,
			ClientID:      in.ClientID,
			Date:          in.Date,
			StartMinutes:  int64(*in.Start),
			EndMinutes:    int64(*in.End),
			Cash:          in.Cash,
			Card:          in.Card,
			Wallet:        in.Wallet,
			CreatedByRole: in.CreatedByRole,
			CreatedByName: sql.NullString{String: in.CreatedByName, Valid: in.CreatedByName != ""},
		})
		if err != nil {
			return apperr.Store("insert reservation", err)
		}

		rows, err = s.reconciler.Sync(ctx, tx.Queries, created)
		return err
	})
	metrics.IncReservationWrite("create", outcome(err))
	if err != nil {
		if !isClientError(err) {
			logger.Error().Err(err).Int64("court_id", in.CourtID).Str("date", in.Date).Msg("Failed to create reservation")
		}
		return db.Reservation{}, err
	}

	logger.Info().
		Int64("reservation_id", created.ID).
		Int64("court_id", created.CourtID).
		Str("date", created.Date).
		Msg("Reservation created")

	notes := []feed.Notification{feed.NewNotification(db.CollectionReservations, feed.OpInsert, created.ID, created)}
	notes = append(notes, transactionNotes(feed.OpInsert, rows)...)
	s.publish(ctx, notes)
	return created, nil
}

// Update applies patch to the reservation and rewrites its ledger rows.
func (s *Service) Update(ctx context.Context, id int64, patch Patch) (db.Reservation, error) {
	logger := log.Ctx(ctx).With().Str("component", "reservations").Int64("reservation_id", id).Logger()

	if err := apperr.ValidateStruct(patch); err != nil {
		metrics.IncReservationWrite("update", outcome(err))
		return db.Reservation{}, err
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		metrics.IncReservationWrite("update", outcome(err))
		return db.Reservation{}, err
	}
	target := patch.Apply(current)
	key := slotKey(target.CourtID, target.Date)

	unlock := s.locks.lock(key)
	defer unlock()

	var (
		updated      db.Reservation
		removedRows  []db.Transaction
		insertedRows []db.Transaction
	)
	err = s.db.RunInTx(ctx, func(tx *db.DB) error {
		stored, err := tx.Queries.GetReservation(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("reservation", id)
			}
			return apperr.Store("get reservation", err)
		}
		if patch.ExpectedVersion != nil && *patch.ExpectedVersion != stored.Version {
			return &apperr.ConflictError{
				Reason: fmt.Sprintf("reservation was modified (version %d, expected %d)", stored.Version, *patch.ExpectedVersion),
				IDs:    []int64{id},
			}
		}

		next := patch.Apply(stored)
		if slotKey(next.CourtID, next.Date) != key {
			return &apperr.ConflictError{Reason: "reservation was moved concurrently", IDs: []int64{id}}
		}
		if err := validateReservation(next); err != nil {
			return err
		}
		if err := checkReferences(ctx, tx.Queries, next.CourtID, next.ClientID); err != nil {
			return err
		}
		if !patch.AllowOverlap {
			if err := checkOverlap(ctx, tx.Queries, id, next.CourtID, next.Date,
				timeslot.Minutes(next.StartMinutes), timeslot.Minutes(next.EndMinutes)); err != nil {
				return err
			}
		}

		removedRows, err = tx.Queries.ListTransactionsByReservation(ctx, id)
		if err != nil {
			return apperr.Store("list ledger rows", err)
		}

		updated, err = tx.Queries.UpdateReservation(ctx, db.UpdateReservationParams{
			ID:              id,
			ExpectedVersion: stored.Version,
			CourtID:         next.CourtID,
			ClientID:        next.ClientID,
			Date:            next.Date,
			StartMinutes:    next.StartMinutes,
			EndMinutes:      next.EndMinutes,
			Cash:            next.Cash,
			Card:            next.Card,
			Wallet:          next.Wallet,
		})
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &apperr.ConflictError{Reason: "reservation was modified concurrently", IDs: []int64{id}}
			}
			return apperr.Store("update reservation", err)
		}

		insertedRows, err = s.reconciler.Sync(ctx, tx.Queries, updated)
		return err
	})
	metrics.IncReservationWrite("update", outcome(err))
	if err != nil {
		if !isClientError(err) {
			logger.Error().Err(err).Msg("Failed to update reservation")
		}
		return db.Reservation{}, err
	}

	logger.Info().Int64("version", updated.Version).Msg("Reservation updated")

	notes := []feed.Notification{feed.NewNotification(db.CollectionReservations, feed.OpUpdate, updated.ID, updated)}
	notes = append(notes, transactionNotes(feed.OpDelete, removedRows)...)
	notes = append(notes, transactionNotes(feed.OpInsert, insertedRows)...)
	s.publish(ctx, notes)
	return updated, nil
}

// Delete removes the reservation's ledger rows and then the reservation.
func (s *Service) Delete(ctx context.Context, id int64) error {
	logger := log.Ctx(ctx).With().Str("component", "reservations").Int64("reservation_id", id).Logger()

	current, err := s.Get(ctx, id)
	if err != nil {
		metrics.IncReservationWrite("delete", outcome(err))
		return err
	}

	unlock := s.locks.lock(slotKey(current.CourtID, current.Date))
	defer unlock()

	var removed []db.Transaction
	err = s.db.RunInTx(ctx, func(tx *db.DB) error {
		var err error
		removed, err = s.reconciler.Purge(ctx, tx.Queries, id)
		if err != nil {
			return err
		}
		n, err := tx.Queries.DeleteReservation(ctx, id)
		if err != nil {
			return apperr.Store("delete reservation", err)
		}
		if n == 0 {
			return apperr.NotFound("reservation", id)
		}
		return nil
	})
	metrics.IncReservationWrite("delete", outcome(err))
	if err != nil {
		if !isClientError(err) {
			logger.Error().Err(err).Msg("Failed to delete reservation")
		}
		return err
	}

	logger.Info().Int("ledger_rows", len(removed)).Msg("Reservation deleted")

	notes := transactionNotes(feed.OpDelete, removed)
	notes = append(notes, feed.NewNotification(db.CollectionReservations, feed.OpDelete, id, current))
	s.publish(ctx, notes)
	return nil
}

// Get loads one reservation.
func (s *Service) Get(ctx context.Context, id int64) (db.Reservation, error) {
	r, err := s.db.Queries.GetReservation(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return db.Reservation{}, apperr.NotFound("reservation", id)
		}
		return db.Reservation{}, apperr.Store("get reservation", err)
	}
	return r, nil
}

// ListByDateRange returns reservations dated in [from,to], optionally on one
// court.
func (s *Service) ListByDateRange(ctx context.Context, courtID *int64, from, to string) ([]db.Reservation, error) {
	verr := &apperr.ValidationError{}
	fromDate, err := time.Parse(dateLayout, from)
	if err != nil {
		verr.Add("from", "must be a YYYY-MM-DD date")
	}
	toDate, err := time.Parse(dateLayout, to)
	if err != nil {
		verr.Add("to", "must be a YYYY-MM-DD date")
	}
	if len(verr.Fields) == 0 && toDate.Before(fromDate) {
		verr.Add("to", "must not be before from")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	params := db.ListReservationsByDateRangeParams{From: from, To: to}
	if courtID != nil {
		params.CourtID = sql.NullInt64{Int64: *courtID, Valid: true}
	}
	items, err := s.db.Queries.ListReservationsByDateRange(ctx, params)
	if err != nil {
		return nil, apperr.Store("list reservations", err)
	}
	return items, nil
}

func (s *Service) publish(ctx context.Context, notes []feed.Notification) {
	if s.publisher == nil || len(notes) == 0 {
		return
	}
	s.publisher.Publish(ctx, notes...)
}

func transactionNotes(op feed.Op, rows []db.Transaction) []feed.Notification {
	notes := make([]feed.Notification, 0, len(rows))
	for _, row := range rows {
		notes = append(notes, feed.NewNotification(db.CollectionTransactions, op, row.ID, row))
	}
	return notes
}

func validateInput(in Input) error {
	if err := apperr.ValidateStruct(in); err != nil {
		return err
	}
	// ValidateStruct has rejected a nil Start or End.
	return validateReservation(db.Reservation{
		Date:         in.Date,
		StartMinutes: int64(*in.Start),
		EndMinutes:   int64(*in.End),
		Cash:         in.Cash,
		Card:         in.Card,
		Wallet:       in.Wallet,
	})
}

// validateReservation checks the rules that span fields.
func validateReservation(r db.Reservation) error {
	verr := &apperr.ValidationError{}
	if _, err := time.Parse(dateLayout, r.Date); err != nil {
		verr.Add("date", "must be a YYYY-MM-DD date")
	}
	if !timeslot.Valid(timeslot.Minutes(r.StartMinutes), timeslot.Minutes(r.EndMinutes)) {
		verr.Add("end", "must be after start on the same day")
	}
	if r.Cash.IsNegative() {
		verr.Add("cash", "must not be negative")
	}
	if r.Card.IsNegative() {
		verr.Add("card", "must not be negative")
	}
	if r.Wallet.IsNegative() {
		verr.Add("wallet", "must not be negative")
	}
	return verr.OrNil()
}

// checkReferences requires the court and client to exist and be active.
func checkReferences(ctx context.Context, q *db.Queries, courtID, clientID int64) error {
	verr := &apperr.ValidationError{}

	court, err := q.GetCourt(ctx, courtID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		verr.Add("court_id", "does not exist")
	case err != nil:
		return apperr.Store("get court", err)
	case court.DeletedAt.Valid:
		verr.Add("court_id", "is inactive")
	}

	client, err := q.GetClient(ctx, clientID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		verr.Add("client_id", "does not exist")
	case err != nil:
		return apperr.Store("get client", err)
	case client.DeletedAt.Valid:
		verr.Add("client_id", "is inactive")
	}

	return verr.OrNil()
}

// checkOverlap rejects [start,end) when it intersects another reservation on
// the court and date. selfID is skipped so an update does not clash with
// itself.
func checkOverlap(ctx context.Context, q *db.Queries, selfID, courtID int64, date string, start, end timeslot.Minutes) error {
	existing, err := q.ListReservationsOnCourtDate(ctx, courtID, date)
	if err != nil {
		return apperr.Store("list reservations", err)
	}
	var clashes []int64
	for _, r := range existing {
		if r.ID == selfID {
			continue
		}
		if timeslot.Overlaps(start, end, timeslot.Minutes(r.StartMinutes), timeslot.Minutes(r.EndMinutes)) {
			clashes = append(clashes, r.ID)
		}
	}
	if len(clashes) > 0 {
		return &apperr.ConflictError{
			Reason: fmt.Sprintf("%s-%s overlaps an existing reservation", start, end),
			IDs:    clashes,
		}
	}
	return nil
}

// Apply returns r with the patch's set fields copied over.
func (p Patch) Apply(r db.Reservation) db.Reservation {
	if p.CourtID != nil {
		r.CourtID = *p.CourtID
	}
	if p.ClientID != nil {
		r.ClientID = *p.ClientID
	}
	if p.Date != nil {
		r.Date = *p.Date
	}
	if p.Start != nil {
		r.StartMinutes = int64(*p.Start)
	}
	if p.End != nil {
		r.EndMinutes = int64(*p.End)
	}
	if p.Cash != nil {
		r.Cash = *p.Cash
	}
	if p.Card != nil {
		r.Card = *p.Card
	}
	if p.Wallet != nil {
		r.Wallet = *p.Wallet
	}
	return r
}

func isClientError(err error) bool {
	var (
		ve *apperr.ValidationError
		ce *apperr.ConflictError
		ne *apperr.NotFoundError
	)
	return errors.As(err, &ve) || errors.As(err, &ce) || errors.As(err, &ne)
}

func outcome(err error) string {
	var (
		ve *apperr.ValidationError
		ce *apperr.ConflictError
		ne *apperr.NotFoundError
		pe *apperr.PartialReconciliationError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ve):
		return "invalid"
	case errors.As(err, &ce):
		return "conflict"
	case errors.As(err, &ne):
		return "not_found"
	case errors.As(err, &pe):
		return "partial"
	default:
		return "error"
	}
}
