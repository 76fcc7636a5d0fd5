package ledger

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtdesk/internal/apperr"
	"github.com/codr1/courtdesk/internal/db"
	"github.com/codr1/courtdesk/internal/feed"
	"github.com/codr1/courtdesk/internal/metrics"
)

// Drift is a reservation whose stored rows disagree with its split.
type Drift struct {
	ReservationID int64  `json:"reservation_id"`
	Date          string `json:"date"`
	Expected      string `json:"expected"`
	Rows          int    `json:"rows"`
}

// Auditor compares stored ledger rows with their reservations and repairs
// drift.
type Auditor struct {
	db         *db.DB
	reconciler *Reconciler
	publisher  feed.Publisher
}

func NewAuditor(database *db.DB, reconciler *Reconciler, publisher feed.Publisher) (*Auditor, error) {
	if database == nil {
		return nil, errors.New("ledger auditor requires a database")
	}
	if reconciler == nil {
		reconciler = NewReconciler()
	}
	return &Auditor{db: database, reconciler: reconciler, publisher: publisher}, nil
}

// Audit checks every reservation dated in [from,to] plus any reservation that
// owns a row dated in the window.
func (a *Auditor) Audit(ctx context.Context, from, to string) ([]Drift, error) {
	q := a.db.Queries
	reservations, err := q.ListReservationsByDateRange(ctx, db.ListReservationsByDateRangeParams{From: from, To: to})
	if err != nil {
		return nil, apperr.Store("list reservations", err)
	}
	rows, err := q.ListTransactionsByDateRange(ctx, from, to)
	if err != nil {
		return nil, apperr.Store("list ledger rows", err)
	}

	known := make(map[int64]db.Reservation, len(reservations))
	for _, r := range reservations {
		known[r.ID] = r
	}
	// Rows dated in the window whose reservation moved to another date.
	for _, row := range rows {
		if !row.ReservationID.Valid {
			continue
		}
		id := row.ReservationID.Int64
		if _, ok := known[id]; ok {
			continue
		}
		r, err := q.GetReservation(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, apperr.Store("get reservation", err)
		}
		known[id] = r
	}

	var drift []Drift
	for id, r := range known {
		owned, err := q.ListTransactionsByReservation(ctx, id)
		if err != nil {
			return nil, apperr.Store("list ledger rows", err)
		}
		split := SplitOf(r)
		if Matches(split, r.Date, owned) {
			continue
		}
		drift = append(drift, Drift{
			ReservationID: id,
			Date:          r.Date,
			Expected:      describe(split),
			Rows:          len(owned),
		})
	}

	sort.Slice(drift, func(i, j int) bool { return drift[i].ReservationID < drift[j].ReservationID })
	metrics.AddLedgerDrift(len(drift))
	return drift, nil
}

// Repair re-runs Sync for each reservation, one transaction per reservation.
// The replaced rows are published as deletes ahead of their inserts.
func (a *Auditor) Repair(ctx context.Context, reservationIDs []int64) (int, error) {
	logger := log.Ctx(ctx).With().Str("component", "ledger_audit").Logger()
	repaired := 0
	for _, id := range reservationIDs {
		var removed, rows []db.Transaction
		err := a.db.RunInTx(ctx, func(tx *db.DB) error {
			r, err := tx.Queries.GetReservation(ctx, id)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return apperr.NotFound("reservation", id)
				}
				return apperr.Store("get reservation", err)
			}
			removed, err = tx.Queries.ListTransactionsByReservation(ctx, id)
			if err != nil {
				return apperr.Store("list ledger rows", err)
			}
			rows, err = a.reconciler.Sync(ctx, tx.Queries, r)
			return err
		})
		if err != nil {
			logger.Error().Err(err).Int64("reservation_id", id).Msg("Failed to repair ledger rows")
			return repaired, err
		}
		repaired++
		if a.publisher != nil {
			notes := make([]feed.Notification, 0, len(removed)+len(rows))
			for _, row := range removed {
				notes = append(notes, feed.NewNotification(db.CollectionTransactions, feed.OpDelete, row.ID, row))
			}
			for _, row := range rows {
				notes = append(notes, feed.NewNotification(db.CollectionTransactions, feed.OpInsert, row.ID, row))
			}
			a.publisher.Publish(ctx, notes...)
		}
	}
	return repaired, nil
}
