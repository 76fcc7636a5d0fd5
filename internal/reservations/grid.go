package reservations

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/codr1/courtdesk/internal/apperr"
	"github.com/codr1/courtdesk/internal/db"
	"github.com/codr1/courtdesk/internal/timeslot"
)

// Cell is one court at one slot. Reservation is nil for a free slot.
type Cell struct {
	Slot        timeslot.Slot   `json:"-"`
	Start       string          `json:"start"`
	Reservation *db.Reservation `json:"reservation"`
}

// GridRow holds the cells of one court in slot order.
type GridRow struct {
	Court db.Court `json:"court"`
	Cells []Cell   `json:"cells"`
}

// Grid is the schedule of a single date.
type Grid struct {
	Date        string    `json:"date"`
	SlotMinutes int       `json:"slot_minutes"`
	Rows        []GridRow `json:"rows"`
}

// ScheduleGrid lays the reservations of date over the slots of the day for
// each requested court. An empty courtIDs selects every active court.
// Soft-deleted courts are left out.
func (s *Service) ScheduleGrid(ctx context.Context, courtIDs []int64, date string) (Grid, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return Grid{}, apperr.Invalid("date", "must be a YYYY-MM-DD date")
	}

	q := s.db.Queries
	var courts []db.Court
	if len(courtIDs) == 0 {
		active, err := q.ListCourts(ctx, false)
		if err != nil {
			return Grid{}, apperr.Store("list courts", err)
		}
		courts = active
	} else {
		for _, id := range courtIDs {
			court, err := q.GetCourt(ctx, id)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return Grid{}, apperr.Invalid("court_id", "does not exist")
				}
				return Grid{}, apperr.Store("get court", err)
			}
			if court.DeletedAt.Valid {
				continue
			}
			courts = append(courts, court)
		}
	}

	booked, err := q.ListReservationsByDateRange(ctx, db.ListReservationsByDateRangeParams{From: date, To: date})
	if err != nil {
		return Grid{}, apperr.Store("list reservations", err)
	}
	byCourt := make(map[int64][]db.Reservation)
	for _, r := range booked {
		byCourt[r.CourtID] = append(byCourt[r.CourtID], r)
	}

	grid := Grid{Date: date, SlotMinutes: s.granularity, Rows: make([]GridRow, 0, len(courts))}
	for _, court := range courts {
		row := GridRow{Court: court}
		onCourt := byCourt[court.ID]
		for slot := range timeslot.SlotsForDay(s.granularity) {
			cell := Cell{Slot: slot, Start: slot.String()}
			for i := range onCourt {
				r := &onCourt[i]
				if timeslot.Covers(slot.Start, timeslot.Minutes(r.StartMinutes), timeslot.Minutes(r.EndMinutes)) {
					cell.Reservation = r
					break
				}
			}
			row.Cells = append(row.Cells, cell)
		}
		grid.Rows = append(grid.Rows, row)
	}
	return grid, nil
}
