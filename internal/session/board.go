// Package session holds per-view reservation state that is changed
// optimistically: edits show up at once and are undone if the write fails.
package session

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtdesk/internal/db"
	"github.com/codr1/courtdesk/internal/feed"
	"github.com/codr1/courtdesk/internal/reservations"
)

// Store is the slice of the reservation repository a board writes through.
type Store interface {
	ListByDateRange(ctx context.Context, courtID *int64, from, to string) ([]db.Reservation, error)
	Update(ctx context.Context, id int64, patch reservations.Patch) (db.Reservation, error)
	Delete(ctx context.Context, id int64) error
}

// Board is the reservations of one window as a view sees them.
type Board struct {
	store   Store
	courtID *int64
	from    string
	to      string

	mu    sync.RWMutex
	items map[int64]db.Reservation

	watch *feed.Watch
}

// NewBoard loads the window and, when adapter is non-nil, reloads it on
// every reservation change. Close releases the subscription.
func NewBoard(ctx context.Context, store Store, adapter *feed.Adapter, courtID *int64, from, to string) (*Board, error) {
	if store == nil {
		return nil, errors.New("session board requires a store")
	}
	b := &Board{
		store:   store,
		courtID: courtID,
		from:    from,
		to:      to,
		items:   make(map[int64]db.Reservation),
	}
	if err := b.Refresh(ctx); err != nil {
		return nil, err
	}
	if adapter != nil {
		b.watch = adapter.Watch(ctx, feed.HandlerFunc(func(ctx context.Context, _ feed.Notification) error {
			return b.Refresh(ctx)
		}), feed.MaskAll, db.CollectionReservations)
	}
	return b, nil
}

// Refresh replaces the board with the store's current rows.
func (b *Board) Refresh(ctx context.Context) error {
	rows, err := b.store.ListByDateRange(ctx, b.courtID, b.from, b.to)
	if err != nil {
		return err
	}
	items := make(map[int64]db.Reservation, len(rows))
	for _, r := range rows {
		items[r.ID] = r
	}
	b.mu.Lock()
	b.items = items
	b.mu.Unlock()
	return nil
}

// Items returns the board ordered by date, court and start.
func (b *Board) Items() []db.Reservation {
	b.mu.RLock()
	out := make([]db.Reservation, 0, len(b.items))
	for _, r := range b.items {
		out = append(out, r)
	}
	b.mu.RUnlock()

	slices.SortFunc(out, func(x, y db.Reservation) int {
		return cmp.Or(
			cmp.Compare(x.Date, y.Date),
			cmp.Compare(x.CourtID, y.CourtID),
			cmp.Compare(x.StartMinutes, y.StartMinutes),
			cmp.Compare(x.ID, y.ID),
		)
	})
	return out
}

// Get returns the board's copy of a reservation.
func (b *Board) Get(id int64) (db.Reservation, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.items[id]
	return r, ok
}

// Edit shows patch immediately, then writes it. On failure the entry is put
// back as it was and the error is returned; nothing is retried.
func (b *Board) Edit(ctx context.Context, id int64, patch reservations.Patch) (db.Reservation, error) {
	b.mu.Lock()
	before, had := b.items[id]
	if had {
		b.items[id] = patch.Apply(before)
	}
	b.mu.Unlock()

	saved, err := b.store.Update(ctx, id, patch)
	if err != nil {
		b.restore(ctx, id, before, had, err)
		return db.Reservation{}, err
	}

	b.mu.Lock()
	b.items[id] = saved
	b.mu.Unlock()
	return saved, nil
}

// Remove hides the reservation immediately, then deletes it. On failure the
// entry comes back.
func (b *Board) Remove(ctx context.Context, id int64) error {
	b.mu.Lock()
	before, had := b.items[id]
	delete(b.items, id)
	b.mu.Unlock()

	if err := b.store.Delete(ctx, id); err != nil {
		b.restore(ctx, id, before, had, err)
		return err
	}
	return nil
}

func (b *Board) restore(ctx context.Context, id int64, before db.Reservation, had bool, cause error) {
	b.mu.Lock()
	if had {
		b.items[id] = before
	} else {
		delete(b.items, id)
	}
	b.mu.Unlock()
	log.Ctx(ctx).Warn().Err(cause).Int64("reservation_id", id).Msg("Write failed; board rolled back")
}

// Close stops following the feed.
func (b *Board) Close() {
	if b.watch != nil {
		b.watch.Stop()
	}
}
