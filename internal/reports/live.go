package reports

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtdesk/internal/db"
	"github.com/codr1/courtdesk/internal/feed"
	"github.com/codr1/courtdesk/internal/metrics"
)

// Result is one recomputation outcome. Generation increases with every
// requested refresh.
type Result struct {
	Generation uint64
	Summary    Summary
	Err        error
}

// liveCollections are the collections whose changes can move an aggregate.
var liveCollections = []string{
	db.CollectionTransactions,
	db.CollectionExpenses,
	db.CollectionCourts,
	db.CollectionCourtGroups,
}

// Live keeps a summary of one window current. Every change notification or
// window change starts a recomputation tagged with a new generation; a
// result is only published when its generation is still the latest, and the
// computation it superseded is cancelled.
type Live struct {
	compute  func(ctx context.Context, w Window, f Filters) (Summary, error)
	onResult func(Result)

	ctx    context.Context
	cancel context.CancelFunc
	watch  *feed.Watch
	wg     sync.WaitGroup

	// deliverMu orders the check-and-publish of results so an older result
	// can never be handed to onResult after a newer one.
	deliverMu sync.Mutex
	mu        sync.Mutex
	window    Window
	filters   Filters
	gen       uint64
	inflight  context.CancelFunc
	latest    Result
	hasLatest bool
	closed    bool
}

// NewLive validates the window, subscribes to the feed through adapter and
// starts the first computation. onResult runs for every current result and
// may be nil. Close releases the subscription.
func (e *Engine) NewLive(ctx context.Context, adapter *feed.Adapter, w Window, f Filters, onResult func(Result)) (*Live, error) {
	if err := e.Validate(w); err != nil {
		return nil, err
	}
	return newLive(ctx, adapter, e.Summary, w, f, onResult), nil
}

func newLive(ctx context.Context, adapter *feed.Adapter, compute func(context.Context, Window, Filters) (Summary, error), w Window, f Filters, onResult func(Result)) *Live {
	ctx, cancel := context.WithCancel(ctx)
	l := &Live{
		compute:  compute,
		onResult: onResult,
		ctx:      ctx,
		cancel:   cancel,
		window:   w,
		filters:  f,
	}
	if adapter != nil {
		l.watch = adapter.Watch(ctx, feed.HandlerFunc(func(context.Context, feed.Notification) error {
			l.Refresh()
			return nil
		}), feed.MaskAll, liveCollections...)
	}
	l.Refresh()
	return l
}

// SetWindow switches the window and filters and recomputes. Results still
// running for the previous window are discarded.
func (l *Live) SetWindow(w Window, f Filters) {
	l.mu.Lock()
	l.window = w
	l.filters = f
	l.mu.Unlock()
	l.Refresh()
}

// Refresh starts a recomputation and returns its generation.
func (l *Live) Refresh() uint64 {
	l.mu.Lock()
	if l.closed {
		gen := l.gen
		l.mu.Unlock()
		return gen
	}
	l.gen++
	gen := l.gen
	if l.inflight != nil {
		l.inflight()
	}
	runCtx, cancel := context.WithCancel(l.ctx)
	l.inflight = cancel
	w, f := l.window, l.filters
	l.wg.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()
		defer cancel()
		summary, err := l.compute(runCtx, w, f)
		l.finish(Result{Generation: gen, Summary: summary, Err: err})
	}()
	return gen
}

func (l *Live) finish(r Result) {
	l.deliverMu.Lock()
	defer l.deliverMu.Unlock()

	l.mu.Lock()
	if r.Generation != l.gen || l.closed {
		l.mu.Unlock()
		metrics.IncStaleAggregate()
		log.Ctx(l.ctx).Debug().Uint64("generation", r.Generation).Msg("Discarded stale aggregate")
		return
	}
	l.latest = r
	l.hasLatest = true
	onResult := l.onResult
	l.mu.Unlock()

	if r.Err != nil {
		log.Ctx(l.ctx).Error().Err(r.Err).Uint64("generation", r.Generation).Msg("Failed to refresh aggregate")
	}
	if onResult != nil {
		onResult(r)
	}
}

// Latest returns the most recent current result.
func (l *Live) Latest() (Result, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.latest, l.hasLatest
}

// Generation is the generation of the newest requested refresh.
func (l *Live) Generation() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen
}

// Close stops the feed watch and waits for running computations.
func (l *Live) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	l.cancel()
	if l.watch != nil {
		l.watch.Stop()
	}
	l.wg.Wait()
}
