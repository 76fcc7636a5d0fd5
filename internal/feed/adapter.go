package feed

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Handler reacts to a notification.
type Handler interface {
	Handle(ctx context.Context, n Notification) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, n Notification) error

func (f HandlerFunc) Handle(ctx context.Context, n Notification) error { return f(ctx, n) }

// Adapter binds hub subscriptions to handlers, one goroutine per watch.
type Adapter struct {
	hub *Hub
}

func NewAdapter(hub *Hub) *Adapter {
	return &Adapter{hub: hub}
}

// Watch subscribes handler to the given collections until ctx ends or Stop
// is called. Handler errors and panics are logged and do not end the watch.
func (a *Adapter) Watch(ctx context.Context, handler Handler, mask Mask, collections ...string) *Watch {
	ctx, cancel := context.WithCancel(ctx)
	w := &Watch{
		sub:    a.hub.Subscribe(mask, collections...),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go w.run(ctx, handler)
	return w
}

// Watch is a running subscription-to-handler binding.
type Watch struct {
	sub      *Subscription
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

func (w *Watch) run(ctx context.Context, handler Handler) {
	defer close(w.done)
	defer w.sub.Close()

	logger := log.Ctx(ctx).With().Str("component", "feed_adapter").Str("subscription_id", w.sub.ID()).Logger()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-w.sub.C():
			if !ok {
				return
			}
			if err := dispatch(ctx, handler, n); err != nil {
				logger.Error().Err(err).
					Str("collection", n.Collection).
					Str("op", string(n.Op)).
					Int64("row_id", n.RowID).
					Msg("Feed handler failed")
			}
		}
	}
}

func dispatch(ctx context.Context, handler Handler, n Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Ctx(ctx).Error().
				Str("collection", n.Collection).
				Interface("panic", r).
				Msg("Feed handler panicked")
		}
	}()
	return handler.Handle(ctx, n)
}

// Stop releases the subscription and waits for the handler goroutine.
func (w *Watch) Stop() {
	w.stopOnce.Do(func() {
		w.cancel()
		<-w.done
	})
}

// Done is closed once the watch has ended.
func (w *Watch) Done() <-chan struct{} { return w.done }
