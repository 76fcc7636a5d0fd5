// Package feed delivers store-level change notifications to in-process
// subscribers. Subscriptions are scoped resources: whoever subscribes must
// Close the subscription when the view it serves goes away.
package feed

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Op is the kind of change a notification describes.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Mask selects which ops a subscription receives.
type Mask uint8

const (
	MaskInsert Mask = 1 << iota
	MaskUpdate
	MaskDelete

	MaskAll = MaskInsert | MaskUpdate | MaskDelete
)

func (m Mask) includes(op Op) bool {
	switch op {
	case OpInsert:
		return m&MaskInsert != 0
	case OpUpdate:
		return m&MaskUpdate != 0
	case OpDelete:
		return m&MaskDelete != 0
	default:
		return false
	}
}

// ParseMask reads a comma separated op list; empty means all ops.
func ParseMask(raw string) Mask {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return MaskAll
	}
	var m Mask
	for _, part := range strings.Split(raw, ",") {
		switch Op(strings.ToLower(strings.TrimSpace(part))) {
		case OpInsert:
			m |= MaskInsert
		case OpUpdate:
			m |= MaskUpdate
		case OpDelete:
			m |= MaskDelete
		}
	}
	if m == 0 {
		return MaskAll
	}
	return m
}

// Notification describes one committed change.
type Notification struct {
	ID         string          `json:"id"`
	Collection string          `json:"collection"`
	Op         Op              `json:"op"`
	RowID      int64           `json:"row_id"`
	Row        json.RawMessage `json:"row,omitempty"`
	At         time.Time       `json:"at"`
	Origin     string          `json:"origin,omitempty"`
}

// NewNotification stamps a notification for row. A row that cannot be
// encoded is carried without a body.
func NewNotification(collection string, op Op, rowID int64, row any) Notification {
	n := Notification{
		ID:         uuid.NewString(),
		Collection: collection,
		Op:         op,
		RowID:      rowID,
		At:         time.Now().UTC(),
	}
	if row != nil {
		if payload, err := json.Marshal(row); err == nil {
			n.Row = payload
		} else {
			log.Warn().Err(err).Str("collection", collection).Int64("row_id", rowID).Msg("Failed to encode feed row")
		}
	}
	return n
}

// Publisher is what writers depend on.
type Publisher interface {
	Publish(ctx context.Context, notes ...Notification)
}

// Hub fans notifications out to subscribers.
type Hub struct {
	bufferSize int

	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool

	hooks   []func(Notification)
	dropped atomic.Int64
}

// NewHub creates a hub whose subscriptions buffer bufferSize notifications.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Hub{
		bufferSize: bufferSize,
		subs:       make(map[string]*Subscription),
	}
}

// OnPublish registers fn to observe every locally published notification.
// It must be called before the hub is shared.
func (h *Hub) OnPublish(fn func(Notification)) {
	h.hooks = append(h.hooks, fn)
}

// Publish delivers notes to every matching subscription without blocking.
// A subscriber whose buffer is full misses the notification.
func (h *Hub) Publish(ctx context.Context, notes ...Notification) {
	h.deliver(ctx, notes)
	for _, n := range notes {
		if n.Origin != "" {
			continue
		}
		for _, hook := range h.hooks {
			hook(n)
		}
	}
}

// deliver fans out without running publish hooks.
func (h *Hub) deliver(ctx context.Context, notes []Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	logger := log.Ctx(ctx)
	for _, n := range notes {
		for _, sub := range h.subs {
			if !sub.matches(n) {
				continue
			}
			select {
			case sub.ch <- n:
			default:
				h.dropped.Add(1)
				sub.dropped.Add(1)
				logger.Warn().
					Str("subscription_id", sub.id).
					Str("collection", n.Collection).
					Msg("Feed subscriber buffer full; notification dropped")
			}
		}
	}
}

// Subscribe registers interest in the given collections (all when empty)
// for the ops in mask.
func (h *Hub) Subscribe(mask Mask, collections ...string) *Subscription {
	if mask == 0 {
		mask = MaskAll
	}
	sub := &Subscription{
		id:   uuid.NewString(),
		hub:  h,
		mask: mask,
		ch:   make(chan Notification, h.bufferSize),
	}
	if len(collections) > 0 {
		sub.collections = make(map[string]struct{}, len(collections))
		for _, c := range collections {
			sub.collections[c] = struct{}{}
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		sub.done = true
		return sub
	}
	h.subs[sub.id] = sub
	log.Debug().Str("subscription_id", sub.id).Strs("collections", collections).Msg("Feed subscription opened")
	return sub
}

// Len reports the number of open subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped reports how many deliveries were skipped because of full buffers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		sub.done = true
		close(sub.ch)
		delete(h.subs, id)
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub.done {
		return
	}
	sub.done = true
	delete(h.subs, sub.id)
	close(sub.ch)
	log.Debug().Str("subscription_id", sub.id).Msg("Feed subscription closed")
}

// Subscription is one subscriber's view of the hub. done is guarded by the
// hub's mutex.
type Subscription struct {
	id          string
	hub         *Hub
	mask        Mask
	collections map[string]struct{}
	ch          chan Notification
	done        bool
	dropped     atomic.Int64
}

// ID identifies the subscription in logs.
func (s *Subscription) ID() string { return s.id }

// C delivers notifications until the subscription is closed.
func (s *Subscription) C() <-chan Notification { return s.ch }

// Dropped counts notifications this subscriber missed.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

func (s *Subscription) matches(n Notification) bool {
	if !s.mask.includes(n.Op) {
		return false
	}
	if s.collections == nil {
		return true
	}
	_, ok := s.collections[n.Collection]
	return ok
}
