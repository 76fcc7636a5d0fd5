// Package notifications streams change-feed notifications to browsers as
// Server-Sent Events.
package notifications

import (
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtdesk/internal/api/apiutil"
	"github.com/codr1/courtdesk/internal/apperr"
	"github.com/codr1/courtdesk/internal/db"
	"github.com/codr1/courtdesk/internal/feed"
)

var (
	hub     *feed.Hub
	hubOnce sync.Once

	pingInterval = 25 * time.Second
)

var knownCollections = []string{
	db.CollectionCourts,
	db.CollectionCourtGroups,
	db.CollectionClients,
	db.CollectionReservations,
	db.CollectionTransactions,
	db.CollectionExpenses,
}

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(h *feed.Hub) {
	if h == nil {
		return
	}
	hubOnce.Do(func() {
		hub = h
	})
}

// GET /api/v1/feed?collections=reservations,transactions&ops=insert,delete
func HandleFeedStream(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if hub == nil {
		logger.Error().Msg("Feed hub not initialized")
		apiutil.Respond(w, r, http.StatusInternalServerError, apiutil.ErrorBody{Error: "Internal Server Error"})
		return
	}

	collections := apiutil.StringListQuery(r, "collections")
	for _, c := range collections {
		if !slices.Contains(knownCollections, c) {
			apiutil.WriteError(w, r, apperr.Invalid("collections", "unknown collection "+c))
			return
		}
	}
	mask := feed.ParseMask(r.URL.Query().Get("ops"))

	stream, err := apiutil.NewEventStream(w)
	if err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusNotImplemented, Message: err.Error(), Err: err})
		return
	}

	sub := hub.Subscribe(mask, collections...)
	defer sub.Close()
	logger.Debug().Str("subscription_id", sub.ID()).Strs("collections", collections).Msg("Feed stream opened")

	if err := stream.Send("ready", "", map[string]any{"subscription_id": sub.ID(), "collections": collections}); err != nil {
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Debug().Str("subscription_id", sub.ID()).Int64("dropped", sub.Dropped()).Msg("Feed stream closed")
			return
		case <-ticker.C:
			if err := stream.Ping(); err != nil {
				return
			}
		case n, ok := <-sub.C():
			if !ok {
				return
			}
			if err := stream.Send(n.Collection, n.ID, n); err != nil {
				logger.Debug().Err(err).Msg("Feed stream write failed")
				return
			}
		}
	}
}
