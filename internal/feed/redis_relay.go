package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/codr1/courtdesk/internal/config"
)

const relayOutboxSize = 256

// RedisRelay mirrors notifications between this process's hub and a Redis
// pub/sub channel shared by every server instance.
type RedisRelay struct {
	client  *redis.Client
	channel string
	origin  string
	hub     *Hub
	outbox  chan Notification

	wg       sync.WaitGroup
	stopOnce sync.Once
	cancel   context.CancelFunc
}

// NewRedisRelay connects to Redis and verifies the connection.
func NewRedisRelay(cfg config.RedisConfig, hub *Hub) (*RedisRelay, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisRelayWithClient(client, cfg.Channel, hub), nil
}

// NewRedisRelayWithClient builds a relay on an existing client and hooks it
// into hub. Call before the hub is shared with writers.
func NewRedisRelayWithClient(client *redis.Client, channel string, hub *Hub) *RedisRelay {
	r := &RedisRelay{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		hub:     hub,
		outbox:  make(chan Notification, relayOutboxSize),
	}
	hub.OnPublish(r.enqueue)
	return r
}

func (r *RedisRelay) enqueue(n Notification) {
	select {
	case r.outbox <- n:
	default:
		log.Warn().Str("collection", n.Collection).Msg("Feed relay outbox full; notification not forwarded")
	}
}

// Start begins forwarding in both directions until Stop or ctx ends.
func (r *RedisRelay) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	logger := log.With().Str("component", "feed_redis_relay").Str("channel", r.channel).Logger()
	ctx = logger.WithContext(ctx)

	pubsub := r.client.Subscribe(ctx, r.channel)

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-r.outbox:
				payload, err := encodeEnvelope(n, r.origin)
				if err != nil {
					logger.Error().Err(err).Msg("Failed to encode relayed notification")
					continue
				}
				if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
					logger.Error().Err(err).Str("collection", n.Collection).Msg("Failed to publish notification to Redis")
				}
			}
		}
	}()
	go func() {
		defer r.wg.Done()
		defer pubsub.Close()
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				n, remote, err := decodeEnvelope([]byte(msg.Payload), r.origin)
				if err != nil {
					logger.Warn().Err(err).Msg("Ignoring malformed relayed notification")
					continue
				}
				if !remote {
					continue
				}
				r.hub.Publish(ctx, n)
			}
		}
	}()
	logger.Info().Msg("Feed relay started")
}

// Stop halts forwarding and closes the Redis client.
func (r *RedisRelay) Stop() error {
	var err error
	r.stopOnce.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
		r.wg.Wait()
		err = r.client.Close()
	})
	return err
}

func encodeEnvelope(n Notification, origin string) ([]byte, error) {
	n.Origin = origin
	return json.Marshal(n)
}

// decodeEnvelope reports remote=false for notifications this process sent.
func decodeEnvelope(payload []byte, self string) (Notification, bool, error) {
	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return Notification{}, false, err
	}
	if n.Origin == "" {
		return Notification{}, false, fmt.Errorf("relayed notification has no origin")
	}
	return n, n.Origin != self, nil
}
