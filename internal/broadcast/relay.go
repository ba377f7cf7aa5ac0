package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"collab-backend/internal/cache"
	"collab-backend/internal/model"
)

// envelope is the Redis pub/sub wire format.
type envelope struct {
	Origin  string        `json:"origin"`
	Message model.Message `json:"message"`
}

// RedisRelay shares published messages between nodes over Redis pub/sub.
type RedisRelay struct {
	rdb    *cache.RedisClient
	hub    *Hub
	origin string
	log    zerolog.Logger
}

func NewRedisRelay(rdb *cache.RedisClient, hub *Hub) *RedisRelay {
	origin := uuid.NewString()
	return &RedisRelay{
		rdb:    rdb,
		hub:    hub,
		origin: origin,
		log:    log.With().Str("module", "broadcast.relay").Str("origin", origin).Logger(),
	}
}

func (r *RedisRelay) channel(sessionID string) string {
	return r.rdb.Key(model.ChannelName(sessionID))
}

// Forward publishes msg on the session's Redis channel.
func (r *RedisRelay) Forward(ctx context.Context, msg model.Message) error {
	data, err := json.Marshal(envelope{Origin: r.origin, Message: msg})
	if err != nil {
		return fmt.Errorf("encode relay envelope: %w", err)
	}
	return r.rdb.Client().Publish(ctx, r.channel(msg.SessionID), data).Err()
}

// Run consumes every session channel until ctx is done. Messages from this
// node are skipped since the hub already delivered them.
func (r *RedisRelay) Run(ctx context.Context) error {
	pattern := r.rdb.Key(model.ChannelName("*"))
	ps := r.rdb.Client().PSubscribe(ctx, pattern)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("psubscribe %s: %w", pattern, err)
	}
	r.log.Info().Str("pattern", pattern).Msg("relay listening")

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("relay stopped")
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(m)
		}
	}
}

func (r *RedisRelay) handle(m *redis.Message) {
	var env envelope
	if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
		r.log.Warn().Err(err).Str("channel", m.Channel).Msg("dropping malformed relay message")
		return
	}
	if env.Origin == r.origin {
		return
	}
	r.hub.Deliver(env.Message)
}
