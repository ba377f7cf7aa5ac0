package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"collab-backend/internal/config"
)

// RedisClient wraps the shared Redis connection used by the session store,
// the room record store and the broadcast relay.
type RedisClient struct {
	client *redis.Client
	prefix string
}

// NewRedisClient creates a new Redis client and verifies the connection
func NewRedisClient(cfg config.RedisConfig) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	log.Info().Str("module", "cache").Str("addr", cfg.Addr).Msg("connected to redis")
	return &RedisClient{client: client, prefix: cfg.KeyPrefix}, nil
}

// Wrap adopts an existing client. Used by tests.
func Wrap(client *redis.Client, prefix string) *RedisClient {
	return &RedisClient{client: client, prefix: prefix}
}

// Client exposes the underlying go-redis client
func (r *RedisClient) Client() *redis.Client {
	return r.client
}

// Key applies the configured key prefix
func (r *RedisClient) Key(parts ...string) string {
	key := r.prefix
	for _, p := range parts {
		key += p
	}
	return key
}

// Prefix returns the configured key prefix
func (r *RedisClient) Prefix() string {
	return r.prefix
}

// Health checks if Redis is healthy
func (r *RedisClient) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}
