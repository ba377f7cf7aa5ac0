package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"collab-backend/internal/cache"
	"collab-backend/internal/model"
)

// Each session is a hash: v = version, data = session JSON.
var (
	createScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("HSET", KEYS[1], "v", 1, "data", ARGV[1])
if tonumber(ARGV[2]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 1
`)

	setScript = redis.NewScript(`
local v = redis.call("HINCRBY", KEYS[1], "v", 1)
redis.call("HSET", KEYS[1], "data", ARGV[1])
if tonumber(ARGV[2]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return v
`)

	casScript = redis.NewScript(`
local cur = redis.call("HGET", KEYS[1], "v")
if not cur then
	return -1
end
if cur ~= ARGV[1] then
	return 0
end
local v = tonumber(cur) + 1
redis.call("HSET", KEYS[1], "v", v, "data", ARGV[2])
if tonumber(ARGV[3]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[3])
end
return v
`)
)

// RedisStore stores sessions in Redis. Writes are atomic Lua scripts.
type RedisStore struct {
	rdb *cache.RedisClient
	ttl time.Duration
}

func NewRedisStore(rdb *cache.RedisClient, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) key(id string) string {
	return s.rdb.Key(SessionKey(id))
}

func (s *RedisStore) ttlMillis() int64 {
	return s.ttl.Milliseconds()
}

func (s *RedisStore) Get(ctx context.Context, id string) (Record, error) {
	vals, err := s.rdb.Client().HMGet(ctx, s.key(id), "v", "data").Result()
	if err != nil {
		return Record{}, err
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return Record{}, ErrNotFound
	}

	vs, _ := vals[0].(string)
	version, err := strconv.ParseUint(vs, 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("store: bad version for %s: %w", id, err)
	}
	data, _ := vals[1].(string)

	var sess model.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return Record{}, fmt.Errorf("store: decode %s: %w", id, err)
	}
	return Record{Session: sess, Version: version}, nil
}

func (s *RedisStore) Create(ctx context.Context, sess model.Session) (Record, error) {
	data, err := json.Marshal(sess)
	if err != nil {
		return Record{}, err
	}
	ok, err := createScript.Run(ctx, s.rdb.Client(), []string{s.key(sess.ID)}, data, s.ttlMillis()).Int64()
	if err != nil {
		return Record{}, err
	}
	if ok == 0 {
		return Record{}, ErrExists
	}
	return Record{Session: sess.Clone(), Version: 1}, nil
}

func (s *RedisStore) Set(ctx context.Context, sess model.Session) (Record, error) {
	data, err := json.Marshal(sess)
	if err != nil {
		return Record{}, err
	}
	v, err := setScript.Run(ctx, s.rdb.Client(), []string{s.key(sess.ID)}, data, s.ttlMillis()).Int64()
	if err != nil {
		return Record{}, err
	}
	return Record{Session: sess.Clone(), Version: uint64(v)}, nil
}

func (s *RedisStore) CompareAndSet(ctx context.Context, expected uint64, sess model.Session) (Record, error) {
	data, err := json.Marshal(sess)
	if err != nil {
		return Record{}, err
	}
	v, err := casScript.Run(ctx, s.rdb.Client(), []string{s.key(sess.ID)},
		strconv.FormatUint(expected, 10), data, s.ttlMillis()).Int64()
	if err != nil {
		return Record{}, err
	}
	switch v {
	case -1:
		return Record{}, ErrNotFound
	case 0:
		return Record{}, ErrVersionConflict
	}
	return Record{Session: sess.Clone(), Version: uint64(v)}, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	err := s.rdb.Client().Del(ctx, s.key(id)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
