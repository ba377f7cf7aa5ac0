package room

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"collab-backend/internal/cache"
)

// RecordKey is the Redis key of a room record without the global prefix.
func RecordKey(sessionID string) string {
	return "livekit_room_" + sessionID
}

// RedisRecordStore keeps room records as JSON strings.
type RedisRecordStore struct {
	rdb *cache.RedisClient
	ttl time.Duration
}

func NewRedisRecordStore(rdb *cache.RedisClient, ttl time.Duration) *RedisRecordStore {
	return &RedisRecordStore{rdb: rdb, ttl: ttl}
}

func (s *RedisRecordStore) Put(ctx context.Context, sessionID string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.rdb.Client().Set(ctx, s.rdb.Key(RecordKey(sessionID)), data, s.ttl).Err()
}

func (s *RedisRecordStore) Get(ctx context.Context, sessionID string) (Record, error) {
	data, err := s.rdb.Client().Get(ctx, s.rdb.Key(RecordKey(sessionID))).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrRecordNotFound
	}
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *RedisRecordStore) Delete(ctx context.Context, sessionID string) error {
	return s.rdb.Client().Del(ctx, s.rdb.Key(RecordKey(sessionID))).Err()
}

// MemoryRecordStore keeps room records in process.
type MemoryRecordStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{records: make(map[string]Record)}
}

func (s *MemoryRecordStore) Put(_ context.Context, sessionID string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[sessionID] = rec
	return nil
}

func (s *MemoryRecordStore) Get(_ context.Context, sessionID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[sessionID]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}

func (s *MemoryRecordStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, sessionID)
	return nil
}
