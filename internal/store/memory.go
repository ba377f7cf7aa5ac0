package store

import (
	"context"
	"sync"

	"collab-backend/internal/model"
)

// MemoryStore keeps records in process. Same contract as RedisStore.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (m *MemoryStore) Get(ctx context.Context, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec.Session = rec.Session.Clone()
	return rec, nil
}

func (m *MemoryStore) Create(ctx context.Context, s model.Session) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[s.ID]; ok {
		return Record{}, ErrExists
	}
	return m.put(s, 1), nil
}

func (m *MemoryStore) Set(ctx context.Context, s model.Session) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.put(s, m.records[s.ID].Version+1), nil
}

func (m *MemoryStore) CompareAndSet(ctx context.Context, expected uint64, s model.Session) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.records[s.ID]
	if !ok {
		return Record{}, ErrNotFound
	}
	if cur.Version != expected {
		return Record{}, ErrVersionConflict
	}
	return m.put(s, expected+1), nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, id)
	return nil
}

// put must be called with mu held.
func (m *MemoryStore) put(s model.Session, version uint64) Record {
	rec := Record{Session: s.Clone(), Version: version}
	m.records[s.ID] = rec
	return Record{Session: s.Clone(), Version: version}
}
