package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-backend/internal/apperr"
	"collab-backend/internal/config"
	"collab-backend/internal/model"
	"collab-backend/internal/store"
)

func testConfig() config.SessionConfig {
	return config.SessionConfig{
		MaxAttempts:     4,
		OpTimeout:       time.Second,
		MaxParticipants: 20,
	}
}

func newTestManager(t *testing.T, st store.SessionStore, cfg config.SessionConfig) *Manager {
	t.Helper()
	var n int
	return NewManager(st, cfg,
		WithClock(func() time.Time { return time.UnixMilli(1_700_000_000_000) }),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("sess-%d", n) }),
	)
}

func TestCreateSession(t *testing.T) {
	m := newTestManager(t, store.NewMemoryStore(), testConfig())

	sess, err := m.CreateSession(context.Background(), " h1 ", "Host")
	require.NoError(t, err)

	assert.Equal(t, "sess-1", sess.ID)
	assert.True(t, sess.IsActive)
	require.Len(t, sess.Participants, 1)
	assert.Equal(t, "h1", sess.Participants[0].ID)
	assert.True(t, sess.Participants[0].IsHost)
	assert.Equal(t, int64(1_700_000_000_000), sess.CreatedAt)
}

func TestCreateSessionValidatesInput(t *testing.T) {
	m := newTestManager(t, store.NewMemoryStore(), testConfig())
	ctx := context.Background()

	_, err := m.CreateSession(ctx, "", "Host")
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	_, err = m.CreateSession(ctx, "h1", "   ")
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	_, err = m.CreateSession(ctx, "h1", strings.Repeat("가", 65))
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestJoinSession(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, store.NewMemoryStore(), testConfig())
	sess, err := m.CreateSession(ctx, "h1", "Host")
	require.NoError(t, err)

	t.Run("appends non-host", func(t *testing.T) {
		got, _, err := m.JoinSession(ctx, sess.ID, "u1", "Alice")
		require.NoError(t, err)
		require.Len(t, got.Participants, 2)
		assert.False(t, got.Participants[1].IsHost)
		assert.Equal(t, "Alice", got.Participants[1].Username)
	})

	t.Run("returns trimmed participant", func(t *testing.T) {
		got, p, err := m.JoinSession(ctx, sess.ID, "  u9 ", " Zed ")
		require.NoError(t, err)
		assert.Equal(t, "u9", p.ID)
		assert.Equal(t, "Zed", p.Username)
		assert.True(t, got.HasParticipant("u9"))
	})

	t.Run("duplicate", func(t *testing.T) {
		_, _, err := m.JoinSession(ctx, sess.ID, "u1", "Alice")
		assert.ErrorIs(t, err, apperr.ErrAlreadyJoined)
	})

	t.Run("unknown session", func(t *testing.T) {
		_, _, err := m.JoinSession(ctx, "nope", "u2", "Bob")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestJoinSessionFull(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.MaxParticipants = 2
	m := newTestManager(t, store.NewMemoryStore(), cfg)

	sess, err := m.CreateSession(ctx, "h1", "Host")
	require.NoError(t, err)
	_, _, err = m.JoinSession(ctx, sess.ID, "u1", "Alice")
	require.NoError(t, err)

	_, _, err = m.JoinSession(ctx, sess.ID, "u2", "Bob")
	assert.ErrorIs(t, err, apperr.ErrSessionFull)
}

func TestEndedSessionRejectsMutations(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, store.NewMemoryStore(), testConfig())
	sess, err := m.CreateSession(ctx, "h1", "Host")
	require.NoError(t, err)

	ended, transitioned, err := m.EndSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, transitioned)
	assert.False(t, ended.IsActive)

	again, transitioned, err := m.EndSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, transitioned)
	assert.False(t, again.IsActive)

	_, _, err = m.JoinSession(ctx, sess.ID, "u1", "Alice")
	assert.ErrorIs(t, err, apperr.ErrSessionEnded)

	on := true
	_, _, err = m.UpdateParticipant(ctx, sess.ID, "h1", model.ParticipantUpdate{IsVideoEnabled: &on})
	assert.ErrorIs(t, err, apperr.ErrSessionEnded)

	_, ok, err := m.GetActiveSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	raw, err := m.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, raw.Participants, 1, "roster unchanged after rejected join")
}

func TestEndSessionUnknown(t *testing.T) {
	m := newTestManager(t, store.NewMemoryStore(), testConfig())
	_, _, err := m.EndSession(context.Background(), "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateParticipant(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, store.NewMemoryStore(), testConfig())
	sess, err := m.CreateSession(ctx, "h1", "Host")
	require.NoError(t, err)

	on := true
	name := " Boss "
	got, p, err := m.UpdateParticipant(ctx, sess.ID, "h1", model.ParticipantUpdate{IsAudioEnabled: &on, Username: &name})
	require.NoError(t, err)
	assert.True(t, p.IsAudioEnabled)
	assert.Equal(t, "Boss", p.Username)
	assert.True(t, p.IsHost)
	assert.Equal(t, p, got.Participants[0])

	_, _, err = m.UpdateParticipant(ctx, sess.ID, "ghost", model.ParticipantUpdate{IsAudioEnabled: &on})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRemoveHostKeepsSessionActive(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, store.NewMemoryStore(), testConfig())
	sess, err := m.CreateSession(ctx, "h1", "Host")
	require.NoError(t, err)
	_, _, err = m.JoinSession(ctx, sess.ID, "u1", "Alice")
	require.NoError(t, err)

	got, removed, err := m.RemoveParticipant(ctx, sess.ID, "h1")
	require.NoError(t, err)
	assert.Equal(t, "h1", removed.ID)
	assert.True(t, removed.IsHost)
	assert.True(t, got.IsActive)
	require.Len(t, got.Participants, 1)
	assert.Equal(t, "u1", got.Participants[0].ID)
	assert.False(t, got.Participants[0].IsHost, "host status never transfers")

	_, _, err = m.RemoveParticipant(ctx, sess.ID, "h1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRosterMatchesJoinsMinusRemoves(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, store.NewMemoryStore(), testConfig())
	sess, err := m.CreateSession(ctx, "h1", "Host")
	require.NoError(t, err)

	for _, id := range []string{"a", "b", "c", "d"} {
		_, _, err := m.JoinSession(ctx, sess.ID, id, "user-"+id)
		require.NoError(t, err)
	}
	for _, id := range []string{"b", "d"} {
		_, _, err := m.RemoveParticipant(ctx, sess.ID, id)
		require.NoError(t, err)
	}

	got, err := m.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	var ids []string
	for _, p := range got.Participants {
		ids = append(ids, p.ID)
		assert.Equal(t, p.ID == "h1", p.IsHost)
	}
	assert.Equal(t, []string{"h1", "a", "c"}, ids)
}

// racingStore lets another writer sneak in before the first CompareAndSet.
type racingStore struct {
	store.SessionStore
	once  sync.Once
	rival func()
}

func (r *racingStore) CompareAndSet(ctx context.Context, expected uint64, s model.Session) (store.Record, error) {
	r.once.Do(r.rival)
	return r.SessionStore.CompareAndSet(ctx, expected, s)
}

func TestJoinRetriesAfterLostRace(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	m := newTestManager(t, mem, testConfig())
	sess, err := m.CreateSession(ctx, "h1", "Host")
	require.NoError(t, err)

	racing := &racingStore{SessionStore: mem}
	racing.rival = func() {
		_, _, err := m.JoinSession(ctx, sess.ID, "u2", "Bob")
		require.NoError(t, err)
	}
	contended := newTestManager(t, racing, testConfig())

	got, _, err := contended.JoinSession(ctx, sess.ID, "u1", "Alice")
	require.NoError(t, err)

	var ids []string
	for _, p := range got.Participants {
		ids = append(ids, p.ID)
	}
	assert.ElementsMatch(t, []string{"h1", "u1", "u2"}, ids)
}

// conflictStore always loses compare-and-set.
type conflictStore struct {
	store.SessionStore
	attempts int
}

func (c *conflictStore) CompareAndSet(context.Context, uint64, model.Session) (store.Record, error) {
	c.attempts++
	return store.Record{}, store.ErrVersionConflict
}

func TestContentionAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	seed := newTestManager(t, mem, testConfig())
	sess, err := seed.CreateSession(ctx, "h1", "Host")
	require.NoError(t, err)

	cs := &conflictStore{SessionStore: mem}
	m := newTestManager(t, cs, testConfig())

	_, _, err = m.JoinSession(ctx, sess.ID, "u1", "Alice")
	assert.ErrorIs(t, err, apperr.ErrContention)
	assert.Equal(t, 4, cs.attempts)
}

type failingStore struct {
	store.SessionStore
	err error
}

func (f failingStore) Get(context.Context, string) (store.Record, error) {
	return store.Record{}, f.err
}

func TestStoreFailuresBecomeUnavailable(t *testing.T) {
	ctx := context.Background()

	m := newTestManager(t, failingStore{SessionStore: store.NewMemoryStore(), err: errors.New("connection refused")}, testConfig())
	_, _, err := m.JoinSession(ctx, "s1", "u1", "Alice")
	assert.ErrorIs(t, err, apperr.ErrServiceUnavailable)
	assert.Equal(t, apperr.ReasonNone, apperr.ReasonOf(err))

	m = newTestManager(t, failingStore{SessionStore: store.NewMemoryStore(), err: context.DeadlineExceeded}, testConfig())
	_, _, err = m.JoinSession(ctx, "s1", "u1", "Alice")
	assert.ErrorIs(t, err, apperr.ErrServiceUnavailable)
	assert.Equal(t, apperr.ReasonTimeout, apperr.ReasonOf(err))
}

func TestConcurrentJoinsAllLand(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.MaxAttempts = 50
	m := newTestManager(t, store.NewMemoryStore(), cfg)
	sess, err := m.CreateSession(ctx, "h1", "Host")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := m.JoinSession(ctx, sess.ID, fmt.Sprintf("u%d", i), "user")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := m.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, got.Participants, 11)
}
