package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-backend/internal/model"
)

type recorder struct {
	mu   sync.Mutex
	msgs []model.Message
}

func (r *recorder) handle(_ context.Context, msg model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) timestamps() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, 0, len(r.msgs))
	for _, m := range r.msgs {
		out = append(out, m.Timestamp)
	}
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func drawing(sessionID string, ts int64) model.Message {
	ev := &model.DrawingEvent{Type: model.DrawingClear, SessionID: sessionID, UserID: "u1", Timestamp: ts}
	return model.NewMessage(sessionID, "u1", ts, ev)
}

func TestPublishPreservesOrderPerSubscriber(t *testing.T) {
	hub := NewHub(256)
	defer hub.Close()

	a, b := &recorder{}, &recorder{}
	_, err := hub.Subscribe("s1", a.handle)
	require.NoError(t, err)
	_, err = hub.Subscribe("s1", b.handle)
	require.NoError(t, err)

	var want []int64
	for i := int64(1); i <= 100; i++ {
		hub.Publish(context.Background(), drawing("s1", i))
		want = append(want, i)
	}

	require.Eventually(t, func() bool { return a.count() == 100 && b.count() == 100 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, a.timestamps())
	assert.Equal(t, want, b.timestamps())
}

func TestFailingSubscriberDoesNotBlockOthers(t *testing.T) {
	hub := NewHub(16)
	defer hub.Close()

	_, err := hub.Subscribe("s1", func(context.Context, model.Message) error {
		panic("boom")
	})
	require.NoError(t, err)
	_, err = hub.Subscribe("s1", func(context.Context, model.Message) error {
		return errors.New("write failed")
	})
	require.NoError(t, err)
	ok := &recorder{}
	_, err = hub.Subscribe("s1", ok.handle)
	require.NoError(t, err)

	hub.Publish(context.Background(), drawing("s1", 1))
	hub.Publish(context.Background(), drawing("s1", 2))

	require.Eventually(t, func() bool { return ok.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestLateSubscriberMissesEarlierMessages(t *testing.T) {
	hub := NewHub(16)
	defer hub.Close()

	early := &recorder{}
	_, err := hub.Subscribe("s1", early.handle)
	require.NoError(t, err)
	hub.Publish(context.Background(), drawing("s1", 1))

	late := &recorder{}
	_, err = hub.Subscribe("s1", late.handle)
	require.NoError(t, err)
	hub.Publish(context.Background(), drawing("s1", 2))

	require.Eventually(t, func() bool { return early.count() == 2 && late.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{2}, late.timestamps())
}

func TestSessionsAreIsolated(t *testing.T) {
	hub := NewHub(16)
	defer hub.Close()

	other := &recorder{}
	_, err := hub.Subscribe("s2", other.handle)
	require.NoError(t, err)
	mine := &recorder{}
	_, err = hub.Subscribe("s1", mine.handle)
	require.NoError(t, err)

	hub.Publish(context.Background(), drawing("s1", 1))

	require.Eventually(t, func() bool { return mine.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, other.count())
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	hub := NewHub(16)
	defer hub.Close()

	rec := &recorder{}
	sub, err := hub.Subscribe("s1", rec.handle)
	require.NoError(t, err)
	assert.Equal(t, 1, hub.SubscriberCount("s1"))

	sub.Unsubscribe()
	sub.Unsubscribe()
	hub.Unsubscribe("s1", sub.ID())
	assert.Equal(t, 0, hub.SubscriberCount("s1"))

	hub.Publish(context.Background(), drawing("s1", 1))
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, rec.count())
}

func TestUnsubscribeAllAndClose(t *testing.T) {
	hub := NewHub(16)

	for i := 0; i < 3; i++ {
		_, err := hub.Subscribe("s1", (&recorder{}).handle)
		require.NoError(t, err)
	}
	hub.UnsubscribeAll("s1")
	assert.Equal(t, 0, hub.SubscriberCount("s1"))

	hub.Close()
	hub.Close()
	_, err := hub.Subscribe("s1", (&recorder{}).handle)
	assert.ErrorIs(t, err, ErrClosed)
}

type stubRelay struct {
	mu  sync.Mutex
	got []model.Message
	err error
}

func (s *stubRelay) Forward(_ context.Context, msg model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, msg)
	return s.err
}

func TestPublishForwardsToRelay(t *testing.T) {
	hub := NewHub(16)
	defer hub.Close()
	relay := &stubRelay{err: errors.New("redis down")}
	hub.SetRelay(relay)

	rec := &recorder{}
	_, err := hub.Subscribe("s1", rec.handle)
	require.NoError(t, err)

	hub.Publish(context.Background(), drawing("s1", 7))

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	relay.mu.Lock()
	defer relay.mu.Unlock()
	assert.Len(t, relay.got, 1)
}
