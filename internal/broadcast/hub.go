// Package broadcast fans session messages out to in-process subscribers and,
// through a Relay, to the other nodes of the cluster.
package broadcast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"collab-backend/internal/model"
)

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("broadcast: hub closed")

// Handler receives messages of one session in publish order.
type Handler func(ctx context.Context, msg model.Message) error

// Relay forwards locally published messages to other nodes.
type Relay interface {
	Forward(ctx context.Context, msg model.Message) error
}

// Hub is the per-node subscriber registry.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[uint64]*subscriber
	closed bool

	nextID    atomic.Uint64
	queueSize int
	relay     Relay

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup
	log    zerolog.Logger
}

func NewHub(queueSize int) *Hub {
	if queueSize < 1 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		topics:    make(map[string]map[uint64]*subscriber),
		queueSize: queueSize,
		ctx:       ctx,
		cancel:    cancel,
		log:       log.With().Str("module", "broadcast.hub").Logger(),
	}
}

// SetRelay installs the cross-node relay. Call before the first Publish.
func (h *Hub) SetRelay(r Relay) {
	h.relay = r
}

// Publish delivers msg to local subscribers and forwards it through the relay.
// A relay failure is logged, never returned: local delivery already happened.
func (h *Hub) Publish(ctx context.Context, msg model.Message) {
	h.Deliver(msg)
	if h.relay == nil {
		return
	}
	if err := h.relay.Forward(ctx, msg); err != nil {
		h.log.Warn().Err(err).Str("session_id", msg.SessionID).Str("type", msg.Type.String()).Msg("relay forward failed")
	}
}

// Deliver enqueues msg for every subscriber registered at call time.
func (h *Hub) Deliver(msg model.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.topics[msg.SessionID] {
		select {
		case sub.queue <- msg:
		default:
			h.log.Warn().
				Str("session_id", msg.SessionID).
				Uint64("sub_id", sub.id).
				Str("type", msg.Type.String()).
				Msg("subscriber queue full, dropping message")
		}
	}
}

// Subscribe registers handler for a session.
func (h *Hub) Subscribe(sessionID string, handler Handler) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}

	sub := &subscriber{
		id:        h.nextID.Add(1),
		sessionID: sessionID,
		handler:   handler,
		queue:     make(chan model.Message, h.queueSize),
		done:      make(chan struct{}),
	}
	topic, ok := h.topics[sessionID]
	if !ok {
		topic = make(map[uint64]*subscriber)
		h.topics[sessionID] = topic
	}
	topic[sub.id] = sub

	h.wg.Go(func() { h.drain(sub) })

	h.log.Debug().Str("session_id", sessionID).Uint64("sub_id", sub.id).Msg("subscribed")
	return &Subscription{hub: h, sessionID: sessionID, id: sub.id}, nil
}

// Unsubscribe removes one subscriber. Unknown ids are ignored.
func (h *Hub) Unsubscribe(sessionID string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	topic := h.topics[sessionID]
	sub, ok := topic[id]
	if !ok {
		return
	}
	delete(topic, id)
	if len(topic) == 0 {
		delete(h.topics, sessionID)
	}
	sub.stop()
}

// UnsubscribeAll drops every subscriber of a session.
func (h *Hub) UnsubscribeAll(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.topics[sessionID] {
		sub.stop()
	}
	delete(h.topics, sessionID)
}

// SubscriberCount returns the number of local subscribers of a session.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[sessionID])
}

// Close stops every subscriber and waits for in-flight handlers.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for id, topic := range h.topics {
		for _, sub := range topic {
			sub.stop()
		}
		delete(h.topics, id)
	}
	h.mu.Unlock()

	h.cancel()
	h.wg.Wait()
	h.log.Info().Msg("hub closed")
}

func (h *Hub) drain(sub *subscriber) {
	for {
		select {
		case <-sub.done:
			return
		case msg := <-sub.queue:
			// stop wins over pending messages
			select {
			case <-sub.done:
				return
			default:
			}
			h.dispatch(sub, msg)
		}
	}
}

func (h *Hub) dispatch(sub *subscriber, msg model.Message) {
	var pc panics.Catcher
	var err error
	pc.Try(func() {
		err = sub.handler(h.ctx, msg)
	})
	if r := pc.Recovered(); r != nil {
		h.log.Error().
			Str("session_id", sub.sessionID).
			Uint64("sub_id", sub.id).
			Str("panic", r.String()).
			Msg("subscriber handler panicked")
		return
	}
	if err != nil {
		h.log.Warn().Err(err).
			Str("session_id", sub.sessionID).
			Uint64("sub_id", sub.id).
			Str("type", msg.Type.String()).
			Msg("subscriber handler failed")
	}
}

type subscriber struct {
	id        uint64
	sessionID string
	handler   Handler
	queue     chan model.Message
	done      chan struct{}
	stopOnce  sync.Once
}

func (s *subscriber) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// Subscription is the caller's handle on one registration.
type Subscription struct {
	hub       *Hub
	sessionID string
	id        uint64
}

func (s *Subscription) ID() uint64 { return s.id }

func (s *Subscription) SessionID() string { return s.sessionID }

// Unsubscribe is idempotent.
func (s *Subscription) Unsubscribe() {
	s.hub.Unsubscribe(s.sessionID, s.id)
}
