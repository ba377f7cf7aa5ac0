// Package collab sequences session, room and broadcast operations so that a
// media room exists exactly while its session is active.
package collab

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"collab-backend/internal/apperr"
	"collab-backend/internal/broadcast"
	"collab-backend/internal/config"
	"collab-backend/internal/model"
)

// Sessions is the session state machine.
type Sessions interface {
	CreateSession(ctx context.Context, hostID, hostUsername string) (model.Session, error)
	JoinSession(ctx context.Context, sessionID, userID, username string) (model.Session, model.Participant, error)
	EndSession(ctx context.Context, sessionID string) (model.Session, bool, error)
	UpdateParticipant(ctx context.Context, sessionID, userID string, upd model.ParticipantUpdate) (model.Session, model.Participant, error)
	RemoveParticipant(ctx context.Context, sessionID, userID string) (model.Session, model.Participant, error)
	GetActiveSession(ctx context.Context, sessionID string) (model.Session, bool, error)
	GetSession(ctx context.Context, sessionID string) (model.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Rooms is the media room lifecycle.
type Rooms interface {
	CreateRoom(ctx context.Context, sessionID string) (string, error)
	GenerateToken(ctx context.Context, sessionID string, participant model.Participant) (string, error)
	DeleteRoom(ctx context.Context, sessionID string) error
	GetRoomParticipants(ctx context.Context, sessionID string) ([]string, error)
}

// Publisher fans a message out to the session's subscribers.
type Publisher interface {
	Publish(ctx context.Context, msg model.Message)
}

// Subscriber registers message handlers.
type Subscriber interface {
	Subscribe(sessionID string, handler broadcast.Handler) (*broadcast.Subscription, error)
}

// Archiver stores a summary of an ended session.
type Archiver interface {
	Save(ctx context.Context, sess model.Session, endedAt time.Time) error
}

// Coordinator is the entry point for every caller-facing operation.
type Coordinator struct {
	sessions   Sessions
	rooms      Rooms
	publisher  Publisher
	subscriber Subscriber
	archiver   Archiver

	hostRemoval        config.HostRemovalPolicy
	deleteRoomAttempts int
	retryBackoff       time.Duration

	now func() time.Time
	log zerolog.Logger
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithArchiver stores ended sessions.
func WithArchiver(a Archiver) Option {
	return func(c *Coordinator) { c.archiver = a }
}

// WithClock overrides the time source for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func NewCoordinator(sessions Sessions, rooms Rooms, publisher Publisher, subscriber Subscriber, cfg config.SessionConfig, opts ...Option) *Coordinator {
	c := &Coordinator{
		sessions:           sessions,
		rooms:              rooms,
		publisher:          publisher,
		subscriber:         subscriber,
		hostRemoval:        cfg.HostRemoval,
		deleteRoomAttempts: cfg.DeleteRoomAttempts,
		retryBackoff:       cfg.RetryBackoff,
		now:                time.Now,
		log:                log.With().Str("module", "collab.coordinator").Logger(),
	}
	if c.deleteRoomAttempts < 1 {
		c.deleteRoomAttempts = 1
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) publish(ctx context.Context, sessionID, senderID string, payload model.Payload) {
	c.publisher.Publish(ctx, model.NewMessage(sessionID, senderID, c.now().UnixMilli(), payload))
}

// CreateSession creates the session and its media room. If the room cannot be
// created the session is deleted again, along with any room the media server
// may have made before the failure surfaced.
func (c *Coordinator) CreateSession(ctx context.Context, hostID, hostUsername string) (model.Session, error) {
	sess, err := c.sessions.CreateSession(ctx, hostID, hostUsername)
	if err != nil {
		return model.Session{}, err
	}

	if _, err := c.rooms.CreateRoom(ctx, sess.ID); err != nil {
		c.log.Warn().Err(err).Str("session_id", sess.ID).Msg("room creation failed, rolling back session")
		if derr := c.rooms.DeleteRoom(context.WithoutCancel(ctx), sess.ID); derr != nil {
			c.log.Warn().Err(derr).Str("session_id", sess.ID).Msg("rollback room delete failed")
		}
		if derr := c.sessions.DeleteSession(context.WithoutCancel(ctx), sess.ID); derr != nil {
			c.log.Error().Err(derr).Str("session_id", sess.ID).Msg("rollback failed, ending session instead")
			_, _, _ = c.sessions.EndSession(context.WithoutCancel(ctx), sess.ID)
		}
		return model.Session{}, err
	}

	c.publish(ctx, sess.ID, hostID, model.SessionStarted{Session: sess})
	return sess, nil
}

// JoinSession adds a participant and announces it. Tokens are requested separately.
func (c *Coordinator) JoinSession(ctx context.Context, sessionID, userID, username string) (model.Session, error) {
	sess, p, err := c.sessions.JoinSession(ctx, sessionID, userID, username)
	if err != nil {
		return model.Session{}, err
	}
	c.publish(ctx, sess.ID, p.ID, model.ParticipantJoined{Participant: p})
	return sess, nil
}

// EndSession ends the session and deletes its room. Safe to call repeatedly:
// the room delete always runs, session_end is only announced once. The call
// that ends the session announces it even when the room delete fails.
func (c *Coordinator) EndSession(ctx context.Context, sessionID string) (model.Session, error) {
	sess, transitioned, err := c.sessions.EndSession(ctx, sessionID)
	if err != nil {
		return model.Session{}, err
	}

	derr := c.deleteRoomWithRetry(ctx, sess.ID)

	if transitioned {
		c.publish(ctx, sess.ID, model.SystemSenderID, model.SessionEnded{Session: sess})
		c.archive(ctx, sess)
	}
	if derr != nil {
		return model.Session{}, derr
	}
	return sess, nil
}

func (c *Coordinator) deleteRoomWithRetry(ctx context.Context, sessionID string) error {
	backoff := c.retryBackoff
	var err error
	for attempt := 1; attempt <= c.deleteRoomAttempts; attempt++ {
		if err = c.rooms.DeleteRoom(ctx, sessionID); err == nil {
			return nil
		}
		if !errors.Is(err, apperr.ErrServiceUnavailable) || attempt == c.deleteRoomAttempts {
			break
		}
		c.log.Warn().Err(err).Str("session_id", sessionID).Int("attempt", attempt).Msg("delete room failed, retrying")
		select {
		case <-ctx.Done():
			return apperr.Unavailable(ctx.Err(), "delete room for session %s", sessionID)
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	c.log.Error().Err(err).Str("session_id", sessionID).Msg("delete room gave up")
	return err
}

func (c *Coordinator) archive(ctx context.Context, sess model.Session) {
	if c.archiver == nil {
		return
	}
	if err := c.archiver.Save(ctx, sess, c.now()); err != nil {
		c.log.Warn().Err(err).Str("session_id", sess.ID).Msg("archive session failed")
	}
}

// UpdateParticipant applies a partial update and announces the new state.
func (c *Coordinator) UpdateParticipant(ctx context.Context, sessionID, userID string, upd model.ParticipantUpdate) (model.Session, error) {
	if upd.Empty() {
		return model.Session{}, apperr.Invalid("update has no fields")
	}
	sess, p, err := c.sessions.UpdateParticipant(ctx, sessionID, userID, upd)
	if err != nil {
		return model.Session{}, err
	}
	c.publish(ctx, sess.ID, p.ID, model.ParticipantUpdated{Participant: p})
	return sess, nil
}

// RemoveParticipant drops a participant and announces it. Depending on the
// host removal policy, removing the host also ends the session.
func (c *Coordinator) RemoveParticipant(ctx context.Context, sessionID, userID string) (model.Session, error) {
	sess, removed, err := c.sessions.RemoveParticipant(ctx, sessionID, userID)
	if err != nil {
		return model.Session{}, err
	}
	c.publish(ctx, sess.ID, removed.ID, model.ParticipantLeft{Participant: removed})

	if removed.IsHost && sess.IsActive && c.hostRemoval == config.HostRemovalEnd {
		c.log.Info().Str("session_id", sess.ID).Msg("host left, ending session")
		return c.EndSession(ctx, sess.ID)
	}
	return sess, nil
}

// BroadcastDrawing relays a drawing event from a current participant of an
// active session. Nothing is published when any check fails.
func (c *Coordinator) BroadcastDrawing(ctx context.Context, sessionID string, ev *model.DrawingEvent) error {
	if ev == nil {
		return apperr.Invalid("drawing event is required")
	}
	if err := ev.Validate(); err != nil {
		return apperr.Invalid("%v", err)
	}
	if ev.SessionID != "" && ev.SessionID != sessionID {
		return apperr.Invalid("drawing event targets session %s", ev.SessionID)
	}

	sess, err := c.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !sess.IsActive {
		return apperr.SessionEnded(sessionID)
	}
	if !sess.HasParticipant(ev.UserID) {
		return apperr.NotFound("participant %s not in session %s", ev.UserID, sessionID)
	}

	out := *ev
	out.SessionID = sessionID
	if out.Timestamp == 0 {
		out.Timestamp = c.now().UnixMilli()
	}
	c.publisher.Publish(ctx, model.NewMessage(sessionID, out.UserID, out.Timestamp, &out))
	return nil
}

// IssueToken mints a media token for a roster member.
func (c *Coordinator) IssueToken(ctx context.Context, sessionID, userID string) (string, string, error) {
	sess, err := c.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return "", "", err
	}
	if !sess.IsActive {
		return "", "", apperr.SessionEnded(sessionID)
	}
	userID = strings.TrimSpace(userID)
	p, ok := sess.Participant(userID)
	if !ok {
		return "", "", apperr.NotFound("participant %s not in session %s", userID, sessionID)
	}
	token, err := c.rooms.GenerateToken(ctx, sessionID, *p)
	if err != nil {
		return "", "", err
	}
	return token, model.RoomName(sessionID), nil
}

// GetActiveSession returns NotFound for missing and ended sessions.
func (c *Coordinator) GetActiveSession(ctx context.Context, sessionID string) (model.Session, error) {
	sess, ok, err := c.sessions.GetActiveSession(ctx, sessionID)
	if err != nil {
		return model.Session{}, err
	}
	if !ok {
		return model.Session{}, apperr.NotFound("no active session %s", sessionID)
	}
	return sess, nil
}

// RoomParticipants lists who is connected to the media room.
func (c *Coordinator) RoomParticipants(ctx context.Context, sessionID string) ([]string, error) {
	if _, err := c.GetActiveSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return c.rooms.GetRoomParticipants(ctx, sessionID)
}

// Subscribe registers handler for an active session's messages.
func (c *Coordinator) Subscribe(ctx context.Context, sessionID string, handler broadcast.Handler) (*broadcast.Subscription, error) {
	if _, err := c.GetActiveSession(ctx, sessionID); err != nil {
		return nil, err
	}
	sub, err := c.subscriber.Subscribe(sessionID, handler)
	if err != nil {
		return nil, apperr.Unavailable(err, "subscribe to session %s", sessionID)
	}
	return sub, nil
}
