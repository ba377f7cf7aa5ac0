// Package session enforces the session state machine (absent, active, ended)
// on top of a versioned store.
package session

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"collab-backend/internal/apperr"
	"collab-backend/internal/config"
	"collab-backend/internal/model"
	"collab-backend/internal/store"
)

const maxUsernameLen = 64

// Manager owns every read-modify-write of a session record.
type Manager struct {
	store           store.SessionStore
	maxAttempts     int
	opTimeout       time.Duration
	maxParticipants int

	now   func() time.Time
	newID func() string
	log   zerolog.Logger
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) { m.newID = gen }
}

func NewManager(st store.SessionStore, cfg config.SessionConfig, opts ...Option) *Manager {
	m := &Manager{
		store:           st,
		maxAttempts:     cfg.MaxAttempts,
		opTimeout:       cfg.OpTimeout,
		maxParticipants: cfg.MaxParticipants,
		now:             time.Now,
		newID:           uuid.NewString,
		log:             log.With().Str("module", "session.manager").Logger(),
	}
	if m.maxAttempts < 1 {
		m.maxAttempts = 1
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateSession starts a session with the caller as its only participant and host.
func (m *Manager) CreateSession(ctx context.Context, hostID, hostUsername string) (model.Session, error) {
	hostID, hostUsername, err := normalize(hostID, hostUsername)
	if err != nil {
		return model.Session{}, err
	}

	now := m.now().UnixMilli()
	sess := model.Session{
		ID:        m.newID(),
		CreatedAt: now,
		IsActive:  true,
		Participants: []model.Participant{{
			ID:       hostID,
			Username: hostUsername,
			IsHost:   true,
			JoinedAt: now,
		}},
	}

	var rec store.Record
	err = m.call(ctx, "create session", func(ctx context.Context) error {
		var err error
		rec, err = m.store.Create(ctx, sess)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrExists) {
			return model.Session{}, apperr.Conflict(apperr.ReasonNone, "session id %s already in use", sess.ID)
		}
		return model.Session{}, err
	}

	m.log.Info().Str("session_id", sess.ID).Str("host_id", hostID).Msg("session created")
	return rec.Session, nil
}

// JoinSession appends a non-host participant and returns it as stored.
func (m *Manager) JoinSession(ctx context.Context, sessionID, userID, username string) (model.Session, model.Participant, error) {
	if strings.TrimSpace(sessionID) == "" {
		return model.Session{}, model.Participant{}, apperr.Invalid("session id is required")
	}
	userID, username, err := normalize(userID, username)
	if err != nil {
		return model.Session{}, model.Participant{}, err
	}

	var joined model.Participant
	sess, err := m.mutate(ctx, sessionID, func(s *model.Session) error {
		if !s.IsActive {
			return apperr.SessionEnded(s.ID)
		}
		if s.HasParticipant(userID) {
			return apperr.Conflict(apperr.ReasonAlreadyJoined, "user %s already joined session %s", userID, s.ID)
		}
		if m.maxParticipants > 0 && len(s.Participants) >= m.maxParticipants {
			return apperr.Conflict(apperr.ReasonSessionFull, "session %s is full", s.ID)
		}
		joined = model.Participant{
			ID:       userID,
			Username: username,
			JoinedAt: m.now().UnixMilli(),
		}
		s.Participants = append(s.Participants, joined)
		return nil
	})
	if err != nil {
		return model.Session{}, model.Participant{}, err
	}

	m.log.Info().Str("session_id", sessionID).Str("user_id", userID).Msg("participant joined")
	return sess, joined, nil
}

// EndSession marks the session ended. Ending an ended session succeeds and
// reports transitioned=false.
func (m *Manager) EndSession(ctx context.Context, sessionID string) (sess model.Session, transitioned bool, err error) {
	if strings.TrimSpace(sessionID) == "" {
		return model.Session{}, false, apperr.Invalid("session id is required")
	}

	var already bool
	sess, err = m.mutate(ctx, sessionID, func(s *model.Session) error {
		if !s.IsActive {
			already = true
			return errNoChange
		}
		s.IsActive = false
		return nil
	})
	if err != nil {
		return model.Session{}, false, err
	}
	if already {
		return sess, false, nil
	}

	m.log.Info().Str("session_id", sessionID).Msg("session ended")
	return sess, true, nil
}

// UpdateParticipant merges a partial update into one participant.
func (m *Manager) UpdateParticipant(ctx context.Context, sessionID, userID string, upd model.ParticipantUpdate) (model.Session, model.Participant, error) {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(userID) == "" {
		return model.Session{}, model.Participant{}, apperr.Invalid("session id and user id are required")
	}
	userID = strings.TrimSpace(userID)
	if upd.Username != nil {
		name, err := normalizeUsername(*upd.Username)
		if err != nil {
			return model.Session{}, model.Participant{}, err
		}
		upd.Username = &name
	}

	var updated model.Participant
	sess, err := m.mutate(ctx, sessionID, func(s *model.Session) error {
		if !s.IsActive {
			return apperr.SessionEnded(s.ID)
		}
		p, ok := s.Participant(userID)
		if !ok {
			return apperr.NotFound("participant %s not in session %s", userID, s.ID)
		}
		upd.Apply(p)
		updated = *p
		return nil
	})
	if err != nil {
		return model.Session{}, model.Participant{}, err
	}
	return sess, updated, nil
}

// RemoveParticipant drops a participant from the roster. Removing the host
// leaves the session active; the caller decides whether that ends it.
func (m *Manager) RemoveParticipant(ctx context.Context, sessionID, userID string) (model.Session, model.Participant, error) {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(userID) == "" {
		return model.Session{}, model.Participant{}, apperr.Invalid("session id and user id are required")
	}
	userID = strings.TrimSpace(userID)

	var removed model.Participant
	sess, err := m.mutate(ctx, sessionID, func(s *model.Session) error {
		p, ok := s.RemoveParticipant(userID)
		if !ok {
			return apperr.NotFound("participant %s not in session %s", userID, s.ID)
		}
		removed = p
		return nil
	})
	if err != nil {
		return model.Session{}, model.Participant{}, err
	}

	m.log.Info().Str("session_id", sessionID).Str("user_id", userID).Bool("was_host", removed.IsHost).Msg("participant removed")
	return sess, removed, nil
}

// GetActiveSession returns the session only while it is active. A missing or
// ended session yields ok=false with a nil error.
func (m *Manager) GetActiveSession(ctx context.Context, sessionID string) (model.Session, bool, error) {
	sess, err := m.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return model.Session{}, false, nil
		}
		return model.Session{}, false, err
	}
	if !sess.IsActive {
		return model.Session{}, false, nil
	}
	return sess, true, nil
}

// GetSession reads the session whatever its state.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (model.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return model.Session{}, apperr.Invalid("session id is required")
	}
	rec, err := m.get(ctx, sessionID)
	if err != nil {
		return model.Session{}, err
	}
	return rec.Session, nil
}

// DeleteSession removes the record outright. Only used to undo a create.
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) error {
	return m.call(ctx, "delete session", func(ctx context.Context) error {
		return m.store.Delete(ctx, sessionID)
	})
}

// errNoChange aborts a mutation without writing.
var errNoChange = errors.New("no change")

// mutate runs read, apply, compare-and-set until it wins or runs out of attempts.
func (m *Manager) mutate(ctx context.Context, sessionID string, apply func(*model.Session) error) (model.Session, error) {
	sessionID = strings.TrimSpace(sessionID)

	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		rec, err := m.get(ctx, sessionID)
		if err != nil {
			return model.Session{}, err
		}

		next := rec.Session.Clone()
		if err := apply(&next); err != nil {
			if errors.Is(err, errNoChange) {
				return rec.Session, nil
			}
			return model.Session{}, err
		}

		var saved store.Record
		err = m.call(ctx, "update session", func(ctx context.Context) error {
			var err error
			saved, err = m.store.CompareAndSet(ctx, rec.Version, next)
			return err
		})
		switch {
		case err == nil:
			return saved.Session, nil
		case errors.Is(err, store.ErrVersionConflict):
			m.log.Debug().Str("session_id", sessionID).Int("attempt", attempt).Msg("version conflict, retrying")
			continue
		case errors.Is(err, store.ErrNotFound):
			return model.Session{}, apperr.NotFound("session %s not found", sessionID)
		default:
			return model.Session{}, err
		}
	}

	m.log.Warn().Str("session_id", sessionID).Int("attempts", m.maxAttempts).Msg("gave up on contended session")
	return model.Session{}, apperr.Conflict(apperr.ReasonContention, "session %s is busy, try again", sessionID)
}

func (m *Manager) get(ctx context.Context, sessionID string) (store.Record, error) {
	var rec store.Record
	err := m.call(ctx, "read session", func(ctx context.Context) error {
		var err error
		rec, err = m.store.Get(ctx, sessionID)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return store.Record{}, apperr.NotFound("session %s not found", sessionID)
	}
	return rec, err
}

// call bounds a store call by opTimeout. Store sentinel errors pass through
// untouched; anything else becomes ServiceUnavailable.
func (m *Manager) call(ctx context.Context, op string, fn func(context.Context) error) error {
	if m.opTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opTimeout)
		defer cancel()
	}
	err := fn(ctx)
	if err == nil ||
		errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, store.ErrExists) ||
		errors.Is(err, store.ErrVersionConflict) {
		return err
	}
	m.log.Error().Err(err).Str("op", op).Msg("store call failed")
	return apperr.Unavailable(err, "%s failed", op)
}

func normalize(userID, username string) (string, string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", "", apperr.Invalid("user id is required")
	}
	name, err := normalizeUsername(username)
	if err != nil {
		return "", "", err
	}
	return userID, name, nil
}

func normalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", apperr.Invalid("username is required")
	}
	if utf8.RuneCountInString(username) > maxUsernameLen {
		return "", apperr.Invalid("username must be at most %d characters", maxUsernameLen)
	}
	return username, nil
}
