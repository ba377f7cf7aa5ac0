package room

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"collab-backend/internal/apperr"
	"collab-backend/internal/config"
	"collab-backend/internal/model"
)

// Coordinator manages the media room paired with each session.
type Coordinator struct {
	media    MediaService
	minter   TokenMinter
	records  RecordStore
	sessions SessionReader

	emptyTimeout    time.Duration
	maxParticipants int
	tokenTTL        time.Duration
	callTimeout     time.Duration

	now func() time.Time
	log zerolog.Logger
}

func NewCoordinator(media MediaService, minter TokenMinter, records RecordStore, sessions SessionReader, cfg config.LiveKitConfig) *Coordinator {
	return &Coordinator{
		media:           media,
		minter:          minter,
		records:         records,
		sessions:        sessions,
		emptyTimeout:    cfg.EmptyTimeout,
		maxParticipants: cfg.MaxParticipants,
		tokenTTL:        cfg.TokenTTL,
		callTimeout:     cfg.CallTimeout,
		now:             time.Now,
		log:             log.With().Str("module", "room.coordinator").Logger(),
	}
}

func (c *Coordinator) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.callTimeout)
}

// CreateRoom provisions the media room and records it. If the record cannot be
// written the room is torn down again.
func (c *Coordinator) CreateRoom(ctx context.Context, sessionID string) (string, error) {
	name := model.RoomName(sessionID)

	cctx, cancel := c.bounded(ctx)
	handle, err := c.media.CreateRoom(cctx, name, c.emptyTimeout, c.maxParticipants)
	cancel()
	if err != nil {
		c.log.Error().Err(err).Str("session_id", sessionID).Str("room", name).Msg("create media room failed")
		return "", apperr.Unavailable(err, "media room for session %s could not be created", sessionID)
	}

	rec := Record{RoomName: handle.Name, RoomID: handle.SID, CreatedAt: c.now().UnixMilli()}
	if rec.RoomName == "" {
		rec.RoomName = name
	}

	cctx, cancel = c.bounded(ctx)
	err = c.records.Put(cctx, sessionID, rec)
	cancel()
	if err != nil {
		c.log.Error().Err(err).Str("session_id", sessionID).Msg("store room record failed, removing room")
		dctx, dcancel := c.bounded(context.WithoutCancel(ctx))
		if derr := c.media.DeleteRoom(dctx, name); derr != nil && !errors.Is(derr, ErrRoomNotFound) {
			c.log.Error().Err(derr).Str("room", name).Msg("orphaned media room")
		}
		dcancel()
		return "", apperr.Unavailable(err, "media room for session %s could not be recorded", sessionID)
	}

	c.log.Info().Str("session_id", sessionID).Str("room", rec.RoomName).Str("sid", rec.RoomID).Msg("media room created")
	return rec.RoomName, nil
}

// GenerateToken mints a credential for a participant of an active session.
func (c *Coordinator) GenerateToken(ctx context.Context, sessionID string, participant model.Participant) (string, error) {
	cctx, cancel := c.bounded(ctx)
	sess, err := c.sessions.GetSession(cctx, sessionID)
	cancel()
	if err != nil {
		return "", err
	}
	if !sess.IsActive {
		return "", apperr.SessionEnded(sessionID)
	}
	if !sess.HasParticipant(participant.ID) {
		return "", apperr.NotFound("participant %s not in session %s", participant.ID, sessionID)
	}

	cctx, cancel = c.bounded(ctx)
	rec, err := c.records.Get(cctx, sessionID)
	cancel()
	if errors.Is(err, ErrRecordNotFound) {
		return "", apperr.Unavailable(err, "no media room for session %s", sessionID)
	}
	if err != nil {
		return "", apperr.Unavailable(err, "read room record for session %s", sessionID)
	}

	token, err := c.minter.Mint(participant.ID, participant.Username, Grant{
		Room:           rec.RoomName,
		CanPublish:     true,
		CanSubscribe:   true,
		CanPublishData: true,
	}, c.tokenTTL)
	if err != nil {
		c.log.Error().Err(err).Str("session_id", sessionID).Msg("token signing failed")
		return "", apperr.Unavailable(err, "could not sign media token")
	}
	return token, nil
}

// DeleteRoom removes the media room and its record. Absent rooms are fine.
func (c *Coordinator) DeleteRoom(ctx context.Context, sessionID string) error {
	name := model.RoomName(sessionID)

	cctx, cancel := c.bounded(ctx)
	err := c.media.DeleteRoom(cctx, name)
	cancel()
	if err != nil && !errors.Is(err, ErrRoomNotFound) {
		return apperr.Unavailable(err, "delete media room %s", name)
	}

	cctx, cancel = c.bounded(ctx)
	err = c.records.Delete(cctx, sessionID)
	cancel()
	if err != nil {
		return apperr.Unavailable(err, "delete room record for session %s", sessionID)
	}

	c.log.Info().Str("session_id", sessionID).Str("room", name).Msg("media room deleted")
	return nil
}

// GetRoomParticipants lists identities connected to the media room. May lag
// the session roster.
func (c *Coordinator) GetRoomParticipants(ctx context.Context, sessionID string) ([]string, error) {
	cctx, cancel := c.bounded(ctx)
	ids, err := c.media.ListParticipants(cctx, model.RoomName(sessionID))
	cancel()
	if err != nil {
		return nil, apperr.Unavailable(err, "list media participants")
	}

	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// GetRoomRecord returns the stored record for a session.
func (c *Coordinator) GetRoomRecord(ctx context.Context, sessionID string) (Record, error) {
	cctx, cancel := c.bounded(ctx)
	rec, err := c.records.Get(cctx, sessionID)
	cancel()
	if errors.Is(err, ErrRecordNotFound) {
		return Record{}, apperr.NotFound("no media room for session %s", sessionID)
	}
	if err != nil {
		return Record{}, apperr.Unavailable(err, "read room record for session %s", sessionID)
	}
	return rec, nil
}
