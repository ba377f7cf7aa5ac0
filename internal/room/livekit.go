package room

import (
	"context"
	"errors"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/twitchtv/twirp"

	"collab-backend/internal/config"
)

// LiveKitMedia talks to the LiveKit RoomService.
type LiveKitMedia struct {
	client *lksdk.RoomServiceClient
}

func NewLiveKitMedia(cfg config.LiveKitConfig) *LiveKitMedia {
	return &LiveKitMedia{
		client: lksdk.NewRoomServiceClient(cfg.Host, cfg.APIKey, cfg.APISecret),
	}
}

func (l *LiveKitMedia) CreateRoom(ctx context.Context, name string, emptyTimeout time.Duration, maxParticipants int) (RoomHandle, error) {
	r, err := l.client.CreateRoom(ctx, &livekit.CreateRoomRequest{
		Name:            name,
		EmptyTimeout:    uint32(emptyTimeout / time.Second),
		MaxParticipants: uint32(maxParticipants),
	})
	if err != nil {
		return RoomHandle{}, err
	}
	return RoomHandle{Name: r.Name, SID: r.Sid}, nil
}

func (l *LiveKitMedia) DeleteRoom(ctx context.Context, name string) error {
	_, err := l.client.DeleteRoom(ctx, &livekit.DeleteRoomRequest{Room: name})
	if isTwirpNotFound(err) {
		return ErrRoomNotFound
	}
	return err
}

func (l *LiveKitMedia) ListParticipants(ctx context.Context, name string) ([]string, error) {
	res, err := l.client.ListParticipants(ctx, &livekit.ListParticipantsRequest{Room: name})
	if err != nil {
		if isTwirpNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	ids := make([]string, 0, len(res.Participants))
	for _, p := range res.Participants {
		ids = append(ids, p.Identity)
	}
	return ids, nil
}

func isTwirpNotFound(err error) bool {
	var te twirp.Error
	return errors.As(err, &te) && te.Code() == twirp.NotFound
}

// LiveKitMinter signs LiveKit access tokens.
type LiveKitMinter struct {
	apiKey    string
	apiSecret string
}

func NewLiveKitMinter(cfg config.LiveKitConfig) *LiveKitMinter {
	return &LiveKitMinter{apiKey: cfg.APIKey, apiSecret: cfg.APISecret}
}

func (m *LiveKitMinter) Mint(identity, name string, grant Grant, ttl time.Duration) (string, error) {
	at := auth.NewAccessToken(m.apiKey, m.apiSecret)

	vg := &auth.VideoGrant{
		RoomJoin: true,
		Room:     grant.Room,
	}
	vg.SetCanPublish(grant.CanPublish)
	vg.SetCanSubscribe(grant.CanSubscribe)
	vg.SetCanPublishData(grant.CanPublishData)

	at.AddGrant(vg).
		SetIdentity(identity).
		SetName(name).
		SetValidFor(ttl)

	return at.ToJWT()
}
