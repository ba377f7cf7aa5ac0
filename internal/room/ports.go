// Package room keeps one media room alive per active session and mints
// access tokens scoped to it.
package room

import (
	"context"
	"errors"
	"time"

	"collab-backend/internal/model"
)

var (
	// ErrRoomNotFound is returned by MediaService.DeleteRoom for absent rooms.
	ErrRoomNotFound = errors.New("room: media room not found")
	// ErrRecordNotFound is returned by RecordStore.Get for absent records.
	ErrRecordNotFound = errors.New("room: record not found")
)

// RoomHandle identifies a room on the media server.
type RoomHandle struct {
	Name string
	SID  string
}

// MediaService is the media server's room API.
type MediaService interface {
	CreateRoom(ctx context.Context, name string, emptyTimeout time.Duration, maxParticipants int) (RoomHandle, error)
	DeleteRoom(ctx context.Context, name string) error
	ListParticipants(ctx context.Context, name string) ([]string, error)
}

// Grant is the set of permissions baked into a token.
type Grant struct {
	Room           string
	CanPublish     bool
	CanSubscribe   bool
	CanPublishData bool
}

// TokenMinter signs participant credentials.
type TokenMinter interface {
	Mint(identity, name string, grant Grant, ttl time.Duration) (string, error)
}

// Record 세션별 미디어 룸 기록
type Record struct {
	RoomName  string `json:"name"`
	RoomID    string `json:"sid"`
	CreatedAt int64  `json:"createdAt"`
}

// RecordStore persists one Record per session.
type RecordStore interface {
	Put(ctx context.Context, sessionID string, rec Record) error
	Get(ctx context.Context, sessionID string) (Record, error)
	Delete(ctx context.Context, sessionID string) error
}

// SessionReader reads a session regardless of state.
type SessionReader interface {
	GetSession(ctx context.Context, sessionID string) (model.Session, error)
}
