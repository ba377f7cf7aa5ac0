// Package store persists session records with a version counter so writers
// can detect concurrent modification.
package store

import (
	"context"
	"errors"

	"collab-backend/internal/model"
)

var (
	ErrNotFound        = errors.New("store: session not found")
	ErrExists          = errors.New("store: session already exists")
	ErrVersionConflict = errors.New("store: version conflict")
)

// Record is a stored session and the version it was read at.
type Record struct {
	Session model.Session
	Version uint64
}

// SessionStore is a versioned key-value store for sessions.
type SessionStore interface {
	Get(ctx context.Context, id string) (Record, error)
	// Create writes version 1. Fails with ErrExists if the id is taken.
	Create(ctx context.Context, s model.Session) (Record, error)
	// Set writes unconditionally and bumps the version.
	Set(ctx context.Context, s model.Session) (Record, error)
	// CompareAndSet writes only if the stored version equals expected.
	CompareAndSet(ctx context.Context, expected uint64, s model.Session) (Record, error)
	// Delete is a no-op for unknown ids.
	Delete(ctx context.Context, id string) error
}

// SessionKey is the Redis key of a session record without the global prefix.
func SessionKey(id string) string {
	return "collab_session_" + id
}
