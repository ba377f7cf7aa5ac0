// Package archive keeps a summary row for every ended session.
package archive

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"collab-backend/internal/model"
)

// Record 종료된 세션 요약 (드로잉 스트로크는 저장하지 않음)
type Record struct {
	SessionID        string    `gorm:"primaryKey;size:64" json:"sessionId"`
	HostID           string    `gorm:"size:128" json:"hostId"`
	ParticipantCount int       `json:"participantCount"`
	Participants     string    `gorm:"type:jsonb;not null" json:"participants"`
	StartedAt        time.Time `json:"startedAt"`
	EndedAt          time.Time `gorm:"index" json:"endedAt"`
}

func (Record) TableName() string {
	return "collab_session_archives"
}

// NewRecord builds the archive row for an ended session.
func NewRecord(sess model.Session, endedAt time.Time) (Record, error) {
	participants := sess.Participants
	if participants == nil {
		participants = []model.Participant{}
	}
	data, err := json.Marshal(participants)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		SessionID:        sess.ID,
		ParticipantCount: len(sess.Participants),
		Participants:     string(data),
		StartedAt:        time.UnixMilli(sess.CreatedAt).UTC(),
		EndedAt:          endedAt.UTC(),
	}
	if host, ok := sess.Host(); ok {
		rec.HostID = host.ID
	}
	return rec, nil
}

// Repository writes archive rows.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Save upserts the summary of sess.
func (r *Repository) Save(ctx context.Context, sess model.Session, endedAt time.Time) error {
	rec, err := NewRecord(sess, endedAt)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			UpdateAll: true,
		}).
		Create(&rec).Error
}

// Get loads one archived session.
func (r *Repository) Get(ctx context.Context, sessionID string) (Record, error) {
	var rec Record
	err := r.db.WithContext(ctx).First(&rec, "session_id = ?", sessionID).Error
	return rec, err
}
