package sqlstore

import (
	"context"
	"time"

	"github.com/suPer8Hu/gopherchat/internal/stream"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GenerationEvent is one lifecycle event received from the event queue.
type GenerationEvent struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	GenerationID   string    `gorm:"type:varchar(36);not null;index:uniq_gen_event,unique,priority:1" json:"generation_id"`
	Kind           string    `gorm:"type:varchar(16);not null;index:uniq_gen_event,unique,priority:2" json:"kind"`
	ConversationID string    `gorm:"type:varchar(64);index;not null" json:"conversation_id"`
	MessageID      string    `gorm:"type:varchar(64)" json:"message_id"`
	Model          string    `gorm:"type:varchar(128)" json:"model"`
	Snapshots      int       `json:"snapshots"`
	ContentLength  int       `json:"content_length"`
	Regenerated    bool      `json:"regenerated"`
	Error          *string   `gorm:"type:text" json:"error,omitempty"`
	At             time.Time `gorm:"index" json:"at"`
	CreatedAt      time.Time `json:"created_at"`
}

func (GenerationEvent) TableName() string { return "chat_generation_events" }

// EventLog records generation events. Redelivered events are stored once.
type EventLog struct {
	db *gorm.DB
}

func NewEventLog(db *gorm.DB) *EventLog {
	return &EventLog{db: db}
}

func (l *EventLog) Migrate(ctx context.Context) error {
	return l.db.WithContext(ctx).AutoMigrate(&GenerationEvent{})
}

func (l *EventLog) Record(ctx context.Context, e stream.Event) error {
	row := GenerationEvent{
		GenerationID:   e.GenerationID,
		Kind:           string(e.Kind),
		ConversationID: e.ConversationID,
		MessageID:      e.MessageID,
		Model:          e.Model,
		Snapshots:      e.Snapshots,
		ContentLength:  len(e.Content),
		Regenerated:    e.Regenerated,
		At:             e.At,
	}
	if e.Error != "" {
		row.Error = &e.Error
	}
	return l.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

// Recent returns the newest events first.
func (l *EventLog) Recent(ctx context.Context, limit int) ([]GenerationEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var out []GenerationEvent
	if err := l.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
