// Package sqlstore persists chat snapshots through gorm.
package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/suPer8Hu/gopherchat/internal/chat"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type saved struct {
	conv     chat.Conversation
	position int
}

// Store implements chat.Persister. It remembers what it last wrote so a save
// only touches conversations that changed.
type Store struct {
	db *gorm.DB

	mu   sync.Mutex
	last map[string]saved
}

func New(db *gorm.DB) *Store {
	return &Store{db: db, last: make(map[string]saved)}
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&Conversation{}, &Message{}, &Settings{})
}

// Load returns nil when nothing has been saved yet.
func (s *Store) Load(ctx context.Context) (*chat.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db := s.db.WithContext(ctx)

	var st Settings
	hasSettings := true
	if err := db.First(&st, settingsRowID).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("load settings: %w", err)
		}
		hasSettings = false
	}

	var convRows []Conversation
	if err := db.Order("position ASC").Find(&convRows).Error; err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}
	if !hasSettings && len(convRows) == 0 {
		return nil, nil
	}

	var msgRows []Message
	if err := db.Order("conversation_id ASC, seq ASC").Find(&msgRows).Error; err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	byConv := make(map[string][]chat.Message, len(convRows))
	for _, r := range msgRows {
		m, err := toMessage(r)
		if err != nil {
			return nil, err
		}
		byConv[r.ConversationID] = append(byConv[r.ConversationID], m)
	}

	snap := &chat.Snapshot{Conversations: make([]chat.Conversation, 0, len(convRows))}
	if hasSettings {
		snap.Settings = st.Settings.Data()
		snap.CurrentConversationID = st.CurrentConversationID
		snap.SidebarCollapsed = st.SidebarCollapsed
	}

	s.last = make(map[string]saved, len(convRows))
	for i, r := range convRows {
		msgs := byConv[r.ID]
		if msgs == nil {
			msgs = []chat.Message{}
		}
		c := chat.Conversation{
			ID:        r.ID,
			Title:     r.Title,
			CreatedAt: r.CreatedAt.UTC(),
			UpdatedAt: r.UpdatedAt.UTC(),
			Messages:  msgs,
			Model:     r.Model,
			Settings:  r.Settings.Data(),
		}
		snap.Conversations = append(snap.Conversations, c)
		s.last[c.ID] = saved{conv: c, position: i}
	}
	return snap, nil
}

// Save writes snap in one transaction.
func (s *Store) Save(ctx context.Context, snap chat.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]saved, len(snap.Conversations))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, c := range snap.Conversations {
			next[c.ID] = saved{conv: c, position: i}

			prev, ok := s.last[c.ID]
			switch {
			case ok && reflect.DeepEqual(prev.conv, c):
				if prev.position != i {
					if err := tx.Model(&Conversation{}).Where("id = ?", c.ID).Update("position", i).Error; err != nil {
						return err
					}
				}
			default:
				if err := writeConversation(tx, c, i); err != nil {
					return err
				}
			}
		}

		for id := range s.last {
			if _, keep := next[id]; keep {
				continue
			}
			if err := tx.Where("conversation_id = ?", id).Delete(&Message{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&Conversation{}, "id = ?", id).Error; err != nil {
				return err
			}
		}

		row := Settings{
			ID:                    settingsRowID,
			Settings:              datatypes.NewJSONType(snap.Settings),
			CurrentConversationID: snap.CurrentConversationID,
			SidebarCollapsed:      snap.SidebarCollapsed,
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	})
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	s.last = next
	return nil
}

func writeConversation(tx *gorm.DB, c chat.Conversation, position int) error {
	row := Conversation{
		ID:        c.ID,
		Position:  position,
		Title:     c.Title,
		Model:     c.Model,
		Settings:  datatypes.NewJSONType(c.Settings),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
		return err
	}

	if err := tx.Where("conversation_id = ?", c.ID).Delete(&Message{}).Error; err != nil {
		return err
	}
	if len(c.Messages) == 0 {
		return nil
	}
	rows := make([]Message, 0, len(c.Messages))
	for i, m := range c.Messages {
		r, err := fromMessage(m, c.ID, i)
		if err != nil {
			return err
		}
		rows = append(rows, r)
	}
	return tx.CreateInBatches(rows, 200).Error
}

func fromMessage(m chat.Message, conversationID string, seq int) (Message, error) {
	r := Message{
		ID:             m.ID,
		ConversationID: conversationID,
		Seq:            seq,
		Role:           string(m.Role),
		Content:        m.Content,
		Timestamp:      m.Timestamp,
	}
	if m.Metadata != nil {
		b, err := json.Marshal(m.Metadata)
		if err != nil {
			return Message{}, fmt.Errorf("encode metadata of %s: %w", m.ID, err)
		}
		r.Metadata = datatypes.JSON(b)
	}
	return r, nil
}

func toMessage(r Message) (chat.Message, error) {
	m := chat.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		Role:           chat.Role(r.Role),
		Content:        r.Content,
		Timestamp:      r.Timestamp.UTC(),
	}
	if len(r.Metadata) > 0 && string(r.Metadata) != "null" {
		var md chat.Metadata
		if err := json.Unmarshal(r.Metadata, &md); err != nil {
			return chat.Message{}, fmt.Errorf("decode metadata of %s: %w", r.ID, err)
		}
		m.Metadata = &md
	}
	return m, nil
}
