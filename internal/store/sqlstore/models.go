package sqlstore

import (
	"time"

	"github.com/suPer8Hu/gopherchat/internal/chat"
	"gorm.io/datatypes"
)

type Conversation struct {
	ID        string                                       `gorm:"primaryKey;type:varchar(64)"`
	Position  int                                          `gorm:"index;not null"`
	Title     string                                       `gorm:"type:varchar(255);not null"`
	Model     string                                       `gorm:"type:varchar(128);not null"`
	Settings  datatypes.JSONType[chat.ConversationSettings] `gorm:"not null"`
	CreatedAt time.Time                                    `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time                                    `gorm:"autoUpdateTime:false"`
}

func (Conversation) TableName() string { return "chat_conversations" }

type Message struct {
	ID             string         `gorm:"primaryKey;type:varchar(64)"`
	ConversationID string         `gorm:"type:varchar(64);not null;index:idx_chat_msg_conv_seq,priority:1"`
	Seq            int            `gorm:"not null;index:idx_chat_msg_conv_seq,priority:2"`
	Role           string         `gorm:"type:varchar(16);not null"`
	Content        string         `gorm:"type:text;not null"`
	Metadata       datatypes.JSON `gorm:"type:json"`
	Timestamp      time.Time      `gorm:"not null"`
}

func (Message) TableName() string { return "chat_messages" }

// Settings is a single-row table holding the process-wide preferences.
type Settings struct {
	ID                    uint                                  `gorm:"primaryKey;autoIncrement:false"`
	Settings              datatypes.JSONType[chat.UserSettings] `gorm:"not null"`
	CurrentConversationID string                                `gorm:"type:varchar(64)"`
	SidebarCollapsed      bool                                  `gorm:"not null"`
	UpdatedAt             time.Time
}

func (Settings) TableName() string { return "chat_settings" }

const settingsRowID = 1
