package chat

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// DefaultTitle is the title a conversation carries until its first user message arrives.
const DefaultTitle = "New Chat"

// titleMaxRunes bounds the title derived from the first user message.
const titleMaxRunes = 50

type Metadata struct {
	Model       string `json:"model,omitempty"`
	Tokens      int    `json:"tokens,omitempty"`
	Error       string `json:"error,omitempty"`
	Regenerated bool   `json:"regenerated,omitempty"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	Metadata       *Metadata `json:"metadata,omitempty"`
}

// NewMessage is a message before the repository assigns its id and timestamp.
type NewMessage struct {
	Role     Role
	Content  string
	Metadata *Metadata
}

// MessagePatch carries the only fields that may change after creation.
type MessagePatch struct {
	Content  *string
	Metadata *Metadata
}

type ConversationSettings struct {
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    *int     `json:"max_tokens,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
}

type Conversation struct {
	ID        string               `json:"id"`
	Title     string               `json:"title"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
	Messages  []Message            `json:"messages"`
	Model     string               `json:"model"`
	Settings  ConversationSettings `json:"settings"`
}

type ConversationPatch struct {
	Title    *string
	Model    *string
	Settings *ConversationSettings
}

// MessageIndex returns the position of messageID, or -1.
func (c *Conversation) MessageIndex(messageID string) int {
	for i := range c.Messages {
		if c.Messages[i].ID == messageID {
			return i
		}
	}
	return -1
}

// LastUserMessage returns the most recent user message, or nil.
func (c *Conversation) LastUserMessage() *Message {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser {
			return &c.Messages[i]
		}
	}
	return nil
}

func (c Conversation) clone() Conversation {
	out := c
	out.Messages = make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		out.Messages[i] = m.clone()
	}
	out.Settings = c.Settings.clone()
	return out
}

func (m Message) clone() Message {
	if m.Metadata != nil {
		md := *m.Metadata
		m.Metadata = &md
	}
	return m
}

func (s ConversationSettings) clone() ConversationSettings {
	if s.Temperature != nil {
		v := *s.Temperature
		s.Temperature = &v
	}
	if s.MaxTokens != nil {
		v := *s.MaxTokens
		s.MaxTokens = &v
	}
	return s
}

type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

type UserSettings struct {
	Theme             Theme  `json:"theme"`
	DefaultModel      string `json:"default_model"`
	MessageLimit      int    `json:"message_limit"`
	AutoSave          bool   `json:"auto_save"`
	KeyboardShortcuts bool   `json:"keyboard_shortcuts"`
	SidebarCollapsed  bool   `json:"sidebar_collapsed"`
}

type SettingsPatch struct {
	Theme             *Theme
	DefaultModel      *string
	MessageLimit      *int
	AutoSave          *bool
	KeyboardShortcuts *bool
	SidebarCollapsed  *bool
}

func DefaultSettings() UserSettings {
	return UserSettings{
		Theme:             ThemeSystem,
		DefaultModel:      DefaultModelID,
		MessageLimit:      100,
		AutoSave:          true,
		KeyboardShortcuts: true,
	}
}

// Snapshot is the unit handed to a Persister.
type Snapshot struct {
	Conversations         []Conversation `json:"conversations"`
	CurrentConversationID string         `json:"current_conversation_id,omitempty"`
	Settings              UserSettings   `json:"settings"`
	SidebarCollapsed      bool           `json:"sidebar_collapsed"`
}
