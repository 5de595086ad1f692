package chat

import "time"

// State transitions. Each function takes a snapshot and returns the next one
// without mutating its input; conversations that are not touched are shared
// between the two snapshots, so callers must treat snapshots as read-only.

func findConversation(s Snapshot, id string) int {
	for i := range s.Conversations {
		if s.Conversations[i].ID == id {
			return i
		}
	}
	return -1
}

// withConversation copies the collection and replaces the conversation at idx
// with the result of fn applied to a deep copy.
func withConversation(s Snapshot, idx int, fn func(c *Conversation)) Snapshot {
	convs := make([]Conversation, len(s.Conversations))
	copy(convs, s.Conversations)
	c := convs[idx].clone()
	fn(&c)
	convs[idx] = c
	s.Conversations = convs
	return s
}

func bump(prev, now time.Time) time.Time {
	if now.Before(prev) {
		return prev
	}
	return now
}

func deriveTitle(content string) string {
	r := []rune(content)
	if len(r) <= titleMaxRunes {
		return content
	}
	return string(r[:titleMaxRunes]) + "..."
}

func createConversation(s Snapshot, c Conversation) Snapshot {
	convs := make([]Conversation, 0, len(s.Conversations)+1)
	convs = append(convs, c)
	convs = append(convs, s.Conversations...)
	s.Conversations = convs
	s.CurrentConversationID = c.ID
	return s
}

func deleteConversation(s Snapshot, id string) (Snapshot, bool) {
	idx := findConversation(s, id)
	if idx < 0 {
		return s, false
	}
	convs := make([]Conversation, 0, len(s.Conversations)-1)
	convs = append(convs, s.Conversations[:idx]...)
	convs = append(convs, s.Conversations[idx+1:]...)
	s.Conversations = convs
	if s.CurrentConversationID == id {
		s.CurrentConversationID = ""
	}
	return s, true
}

func updateConversation(s Snapshot, id string, p ConversationPatch, now time.Time) (Snapshot, bool) {
	idx := findConversation(s, id)
	if idx < 0 {
		return s, false
	}
	return withConversation(s, idx, func(c *Conversation) {
		if p.Title != nil {
			c.Title = *p.Title
		}
		if p.Model != nil {
			c.Model = *p.Model
		}
		if p.Settings != nil {
			c.Settings = p.Settings.clone()
		}
		c.UpdatedAt = bump(c.UpdatedAt, now)
	}), true
}

func addMessage(s Snapshot, conversationID string, m Message, now time.Time) (Snapshot, bool) {
	idx := findConversation(s, conversationID)
	if idx < 0 {
		return s, false
	}
	return withConversation(s, idx, func(c *Conversation) {
		if m.Role == RoleUser && c.Title == DefaultTitle && c.LastUserMessage() == nil {
			c.Title = deriveTitle(m.Content)
		}
		c.Messages = append(c.Messages, m.clone())
		c.UpdatedAt = bump(c.UpdatedAt, now)
	}), true
}

func updateMessage(s Snapshot, conversationID, messageID string, p MessagePatch, now time.Time) (Snapshot, bool) {
	idx := findConversation(s, conversationID)
	if idx < 0 || s.Conversations[idx].MessageIndex(messageID) < 0 {
		return s, false
	}
	return withConversation(s, idx, func(c *Conversation) {
		m := &c.Messages[c.MessageIndex(messageID)]
		if p.Content != nil {
			m.Content = *p.Content
		}
		if p.Metadata != nil {
			md := *p.Metadata
			m.Metadata = &md
		}
		c.UpdatedAt = bump(c.UpdatedAt, now)
	}), true
}

func deleteMessage(s Snapshot, conversationID, messageID string, now time.Time) (Snapshot, bool) {
	idx := findConversation(s, conversationID)
	if idx < 0 || s.Conversations[idx].MessageIndex(messageID) < 0 {
		return s, false
	}
	return withConversation(s, idx, func(c *Conversation) {
		i := c.MessageIndex(messageID)
		c.Messages = append(c.Messages[:i], c.Messages[i+1:]...)
		c.UpdatedAt = bump(c.UpdatedAt, now)
	}), true
}

// truncateFrom drops messageID and everything stored after it.
func truncateFrom(s Snapshot, conversationID, messageID string, now time.Time) (Snapshot, int) {
	idx := findConversation(s, conversationID)
	if idx < 0 {
		return s, 0
	}
	at := s.Conversations[idx].MessageIndex(messageID)
	if at < 0 {
		return s, 0
	}
	removed := len(s.Conversations[idx].Messages) - at
	return withConversation(s, idx, func(c *Conversation) {
		c.Messages = c.Messages[:at]
		c.UpdatedAt = bump(c.UpdatedAt, now)
	}), removed
}

func setCurrent(s Snapshot, id string) Snapshot {
	s.CurrentConversationID = id
	return s
}

func updateSettings(s Snapshot, p SettingsPatch) Snapshot {
	st := s.Settings
	if p.Theme != nil {
		st.Theme = *p.Theme
	}
	if p.DefaultModel != nil {
		st.DefaultModel = *p.DefaultModel
	}
	if p.MessageLimit != nil {
		st.MessageLimit = *p.MessageLimit
	}
	if p.AutoSave != nil {
		st.AutoSave = *p.AutoSave
	}
	if p.KeyboardShortcuts != nil {
		st.KeyboardShortcuts = *p.KeyboardShortcuts
	}
	if p.SidebarCollapsed != nil {
		st.SidebarCollapsed = *p.SidebarCollapsed
		s.SidebarCollapsed = *p.SidebarCollapsed
	}
	s.Settings = st
	return s
}

func toggleSidebar(s Snapshot) Snapshot {
	s.SidebarCollapsed = !s.SidebarCollapsed
	s.Settings.SidebarCollapsed = s.SidebarCollapsed
	return s
}

func cloneSnapshot(s Snapshot) Snapshot {
	out := s
	out.Conversations = make([]Conversation, len(s.Conversations))
	for i, c := range s.Conversations {
		out.Conversations[i] = c.clone()
	}
	return out
}
