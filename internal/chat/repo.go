package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrConversationNotFound = errors.New("conversation not found")

// Persister loads and saves the repository snapshot. Load returns (nil, nil)
// when nothing has been stored yet.
type Persister interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, s Snapshot) error
}

// Repository is the in-memory conversation collection. Every mutation is a
// pure transition over the current snapshot followed by a Save.
type Repository struct {
	mu    sync.RWMutex
	state Snapshot

	// saveMu keeps saves in mutation order without holding mu during I/O.
	saveMu sync.Mutex
	store  Persister

	log    *slog.Logger
	now    func() time.Time
	msgID  func() string
	convID func() string
}

type Option func(*Repository)

func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) {
		if l != nil {
			r.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

func WithIDs(conversation, message func() string) Option {
	return func(r *Repository) {
		if conversation != nil {
			r.convID = conversation
		}
		if message != nil {
			r.msgID = message
		}
	}
}

// NewRepository builds a repository and hydrates it from p.
func NewRepository(ctx context.Context, p Persister, opts ...Option) (*Repository, error) {
	if p == nil {
		p = NewMemoryPersister()
	}
	r := &Repository{
		store:  p,
		log:    slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
		msgID:  uuid.NewString,
		convID: NewConversationID,
		state:  Snapshot{Settings: DefaultSettings()},
	}
	for _, o := range opts {
		o(r)
	}

	loaded, err := p.Load(ctx)
	if err != nil {
		return nil, err
	}
	if loaded != nil {
		s := cloneSnapshot(*loaded)
		if s.Settings.Theme == "" {
			s.Settings = DefaultSettings()
		}
		r.state = s
	}
	return r, nil
}

// commit applies fn under the write lock and, when it reports a change,
// persists the resulting snapshot.
func (r *Repository) commit(ctx context.Context, op string, fn func(s Snapshot) (Snapshot, bool)) bool {
	r.mu.Lock()
	next, changed := fn(r.state)
	if !changed {
		r.mu.Unlock()
		return false
	}
	r.state = next
	r.saveMu.Lock()
	r.mu.Unlock()

	defer r.saveMu.Unlock()
	if err := r.store.Save(ctx, next); err != nil {
		r.log.Warn("persist snapshot failed", "op", op, "err", err)
	}
	return true
}

func (r *Repository) CreateConversation(ctx context.Context, title, model string) string {
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	var id string
	r.commit(ctx, "create_conversation", func(s Snapshot) (Snapshot, bool) {
		if strings.TrimSpace(model) == "" {
			model = s.Settings.DefaultModel
		}
		now := r.now()
		id = r.convID()
		return createConversation(s, Conversation{
			ID:        id,
			Title:     title,
			CreatedAt: now,
			UpdatedAt: now,
			Messages:  []Message{},
			Model:     model,
		}), true
	})
	return id
}

func (r *Repository) DeleteConversation(ctx context.Context, id string) {
	r.commit(ctx, "delete_conversation", func(s Snapshot) (Snapshot, bool) {
		return deleteConversation(s, id)
	})
}

func (r *Repository) UpdateConversation(ctx context.Context, id string, p ConversationPatch) bool {
	return r.commit(ctx, "update_conversation", func(s Snapshot) (Snapshot, bool) {
		return updateConversation(s, id, p, r.now())
	})
}

// AddMessage appends a message and returns it with its assigned id and
// timestamp. ok is false when the conversation does not exist.
func (r *Repository) AddMessage(ctx context.Context, conversationID string, nm NewMessage) (msg Message, ok bool) {
	ok = r.commit(ctx, "add_message", func(s Snapshot) (Snapshot, bool) {
		now := r.now()
		msg = Message{
			ID:             r.msgID(),
			ConversationID: conversationID,
			Role:           nm.Role,
			Content:        nm.Content,
			Timestamp:      now,
		}
		if nm.Metadata != nil {
			md := *nm.Metadata
			msg.Metadata = &md
		}
		return addMessage(s, conversationID, msg, now)
	})
	if !ok {
		return Message{}, false
	}
	return msg.clone(), true
}

func (r *Repository) UpdateMessage(ctx context.Context, conversationID, messageID string, p MessagePatch) bool {
	return r.commit(ctx, "update_message", func(s Snapshot) (Snapshot, bool) {
		return updateMessage(s, conversationID, messageID, p, r.now())
	})
}

func (r *Repository) DeleteMessage(ctx context.Context, conversationID, messageID string) bool {
	return r.commit(ctx, "delete_message", func(s Snapshot) (Snapshot, bool) {
		return deleteMessage(s, conversationID, messageID, r.now())
	})
}

// TruncateFrom removes messageID and every message after it, returning how
// many messages were dropped.
func (r *Repository) TruncateFrom(ctx context.Context, conversationID, messageID string) int {
	var n int
	r.commit(ctx, "truncate", func(s Snapshot) (Snapshot, bool) {
		var next Snapshot
		next, n = truncateFrom(s, conversationID, messageID, r.now())
		return next, n > 0
	})
	return n
}

// SetCurrentConversation does not check that id exists; an unknown id makes
// CurrentConversation report nothing.
func (r *Repository) SetCurrentConversation(ctx context.Context, id string) {
	r.commit(ctx, "set_current", func(s Snapshot) (Snapshot, bool) {
		return setCurrent(s, id), true
	})
}

func (r *Repository) UpdateSettings(ctx context.Context, p SettingsPatch) UserSettings {
	var out UserSettings
	r.commit(ctx, "update_settings", func(s Snapshot) (Snapshot, bool) {
		next := updateSettings(s, p)
		out = next.Settings
		return next, true
	})
	return out
}

func (r *Repository) ToggleSidebar(ctx context.Context) bool {
	var collapsed bool
	r.commit(ctx, "toggle_sidebar", func(s Snapshot) (Snapshot, bool) {
		next := toggleSidebar(s)
		collapsed = next.SidebarCollapsed
		return next, true
	})
	return collapsed
}

func (r *Repository) CurrentConversation() (Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state.CurrentConversationID == "" {
		return Conversation{}, false
	}
	return r.lookupLocked(r.state.CurrentConversationID)
}

func (r *Repository) CurrentConversationID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.CurrentConversationID
}

func (r *Repository) ConversationByID(id string) (Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookupLocked(id)
}

func (r *Repository) lookupLocked(id string) (Conversation, bool) {
	idx := findConversation(r.state, id)
	if idx < 0 {
		return Conversation{}, false
	}
	return r.state.Conversations[idx].clone(), true
}

// Conversations lists conversations most recent first.
func (r *Repository) Conversations() []Conversation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.state).Conversations
}

func (r *Repository) Settings() UserSettings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Settings
}

func (r *Repository) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.state)
}
