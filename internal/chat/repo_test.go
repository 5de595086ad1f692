package chat

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T, opts ...Option) (*Repository, *MemoryPersister) {
	t.Helper()
	p := NewMemoryPersister()
	r, err := NewRepository(context.Background(), p, opts...)
	require.NoError(t, err)
	return r, p
}

func TestCreateConversation_HeadAndCurrent(t *testing.T) {
	r, p := newTestRepo(t)
	ctx := context.Background()

	first := r.CreateConversation(ctx, "", "")
	second := r.CreateConversation(ctx, "named", "custom/model")

	convs := r.Conversations()
	require.Len(t, convs, 2)
	assert.Equal(t, second, convs[0].ID)
	assert.Equal(t, first, convs[1].ID)

	assert.Equal(t, DefaultTitle, convs[1].Title)
	assert.Equal(t, DefaultModelID, convs[1].Model)
	assert.Equal(t, "named", convs[0].Title)
	assert.Equal(t, "custom/model", convs[0].Model)

	cur, ok := r.CurrentConversation()
	require.True(t, ok)
	assert.Equal(t, second, cur.ID)
	assert.Equal(t, 2, p.Saves())
}

func TestAddMessage_PreservesOrderAndUniqueIDs(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	id := r.CreateConversation(ctx, "", "")

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		m, ok := r.AddMessage(ctx, id, NewMessage{Role: role, Content: fmt.Sprintf("m%d", i)})
		require.True(t, ok)
		assert.False(t, seen[m.ID], "duplicate id %s", m.ID)
		seen[m.ID] = true
		assert.Equal(t, id, m.ConversationID)
		assert.False(t, m.Timestamp.IsZero())
	}

	conv, ok := r.ConversationByID(id)
	require.True(t, ok)
	require.Len(t, conv.Messages, 20)
	for i, m := range conv.Messages {
		assert.Equal(t, fmt.Sprintf("m%d", i), m.Content)
	}
}

func TestAddMessage_UnknownConversation(t *testing.T) {
	r, p := newTestRepo(t)
	_, ok := r.AddMessage(context.Background(), "missing", NewMessage{Role: RoleUser, Content: "x"})
	assert.False(t, ok)
	assert.Equal(t, 0, p.Saves())
}

func TestAddMessage_DerivesTitle(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	short := r.CreateConversation(ctx, "", "")
	r.AddMessage(ctx, short, NewMessage{Role: RoleUser, Content: "hello there"})
	r.AddMessage(ctx, short, NewMessage{Role: RoleUser, Content: "second message"})
	conv, _ := r.ConversationByID(short)
	assert.Equal(t, "hello there", conv.Title)

	long := r.CreateConversation(ctx, "", "")
	content := strings.Repeat("é", 60)
	r.AddMessage(ctx, long, NewMessage{Role: RoleUser, Content: content})
	conv, _ = r.ConversationByID(long)
	assert.Equal(t, strings.Repeat("é", 50)+"...", conv.Title)

	named := r.CreateConversation(ctx, "keep me", "")
	r.AddMessage(ctx, named, NewMessage{Role: RoleUser, Content: "ignored"})
	conv, _ = r.ConversationByID(named)
	assert.Equal(t, "keep me", conv.Title)
}

func TestAddMessage_AssistantDoesNotSetTitle(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	id := r.CreateConversation(ctx, "", "")
	r.AddMessage(ctx, id, NewMessage{Role: RoleAssistant, Content: "from assistant"})
	conv, _ := r.ConversationByID(id)
	assert.Equal(t, DefaultTitle, conv.Title)
}

func TestDeleteConversation_Idempotent(t *testing.T) {
	r, p := newTestRepo(t)
	ctx := context.Background()
	keep := r.CreateConversation(ctx, "", "")
	gone := r.CreateConversation(ctx, "", "")

	r.DeleteConversation(ctx, gone)
	_, ok := r.ConversationByID(gone)
	assert.False(t, ok)
	_, ok = r.CurrentConversation()
	assert.False(t, ok)
	assert.Empty(t, r.CurrentConversationID())

	before := r.Snapshot()
	saves := p.Saves()
	r.DeleteConversation(ctx, "does-not-exist")
	r.DeleteConversation(ctx, gone)
	assert.Equal(t, before, r.Snapshot())
	assert.Equal(t, saves, p.Saves())

	_, ok = r.ConversationByID(keep)
	assert.True(t, ok)
}

func TestDeleteConversation_KeepsOtherCurrent(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	a := r.CreateConversation(ctx, "", "")
	b := r.CreateConversation(ctx, "", "")
	r.DeleteConversation(ctx, a)
	assert.Equal(t, b, r.CurrentConversationID())
}

func TestUpdateMessage_MergesContentAndMetadata(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	id := r.CreateConversation(ctx, "", "")
	m, _ := r.AddMessage(ctx, id, NewMessage{Role: RoleAssistant})

	content := "partial"
	require.True(t, r.UpdateMessage(ctx, id, m.ID, MessagePatch{Content: &content}))
	require.True(t, r.UpdateMessage(ctx, id, m.ID, MessagePatch{Metadata: &Metadata{Model: "x"}}))

	conv, _ := r.ConversationByID(id)
	got := conv.Messages[0]
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, "partial", got.Content)
	require.NotNil(t, got.Metadata)
	assert.Equal(t, "x", got.Metadata.Model)
	assert.Equal(t, m.Timestamp, got.Timestamp)

	assert.False(t, r.UpdateMessage(ctx, id, "nope", MessagePatch{Content: &content}))
	assert.False(t, r.UpdateMessage(ctx, "nope", m.ID, MessagePatch{Content: &content}))
}

func TestDeleteMessageAndTruncate(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	id := r.CreateConversation(ctx, "", "")
	var ids []string
	for i := 0; i < 5; i++ {
		m, _ := r.AddMessage(ctx, id, NewMessage{Role: RoleUser, Content: fmt.Sprint(i)})
		ids = append(ids, m.ID)
	}

	assert.True(t, r.DeleteMessage(ctx, id, ids[0]))
	assert.False(t, r.DeleteMessage(ctx, id, ids[0]))

	assert.Equal(t, 3, r.TruncateFrom(ctx, id, ids[2]))
	assert.Equal(t, 0, r.TruncateFrom(ctx, id, "missing"))

	conv, _ := r.ConversationByID(id)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, ids[1], conv.Messages[0].ID)
}

func TestUpdatedAt_Monotonic(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := []time.Time{base, base.Add(time.Minute), base.Add(-time.Hour), base.Add(2 * time.Minute)}
	i := 0
	now := func() time.Time {
		t := clock[i%len(clock)]
		i++
		return t
	}
	r, _ := newTestRepo(t, WithClock(now))
	ctx := context.Background()

	id := r.CreateConversation(ctx, "", "")
	var last time.Time
	for n := 0; n < 3; n++ {
		r.AddMessage(ctx, id, NewMessage{Role: RoleUser, Content: "x"})
		conv, _ := r.ConversationByID(id)
		assert.False(t, conv.UpdatedAt.Before(last))
		last = conv.UpdatedAt
	}
}

func TestUpdateConversation(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	id := r.CreateConversation(ctx, "", "")

	title := "Renamed"
	temp := 0.2
	ok := r.UpdateConversation(ctx, id, ConversationPatch{
		Title:    &title,
		Settings: &ConversationSettings{Temperature: &temp, SystemPrompt: "be brief"},
	})
	require.True(t, ok)
	assert.False(t, r.UpdateConversation(ctx, "missing", ConversationPatch{Title: &title}))

	conv, _ := r.ConversationByID(id)
	assert.Equal(t, "Renamed", conv.Title)
	require.NotNil(t, conv.Settings.Temperature)
	assert.Equal(t, 0.2, *conv.Settings.Temperature)

	r.AddMessage(ctx, id, NewMessage{Role: RoleUser, Content: "no rename"})
	conv, _ = r.ConversationByID(id)
	assert.Equal(t, "Renamed", conv.Title)
}

func TestSetCurrentConversation_Permissive(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	r.CreateConversation(ctx, "", "")

	r.SetCurrentConversation(ctx, "ghost")
	assert.Equal(t, "ghost", r.CurrentConversationID())
	_, ok := r.CurrentConversation()
	assert.False(t, ok)

	r.SetCurrentConversation(ctx, "")
	_, ok = r.CurrentConversation()
	assert.False(t, ok)
}

func TestLookupsReturnCopies(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	id := r.CreateConversation(ctx, "", "")
	r.AddMessage(ctx, id, NewMessage{Role: RoleUser, Content: "original", Metadata: &Metadata{Model: "m"}})

	conv, _ := r.ConversationByID(id)
	conv.Messages[0].Content = "changed"
	conv.Messages[0].Metadata.Model = "changed"

	again, _ := r.ConversationByID(id)
	assert.Equal(t, "original", again.Messages[0].Content)
	assert.Equal(t, "m", again.Messages[0].Metadata.Model)
}

func TestSettingsAndSidebar(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	assert.Equal(t, DefaultSettings(), r.Settings())

	dark := ThemeDark
	limit := 10
	got := r.UpdateSettings(ctx, SettingsPatch{Theme: &dark, MessageLimit: &limit})
	assert.Equal(t, ThemeDark, got.Theme)
	assert.Equal(t, 10, got.MessageLimit)
	assert.True(t, got.AutoSave)

	assert.True(t, r.ToggleSidebar(ctx))
	assert.True(t, r.Snapshot().SidebarCollapsed)
	assert.False(t, r.ToggleSidebar(ctx))
}

func TestNewRepository_Hydrates(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPersister()
	r, err := NewRepository(ctx, p)
	require.NoError(t, err)
	id := r.CreateConversation(ctx, "", "")
	r.AddMessage(ctx, id, NewMessage{Role: RoleUser, Content: "persist me"})

	reloaded, err := NewRepository(ctx, p)
	require.NoError(t, err)
	conv, ok := reloaded.ConversationByID(id)
	require.True(t, ok)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "persist me", conv.Messages[0].Content)
	assert.Equal(t, id, reloaded.CurrentConversationID())
}
