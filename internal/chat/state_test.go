package chat

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitions_DoNotMutateInput(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	s := createConversation(Snapshot{}, Conversation{ID: "c1", Title: DefaultTitle, Messages: []Message{}})
	s, _ = addMessage(s, "c1", Message{ID: "m1", Role: RoleUser, Content: "hi"}, now)
	before := cloneSnapshot(s)

	content := "edited"
	next, ok := updateMessage(s, "c1", "m1", MessagePatch{Content: &content}, now.Add(time.Second))
	require.True(t, ok)
	assert.Equal(t, before, s)
	assert.Equal(t, "edited", next.Conversations[0].Messages[0].Content)

	next, n := truncateFrom(s, "c1", "m1", now)
	assert.Equal(t, 1, n)
	assert.Empty(t, next.Conversations[0].Messages)
	assert.Equal(t, before, s)

	next, ok = deleteConversation(s, "c1")
	require.True(t, ok)
	assert.Empty(t, next.Conversations)
	assert.Empty(t, next.CurrentConversationID)
	assert.Equal(t, before, s)
}

func TestCatalogResolve(t *testing.T) {
	c := DefaultCatalog()

	got, err := c.Resolve("", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultModelID, got)

	got, err = c.Resolve("", "google/gemma-2-9b-it:free")
	require.NoError(t, err)
	assert.Equal(t, "google/gemma-2-9b-it:free", got)

	got, err = c.Resolve("llama3:latest", DefaultModelID)
	require.NoError(t, err)
	assert.Equal(t, "llama3:latest", got)

	_, err = c.Resolve("gpt-4", DefaultModelID)
	assert.True(t, errors.Is(err, ErrModelUnavailable))

	m, ok := c.Lookup("claude-3")
	require.True(t, ok)
	assert.False(t, m.Available)
	assert.Len(t, c.Models(), 8)
}

func TestCatalogPinned(t *testing.T) {
	c := DefaultCatalog()
	assert.Same(t, c, c.Pinned("  "))

	p := c.Pinned("meta-llama/llama-3.1-8b-instruct")

	got, err := p.Resolve("", "")
	require.NoError(t, err)
	assert.Equal(t, "meta-llama/llama-3.1-8b-instruct", got)

	got, err = p.Resolve("google/gemma-2-9b-it:free", DefaultModelID)
	require.NoError(t, err)
	assert.Equal(t, "meta-llama/llama-3.1-8b-instruct", got)

	_, err = p.Resolve("gpt-4", DefaultModelID)
	assert.True(t, errors.Is(err, ErrModelUnavailable))

	// the original catalog is untouched
	got, err = c.Resolve("", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultModelID, got)
	assert.Equal(t, c.Models(), p.Models())
}
