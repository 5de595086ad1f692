package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suPer8Hu/gopherchat/internal/chat"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := New(NewClient(mr.Addr(), "", 0), "")
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestLoad_MissingKey(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Ping(context.Background()))

	snap, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	repo, err := chat.NewRepository(ctx, s, chat.WithClock(func() time.Time { return t0 }))
	require.NoError(t, err)

	id := repo.CreateConversation(ctx, "", "")
	repo.AddMessage(ctx, id, chat.NewMessage{Role: chat.RoleUser, Content: "hello redis"})
	repo.AddMessage(ctx, id, chat.NewMessage{Role: chat.RoleAssistant, Content: "hi", Metadata: &chat.Metadata{Model: "m"}})

	assert.True(t, mr.Exists(DefaultKey))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, repo.Snapshot(), *got)

	reloaded, err := chat.NewRepository(ctx, s)
	require.NoError(t, err)
	cur, ok := reloaded.CurrentConversation()
	require.True(t, ok)
	assert.Equal(t, "hello redis", cur.Title)
}

func TestLoad_CorruptValue(t *testing.T) {
	s, mr := newTestStore(t)
	require.NoError(t, mr.Set(DefaultKey, "{oops"))

	_, err := s.Load(context.Background())
	assert.Error(t, err)
}
