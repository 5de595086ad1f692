package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/suPer8Hu/gopherchat/internal/chat"
)

// Streamer yields cumulative reply snapshots for a history. The error covers
// setup failures only.
type Streamer interface {
	Stream(ctx context.Context, history []chat.Message, model string) (<-chan string, error)
}

// Controller runs at most one generation per conversation and writes each
// snapshot into the repository.
type Controller struct {
	repo    *chat.Repository
	source  Streamer
	catalog *chat.Catalog
	log     *slog.Logger

	mu        sync.Mutex
	active    map[string]*Generation
	observers []Observer
}

func NewController(repo *chat.Repository, source Streamer, catalog *chat.Catalog, log *slog.Logger) *Controller {
	if catalog == nil {
		catalog = chat.DefaultCatalog()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		repo:    repo,
		source:  source,
		catalog: catalog,
		log:     log,
		active:  make(map[string]*Generation),
	}
}

// Subscribe registers an observer for every generation started afterwards.
func (c *Controller) Subscribe(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// State reports the lifecycle state of conversationID.
func (c *Controller) State(conversationID string) State {
	c.mu.Lock()
	g := c.active[conversationID]
	c.mu.Unlock()
	if g == nil {
		return StateIdle
	}
	s := g.Result()
	if s.Terminal() {
		return StateIdle
	}
	return s
}

// Active returns the running generation for conversationID, if any.
func (c *Controller) Active(conversationID string) (*Generation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.active[conversationID]
	return g, ok
}

// Send posts content to the current conversation, creating one when there is
// none, and starts generating a reply.
func (c *Controller) Send(ctx context.Context, content string, obs ...Observer) (*Generation, error) {
	id := c.repo.CurrentConversationID()
	if _, ok := c.repo.ConversationByID(id); !ok {
		id = c.repo.CreateConversation(ctx, "", "")
	}
	return c.SendTo(ctx, id, content, obs...)
}

// SendTo posts content to conversationID and starts generating a reply.
func (c *Controller) SendTo(ctx context.Context, conversationID, content string, obs ...Observer) (*Generation, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	conv, ok := c.repo.ConversationByID(conversationID)
	if !ok {
		return nil, fmt.Errorf("send: %w", chat.ErrConversationNotFound)
	}
	model, err := c.catalog.Resolve(conv.Model, c.repo.Settings().DefaultModel)
	if err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}

	g, err := c.reserve(ctx, conversationID, model, obs)
	if err != nil {
		return nil, err
	}

	user, ok := c.repo.AddMessage(ctx, conversationID, chat.NewMessage{Role: chat.RoleUser, Content: content})
	if !ok {
		c.release(g)
		return nil, fmt.Errorf("send: %w", chat.ErrConversationNotFound)
	}
	g.UserMessageID = user.ID

	return c.launch(ctx, g)
}

// Regenerate drops messageID and everything after it, then produces a new
// reply to the latest remaining user message. When that user message is now
// the last one the reply is generated in place; otherwise the user message is
// sent again. Unknown ids and histories without a user message yield a nil
// generation and no error.
func (c *Controller) Regenerate(ctx context.Context, conversationID, messageID string, obs ...Observer) (*Generation, error) {
	conv, ok := c.repo.ConversationByID(conversationID)
	if !ok || conv.MessageIndex(messageID) < 0 {
		return nil, nil
	}
	model, err := c.catalog.Resolve(conv.Model, c.repo.Settings().DefaultModel)
	if err != nil {
		return nil, fmt.Errorf("regenerate: %w", err)
	}

	g, err := c.reserve(ctx, conversationID, model, obs)
	if err != nil {
		return nil, err
	}

	removed := c.repo.TruncateFrom(ctx, conversationID, messageID)
	conv, ok = c.repo.ConversationByID(conversationID)
	if !ok {
		c.release(g)
		return nil, nil
	}
	last := conv.LastUserMessage()
	if last == nil {
		c.release(g)
		c.log.Debug("regenerate: no user message left", "conversation", conversationID, "removed", removed)
		return nil, nil
	}

	if conv.Messages[len(conv.Messages)-1].ID != last.ID {
		if g.isStopped() {
			c.finish(g, StateAborted, "")
			return g, nil
		}
		content := last.Content
		c.release(g)
		return c.SendTo(ctx, conversationID, content, obs...)
	}

	g.UserMessageID = last.ID
	g.Regenerated = true
	return c.launch(ctx, g)
}

// Stop cancels the running generation of conversationID. Once Stop returns
// true no further snapshot is written to the assistant message.
func (c *Controller) Stop(conversationID string) bool {
	g, ok := c.Active(conversationID)
	if !ok {
		return false
	}
	g.mu.Lock()
	if !g.state.active() || g.stopped {
		g.mu.Unlock()
		return false
	}
	g.stopped = true
	cancel := g.cancel
	g.mu.Unlock()
	cancel()
	return true
}

// reserve claims conversationID for a new generation. The generation context
// exists before the generation is visible, so Stop works from Requesting on.
func (c *Controller) reserve(ctx context.Context, conversationID, model string, obs []Observer) (*Generation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.active[conversationID]; busy {
		return nil, ErrBusy
	}
	all := make([]Observer, 0, len(c.observers)+len(obs))
	all = append(all, c.observers...)
	all = append(all, obs...)

	genCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g := &Generation{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Model:          model,
		ctx:            genCtx,
		cancel:         cancel,
		observers:      all,
		state:          StateRequesting,
		done:           make(chan struct{}),
	}
	c.active[conversationID] = g
	return g, nil
}

func (c *Controller) release(g *Generation) {
	g.cancel()
	c.mu.Lock()
	if c.active[g.ConversationID] == g {
		delete(c.active, g.ConversationID)
	}
	c.mu.Unlock()
}

// launch appends the placeholder reply and starts consuming the source. The
// generation outlives ctx; only Stop cancels it. A generation stopped while
// still requesting ends as aborted without a placeholder.
func (c *Controller) launch(ctx context.Context, g *Generation) (*Generation, error) {
	if g.isStopped() {
		c.finish(g, StateAborted, "")
		return g, nil
	}
	meta := &chat.Metadata{Model: g.Model, Regenerated: g.Regenerated}
	placeholder, ok := c.repo.AddMessage(ctx, g.ConversationID, chat.NewMessage{Role: chat.RoleAssistant, Metadata: meta})
	if !ok {
		c.release(g)
		return nil, fmt.Errorf("send: %w", chat.ErrConversationNotFound)
	}
	g.AssistantMessageID = placeholder.ID

	conv, _ := c.repo.ConversationByID(g.ConversationID)
	history := historyUpTo(conv, g.UserMessageID)

	go c.run(g.ctx, g, history)
	return g, nil
}

func (c *Controller) run(ctx context.Context, g *Generation, history []chat.Message) {
	defer g.cancel()
	log := c.log.With("conversation", g.ConversationID, "generation", g.ID, "model", g.Model)
	start := time.Now()

	c.emit(g, EventStarted, "", "")

	snaps, err := c.source.Stream(ctx, history, g.Model)
	if err != nil && g.isStopped() {
		log.Info("generation stopped before streaming", "err", err)
		c.finish(g, StateAborted, "")
		return
	}
	if err != nil {
		log.Error("generation failed", "err", err)
		c.repo.AddMessage(ctx, g.ConversationID, chat.NewMessage{
			Role:     chat.RoleAssistant,
			Content:  ApologyText,
			Metadata: &chat.Metadata{Model: g.Model, Error: err.Error()},
		})
		g.mu.Lock()
		g.err = err
		g.mu.Unlock()
		c.finish(g, StateErrored, err.Error())
		return
	}

	g.mu.Lock()
	if !g.stopped {
		g.state = StateStreaming
	}
	g.mu.Unlock()

	meta := &chat.Metadata{Model: g.Model, Regenerated: g.Regenerated}
	for snap := range snaps {
		g.mu.Lock()
		if g.stopped {
			g.mu.Unlock()
			break
		}
		text := snap
		applied := c.repo.UpdateMessage(ctx, g.ConversationID, g.AssistantMessageID, chat.MessagePatch{Content: &text, Metadata: meta})
		if !applied {
			// The conversation or the placeholder is gone; nothing left to write to.
			g.stopped = true
			g.mu.Unlock()
			g.cancel()
			break
		}
		g.content = snap
		g.snapshots++
		g.mu.Unlock()
		c.emit(g, EventSnapshot, snap, "")
	}
	// Let the producer unwind before the generation is reported finished.
	for range snaps {
	}

	g.mu.Lock()
	stopped := g.stopped
	n := g.snapshots
	g.mu.Unlock()

	if stopped {
		log.Info("generation stopped", "snapshots", n, "cost", time.Since(start))
		c.finish(g, StateAborted, "")
		return
	}
	log.Info("generation completed", "snapshots", n, "cost", time.Since(start))
	c.finish(g, StateCompleted, "")
}

func (c *Controller) finish(g *Generation, s State, errText string) {
	g.setState(s)
	c.release(g)

	kind := EventCompleted
	switch s {
	case StateAborted:
		kind = EventAborted
	case StateErrored:
		kind = EventErrored
	}
	c.emit(g, kind, g.Content(), errText)
	close(g.done)
}

func (c *Controller) emit(g *Generation, kind EventKind, content, errText string) {
	if len(g.observers) == 0 {
		return
	}
	e := Event{
		Kind:           kind,
		GenerationID:   g.ID,
		ConversationID: g.ConversationID,
		MessageID:      g.AssistantMessageID,
		Model:          g.Model,
		Content:        content,
		Snapshots:      g.Snapshots(),
		Regenerated:    g.Regenerated,
		Error:          errText,
		At:             time.Now().UTC(),
	}
	for _, o := range g.observers {
		o.OnGeneration(e)
	}
}

// historyUpTo returns the messages up to and including messageID, prefixed by
// the conversation's system prompt when it has one.
func historyUpTo(conv chat.Conversation, messageID string) []chat.Message {
	end := conv.MessageIndex(messageID)
	if end < 0 {
		end = len(conv.Messages) - 1
	}
	out := make([]chat.Message, 0, end+2)
	if p := strings.TrimSpace(conv.Settings.SystemPrompt); p != "" {
		if len(conv.Messages) == 0 || conv.Messages[0].Role != chat.RoleSystem {
			out = append(out, chat.Message{ConversationID: conv.ID, Role: chat.RoleSystem, Content: p})
		}
	}
	return append(out, conv.Messages[:end+1]...)
}
