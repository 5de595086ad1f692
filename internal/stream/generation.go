package stream

import (
	"context"
	"sync"
)

// Generation is one in-flight assistant reply.
type Generation struct {
	ID                 string
	ConversationID     string
	UserMessageID      string
	AssistantMessageID string
	Model              string
	Regenerated        bool

	ctx       context.Context
	cancel    context.CancelFunc
	observers []Observer

	// mu guards everything below and is held while a snapshot is applied,
	// so a Stop that returns has seen the last write.
	mu        sync.Mutex
	state     State
	stopped   bool
	content   string
	snapshots int
	err       error

	done chan struct{}
}

// Done is closed once the generation reached a terminal state.
func (g *Generation) Done() <-chan struct{} { return g.done }

// Wait blocks until the generation ends and returns its terminal state.
func (g *Generation) Wait() State {
	<-g.done
	return g.Result()
}

// Result returns the current state; after Done it is terminal.
func (g *Generation) Result() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Content returns the last snapshot applied to the assistant message.
func (g *Generation) Content() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.content
}

func (g *Generation) Snapshots() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshots
}

// Err is the orchestration failure for an errored generation.
func (g *Generation) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

func (g *Generation) isStopped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopped
}

func (g *Generation) setState(s State) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
}
