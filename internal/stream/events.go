package stream

import "time"

type EventKind string

const (
	EventStarted   EventKind = "started"
	EventSnapshot  EventKind = "snapshot"
	EventCompleted EventKind = "completed"
	EventAborted   EventKind = "aborted"
	EventErrored   EventKind = "errored"
)

// Event describes one step of a generation. Content carries the cumulative
// reply text for snapshot and terminal events.
type Event struct {
	Kind           EventKind `json:"kind"`
	GenerationID   string    `json:"generation_id"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	Model          string    `json:"model,omitempty"`
	Content        string    `json:"content,omitempty"`
	Snapshots      int       `json:"snapshots"`
	Regenerated    bool      `json:"regenerated,omitempty"`
	Error          string    `json:"error,omitempty"`
	At             time.Time `json:"at"`
}

// Terminal reports whether e is the last event of its generation.
func (e Event) Terminal() bool {
	switch e.Kind {
	case EventCompleted, EventAborted, EventErrored:
		return true
	}
	return false
}

// Observer receives generation events on the generation's goroutine. It must
// not block for long.
type Observer interface {
	OnGeneration(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) OnGeneration(e Event) { f(e) }
