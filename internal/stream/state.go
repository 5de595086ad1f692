package stream

import "errors"

// State is the lifecycle position of a conversation's generation.
type State string

const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting"
	StateStreaming  State = "streaming"
	StateCompleted  State = "completed"
	StateAborted    State = "aborted"
	StateErrored    State = "errored"
)

// Terminal reports whether s ends a generation.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateAborted, StateErrored:
		return true
	}
	return false
}

func (s State) active() bool {
	return s == StateRequesting || s == StateStreaming
}

var (
	ErrBusy         = errors.New("stream: generation already in progress")
	ErrEmptyContent = errors.New("stream: message content is empty")
)

// ApologyText is shown to the user when a generation could not be started.
const ApologyText = "Sorry, I encountered an error while generating a response. Please try again."
