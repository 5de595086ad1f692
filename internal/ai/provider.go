package ai

import (
	"context"
	"errors"
)

// ErrNoCredential is reported by remote providers that have no API key.
var ErrNoCredential = errors.New("ai: no credential configured")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider streams assistant content deltas. Both channels are closed when
// the stream ends; at most one error is sent.
type Provider interface {
	StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan error)
}

// send delivers v unless ctx is done first.
func send[T any](ctx context.Context, ch chan<- T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-ctx.Done():
		return false
	}
}
