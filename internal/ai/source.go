package ai

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/suPer8Hu/gopherchat/internal/chat"
)

// Source turns a conversation history into a stream of cumulative reply
// snapshots. Remote failures that happen before any text arrives are absorbed
// by the fallback generator.
type Source struct {
	registry *Registry
	provider string
	fallback *FallbackGenerator
	log      *slog.Logger
}

func NewSource(registry *Registry, provider string, fallback *FallbackGenerator, log *slog.Logger) *Source {
	if fallback == nil {
		fallback = NewFallbackGenerator()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Source{registry: registry, provider: provider, fallback: fallback, log: log}
}

// Stream starts a generation. The returned error only covers failures to set
// the generation up; the channel is closed when the reply is complete or ctx
// is cancelled.
func (s *Source) Stream(ctx context.Context, history []chat.Message, model string) (<-chan string, error) {
	msgs := ToProviderMessages(history)

	var p Provider
	if s.registry != nil {
		var err error
		p, err = s.registry.Get(ctx, s.provider, model)
		if err != nil {
			return nil, err
		}
	}

	out := make(chan string)
	go func() {
		defer close(out)

		if p != nil {
			chunks, errs := p.StreamChat(ctx, msgs)
			var b strings.Builder
			for c := range chunks {
				b.WriteString(c)
				if !send(ctx, out, b.String()) {
					return
				}
			}
			err := <-errs
			if err == nil || ctx.Err() != nil {
				return
			}
			if b.Len() > 0 {
				s.log.Warn("remote stream ended early", "provider", s.provider, "model", model, "received", b.Len(), "err", err)
				return
			}
			if errors.Is(err, ErrNoCredential) {
				s.log.Info("no credential configured, using fallback replies", "provider", s.provider)
			} else {
				s.log.Warn("remote completion failed, using fallback replies", "provider", s.provider, "model", model, "err", err)
			}
		}

		for snap := range s.fallback.Stream(ctx, msgs) {
			if !send(ctx, out, snap) {
				return
			}
		}
	}()
	return out, nil
}

// ToProviderMessages keeps only role and content, in order.
func ToProviderMessages(history []chat.Message) []Message {
	out := make([]Message, 0, len(history))
	for _, m := range history {
		out = append(out, Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}
