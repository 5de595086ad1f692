package ai

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode"
)

const fallbackDisclaimer = "\n\n**Note: This is a mock response. To get real AI responses, set the OPENROUTER_API_KEY environment variable.**"

const (
	greetingReply = "Hello! I'm here to help. What would you like to know or discuss today?"
	codeReply     = "I'd be happy to help you with coding! Here's what I can assist you with:\n\n```go\n// Example code\nfunc greet(name string) string {\n\treturn \"Hello, \" + name + \"!\"\n}\n```\n\nWhat specific programming question do you have?"
	explainReply  = "I'll explain that concept clearly for you. Let me break it down into digestible parts so you can understand it better."
)

var genericReplies = []string{
	"I'm a helpful AI assistant. How can I help you today?",
	"That's an interesting question! Let me think about that...",
	"I understand what you're asking. Here's my perspective on that topic:",
	"Great question! I'd be happy to help you with that.",
	"Let me break this down for you step by step:",
	"That's a complex topic. Here are some key points to consider:",
	"I can definitely help you with that. Here's what I recommend:",
	"Thanks for asking! Here's what I think about that:",
}

// FallbackGenerator produces canned replies when no remote provider can
// answer. It streams cumulative text word by word and never fails.
type FallbackGenerator struct {
	// Each word waits MinDelay plus up to Jitter.
	MinDelay time.Duration
	Jitter   time.Duration

	mu   sync.Mutex
	rnd  *rand.Rand
	next int
}

func NewFallbackGenerator() *FallbackGenerator {
	return &FallbackGenerator{
		MinDelay: 50 * time.Millisecond,
		Jitter:   100 * time.Millisecond,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Reply picks the full response text for history, disclaimer included.
func (g *FallbackGenerator) Reply(history []Message) string {
	var last string
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "user" {
			last = strings.ToLower(history[i].Content)
			break
		}
	}

	var reply string
	switch {
	case hasWord(last, "hello", "hi", "hey"):
		reply = greetingReply
	case strings.Contains(last, "code") || strings.Contains(last, "programming"):
		reply = codeReply
	case strings.Contains(last, "explain"):
		reply = explainReply
	default:
		g.mu.Lock()
		reply = genericReplies[g.next%len(genericReplies)]
		g.next++
		g.mu.Unlock()
	}
	return reply + fallbackDisclaimer
}

// Stream yields the reply one word at a time as cumulative snapshots.
func (g *FallbackGenerator) Stream(ctx context.Context, history []Message) <-chan string {
	out := make(chan string)
	words := strings.Split(g.Reply(history), " ")

	go func() {
		defer close(out)
		var b strings.Builder
		for i, w := range words {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(w)
			if !send(ctx, out, b.String()) {
				return
			}
			if !g.sleep(ctx) {
				return
			}
		}
	}()
	return out
}

func (g *FallbackGenerator) sleep(ctx context.Context) bool {
	d := g.MinDelay
	if g.Jitter > 0 {
		g.mu.Lock()
		if g.rnd == nil {
			g.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
		}
		d += time.Duration(g.rnd.Int63n(int64(g.Jitter)))
		g.mu.Unlock()
	}
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func hasWord(s string, words ...string) bool {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, f := range fields {
		for _, w := range words {
			if f == w {
				return true
			}
		}
	}
	return false
}
