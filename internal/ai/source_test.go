package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suPer8Hu/gopherchat/internal/chat"
)

func quietFallback() *FallbackGenerator {
	return &FallbackGenerator{}
}

func collect(t *testing.T, ch <-chan string) []string {
	t.Helper()
	var out []string
	timeout := time.After(5 * time.Second)
	for {
		select {
		case s, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, s)
		case <-timeout:
			t.Fatalf("stream did not finish")
			return nil
		}
	}
}

func sseServer(t *testing.T, status int, lines []string, captured *openRouterChatReq) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if captured != nil {
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, captured)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(status)
		for _, l := range lines {
			fmt.Fprintf(w, "%s\n\n", l)
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}))
}

func delta(s string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"delta": map[string]any{"content": s}}},
	})
	return "data: " + string(b)
}

func openRouterSource(srv *httptest.Server, key string) *Source {
	reg := NewRegistry()
	reg.Register("openrouter", func(ctx context.Context, model string) (Provider, error) {
		_ = ctx
		p := NewOpenRouterProvider(srv.URL, key, model, "", "")
		p.Client = srv.Client()
		return p, nil
	})
	return NewSource(reg, "openrouter", quietFallback(), nil)
}

func history(content string) []chat.Message {
	return []chat.Message{
		{ID: "1", Role: chat.RoleSystem, Content: "be nice"},
		{ID: "2", Role: chat.RoleUser, Content: content},
	}
}

func TestSource_RemoteCumulativeSnapshots(t *testing.T) {
	var req openRouterChatReq
	srv := sseServer(t, http.StatusOK, []string{
		": keep-alive comment",
		delta("Hel"),
		"data: {not json",
		delta("lo"),
		`data: {"choices":[]}`,
		delta(" world"),
		"data: [DONE]",
		delta("ignored"),
	}, &req)
	defer srv.Close()

	ch, err := openRouterSource(srv, "test-key").Stream(context.Background(), history("question"), "some/model")
	require.NoError(t, err)

	got := collect(t, ch)
	assert.Equal(t, []string{"Hel", "Hello", "Hello world"}, got)

	assert.Equal(t, "some/model", req.Model)
	assert.True(t, req.Stream)
	assert.Equal(t, 0.7, req.Temperature)
	assert.Equal(t, 2048, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, Message{Role: "user", Content: "question"}, req.Messages[1])
}

func TestSource_NonSuccessStatusFallsBack(t *testing.T) {
	srv := sseServer(t, http.StatusTooManyRequests, []string{`{"error":"rate limited"}`}, nil)
	defer srv.Close()

	ch, err := openRouterSource(srv, "test-key").Stream(context.Background(), history("hello"), "m")
	require.NoError(t, err)

	got := collect(t, ch)
	require.NotEmpty(t, got)
	assert.Equal(t, greetingReply+fallbackDisclaimer, got[len(got)-1])
}

func TestSource_NoCredentialFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("remote should not be called without a key")
	}))
	defer srv.Close()

	ch, err := openRouterSource(srv, "").Stream(context.Background(), history("please explain monads"), "m")
	require.NoError(t, err)
	got := collect(t, ch)
	require.NotEmpty(t, got)
	assert.Equal(t, explainReply+fallbackDisclaimer, got[len(got)-1])
}

func TestSource_TransportErrorFallsBack(t *testing.T) {
	srv := sseServer(t, http.StatusOK, nil, nil)
	srv.Close()

	ch, err := openRouterSource(srv, "test-key").Stream(context.Background(), history("write some code"), "m")
	require.NoError(t, err)
	got := collect(t, ch)
	require.NotEmpty(t, got)
	assert.Equal(t, codeReply+fallbackDisclaimer, got[len(got)-1])
}

func TestSource_StreamErrorAfterTextKeepsPartial(t *testing.T) {
	srv := sseServer(t, http.StatusOK, []string{
		delta("partial"),
		`data: {"error":{"message":"upstream died"}}`,
	}, nil)
	defer srv.Close()

	ch, err := openRouterSource(srv, "test-key").Stream(context.Background(), history("hello"), "m")
	require.NoError(t, err)
	assert.Equal(t, []string{"partial"}, collect(t, ch))
}

func TestSource_UnknownProvider(t *testing.T) {
	s := NewSource(NewRegistry(), "nope", quietFallback(), nil)
	_, err := s.Stream(context.Background(), history("hi"), "m")
	assert.True(t, errors.Is(err, ErrUnknownProvider))
}

func TestSource_CancelStopsStream(t *testing.T) {
	gen := &FallbackGenerator{MinDelay: 20 * time.Millisecond}
	s := NewSource(nil, "", gen, nil)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := s.Stream(ctx, history("something long"), "m")
	require.NoError(t, err)
	first := <-ch
	assert.NotEmpty(t, first)
	cancel()

	// The channel must close promptly once ctx is cancelled.
	for range ch {
	}
}

func TestSource_OllamaNDJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"Hi"},"done":false}`)
		fmt.Fprintln(w, `garbage`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":" there"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true}`)
	}))
	defer srv.Close()

	reg := NewRegistry()
	reg.Register("ollama", func(ctx context.Context, model string) (Provider, error) {
		return NewOllamaProvider(srv.URL, model), nil
	})
	ch, err := NewSource(reg, "OLLAMA", quietFallback(), nil).Stream(context.Background(), history("x"), "llama3")
	require.NoError(t, err)
	assert.Equal(t, []string{"Hi", "Hi there"}, collect(t, ch))
}

func TestFallback_Selection(t *testing.T) {
	g := quietFallback()
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{"greeting", "Hello there", greetingReply},
		{"hi as word", "hi!", greetingReply},
		{"code", "Review my CODE", codeReply},
		{"programming", "programming languages", codeReply},
		{"explain", "Explain gravity", explainReply},
		{"hi inside word is not a greeting", "this is it", genericReplies[0]},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g.next = 0
			got := g.Reply([]Message{{Role: "user", Content: tc.content}})
			assert.Equal(t, tc.want+fallbackDisclaimer, got)
		})
	}
}

func TestFallback_RotatesGenericReplies(t *testing.T) {
	g := quietFallback()
	h := []Message{{Role: "user", Content: "tell me a story"}, {Role: "assistant", Content: "hello"}}
	first := g.Reply(h)
	second := g.Reply(h)
	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasSuffix(first, fallbackDisclaimer))
}

func TestFallback_StreamsWordByWord(t *testing.T) {
	g := quietFallback()
	got := collect(t, g.Stream(context.Background(), []Message{{Role: "user", Content: "hello"}}))
	full := greetingReply + fallbackDisclaimer
	assert.Len(t, got, len(strings.Split(full, " ")))
	assert.Equal(t, "Hello!", got[0])
	for i := 1; i < len(got); i++ {
		assert.True(t, strings.HasPrefix(got[i], got[i-1]))
	}
	assert.Equal(t, full, got[len(got)-1])
}
