package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 2048
)

type OpenRouterProvider struct {
	BaseURL     string
	APIKey      string
	Model       string
	SiteURL     string
	AppName     string
	Temperature float64
	MaxTokens   int
	Client      *http.Client
	Log         *slog.Logger
}

type openRouterChatReq struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type openRouterStreamResp struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewOpenRouterProvider(baseURL, apiKey, model, siteURL, appName string) *OpenRouterProvider {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	if siteURL == "" {
		siteURL = "http://localhost:3000"
	}
	if appName == "" {
		appName = "GopherChat"
	}
	return &OpenRouterProvider{
		BaseURL:     baseURL,
		APIKey:      apiKey,
		Model:       model,
		SiteURL:     siteURL,
		AppName:     appName,
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
		// Streaming replies can run long; the request context bounds them.
		Client: &http.Client{},
	}
}

func (p *OpenRouterProvider) logger() *slog.Logger {
	if p.Log != nil {
		return p.Log
	}
	return slog.Default()
}

// StreamChat streams assistant content chunks via SSE. Fragments that are not
// valid JSON are skipped.
func (p *OpenRouterProvider) StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		if p.Client == nil {
			errs <- errors.New("openrouter: http client is nil")
			return
		}
		if strings.TrimSpace(p.APIKey) == "" {
			errs <- ErrNoCredential
			return
		}
		model := strings.TrimSpace(p.Model)
		if model == "" {
			errs <- errors.New("openrouter: model is required")
			return
		}

		b, err := json.Marshal(openRouterChatReq{
			Model:       model,
			Messages:    messages,
			Stream:      true,
			Temperature: p.Temperature,
			MaxTokens:   p.MaxTokens,
		})
		if err != nil {
			errs <- err
			return
		}

		url := fmt.Sprintf("%s/chat/completions", strings.TrimRight(p.BaseURL, "/"))
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			errs <- err
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
		if p.SiteURL != "" {
			req.Header.Set("HTTP-Referer", p.SiteURL)
		}
		if p.AppName != "" {
			req.Header.Set("X-Title", p.AppName)
		}

		start := time.Now()
		resp, err := p.Client.Do(req)
		if err != nil {
			errs <- err
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
			msg := strings.TrimSpace(string(body))
			if msg == "" {
				msg = fmt.Sprintf("status %d", resp.StatusCode)
			}
			errs <- fmt.Errorf("openrouter: %s", msg)
			return
		}

		sc := bufio.NewScanner(resp.Body)
		buf := make([]byte, 0, 64*1024)
		sc.Buffer(buf, 2*1024*1024)

		skipped := 0
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}
			var decoded openRouterStreamResp
			if err := json.Unmarshal([]byte(data), &decoded); err != nil {
				skipped++
				continue
			}
			if decoded.Error != nil && decoded.Error.Message != "" {
				errs <- fmt.Errorf("openrouter: %s", decoded.Error.Message)
				return
			}
			if len(decoded.Choices) == 0 {
				continue
			}
			delta := decoded.Choices[0].Delta.Content
			if delta != "" && !send(ctx, chunks, delta) {
				return
			}
		}
		if skipped > 0 {
			p.logger().Debug("openrouter: skipped malformed chunks", "count", skipped, "model", model, "cost", time.Since(start))
		}

		if err := sc.Err(); err != nil {
			errs <- err
			return
		}
	}()

	return chunks, errs
}
