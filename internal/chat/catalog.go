package chat

import (
	"errors"
	"fmt"
	"strings"
)

const DefaultModelID = "meta-llama/llama-3.2-3b-instruct:free"

var ErrModelUnavailable = errors.New("model unavailable")

type AIModel struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Provider    string `json:"provider"`
	MaxTokens   int    `json:"max_tokens"`
	Available   bool   `json:"available"`
}

var defaultCatalog = []AIModel{
	{ID: "meta-llama/llama-3.2-3b-instruct:free", Name: "Llama 3.2 3B", Description: "Fast and efficient open-source model (Free)", Provider: "Meta", MaxTokens: 8192, Available: true},
	{ID: "meta-llama/llama-3.2-1b-instruct:free", Name: "Llama 3.2 1B", Description: "Lightweight model for simple tasks (Free)", Provider: "Meta", MaxTokens: 8192, Available: true},
	{ID: "google/gemma-2-9b-it:free", Name: "Gemma 2 9B", Description: "Google's efficient instruction-tuned model (Free)", Provider: "Google", MaxTokens: 8192, Available: true},
	{ID: "microsoft/phi-3-mini-128k-instruct:free", Name: "Phi-3 Mini", Description: "Microsoft's compact model (Free)", Provider: "Microsoft", MaxTokens: 128000, Available: true},
	{ID: "qwen/qwen-2-7b-instruct:free", Name: "Qwen 2 7B", Description: "Alibaba's multilingual model (Free)", Provider: "Alibaba", MaxTokens: 32768, Available: true},
	{ID: "gpt-4", Name: "GPT-4", Description: "Most capable model, best for complex tasks", Provider: "OpenAI", MaxTokens: 8192, Available: false},
	{ID: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo", Description: "Fast and efficient for most tasks", Provider: "OpenAI", MaxTokens: 4096, Available: false},
	{ID: "claude-3", Name: "Claude 3", Description: "Anthropic's latest model", Provider: "Anthropic", MaxTokens: 8192, Available: false},
}

// Catalog is a static list of known models.
type Catalog struct {
	models []AIModel
	pinned string
}

func DefaultCatalog() *Catalog {
	return NewCatalog(defaultCatalog)
}

func NewCatalog(models []AIModel) *Catalog {
	return &Catalog{models: append([]AIModel(nil), models...)}
}

// Pinned returns a copy of c whose Resolve answers with id for every request
// that passes validation. An empty id returns c unchanged.
func (c *Catalog) Pinned(id string) *Catalog {
	id = strings.TrimSpace(id)
	if id == "" {
		return c
	}
	return &Catalog{models: c.models, pinned: id}
}

func (c *Catalog) Models() []AIModel {
	return append([]AIModel(nil), c.models...)
}

func (c *Catalog) Lookup(id string) (AIModel, bool) {
	for _, m := range c.models {
		if m.ID == id {
			return m, true
		}
	}
	return AIModel{}, false
}

// Resolve picks the model for a generation request. An empty id falls back to
// defaultModel. Ids outside the catalog are passed through so custom provider
// models keep working; catalog entries marked unavailable are rejected. A
// pinned catalog replaces the result with its pinned model.
func (c *Catalog) Resolve(id, defaultModel string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = strings.TrimSpace(defaultModel)
	}
	if id == "" {
		id = DefaultModelID
	}
	if m, ok := c.Lookup(id); ok && !m.Available {
		return "", fmt.Errorf("%w: %s", ErrModelUnavailable, id)
	}
	if c.pinned != "" {
		return c.pinned, nil
	}
	return id, nil
}
