// Package transfer converts conversation messages to and from text formats.
package transfer

import (
	"context"
	"encoding/json"
	"strings"
	"unicode"

	"github.com/suPer8Hu/gopherchat/internal/chat"
	"github.com/suPer8Hu/gopherchat/internal/logger"
)

type Format string

const (
	FormatJSON     Format = "json"
	FormatText     Format = "txt"
	FormatMarkdown Format = "md"
)

// ParseFormat maps user input to a Format. Anything unrecognised is JSON.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "txt", "text":
		return FormatText
	case "md", "markdown":
		return FormatMarkdown
	default:
		return FormatJSON
	}
}

func (f Format) FileExtension() string {
	return "." + string(ParseFormat(string(f)))
}

func (f Format) MimeType() string {
	switch ParseFormat(string(f)) {
	case FormatText:
		return "text/plain; charset=utf-8"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	default:
		return "application/json"
	}
}

// ExportConversation renders messages in format.
//
//	json: the message array, indented by two spaces
//	txt:  "ROLE: content" blocks separated by a blank line
//	md:   "**Role:** content" blocks separated by a blank line
func ExportConversation(messages []chat.Message, format Format) string {
	switch ParseFormat(string(format)) {
	case FormatText:
		blocks := make([]string, 0, len(messages))
		for _, m := range messages {
			blocks = append(blocks, strings.ToUpper(string(m.Role))+": "+m.Content)
		}
		return strings.Join(blocks, "\n\n")
	case FormatMarkdown:
		blocks := make([]string, 0, len(messages))
		for _, m := range messages {
			blocks = append(blocks, "**"+capitalize(string(m.Role))+":** "+m.Content)
		}
		return strings.Join(blocks, "\n\n")
	default:
		if messages == nil {
			messages = []chat.Message{}
		}
		b, err := json.MarshalIndent(messages, "", "  ")
		if err != nil {
			return "[]"
		}
		return string(b)
	}
}

// ImportConversation parses text produced by ExportConversation. Only JSON
// is understood; other formats and unparsable input yield no messages.
func ImportConversation(ctx context.Context, text string, format Format) []chat.Message {
	log := logger.FromContext(ctx)
	if ParseFormat(string(format)) != FormatJSON {
		log.Info("import: format not supported, nothing imported", "format", format)
		return []chat.Message{}
	}

	var msgs []chat.Message
	if err := json.Unmarshal([]byte(text), &msgs); err != nil {
		log.Warn("import: parse failed", "err", err, "bytes", len(text))
		return []chat.Message{}
	}

	out := make([]chat.Message, 0, len(msgs))
	for i, m := range msgs {
		if !m.Role.Valid() {
			log.Warn("import: skipping message with unknown role", "index", i, "role", m.Role)
			continue
		}
		out = append(out, m)
	}
	return out
}

func capitalize(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
