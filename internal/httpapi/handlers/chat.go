package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/gopherchat/internal/chat"
	"github.com/suPer8Hu/gopherchat/internal/common"
	"github.com/suPer8Hu/gopherchat/internal/stream"
	"github.com/suPer8Hu/gopherchat/internal/transfer"
)

// heartbeat keeps idle SSE connections alive through proxies.
var heartbeat = 15 * time.Second

const maxImportBytes = 8 << 20

type sendMessageReq struct {
	Content string `json:"content" binding:"required"`
}

// SendMessage appends a user message and streams the reply as server-sent
// events. With ?stream=false it waits and answers with the final message.
func (h *Handler) SendMessage(c *gin.Context) {
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	events, obs := h.subscribe(c)
	g, err := h.Ctrl.SendTo(c.Request.Context(), c.Param("id"), req.Content, obs...)
	if err != nil {
		failErr(c, err)
		return
	}
	h.respond(c, g, events)
}

func (h *Handler) Regenerate(c *gin.Context) {
	events, obs := h.subscribe(c)
	g, err := h.Ctrl.Regenerate(c.Request.Context(), c.Param("id"), c.Param("mid"), obs...)
	if err != nil {
		failErr(c, err)
		return
	}
	if g == nil {
		// Unknown message or nothing left to answer.
		cv, _ := h.Repo.ConversationByID(c.Param("id"))
		common.OK(c, gin.H{"regenerated": false, "conversation": cv})
		return
	}
	h.respond(c, g, events)
}

func (h *Handler) StopGeneration(c *gin.Context) {
	common.OK(c, gin.H{"stopped": h.Ctrl.Stop(c.Param("id"))})
}

func (h *Handler) DeleteMessage(c *gin.Context) {
	id, mid := c.Param("id"), c.Param("mid")
	if _, ok := h.Repo.ConversationByID(id); !ok {
		failErr(c, chat.ErrConversationNotFound)
		return
	}
	if g, ok := h.Ctrl.Active(id); ok && g.AssistantMessageID == mid {
		common.Fail(c, http.StatusConflict, 40902, "message is still being generated")
		return
	}
	deleted := h.Repo.DeleteMessage(c.Request.Context(), id, mid)
	common.OK(c, gin.H{"deleted": deleted})
}

func (h *Handler) ExportConversation(c *gin.Context) {
	cv, ok := h.Repo.ConversationByID(c.Param("id"))
	if !ok {
		failErr(c, chat.ErrConversationNotFound)
		return
	}
	format := transfer.ParseFormat(c.DefaultQuery("format", "json"))
	body := transfer.ExportConversation(cv.Messages, format)

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="conversation-%s%s"`, cv.ID, format.FileExtension()))
	c.Data(http.StatusOK, format.MimeType(), []byte(body))
}

// ImportConversation appends messages from the request body. Imported
// messages get fresh ids and timestamps.
func (h *Handler) ImportConversation(c *gin.Context) {
	id := c.Param("id")
	if _, ok := h.Repo.ConversationByID(id); !ok {
		failErr(c, chat.ErrConversationNotFound)
		return
	}
	if h.Ctrl.State(id) != stream.StateIdle {
		failErr(c, stream.ErrBusy)
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBytes+1))
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "failed to read body")
		return
	}
	if len(body) > maxImportBytes {
		common.Fail(c, http.StatusRequestEntityTooLarge, 41300, "import too large")
		return
	}

	format := transfer.ParseFormat(c.DefaultQuery("format", "json"))
	msgs := transfer.ImportConversation(c.Request.Context(), string(body), format)
	ctx := c.Request.Context()
	imported := 0
	for _, m := range msgs {
		if _, ok := h.Repo.AddMessage(ctx, id, chat.NewMessage{Role: m.Role, Content: m.Content, Metadata: m.Metadata}); ok {
			imported++
		}
	}
	common.OK(c, gin.H{"imported": imported})
}

func wantsStream(c *gin.Context) bool {
	v, err := strconv.ParseBool(c.DefaultQuery("stream", "true"))
	return err != nil || v
}

// subscribe returns a per-request event channel and the observer feeding
// it. The observer gives up once the client is gone. Non-streaming requests
// get neither.
func (h *Handler) subscribe(c *gin.Context) (<-chan stream.Event, []stream.Observer) {
	if !wantsStream(c) {
		return nil, nil
	}
	events := make(chan stream.Event, 64)
	done := c.Request.Context().Done()
	return events, []stream.Observer{stream.ObserverFunc(func(e stream.Event) {
		select {
		case events <- e:
		case <-done:
		}
	})}
}

func (h *Handler) respond(c *gin.Context, g *stream.Generation, events <-chan stream.Event) {
	if events == nil {
		h.waitJSON(c, g)
		return
	}
	h.streamSSE(c, g, events)
}

func (h *Handler) waitJSON(c *gin.Context, g *stream.Generation) {
	select {
	case <-g.Done():
	case <-c.Request.Context().Done():
		return
	}
	cv, _ := h.Repo.ConversationByID(g.ConversationID)
	var reply *chat.Message
	if i := cv.MessageIndex(g.AssistantMessageID); i >= 0 {
		reply = &cv.Messages[i]
	}
	resp := gin.H{
		"generation_id":   g.ID,
		"conversation_id": g.ConversationID,
		"state":           g.Result(),
		"message":         reply,
	}
	if err := g.Err(); err != nil {
		resp["error"] = err.Error()
	}
	common.OK(c, resp)
}

func (h *Handler) streamSSE(c *gin.Context, g *stream.Generation, events <-chan stream.Event) {
	// SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx

	// avoid gin writing a JSON response later
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		// can't stream
		fmt.Fprintf(c.Writer, "event: error\ndata: flusher not supported\n\n")
		return
	}

	writeJSON := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			// last-resort: send a simple error that won't break SSE framing
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		if event != "" {
			fmt.Fprintf(c.Writer, "event: %s\n", event)
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", string(b))
		flusher.Flush()
	}

	writeJSON("start", gin.H{
		"type":            "start",
		"generation_id":   g.ID,
		"conversation_id": g.ConversationID,
		"user_message_id": g.UserMessageID,
		"message_id":      g.AssistantMessageID,
		"model":           g.Model,
	})

	// heartbeat ticker (keeps connections alive)
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case e := <-events:
			switch e.Kind {
			case stream.EventSnapshot:
				writeJSON("snapshot", gin.H{
					"type":       "snapshot",
					"message_id": e.MessageID,
					"content":    e.Content,
				})
			case stream.EventErrored:
				writeJSON("error", gin.H{
					"type":    "error",
					"message": e.Error,
				})
				return
			case stream.EventCompleted, stream.EventAborted:
				writeJSON("done", gin.H{
					"type":       "done",
					"state":      g.Result(),
					"message_id": e.MessageID,
					"content":    e.Content,
					"snapshots":  e.Snapshots,
				})
				return
			}

		case <-ticker.C:
			writeJSON("ping", gin.H{
				"type": "ping",
				"ts":   time.Now().Unix(),
			})

		case <-ctx.Done():
			return
		}
	}
}
