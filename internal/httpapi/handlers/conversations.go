package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/gopherchat/internal/chat"
	"github.com/suPer8Hu/gopherchat/internal/common"
	"github.com/suPer8Hu/gopherchat/internal/stream"
)

type conversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Generating   bool      `json:"generating"`
}

func (h *Handler) ListConversations(c *gin.Context) {
	convs := h.Repo.Conversations()
	out := make([]conversationSummary, 0, len(convs))
	for _, cv := range convs {
		out = append(out, conversationSummary{
			ID:           cv.ID,
			Title:        cv.Title,
			Model:        cv.Model,
			MessageCount: len(cv.Messages),
			CreatedAt:    cv.CreatedAt,
			UpdatedAt:    cv.UpdatedAt,
			Generating:   h.Ctrl.State(cv.ID) != stream.StateIdle,
		})
	}
	common.OK(c, gin.H{
		"conversations":     out,
		"current_id":        h.Repo.CurrentConversationID(),
		"sidebar_collapsed": h.Repo.Snapshot().SidebarCollapsed,
	})
}

type createConversationReq struct {
	Title string `json:"title"`
	Model string `json:"model"`
}

func (h *Handler) CreateConversation(c *gin.Context) {
	var req createConversationReq
	_ = c.ShouldBindJSON(&req) // allow empty {}

	if m := strings.TrimSpace(req.Model); m != "" {
		if _, err := h.Catalog.Resolve(m, ""); err != nil {
			failErr(c, err)
			return
		}
	}

	id := h.Repo.CreateConversation(c.Request.Context(), req.Title, req.Model)
	cv, _ := h.Repo.ConversationByID(id)
	common.OK(c, gin.H{"conversation": cv})
}

func (h *Handler) GetConversation(c *gin.Context) {
	cv, ok := h.Repo.ConversationByID(c.Param("id"))
	if !ok {
		failErr(c, chat.ErrConversationNotFound)
		return
	}
	common.OK(c, gin.H{
		"conversation": cv,
		"state":        h.Ctrl.State(cv.ID),
	})
}

type patchConversationReq struct {
	Title    *string                    `json:"title"`
	Model    *string                    `json:"model"`
	Settings *chat.ConversationSettings `json:"settings"`
}

func (h *Handler) PatchConversation(c *gin.Context) {
	var req patchConversationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "title must not be empty")
		return
	}
	if req.Model != nil {
		if _, err := h.Catalog.Resolve(*req.Model, h.Repo.Settings().DefaultModel); err != nil {
			failErr(c, err)
			return
		}
	}

	id := c.Param("id")
	if !h.Repo.UpdateConversation(c.Request.Context(), id, chat.ConversationPatch{
		Title:    req.Title,
		Model:    req.Model,
		Settings: req.Settings,
	}) {
		failErr(c, chat.ErrConversationNotFound)
		return
	}
	cv, _ := h.Repo.ConversationByID(id)
	common.OK(c, gin.H{"conversation": cv})
}

func (h *Handler) DeleteConversation(c *gin.Context) {
	id := c.Param("id")
	h.Ctrl.Stop(id)
	h.Repo.DeleteConversation(c.Request.Context(), id)
	common.OK(c, gin.H{"id": id})
}

type setCurrentReq struct {
	ID string `json:"id"`
}

// SetCurrentConversation accepts any id, including unknown ones; an empty id
// clears the selection.
func (h *Handler) SetCurrentConversation(c *gin.Context) {
	var req setCurrentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	h.Repo.SetCurrentConversation(c.Request.Context(), req.ID)
	_, exists := h.Repo.ConversationByID(req.ID)
	common.OK(c, gin.H{"current_id": req.ID, "exists": exists})
}
