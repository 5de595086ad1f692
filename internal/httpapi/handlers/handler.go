package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/gopherchat/internal/chat"
	"github.com/suPer8Hu/gopherchat/internal/common"
	"github.com/suPer8Hu/gopherchat/internal/config"
	"github.com/suPer8Hu/gopherchat/internal/logger"
	"github.com/suPer8Hu/gopherchat/internal/stream"
)

type Handler struct {
	Repo    *chat.Repository
	Ctrl    *stream.Controller
	Catalog *chat.Catalog
	Cfg     config.Config
}

func NewHandler(repo *chat.Repository, ctrl *stream.Controller, catalog *chat.Catalog, cfg config.Config) *Handler {
	if catalog == nil {
		catalog = chat.DefaultCatalog()
	}
	return &Handler{Repo: repo, Ctrl: ctrl, Catalog: catalog, Cfg: cfg}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

func (h *Handler) ListModels(c *gin.Context) {
	common.OK(c, gin.H{"models": h.Catalog.Models()})
}

func reqLog(c *gin.Context) *slog.Logger {
	return logger.FromContext(c.Request.Context())
}

// failErr maps domain errors to the response envelope.
func failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrConversationNotFound):
		common.Fail(c, http.StatusNotFound, 40404, "conversation not found")
	case errors.Is(err, chat.ErrModelUnavailable):
		common.Fail(c, http.StatusBadRequest, 40003, "model unavailable")
	case errors.Is(err, stream.ErrEmptyContent):
		common.Fail(c, http.StatusBadRequest, 10002, "content required")
	case errors.Is(err, stream.ErrBusy):
		common.Fail(c, http.StatusConflict, 40901, "a reply is already being generated")
	default:
		reqLog(c).Error("request failed", "path", c.FullPath(), "err", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}
