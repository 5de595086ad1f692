package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/gopherchat/internal/chat"
	"github.com/suPer8Hu/gopherchat/internal/common"
)

func (h *Handler) GetSettings(c *gin.Context) {
	common.OK(c, gin.H{"settings": h.Repo.Settings()})
}

type patchSettingsReq struct {
	Theme             *chat.Theme `json:"theme"`
	DefaultModel      *string     `json:"default_model"`
	MessageLimit      *int        `json:"message_limit"`
	AutoSave          *bool       `json:"auto_save"`
	KeyboardShortcuts *bool       `json:"keyboard_shortcuts"`
	SidebarCollapsed  *bool       `json:"sidebar_collapsed"`
}

func (h *Handler) PatchSettings(c *gin.Context) {
	var req patchSettingsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.Theme != nil {
		switch *req.Theme {
		case chat.ThemeLight, chat.ThemeDark, chat.ThemeSystem:
		default:
			common.Fail(c, http.StatusBadRequest, 10002, "theme must be light, dark or system")
			return
		}
	}
	if req.MessageLimit != nil && *req.MessageLimit <= 0 {
		common.Fail(c, http.StatusBadRequest, 10002, "message_limit must be positive")
		return
	}
	if req.DefaultModel != nil {
		if _, err := h.Catalog.Resolve(*req.DefaultModel, chat.DefaultModelID); err != nil {
			failErr(c, err)
			return
		}
	}

	st := h.Repo.UpdateSettings(c.Request.Context(), chat.SettingsPatch{
		Theme:             req.Theme,
		DefaultModel:      req.DefaultModel,
		MessageLimit:      req.MessageLimit,
		AutoSave:          req.AutoSave,
		KeyboardShortcuts: req.KeyboardShortcuts,
		SidebarCollapsed:  req.SidebarCollapsed,
	})
	common.OK(c, gin.H{"settings": st})
}

func (h *Handler) ToggleSidebar(c *gin.Context) {
	common.OK(c, gin.H{"sidebar_collapsed": h.Repo.ToggleSidebar(c.Request.Context())})
}
