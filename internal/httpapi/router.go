package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/gopherchat/internal/common"
	"github.com/suPer8Hu/gopherchat/internal/config"
	"github.com/suPer8Hu/gopherchat/internal/httpapi/handlers"
	"github.com/suPer8Hu/gopherchat/internal/httpapi/middleware"
)

func NewRouter(cfg config.Config, h *handlers.Handler, log *slog.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	// r.Use(gin.Recovery())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID(log))

	r.GET("/ping", h.Ping)

	// auth
	r.POST("/login", h.Login)
	api := r.Group("/")
	if cfg.AuthEnabled {
		api.Use(middleware.AuthRequired(cfg.JWTSecret))
	}
	api.GET("/me", h.Me)
	api.GET("/models", h.ListModels)

	// settings
	api.GET("/settings", h.GetSettings)
	api.PATCH("/settings", h.PatchSettings)
	api.POST("/settings/sidebar/toggle", h.ToggleSidebar)

	// conversations
	api.GET("/conversations", h.ListConversations)
	api.POST("/conversations", h.CreateConversation)
	api.PUT("/conversations/current", h.SetCurrentConversation)
	api.GET("/conversations/:id", h.GetConversation)
	api.PATCH("/conversations/:id", h.PatchConversation)
	api.DELETE("/conversations/:id", h.DeleteConversation)
	api.GET("/conversations/:id/export", h.ExportConversation)
	api.POST("/conversations/:id/import", h.ImportConversation)

	// messages and generation
	api.POST("/conversations/:id/messages", h.SendMessage)
	api.DELETE("/conversations/:id/messages/:mid", h.DeleteMessage)
	api.POST("/conversations/:id/messages/:mid/regenerate", h.Regenerate)
	api.POST("/conversations/:id/stop", h.StopGeneration)
	return r
}
