package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/gopherchat/internal/auth"
	"github.com/suPer8Hu/gopherchat/internal/common"
	"github.com/suPer8Hu/gopherchat/internal/httpapi/middleware"
)

// ownerSubject is the only account: the person running the server.
const ownerSubject = "owner"

const tokenTTL = 24 * time.Hour

type loginReq struct {
	Password string `json:"password"`
}

func (h *Handler) Login(c *gin.Context) {
	if !h.Cfg.AuthEnabled {
		common.Fail(c, http.StatusBadRequest, 10010, "authentication is disabled")
		return
	}

	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.Password == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "password required")
		return
	}
	if !auth.CheckPassword(h.Cfg.AuthPasswordHash, req.Password) {
		reqLog(c).Warn("login rejected", "ip", c.ClientIP())
		common.Fail(c, http.StatusUnauthorized, 40102, "invalid password")
		return
	}

	token, err := auth.SignJWT(ownerSubject, h.Cfg.JWTSecret, tokenTTL)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20003, "failed to sign token")
		return
	}
	common.OK(c, gin.H{
		"token":      token,
		"expires_in": int(tokenTTL.Seconds()),
	})
}

func (h *Handler) Me(c *gin.Context) {
	sub := c.GetString(middleware.SubjectKey)
	if sub == "" {
		sub = ownerSubject
	}
	common.OK(c, gin.H{"subject": sub, "auth_enabled": h.Cfg.AuthEnabled})
}
