package handler

import (
	"net/http"
	"strconv"

	"courseqa-go/internal/middleware"
	"courseqa-go/internal/service"

	"github.com/gin-gonic/gin"
)

// SessionHandler 负责处理会话管理相关的 API 请求。
type SessionHandler struct {
	sessionService service.SessionService
}

// NewSessionHandler 创建一个新的 SessionHandler 实例。
func NewSessionHandler(sessionService service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// List 返回当前学生在当前租户下的会话列表，按最近活跃排序。
func (h *SessionHandler) List(c *gin.Context) {
	claims := middleware.CurrentClaims(c)
	sessions, err := h.sessionService.List(c.Request.Context(), claims.StudentID, claims.TenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, sessions)
}

// History 返回某个会话按时间正序的消息记录。
func (h *SessionHandler) History(c *gin.Context) {
	limit := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的 limit 参数", "data": nil})
			return
		}
		limit = n
	}

	claims := middleware.CurrentClaims(c)
	messages, err := h.sessionService.History(c.Request.Context(), claims.StudentID, c.Param("id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, messages)
}

// RenameRequest 定义了会话重命名 API 的请求体结构。
type RenameRequest struct {
	Title string `json:"title" binding:"required"`
}

// Rename 修改某个会话的标题。
func (h *SessionHandler) Rename(c *gin.Context) {
	var req RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载", "data": nil})
		return
	}

	claims := middleware.CurrentClaims(c)
	if err := h.sessionService.Rename(c.Request.Context(), claims.StudentID, c.Param("id"), req.Title); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

// Delete 删除某个会话及其全部消息。
func (h *SessionHandler) Delete(c *gin.Context) {
	claims := middleware.CurrentClaims(c)
	if err := h.sessionService.Delete(c.Request.Context(), claims.StudentID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}
