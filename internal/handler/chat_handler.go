package handler

import (
	"net/http"
	"strconv"

	"courseqa-go/internal/middleware"
	"courseqa-go/internal/service"

	"github.com/gin-gonic/gin"
)

// ChatHandler 负责处理问答相关的 API 请求。
type ChatHandler struct {
	chatService    service.ChatService
	sessionService service.SessionService
}

// NewChatHandler 创建一个新的 ChatHandler 实例。
func NewChatHandler(chatService service.ChatService, sessionService service.SessionService) *ChatHandler {
	return &ChatHandler{chatService: chatService, sessionService: sessionService}
}

// AskRequest 定义了提问 API 的请求体结构。
// sessionId 为空时新建会话。
type AskRequest struct {
	Question  string `json:"question" binding:"required"`
	SessionID string `json:"sessionId"`
}

// Ask 处理一次学生提问。
func (h *ChatHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载", "data": nil})
		return
	}

	claims := middleware.CurrentClaims(c)
	result, err := h.chatService.Ask(c.Request.Context(), req.Question, claims.StudentID, claims.TenantID, req.SessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, result)
}

// FeedbackRequest 定义了回答反馈 API 的请求体结构。
type FeedbackRequest struct {
	Sentiment string `json:"sentiment" binding:"required"`
	Comment   string `json:"comment"`
}

// RecordFeedback 处理学生对某条回答的反馈。
func (h *ChatHandler) RecordFeedback(c *gin.Context) {
	messageID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的消息 ID", "data": nil})
		return
	}

	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载", "data": nil})
		return
	}

	claims := middleware.CurrentClaims(c)
	if err := h.sessionService.RecordFeedback(c.Request.Context(), claims.StudentID, uint(messageID), req.Sentiment, req.Comment); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}
