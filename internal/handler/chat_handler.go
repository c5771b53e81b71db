package handler

import (
	"errors"
	"net/http"

	"wenda-go/internal/service"
	"wenda-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ChatHandler 负责处理 JSON 聊天请求。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler 实例。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
}

// Chat 处理 POST /chat：完整执行一轮 RAG 问答并返回答案与引用来源。
// 限流由 RateLimit 中间件在进入此处理器之前完成。
func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求体"})
		return
	}
	if req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message 不能为空"})
		return
	}

	result, err := h.chatService.Ask(c.Request.Context(), req.ConversationID, req.Message)
	if err != nil {
		if errors.Is(err, service.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "对话不存在"})
			return
		}
		log.Errorf("[ChatHandler] 处理聊天请求失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversationId": result.ConversationID,
		"answer":         result.Answer,
		"sources":        result.Sources,
	})
}
