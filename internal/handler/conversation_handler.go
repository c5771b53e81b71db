package handler

import (
	"errors"
	"net/http"

	"wenda-go/internal/repository"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ConversationHandler 处理与对话账本相关的 API 请求。
type ConversationHandler struct {
	repo repository.ConversationRepository
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(repo repository.ConversationRepository) *ConversationHandler {
	return &ConversationHandler{repo: repo}
}

// ListMessages 处理获取对话完整消息历史的请求。
func (h *ConversationHandler) ListMessages(c *gin.Context) {
	conversationID := c.Param("id")

	if _, err := h.repo.FindConversationByID(c.Request.Context(), conversationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "对话不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询对话失败"})
		return
	}

	messages, err := h.repo.ListMessages(c.Request.Context(), conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询消息历史失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversationId": conversationID,
		"messages":       messages,
	})
}
