package handler

import (
	"errors"
	"net/http"
	"strconv"

	"wenda-go/internal/config"
	"wenda-go/internal/middleware"
	"wenda-go/internal/pipeline"
	"wenda-go/pkg/kafka"
	"wenda-go/pkg/log"
	"wenda-go/pkg/tasks"
	"wenda-go/pkg/token"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AdminHandler 处理管理端请求：签发 token、重建索引、删除文档。
type AdminHandler struct {
	adminCfg     config.AdminConfig
	jwtManager   *token.JWTManager
	processor    *pipeline.Processor
	kafkaEnabled bool
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(adminCfg config.AdminConfig, jwtManager *token.JWTManager, processor *pipeline.Processor, kafkaEnabled bool) *AdminHandler {
	return &AdminHandler{
		adminCfg:     adminCfg,
		jwtManager:   jwtManager,
		processor:    processor,
		kafkaEnabled: kafkaEnabled,
	}
}

type tokenRequest struct {
	Secret string `json:"secret"`
}

// IssueToken 用共享密钥换取短期管理 JWT。
// 该端点本身不走 AdminAuth 中间件，密钥校验在这里完成。
func (h *AdminHandler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Secret == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "secret 为必填字段"})
		return
	}
	if !middleware.VerifyAdminSecret(h.adminCfg, req.Secret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "无效的管理密钥"})
		return
	}

	tokenString, err := h.jwtManager.GenerateToken()
	if err != nil {
		log.Errorf("[AdminHandler] 签发管理 token 失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "签发 token 失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tokenString})
}

// Reindex 处理 POST /admin/reindex/:documentId：投递重建索引任务。
// Kafka 未启用时退化为同步执行。
func (h *AdminHandler) Reindex(c *gin.Context) {
	documentID, ok := h.parseDocumentID(c)
	if !ok {
		return
	}

	task := tasks.ReindexTask{DocumentID: documentID, Reason: c.Query("reason")}

	if h.kafkaEnabled {
		if err := kafka.ProduceReindexTask(task); err != nil {
			log.Errorf("[AdminHandler] 投递重建索引任务失败 (documentID=%d): %v", documentID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "投递重建索引任务失败"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"ok": true, "documentId": documentID, "queued": true})
		return
	}

	if err := h.processor.Process(c.Request.Context(), task); err != nil {
		log.Errorf("[AdminHandler] 重建索引失败 (documentID=%d): %v", documentID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "documentId": documentID, "queued": false})
}

// DeleteDocument 处理 DELETE /admin/documents/:documentId：级联删除文档。
func (h *AdminHandler) DeleteDocument(c *gin.Context) {
	documentID, ok := h.parseDocumentID(c)
	if !ok {
		return
	}

	if err := h.processor.DeleteDocument(c.Request.Context(), documentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "文档不存在"})
			return
		}
		log.Errorf("[AdminHandler] 删除文档失败 (documentID=%d): %v", documentID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "documentId": documentID})
}

func (h *AdminHandler) parseDocumentID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("documentId"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的 documentId"})
		return 0, false
	}
	return uint(id), true
}
