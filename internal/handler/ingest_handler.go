// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"wenda-go/internal/pipeline"
	"wenda-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// IngestHandler 负责处理文档导入请求。
type IngestHandler struct {
	processor *pipeline.Processor
}

// NewIngestHandler 创建一个新的 IngestHandler 实例。
func NewIngestHandler(processor *pipeline.Processor) *IngestHandler {
	return &IngestHandler{processor: processor}
}

type ingestRequest struct {
	Title  string `json:"title"`
	Source string `json:"source"`
	Text   string `json:"text"`
}

// Ingest 处理 POST /ingest：切块、向量化并入库。
// 鉴权由 AdminAuth 中间件完成，到达这里的请求已通过校验。
func (h *IngestHandler) Ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求体"})
		return
	}
	if req.Title == "" || req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title 和 text 为必填字段"})
		return
	}

	result, err := h.processor.Ingest(c.Request.Context(), req.Title, req.Source, req.Text)
	if err != nil {
		log.Errorf("[IngestHandler] 文档导入失败, title: %s, error: %v", req.Title, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"documentId": result.DocumentID,
		"chunkCount": result.ChunkCount,
	})
}
