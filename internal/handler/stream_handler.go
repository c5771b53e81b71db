package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"wenda-go/internal/middleware"
	"wenda-go/internal/ratelimit"
	"wenda-go/internal/service"
	"wenda-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// StreamHandler 负责处理 WebSocket 流式聊天连接。
type StreamHandler struct {
	chatService service.ChatService
	limiter     *ratelimit.Limiter
}

// NewStreamHandler 创建一个新的 StreamHandler 实例。
func NewStreamHandler(chatService service.ChatService, limiter *ratelimit.Limiter) *StreamHandler {
	return &StreamHandler{
		chatService: chatService,
		limiter:     limiter,
	}
}

type streamRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
}

// Handle 处理一个传入的 WebSocket 连接。
// 每条入站消息都是一轮独立的问答，限流按消息逐条执行。
func (h *StreamHandler) Handle(c *gin.Context) {
	clientKey := middleware.ClientKey(c.Request)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立, client: %s", clientKey)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		var req streamRequest
		if err := json.Unmarshal(message, &req); err != nil || req.Message == "" {
			writeJSON(conn, gin.H{"error": "无效的消息格式"})
			continue
		}

		// 限流准入：昂贵操作（向量化、补全）之前执行
		if err := h.limiter.Admit(c.Request.Context(), clientKey); err != nil {
			var limitErr *ratelimit.LimitError
			if errors.As(err, &limitErr) {
				writeJSON(conn, gin.H{
					"error":         "请求过于频繁，请稍后再试",
					"retryAfterSec": limitErr.RetryAfterSec,
				})
				continue
			}
			log.Errorf("[StreamHandler] 限流准入检查失败: %v", err)
			writeJSON(conn, gin.H{"error": "服务暂时不可用"})
			continue
		}

		// 将流式分块包装成 {"chunk":"..."} 下发
		result, err := h.chatService.StreamAsk(c.Request.Context(), req.ConversationID, req.Message, &chunkWriter{conn: conn})
		if err != nil {
			if errors.Is(err, service.ErrConversationNotFound) {
				writeJSON(conn, gin.H{"error": "对话不存在"})
				continue
			}
			log.Errorf("[StreamHandler] 处理流式响应失败: %v", err)
			writeJSON(conn, gin.H{"error": "AI服务暂时不可用，请稍后重试"})
			sendCompletion(conn, "")
			continue
		}

		sendCompletion(conn, result.ConversationID)
	}
}

// chunkWriter 把每个流式分块包装成 JSON 再写入连接。
type chunkWriter struct {
	conn *websocket.Conn
}

func (w *chunkWriter) WriteMessage(messageType int, data []byte) error {
	payload := map[string]string{"chunk": string(data)}
	b, _ := json.Marshal(payload)
	return w.conn.WriteMessage(messageType, b)
}

// sendCompletion 发送完成通知 JSON。
func sendCompletion(conn *websocket.Conn, conversationID string) {
	notif := gin.H{
		"type":      "completion",
		"status":    "finished",
		"timestamp": time.Now().UnixMilli(),
	}
	if conversationID != "" {
		notif["conversationId"] = conversationID
	}
	writeJSON(conn, notif)
}

func writeJSON(conn *websocket.Conn, v interface{}) {
	b, _ := json.Marshal(v)
	_ = conn.WriteMessage(websocket.TextMessage, b)
}
