package model

import "time"

// 消息角色常量。
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Conversation 代表一个对话线程，在会话的首条消息到来时惰性创建。
// ID 返回给客户端，后续轮次携带该 ID 以续接同一线程。
type Conversation struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Title     string    `gorm:"type:varchar(255);not null" json:"title"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// Message 代表对话中的一条消息，只追加、不修改、不删除。
// 对话内的顺序即插入顺序。
type Message struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID string    `gorm:"type:varchar(36);not null;index;column:conversation_id" json:"conversationId"`
	Role           string    `gorm:"type:varchar(16);not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Message) TableName() string {
	return "messages"
}

// ChatMessage 是送入 LLM 的角色消息，也是 Redis 历史缓存中的存储单元。
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
