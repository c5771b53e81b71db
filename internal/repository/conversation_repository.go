package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wenda-go/internal/model"
	"wenda-go/pkg/log"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 历史缓存参数：每个对话只缓存最近 20 条，7 天过期。
const (
	historyCacheLimit = 20
	historyCacheTTL   = 7 * 24 * time.Hour
)

// ConversationRepository 定义了对话与消息的持久化接口。
// MySQL 是事实来源（追加型账本）；Redis 只作为最近历史的缓存。
type ConversationRepository interface {
	CreateConversation(ctx context.Context, title string) (*model.Conversation, error)
	FindConversationByID(ctx context.Context, id string) (*model.Conversation, error)
	AppendMessage(ctx context.Context, conversationID, role, content string) error
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	RecentHistory(ctx context.Context, conversationID string) ([]model.ChatMessage, error)
}

type conversationRepository struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(db *gorm.DB, rdb *redis.Client) ConversationRepository {
	return &conversationRepository{db: db, rdb: rdb}
}

// CreateConversation 创建一个新对话，ID 为 UUID，返回给客户端用于续接线程。
func (r *conversationRepository) CreateConversation(ctx context.Context, title string) (*model.Conversation, error) {
	conv := &model.Conversation{
		ID:    uuid.NewString(),
		Title: title,
	}
	if err := r.db.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// FindConversationByID 根据 ID 查找对话。
func (r *conversationRepository) FindConversationByID(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := r.db.WithContext(ctx).First(&conv, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// AppendMessage 向对话追加一条消息，并同步更新 Redis 历史缓存。
// 缓存更新失败只告警不报错：MySQL 写入成功即视为持久化成功。
func (r *conversationRepository) AppendMessage(ctx context.Context, conversationID, role, content string) error {
	msg := &model.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	}
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	if r.rdb != nil {
		if err := r.pushToCache(ctx, conversationID, model.ChatMessage{Role: role, Content: content}); err != nil {
			log.Warnf("[ConversationRepo] 更新历史缓存失败 (conversation=%s): %v", conversationID, err)
		}
	}
	return nil
}

// ListMessages 返回对话的全部消息，按追加顺序。
func (r *conversationRepository) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var messages []model.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id asc").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// RecentHistory 返回对话最近的消息（最多 historyCacheLimit 条），
// 优先读 Redis 缓存，未命中时回源 MySQL 并回填缓存。
func (r *conversationRepository) RecentHistory(ctx context.Context, conversationID string) ([]model.ChatMessage, error) {
	if r.rdb != nil {
		key := historyCacheKey(conversationID)
		entries, err := r.rdb.LRange(ctx, key, 0, -1).Result()
		if err == nil && len(entries) > 0 {
			history := make([]model.ChatMessage, 0, len(entries))
			ok := true
			for _, e := range entries {
				var m model.ChatMessage
				if json.Unmarshal([]byte(e), &m) != nil {
					ok = false
					break
				}
				history = append(history, m)
			}
			if ok {
				return history, nil
			}
			// 缓存内容损坏时丢弃，回源重建
			_ = r.rdb.Del(ctx, key).Err()
		}
	}

	var messages []model.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id desc").
		Limit(historyCacheLimit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load recent history: %w", err)
	}

	// 倒序查询结果翻回时间正序
	history := make([]model.ChatMessage, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		history = append(history, model.ChatMessage{Role: messages[i].Role, Content: messages[i].Content})
	}

	if r.rdb != nil && len(history) > 0 {
		if err := r.refillCache(ctx, conversationID, history); err != nil {
			log.Warnf("[ConversationRepo] 回填历史缓存失败 (conversation=%s): %v", conversationID, err)
		}
	}
	return history, nil
}

func (r *conversationRepository) pushToCache(ctx context.Context, conversationID string, msg model.ChatMessage) error {
	key := historyCacheKey(conversationID)
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	pipe := r.rdb.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -historyCacheLimit, -1)
	pipe.Expire(ctx, key, historyCacheTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *conversationRepository) refillCache(ctx context.Context, conversationID string, history []model.ChatMessage) error {
	key := historyCacheKey(conversationID)
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, key)
	for _, m := range history {
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		pipe.RPush(ctx, key, data)
	}
	pipe.Expire(ctx, key, historyCacheTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func historyCacheKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s:history", conversationID)
}
