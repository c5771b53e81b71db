package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"wenda-go/internal/config"
	"wenda-go/internal/model"
	"wenda-go/internal/repository"
	"wenda-go/pkg/llm"
	"wenda-go/pkg/log"

	"gorm.io/gorm"
)

// ErrConversationNotFound 表示客户端携带的对话 ID 不存在。
var ErrConversationNotFound = errors.New("conversation not found")

// 引用预览与对话标题的最大 rune 数。
const (
	previewMaxRunes = 200
	titleMaxRunes   = 30
)

// AskResult 是一轮问答的结果。
type AskResult struct {
	ConversationID string            `json:"conversationId"`
	Answer         string            `json:"answer"`
	Sources        []model.SourceRef `json:"sources"`
}

// ChatService 定义了聊天编排的接口。
// 每轮的执行顺序固定：确认对话存在 → 持久化用户消息 → 检索上下文 →
// 组装提示词 → 调用补全 → 持久化助手消息 → 返回结果。
// 账本顺序不变量：补全调用发出前用户消息必须已落库，
// 响应返回前助手消息必须已落库。
type ChatService interface {
	Ask(ctx context.Context, conversationID, message string) (*AskResult, error)
	// StreamAsk 与 Ask 编排相同，但补全内容以流式分块写入 writer，
	// 完整答案累积后照常落账。送入模型的历史在本轮用户消息落库前
	// 加载，当前提问只以末尾的 user 消息出现一次。
	StreamAsk(ctx context.Context, conversationID, message string, writer llm.MessageWriter) (*AskResult, error)
}

type chatService struct {
	retrieval        RetrievalService
	llmClient        llm.Client
	conversationRepo repository.ConversationRepository
	llmCfg           config.LLMConfig
	ragCfg           config.RAGConfig
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(
	retrieval RetrievalService,
	llmClient llm.Client,
	conversationRepo repository.ConversationRepository,
	llmCfg config.LLMConfig,
	ragCfg config.RAGConfig,
) ChatService {
	return &chatService{
		retrieval:        retrieval,
		llmClient:        llmClient,
		conversationRepo: conversationRepo,
		llmCfg:           llmCfg,
		ragCfg:           ragCfg,
	}
}

// Ask 执行一轮非流式问答。
func (s *chatService) Ask(ctx context.Context, conversationID, message string) (*AskResult, error) {
	conv, err := s.ensureConversation(ctx, conversationID, message)
	if err != nil {
		return nil, err
	}
	retrieved, systemMsg, err := s.beginTurn(ctx, conv, message)
	if err != nil {
		return nil, err
	}

	answer, err := s.llmClient.Complete(ctx, systemMsg, message, s.llmCfg.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("completion failed: %w", err)
	}

	return s.finishTurn(ctx, conv, answer, retrieved)
}

// StreamAsk 执行一轮流式问答。历史消息会一并送入模型（流式路径
// 面向多轮网页会话，与一问一答的 JSON 接口不同）。
func (s *chatService) StreamAsk(ctx context.Context, conversationID, message string, writer llm.MessageWriter) (*AskResult, error) {
	conv, err := s.ensureConversation(ctx, conversationID, message)
	if err != nil {
		return nil, err
	}

	// 历史必须在本轮用户消息落库之前加载：AppendMessage 会同步把消息
	// 推进历史缓存，落库后再读历史会让当前提问在提示里出现两次。
	history, err := s.conversationRepo.RecentHistory(ctx, conv.ID)
	if err != nil {
		log.Errorf("[ChatService] 加载对话历史失败: %v", err)
		history = nil
	}

	retrieved, systemMsg, err := s.beginTurn(ctx, conv, message)
	if err != nil {
		return nil, err
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: model.RoleSystem, Content: systemMsg})
	for _, m := range history {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: model.RoleUser, Content: message})

	// 拦截 writer 以捕获完整答案
	answerBuilder := &strings.Builder{}
	interceptor := &teeWriter{inner: writer, builder: answerBuilder}

	if err := s.llmClient.StreamChatMessages(ctx, messages, s.llmCfg.MaxTokens, interceptor); err != nil {
		return nil, err
	}

	return s.finishTurn(ctx, conv, answerBuilder.String(), retrieved)
}

// beginTurn 完成一轮问答中补全调用之前的落库与检索步骤。
func (s *chatService) beginTurn(ctx context.Context, conv *model.Conversation, message string) ([]model.RetrievedChunk, string, error) {
	// 1. 先落用户消息，再做任何外部调用。
	//    即使后续步骤失败或进程崩溃，账本里也不会出现没有用户提问的助手回复。
	if err := s.conversationRepo.AppendMessage(ctx, conv.ID, model.RoleUser, message); err != nil {
		return nil, "", fmt.Errorf("failed to persist user message: %w", err)
	}

	// 2. 检索上下文。零命中时降级为无上下文作答；检索本身出错则整轮失败。
	retrieved, err := s.retrieval.Retrieve(ctx, message, s.ragCfg.TopK)
	if err != nil {
		return nil, "", fmt.Errorf("failed to retrieve context: %w", err)
	}
	if len(retrieved) == 0 {
		log.Infof("[ChatService] 本轮无检索结果, 将不注入上下文作答 (conversation=%s)", conv.ID)
	}

	systemMsg := s.buildSystemMessage(s.buildContextText(retrieved))
	return retrieved, systemMsg, nil
}

// finishTurn 落助手消息并组装响应。落账失败视为整轮失败：
// 账本是历史的事实来源，未入账的答案不能当作已持久化的结果返回。
func (s *chatService) finishTurn(ctx context.Context, conv *model.Conversation, answer string, retrieved []model.RetrievedChunk) (*AskResult, error) {
	if err := s.conversationRepo.AppendMessage(ctx, conv.ID, model.RoleAssistant, answer); err != nil {
		return nil, fmt.Errorf("failed to persist assistant message: %w", err)
	}

	return &AskResult{
		ConversationID: conv.ID,
		Answer:         answer,
		Sources:        s.buildSources(retrieved),
	}, nil
}

// ensureConversation 查找或惰性创建对话。
func (s *chatService) ensureConversation(ctx context.Context, conversationID, message string) (*model.Conversation, error) {
	if conversationID != "" {
		conv, err := s.conversationRepo.FindConversationByID(ctx, conversationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrConversationNotFound
			}
			return nil, fmt.Errorf("failed to load conversation: %w", err)
		}
		return conv, nil
	}

	conv, err := s.conversationRepo.CreateConversation(ctx, truncateRunes(message, titleMaxRunes))
	if err != nil {
		return nil, err
	}
	log.Infof("[ChatService] 已创建新对话: %s", conv.ID)
	return conv, nil
}

// buildContextText 将检索结果编号拼装为上下文文本。
func (s *chatService) buildContextText(retrieved []model.RetrievedChunk) string {
	if len(retrieved) == 0 {
		return ""
	}
	var contextBuilder strings.Builder
	for i, r := range retrieved {
		contextBuilder.WriteString(fmt.Sprintf("[%d] %s\n", i+1, r.Content))
	}
	return contextBuilder.String()
}

// buildSystemMessage 组装 system 消息：规则 + 包裹符内的检索上下文。
func (s *chatService) buildSystemMessage(contextText string) string {
	refStart := s.llmCfg.Prompt.RefStart
	if refStart == "" {
		refStart = "<<REF>>"
	}
	refEnd := s.llmCfg.Prompt.RefEnd
	if refEnd == "" {
		refEnd = "<<END>>"
	}

	var sys strings.Builder
	if s.llmCfg.Prompt.Rules != "" {
		sys.WriteString(s.llmCfg.Prompt.Rules)
		sys.WriteString("\n\n")
	}
	sys.WriteString(refStart)
	sys.WriteString("\n")
	if contextText != "" {
		sys.WriteString(contextText)
	} else {
		noRes := s.llmCfg.Prompt.NoResultText
		if noRes == "" {
			noRes = "（本轮无检索结果）"
		}
		sys.WriteString(noRes)
		sys.WriteString("\n")
	}
	sys.WriteString(refEnd)
	return sys.String()
}

// buildSources 取检索结果的前 cite_top 条作为引用。
// 检索宽度与引用宽度是两个独立旋钮：引用永远是检索结果的前缀。
func (s *chatService) buildSources(retrieved []model.RetrievedChunk) []model.SourceRef {
	n := s.ragCfg.CiteTop
	if n > len(retrieved) {
		n = len(retrieved)
	}
	sources := make([]model.SourceRef, 0, n)
	for i := 0; i < n; i++ {
		sources = append(sources, model.SourceRef{
			Index:      i + 1,
			Similarity: retrieved[i].Similarity,
			Preview:    truncateRunes(retrieved[i].Content, previewMaxRunes),
		})
	}
	return sources
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}

// teeWriter 在转发分块的同时累积完整答案。
type teeWriter struct {
	inner   llm.MessageWriter
	builder *strings.Builder
}

func (w *teeWriter) WriteMessage(messageType int, data []byte) error {
	w.builder.Write(data)
	return w.inner.WriteMessage(messageType, data)
}
