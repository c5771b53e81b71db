// Package pipeline 定义了文档导入与重建索引的核心流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"wenda-go/internal/chunker"
	"wenda-go/internal/config"
	"wenda-go/internal/model"
	"wenda-go/internal/repository"
	"wenda-go/pkg/embedding"
	"wenda-go/pkg/log"
	"wenda-go/pkg/storage"
	"wenda-go/pkg/tasks"
)

// ChunkIndexer 是向量索引的写入端，由 pkg/es 实现。
type ChunkIndexer interface {
	IndexChunk(ctx context.Context, doc model.EsChunk) error
	DeleteByDocumentID(ctx context.Context, documentID uint) error
}

// IngestResult 是一次导入的结果。
type IngestResult struct {
	DocumentID uint
	ChunkCount int
	Truncated  int
}

// Processor 封装了文档处理的所有依赖和逻辑。
type Processor struct {
	embeddingClient embedding.Client
	indexer         ChunkIndexer
	docRepo         repository.DocumentRepository
	minioCfg        config.MinIOConfig
	embeddingCfg    config.EmbeddingConfig
	maxChunkChars   int
	archiveEnabled  bool
}

// NewProcessor 创建一个新的 Processor 实例。
// archiveEnabled 为 false 时跳过 MinIO 归档（原文无法重建索引，仅用于轻量部署）。
func NewProcessor(
	embeddingClient embedding.Client,
	indexer ChunkIndexer,
	docRepo repository.DocumentRepository,
	minioCfg config.MinIOConfig,
	embeddingCfg config.EmbeddingConfig,
	maxChunkChars int,
	archiveEnabled bool,
) *Processor {
	return &Processor{
		embeddingClient: embeddingClient,
		indexer:         indexer,
		docRepo:         docRepo,
		minioCfg:        minioCfg,
		embeddingCfg:    embeddingCfg,
		maxChunkChars:   maxChunkChars,
		archiveEnabled:  archiveEnabled,
	}
}

// Ingest 是文档导入的主函数：切块 → 批量向量化 → 入库 → 索引到 ES。
func (p *Processor) Ingest(ctx context.Context, title, source, text string) (*IngestResult, error) {
	log.Infof("[Processor] 开始导入文档, title: %s, 文本长度: %d", title, len(text))

	// 1. 文本切块
	result := chunker.Chunk(text, p.maxChunkChars)
	if len(result.Chunks) == 0 {
		log.Warnf("[Processor] 未生成任何文本分块, 导入中止, title: %s", title)
		return nil, errors.New("未生成任何文本分块")
	}
	if result.Truncated > 0 {
		log.Warnf("[Processor] 有 %d 个超长段落被截断到 %d 字符, title: %s", result.Truncated, p.maxChunkChars, title)
	}
	log.Infof("[Processor] 步骤1: 文本分块完成, 共生成 %d 个分块", len(result.Chunks))

	// 2. 创建文档记录
	doc := &model.Document{Title: title, Source: source}
	if err := p.docRepo.CreateDocument(doc); err != nil {
		return nil, fmt.Errorf("创建文档记录失败: %w", err)
	}
	log.Infof("[Processor] 步骤2: 文档记录已创建, documentID: %d", doc.ID)

	// 3. 归档原文到 MinIO，供后续重建索引使用。归档失败不阻断导入。
	if p.archiveEnabled {
		objectName := storage.DocumentObjectName(doc.ID)
		if err := storage.PutText(ctx, p.minioCfg.BucketName, objectName, text); err != nil {
			log.Warnf("[Processor] 归档原文到 MinIO 失败 (documentID=%d): %v", doc.ID, err)
		} else {
			log.Infof("[Processor] 步骤3: 原文已归档, Object: %s", objectName)
		}
	}

	// 4. 向量化并写入数据库与 ES
	if err := p.embedAndIndex(ctx, doc.ID, result.Chunks); err != nil {
		return nil, err
	}

	if err := p.docRepo.UpdateChunkCount(doc.ID, len(result.Chunks)); err != nil {
		log.Warnf("[Processor] 更新文档分块数失败 (documentID=%d): %v", doc.ID, err)
	}

	log.Infof("[Processor] 文档导入成功完成, documentID: %d, 分块数: %d", doc.ID, len(result.Chunks))
	return &IngestResult{
		DocumentID: doc.ID,
		ChunkCount: len(result.Chunks),
		Truncated:  result.Truncated,
	}, nil
}

// Process 处理一个重建索引任务：取回归档原文，重新切块、向量化并覆盖旧索引。
// 满足 kafka.TaskProcessor 接口。
func (p *Processor) Process(ctx context.Context, task tasks.ReindexTask) error {
	log.Infof("[Processor] 开始重建索引, documentID: %d, reason: %s", task.DocumentID, task.Reason)

	doc, err := p.docRepo.FindDocumentByID(task.DocumentID)
	if err != nil {
		return fmt.Errorf("查找文档失败: %w", err)
	}

	if !p.archiveEnabled {
		return errors.New("未启用原文归档，无法重建索引")
	}
	text, err := storage.GetText(ctx, p.minioCfg.BucketName, storage.DocumentObjectName(doc.ID))
	if err != nil {
		return fmt.Errorf("取回归档原文失败: %w", err)
	}
	if text == "" {
		return errors.New("归档原文为空")
	}

	result := chunker.Chunk(text, p.maxChunkChars)
	if len(result.Chunks) == 0 {
		return errors.New("重新切块未产生任何分块")
	}

	// 先清理旧分块记录（幂等），再写入新的
	if err := p.docRepo.DeleteChunksByDocumentID(doc.ID); err != nil {
		return fmt.Errorf("清理旧分块记录失败: %w", err)
	}

	if err := p.embedAndIndex(ctx, doc.ID, result.Chunks); err != nil {
		return err
	}

	if err := p.docRepo.UpdateChunkCount(doc.ID, len(result.Chunks)); err != nil {
		log.Warnf("[Processor] 更新文档分块数失败 (documentID=%d): %v", doc.ID, err)
	}

	log.Infof("[Processor] 重建索引成功完成, documentID: %d, 分块数: %d", doc.ID, len(result.Chunks))
	return nil
}

// DeleteDocument 级联删除文档：分块记录、ES 向量与归档原文。
func (p *Processor) DeleteDocument(ctx context.Context, documentID uint) error {
	if _, err := p.docRepo.FindDocumentByID(documentID); err != nil {
		return fmt.Errorf("查找文档失败: %w", err)
	}

	if err := p.indexer.DeleteByDocumentID(ctx, documentID); err != nil {
		return fmt.Errorf("删除 ES 向量失败: %w", err)
	}
	if err := p.docRepo.DeleteDocument(documentID); err != nil {
		return fmt.Errorf("删除文档记录失败: %w", err)
	}
	if p.archiveEnabled {
		if err := storage.RemoveObject(ctx, p.minioCfg.BucketName, storage.DocumentObjectName(documentID)); err != nil {
			log.Warnf("[Processor] 删除归档原文失败 (documentID=%d): %v", documentID, err)
		}
	}
	log.Infof("[Processor] 文档已删除, documentID: %d", documentID)
	return nil
}

// embedAndIndex 批量向量化分块，写入数据库并索引到 ES。
func (p *Processor) embedAndIndex(ctx context.Context, documentID uint, chunks []string) error {
	// 阶段一：批量向量化（一次请求）
	log.Infof("[Processor] 阶段一: 开始批量向量化 %d 个分块", len(chunks))
	vectors, err := p.embeddingClient.CreateEmbeddings(ctx, chunks)
	if err != nil {
		return fmt.Errorf("批量向量化失败: %w", err)
	}
	for i, v := range vectors {
		if p.embeddingCfg.Dimensions > 0 && len(v) != p.embeddingCfg.Dimensions {
			return fmt.Errorf("分块 %d 向量维度异常: 期望 %d, 实际 %d", i, p.embeddingCfg.Dimensions, len(v))
		}
	}
	log.Infof("[Processor] 阶段一: 向量化完成")

	// 阶段二：分块文本入库
	dbChunks := make([]*model.DocumentChunk, 0, len(chunks))
	for i, content := range chunks {
		dbChunks = append(dbChunks, &model.DocumentChunk{
			DocumentID:   documentID,
			ChunkIndex:   i,
			Content:      content,
			ModelVersion: p.embeddingCfg.Model,
		})
	}
	if err := p.docRepo.BatchCreateChunks(dbChunks); err != nil {
		return fmt.Errorf("批量保存文本分块失败: %w", err)
	}
	log.Infof("[Processor] 阶段二: 成功将 %d 个分块存入数据库", len(dbChunks))

	// 阶段三：覆盖式索引到 ES（先清理该文档既有向量，保证幂等）
	if err := p.indexer.DeleteByDocumentID(ctx, documentID); err != nil {
		log.Warnf("[Processor] 清理 ES 旧向量失败 (documentID=%d): %v", documentID, err)
	}
	for i, content := range chunks {
		esDoc := model.EsChunk{
			VectorID:     fmt.Sprintf("%d_%d", documentID, i),
			DocumentID:   documentID,
			ChunkIndex:   i,
			Content:      content,
			Vector:       vectors[i],
			ModelVersion: p.embeddingCfg.Model,
		}
		if err := p.indexer.IndexChunk(ctx, esDoc); err != nil {
			return fmt.Errorf("索引分块 %d 到 Elasticsearch 失败: %w", i, err)
		}
	}
	log.Infof("[Processor] 阶段三: 所有分块已索引到 Elasticsearch")
	return nil
}
