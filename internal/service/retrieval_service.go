// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"
	"math"

	"wenda-go/internal/model"
	"wenda-go/pkg/embedding"
	"wenda-go/pkg/log"
)

// VectorSearcher 是向量最近邻检索的执行者，由 pkg/es 实现。
type VectorSearcher interface {
	KnnSearch(ctx context.Context, vector []float32, k int) ([]model.ScoredChunk, error)
}

// RetrievalService 接口定义了检索操作。
type RetrievalService interface {
	// Retrieve 返回与 query 最相关的至多 topK 个分块，按相似度降序。
	// 零命中返回空切片而非错误；Embedding 或检索出错则原样上抛。
	Retrieve(ctx context.Context, query string, topK int) ([]model.RetrievedChunk, error)
}

type retrievalService struct {
	embeddingClient embedding.Client
	searcher        VectorSearcher
}

// NewRetrievalService 创建一个新的 RetrievalService 实例。
func NewRetrievalService(embeddingClient embedding.Client, searcher VectorSearcher) RetrievalService {
	return &retrievalService{
		embeddingClient: embeddingClient,
		searcher:        searcher,
	}
}

// Retrieve 向量化查询并执行 top-k 最近邻检索。
func (s *retrievalService) Retrieve(ctx context.Context, query string, topK int) ([]model.RetrievedChunk, error) {
	log.Infof("[RetrievalService] 开始检索, topK: %d, query_len: %d", topK, len(query))

	queryVector, err := s.embeddingClient.CreateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to create query embedding: %w", err)
	}

	hits, err := s.searcher.KnnSearch(ctx, queryVector, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	// ES 已按分数降序返回，这里只做 DTO 组装与展示分数舍入。
	results := make([]model.RetrievedChunk, 0, len(hits))
	for _, hit := range hits {
		results = append(results, model.RetrievedChunk{
			DocumentID: hit.DocumentID,
			ChunkIndex: hit.ChunkIndex,
			Content:    hit.Content,
			Score:      hit.Score,
			Similarity: roundScore(hit.Score),
		})
	}

	log.Infof("[RetrievalService] 检索完成, 命中 %d 条", len(results))
	return results, nil
}

// roundScore 将分数舍入到三位小数，仅用于展示；排序使用全精度分数。
func roundScore(s float64) float64 {
	return math.Round(s*1000) / 1000
}
