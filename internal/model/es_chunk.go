package model

// EsChunk 定义了存储在 Elasticsearch 中的分块文档结构。
type EsChunk struct {
	VectorID     string    `json:"vector_id"` // 唯一标识，documentId_chunkIndex
	DocumentID   uint      `json:"document_id"`
	ChunkIndex   int       `json:"chunk_index"`
	Content      string    `json:"content"`
	Vector       []float32 `json:"vector"`
	ModelVersion string    `json:"model_version"`
}

// ScoredChunk 是向量检索返回的单条结果，按相似度降序排列。
// Score 保留 ES 返回的全精度分数，用于内部排序与加权；
// 对外展示时由上层另行舍入。
type ScoredChunk struct {
	DocumentID uint
	ChunkIndex int
	Content    string
	Score      float64
}

// RetrievedChunk 是检索服务对外返回的结果。
// Similarity 为舍入到三位小数的展示分数，Score 为全精度分数。
type RetrievedChunk struct {
	DocumentID uint    `json:"documentId"`
	ChunkIndex int     `json:"chunkIndex"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
	Score      float64 `json:"-"`
}

// SourceRef 是聊天响应中引用的单条来源。
type SourceRef struct {
	Index      int     `json:"index"`
	Similarity float64 `json:"similarity"`
	Preview    string  `json:"preview"`
}
