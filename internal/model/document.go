// Package model 包含了应用的数据模型定义。
package model

import "time"

// Document 对应于数据库中的 documents 表。
// 文档在导入时创建，之后不再修改；删除文档时级联删除其全部分块。
type Document struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Title      string    `gorm:"type:varchar(255);not null" json:"title"`
	Source     string    `gorm:"type:varchar(255)" json:"source"`
	ChunkCount int       `gorm:"not null;default:0" json:"chunkCount"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Document) TableName() string {
	return "documents"
}

// DocumentChunk 对应于数据库中的 document_chunks 表。
// ChunkIndex 从 0 开始、在文档内连续递增，保持原文顺序。
type DocumentChunk struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	DocumentID   uint   `gorm:"not null;index;column:document_id" json:"documentId"`
	ChunkIndex   int    `gorm:"not null;column:chunk_index" json:"chunkIndex"`
	Content      string `gorm:"type:text;not null" json:"content"`
	ModelVersion string `gorm:"type:varchar(64);column:model_version" json:"modelVersion"`
}

func (DocumentChunk) TableName() string {
	return "document_chunks"
}
