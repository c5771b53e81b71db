// Package repository 提供了数据访问层的实现。
package repository

import (
	"wenda-go/internal/model"

	"gorm.io/gorm"
)

// DocumentRepository 定义了对 documents 与 document_chunks 表的数据操作接口。
type DocumentRepository interface {
	CreateDocument(doc *model.Document) error
	FindDocumentByID(id uint) (*model.Document, error)
	UpdateChunkCount(id uint, count int) error
	DeleteDocument(id uint) error
	BatchCreateChunks(chunks []*model.DocumentChunk) error
	FindChunksByDocumentID(documentID uint) ([]*model.DocumentChunk, error)
	DeleteChunksByDocumentID(documentID uint) error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// CreateDocument 创建一条文档记录。
func (r *documentRepository) CreateDocument(doc *model.Document) error {
	return r.db.Create(doc).Error
}

// FindDocumentByID 根据 ID 查找文档。
func (r *documentRepository) FindDocumentByID(id uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.First(&doc, id).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// UpdateChunkCount 更新文档的分块数。
func (r *documentRepository) UpdateChunkCount(id uint, count int) error {
	return r.db.Model(&model.Document{}).Where("id = ?", id).Update("chunk_count", count).Error
}

// DeleteDocument 删除文档及其全部分块（文档独占其分块，必须级联）。
func (r *documentRepository) DeleteDocument(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&model.DocumentChunk{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Document{}, id).Error
	})
}

// BatchCreateChunks 批量创建分块记录。
func (r *documentRepository) BatchCreateChunks(chunks []*model.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.CreateInBatches(chunks, 100).Error // 每100条记录一批
}

// FindChunksByDocumentID 返回某个文档的全部分块，按 chunk_index 升序。
func (r *documentRepository) FindChunksByDocumentID(documentID uint) ([]*model.DocumentChunk, error) {
	var chunks []*model.DocumentChunk
	err := r.db.Where("document_id = ?", documentID).Order("chunk_index asc").Find(&chunks).Error
	return chunks, err
}

// DeleteChunksByDocumentID 删除某个文档的全部分块记录，重建索引前调用。
func (r *documentRepository) DeleteChunksByDocumentID(documentID uint) error {
	return r.db.Where("document_id = ?", documentID).Delete(&model.DocumentChunk{}).Error
}
