package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"wenda-go/internal/config"
	"wenda-go/internal/model"
	"wenda-go/pkg/tasks"
)

type fakeDocRepo struct {
	docs       map[uint]*model.Document
	chunks     []*model.DocumentChunk
	nextID     uint
	chunkCount map[uint]int
}

func newFakeDocRepo() *fakeDocRepo {
	return &fakeDocRepo{docs: make(map[uint]*model.Document), chunkCount: make(map[uint]int)}
}

func (r *fakeDocRepo) CreateDocument(doc *model.Document) error {
	r.nextID++
	doc.ID = r.nextID
	r.docs[doc.ID] = doc
	return nil
}

func (r *fakeDocRepo) FindDocumentByID(id uint) (*model.Document, error) {
	doc, ok := r.docs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return doc, nil
}

func (r *fakeDocRepo) UpdateChunkCount(id uint, count int) error {
	r.chunkCount[id] = count
	return nil
}

func (r *fakeDocRepo) DeleteDocument(id uint) error {
	if _, ok := r.docs[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.docs, id)
	return r.DeleteChunksByDocumentID(id)
}

func (r *fakeDocRepo) BatchCreateChunks(chunks []*model.DocumentChunk) error {
	r.chunks = append(r.chunks, chunks...)
	return nil
}

func (r *fakeDocRepo) FindChunksByDocumentID(documentID uint) ([]*model.DocumentChunk, error) {
	var out []*model.DocumentChunk
	for _, c := range r.chunks {
		if c.DocumentID == documentID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeDocRepo) DeleteChunksByDocumentID(documentID uint) error {
	kept := r.chunks[:0]
	for _, c := range r.chunks {
		if c.DocumentID != documentID {
			kept = append(kept, c)
		}
	}
	r.chunks = kept
	return nil
}

type fakeIndexer struct {
	indexed  []model.EsChunk
	deletes  []uint
	indexErr error
}

func (f *fakeIndexer) IndexChunk(_ context.Context, doc model.EsChunk) error {
	if f.indexErr != nil {
		return f.indexErr
	}
	f.indexed = append(f.indexed, doc)
	return nil
}

func (f *fakeIndexer) DeleteByDocumentID(_ context.Context, documentID uint) error {
	f.deletes = append(f.deletes, documentID)
	return nil
}

type batchEmbedder struct {
	dims int
	err  error
}

func (e *batchEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.CreateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *batchEmbedder) CreateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, e.dims)
	}
	return out, nil
}

func newTestProcessor(repo *fakeDocRepo, indexer *fakeIndexer, embedder *batchEmbedder) *Processor {
	return NewProcessor(
		embedder,
		indexer,
		repo,
		config.MinIOConfig{},
		config.EmbeddingConfig{Model: "text-embedding-3-small", Dimensions: embedder.dims},
		400,
		false,
	)
}

func TestIngestHappyPath(t *testing.T) {
	repo := newFakeDocRepo()
	indexer := &fakeIndexer{}
	p := newTestProcessor(repo, indexer, &batchEmbedder{dims: 4})

	text := "第一段内容。\n\n第二段内容。\n\n" + strings.Repeat("超", 500)
	result, err := p.Ingest(context.Background(), "测试文档", "unit-test", text)
	require.NoError(t, err)

	// 前两段合并为一块，超长段单独截断成一块
	assert.Equal(t, 2, result.ChunkCount)
	assert.Equal(t, 1, result.Truncated)
	assert.Equal(t, uint(1), result.DocumentID)

	// 文档与分块记录落库，chunk_index 连续
	require.Len(t, repo.chunks, 2)
	for i, c := range repo.chunks {
		assert.Equal(t, uint(1), c.DocumentID)
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, "text-embedding-3-small", c.ModelVersion)
	}
	assert.Equal(t, 2, repo.chunkCount[1])

	// ES 覆盖式索引：先清理旧向量再逐块写入
	assert.Equal(t, []uint{1}, indexer.deletes)
	require.Len(t, indexer.indexed, 2)
	assert.Equal(t, "1_0", indexer.indexed[0].VectorID)
	assert.Equal(t, "1_1", indexer.indexed[1].VectorID)
	assert.Len(t, indexer.indexed[0].Vector, 4)
}

func TestIngestEmptyTextRejected(t *testing.T) {
	repo := newFakeDocRepo()
	p := newTestProcessor(repo, &fakeIndexer{}, &batchEmbedder{dims: 4})

	_, err := p.Ingest(context.Background(), "空文档", "", "   \n\n  ")
	require.Error(t, err)
	assert.Empty(t, repo.docs, "切块为空时不应创建文档记录")
}

func TestIngestEmbeddingFailure(t *testing.T) {
	repo := newFakeDocRepo()
	indexer := &fakeIndexer{}
	p := newTestProcessor(repo, indexer, &batchEmbedder{dims: 4, err: errors.New("网关超时")})

	_, err := p.Ingest(context.Background(), "doc", "", "一些内容")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "批量向量化失败")
	assert.Empty(t, indexer.indexed)
}

func TestIngestDimensionMismatch(t *testing.T) {
	repo := newFakeDocRepo()
	p := NewProcessor(
		&batchEmbedder{dims: 3},
		&fakeIndexer{},
		repo,
		config.MinIOConfig{},
		config.EmbeddingConfig{Model: "m", Dimensions: 1536},
		400,
		false,
	)

	_, err := p.Ingest(context.Background(), "doc", "", "内容")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "向量维度异常")
}

func TestIngestIndexFailure(t *testing.T) {
	repo := newFakeDocRepo()
	indexer := &fakeIndexer{indexErr: errors.New("es 写入失败")}
	p := newTestProcessor(repo, indexer, &batchEmbedder{dims: 4})

	_, err := p.Ingest(context.Background(), "doc", "", "内容")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Elasticsearch")
}

func TestDeleteDocumentCascades(t *testing.T) {
	repo := newFakeDocRepo()
	indexer := &fakeIndexer{}
	p := newTestProcessor(repo, indexer, &batchEmbedder{dims: 4})

	result, err := p.Ingest(context.Background(), "doc", "", "第一段\n\n第二段")
	require.NoError(t, err)

	err = p.DeleteDocument(context.Background(), result.DocumentID)
	require.NoError(t, err)

	assert.Empty(t, repo.docs)
	assert.Empty(t, repo.chunks)
	// Ingest 时一次覆盖式清理 + 删除时一次
	assert.Equal(t, []uint{result.DocumentID, result.DocumentID}, indexer.deletes)
}

func TestProcessRequiresArchive(t *testing.T) {
	repo := newFakeDocRepo()
	p := newTestProcessor(repo, &fakeIndexer{}, &batchEmbedder{dims: 4})

	result, err := p.Ingest(context.Background(), "doc", "", "内容")
	require.NoError(t, err)

	// 未启用归档时没有原文可取，重建索引应当直接失败
	err = p.Process(context.Background(), tasks.ReindexTask{DocumentID: result.DocumentID, Reason: "unit-test"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "归档")
}

func TestProcessUnknownDocument(t *testing.T) {
	p := newTestProcessor(newFakeDocRepo(), &fakeIndexer{}, &batchEmbedder{dims: 4})

	err := p.Process(context.Background(), tasks.ReindexTask{DocumentID: 99})
	require.Error(t, err)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestDeleteDocumentNotFound(t *testing.T) {
	p := newTestProcessor(newFakeDocRepo(), &fakeIndexer{}, &batchEmbedder{dims: 4})

	err := p.DeleteDocument(context.Background(), 42)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}
