package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ragkit/doc-rag/internal/document"
	"github.com/ragkit/doc-rag/internal/metadata"
	"github.com/ragkit/doc-rag/internal/vectordb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder 返回确定性向量的模拟嵌入客户端
type fakeEmbedder struct {
	dimension int
	failAll   bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.failAll {
		return nil, errors.New("embedding service unavailable")
	}
	result := make([][]float32, len(texts))
	for i, text := range texts {
		vector := make([]float32, f.dimension)
		vector[0] = float32(len(text)%7 + 1)
		vector[1] = float32(i + 1)
		result[i] = vector
	}
	return result, nil
}

func (f *fakeEmbedder) Name() string {
	return "fake-embedder"
}

// failingRepository 总是写入失败的向量仓库
type failingRepository struct {
	vectordb.Repository
}

func (f *failingRepository) Upsert(records []vectordb.Record) error {
	return errors.New("index unavailable")
}

func newIngestService(t *testing.T, repo vectordb.Repository) *DocumentService {
	t.Helper()

	splitter, err := document.NewTextSplitter(document.SplitterConfig{
		ChunkSize:    100,
		ChunkOverlap: 10,
	})
	require.NoError(t, err)

	return NewDocumentService(nil, splitter, &fakeEmbedder{dimension: 4}, repo)
}

func newMemoryRepo(t *testing.T) vectordb.Repository {
	t.Helper()

	repo, err := vectordb.NewMemoryRepository(vectordb.Config{Dimension: 4})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestIngestTextDocument(t *testing.T) {
	repo := newMemoryRepo(t)
	svc := newIngestService(t, repo)

	content := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 10)
	result, err := svc.Ingest(context.Background(), "doc-1", "notes.txt", strings.NewReader(content))
	require.NoError(t, err)
	assert.Greater(t, result.ChunksProcessed, 1)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, result.ChunksProcessed, count)
}

func TestIngestRecordsCarryMetadata(t *testing.T) {
	repo := newMemoryRepo(t)
	svc := newIngestService(t, repo)

	_, err := svc.Ingest(context.Background(), "doc-1", "report.txt", strings.NewReader("short document"))
	require.NoError(t, err)

	results, err := repo.Search([]float32{1, 1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)

	meta := results[0].Metadata
	assert.Equal(t, "report.txt", meta[metadata.KeyTitle])
	assert.Equal(t, "report.txt", meta[metadata.KeyFilepath])

	tag, err := metadata.DecodeChunkTag(meta[metadata.KeyTags])
	require.NoError(t, err)
	assert.Equal(t, 1, tag.Index)
	assert.Equal(t, metadata.PageNone, tag.Page)
}

func TestIngestCSVCarriesRowPages(t *testing.T) {
	repo := newMemoryRepo(t)
	svc := newIngestService(t, repo)

	csvContent := "name,score\nalice,90\nbob,85\n"
	result, err := svc.Ingest(context.Background(), "doc-csv", "data.csv", strings.NewReader(csvContent))
	require.NoError(t, err)
	assert.Equal(t, 3, result.ChunksProcessed)

	results, err := repo.Search([]float32{1, 1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// 每条记录的标签页码是CSV行号
	pages := make(map[string]bool)
	for _, res := range results {
		tag, err := metadata.DecodeChunkTag(res.Metadata[metadata.KeyTags])
		require.NoError(t, err)
		pages[tag.Page] = true
	}
	assert.Len(t, pages, 3)
}

func TestIngestUnsupportedFormat(t *testing.T) {
	repo := newMemoryRepo(t)
	svc := newIngestService(t, repo)

	_, err := svc.Ingest(context.Background(), "doc-bad", "image.png", strings.NewReader("binary"))
	require.Error(t, err)

	var formatErr *document.UnsupportedFormatError
	assert.ErrorAs(t, err, &formatErr)

	// 失败的摄入不应写入任何记录
	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestIngestIndexWriteFailure(t *testing.T) {
	repo := newMemoryRepo(t)
	svc := newIngestService(t, &failingRepository{Repository: repo})

	_, err := svc.Ingest(context.Background(), "doc-1", "notes.txt", strings.NewReader("some content"))
	require.Error(t, err)

	var writeErr *IndexWriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, "doc-1", writeErr.DocumentID)
	assert.Contains(t, writeErr.Error(), "index unavailable")
}

func TestIngestEmbeddingFailure(t *testing.T) {
	repo := newMemoryRepo(t)

	splitter, err := document.NewTextSplitter(document.DefaultSplitterConfig())
	require.NoError(t, err)
	svc := NewDocumentService(nil, splitter, &fakeEmbedder{dimension: 4, failAll: true}, repo)

	_, err = svc.Ingest(context.Background(), "doc-1", "notes.txt", strings.NewReader("content"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to generate embeddings")

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestIngestEmptyDocument(t *testing.T) {
	repo := newMemoryRepo(t)
	svc := newIngestService(t, repo)

	result, err := svc.Ingest(context.Background(), "doc-empty", "empty.txt", strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, 0, result.ChunksProcessed)
}

// rendezvousEmbedder 第一个批次请求阻塞到第二个批次到达才放行
// 若批次被串行执行，第一个批次会一直等到上下文超时
type rendezvousEmbedder struct {
	fakeEmbedder
	mu      sync.Mutex
	waiting chan struct{}
	met     bool
}

func (e *rendezvousEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	if e.met {
		e.mu.Unlock()
		return e.fakeEmbedder.EmbedBatch(ctx, texts)
	}
	if e.waiting == nil {
		ch := make(chan struct{})
		e.waiting = ch
		e.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return e.fakeEmbedder.EmbedBatch(ctx, texts)
	}
	close(e.waiting)
	e.met = true
	e.mu.Unlock()
	return e.fakeEmbedder.EmbedBatch(ctx, texts)
}

// TestIngestEmbedsBatchesConcurrently 向量化批次并行发出而不是逐批串行
func TestIngestEmbedsBatchesConcurrently(t *testing.T) {
	repo := newMemoryRepo(t)
	splitter, err := document.NewTextSplitter(document.SplitterConfig{
		ChunkSize:    40,
		ChunkOverlap: 0,
	})
	require.NoError(t, err)

	embedder := &rendezvousEmbedder{fakeEmbedder: fakeEmbedder{dimension: 4}}
	svc := NewDocumentService(nil, splitter, embedder, repo, WithBatchSize(1))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	content := strings.Repeat("Tiny sentences fill the page. ", 8)
	result, err := svc.Ingest(ctx, "doc-1", "notes.txt", strings.NewReader(content))
	require.NoError(t, err)
	assert.Greater(t, result.ChunksProcessed, 1)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, result.ChunksProcessed, count)
}

func TestIngestIdempotentUpsert(t *testing.T) {
	repo := newMemoryRepo(t)
	svc := newIngestService(t, repo)

	content := "identical content for both runs"
	_, err := svc.Ingest(context.Background(), "doc-1", "dup.txt", strings.NewReader(content))
	require.NoError(t, err)

	// 相同文档ID重复摄入应覆盖而不是新增记录
	_, err = svc.Ingest(context.Background(), "doc-1", "dup.txt", strings.NewReader(content))
	require.NoError(t, err)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
