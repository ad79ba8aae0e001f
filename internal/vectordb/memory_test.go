package vectordb

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRepository 创建用于测试的内存向量索引
func newTestRepository(t *testing.T, distType DistanceType) Repository {
	t.Helper()

	repo, err := NewMemoryRepository(Config{
		Type:         "memory",
		Dimension:    4,
		DistanceType: distType,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
	})
	return repo
}

func makeRecord(id, sourceID, content string, vector []float32) Record {
	return Record{
		ID:       id,
		SourceID: sourceID,
		Content:  content,
		Vector:   vector,
		Metadata: map[string]string{"title": sourceID},
	}
}

func TestMemoryRepositoryUpsertAndCount(t *testing.T) {
	repo := newTestRepository(t, Cosine)

	records := []Record{
		makeRecord("r1", "doc.txt", "first chunk", []float32{1, 0, 0, 0}),
		makeRecord("r2", "doc.txt", "second chunk", []float32{0, 1, 0, 0}),
	}
	require.NoError(t, repo.Upsert(records))

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// 相同ID重复写入应覆盖而不是新增
	require.NoError(t, repo.Upsert([]Record{
		makeRecord("r1", "doc.txt", "updated chunk", []float32{0, 0, 1, 0}),
	}))

	count, err = repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMemoryRepositorySearchOrdering(t *testing.T) {
	repo := newTestRepository(t, Cosine)

	require.NoError(t, repo.Upsert([]Record{
		makeRecord("r1", "a.txt", "exact match", []float32{1, 0, 0, 0}),
		makeRecord("r2", "b.txt", "orthogonal", []float32{0, 1, 0, 0}),
		makeRecord("r3", "c.txt", "close match", []float32{0.9, 0.1, 0, 0}),
	}))

	results, err := repo.Search([]float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "exact match", results[0].Content)
	assert.Equal(t, "close match", results[1].Content)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestMemoryRepositorySearchEmptyIndex(t *testing.T) {
	repo := newTestRepository(t, Cosine)

	results, err := repo.Search([]float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.NotNil(t, results)
}

func TestMemoryRepositorySearchTopKLargerThanIndex(t *testing.T) {
	repo := newTestRepository(t, Cosine)

	require.NoError(t, repo.Upsert([]Record{
		makeRecord("r1", "a.txt", "only one", []float32{1, 0, 0, 0}),
	}))

	results, err := repo.Search([]float32{1, 0, 0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestMemoryRepositoryUpsertAtomicity(t *testing.T) {
	repo := newTestRepository(t, Cosine)

	// 批次中含有维度错误的向量，整批都不应写入
	err := repo.Upsert([]Record{
		makeRecord("r1", "a.txt", "valid", []float32{1, 0, 0, 0}),
		makeRecord("r2", "a.txt", "bad dimension", []float32{1, 0}),
	})
	require.Error(t, err)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMemoryRepositoryUpsertEmptyVector(t *testing.T) {
	repo := newTestRepository(t, Cosine)

	err := repo.Upsert([]Record{
		makeRecord("r1", "a.txt", "empty vector", nil),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyVector)
}

func TestMemoryRepositoryDeleteBySourceID(t *testing.T) {
	repo := newTestRepository(t, Cosine)

	require.NoError(t, repo.Upsert([]Record{
		makeRecord("r1", "a.txt", "chunk a1", []float32{1, 0, 0, 0}),
		makeRecord("r2", "a.txt", "chunk a2", []float32{0, 1, 0, 0}),
		makeRecord("r3", "b.txt", "chunk b1", []float32{0, 0, 1, 0}),
	}))

	require.NoError(t, repo.DeleteBySourceID("a.txt"))

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// 删除不存在的文档不应报错
	require.NoError(t, repo.DeleteBySourceID("missing.txt"))
}

func TestMemoryRepositoryMetadataIsolation(t *testing.T) {
	repo := newTestRepository(t, Cosine)

	require.NoError(t, repo.Upsert([]Record{
		makeRecord("r1", "a.txt", "chunk", []float32{1, 0, 0, 0}),
	}))

	results, err := repo.Search([]float32{1, 0, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)

	// 修改返回的元数据不应影响仓库内部状态
	results[0].Metadata["title"] = "mutated"

	again, err := repo.Search([]float32{1, 0, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, "a.txt", again[0].Metadata["title"])
}

func TestMemoryRepositoryEuclidean(t *testing.T) {
	repo := newTestRepository(t, Euclidean)

	require.NoError(t, repo.Upsert([]Record{
		makeRecord("r1", "a.txt", "near", []float32{1, 0, 0, 0}),
		makeRecord("r2", "b.txt", "far", []float32{10, 10, 10, 10}),
	}))

	results, err := repo.Search([]float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "near", results[0].Content)
}

func TestRepositoryRegistry(t *testing.T) {
	repo, err := NewRepository(Config{Type: "memory", Dimension: 4})
	require.NoError(t, err)
	defer repo.Close()

	assert.Equal(t, 4, repo.GetDimension())

	_, err = NewRepository(Config{Type: "nonexistent", Dimension: 4})
	assert.Error(t, err)
}

func TestSortSearchResults(t *testing.T) {
	results := []SearchResult{
		{Content: "low", Score: 0.1},
		{Content: "high", Score: 0.9},
		{Content: "mid", Score: 0.5},
	}
	SortSearchResults(results)

	assert.Equal(t, "high", results[0].Content)
	assert.Equal(t, "mid", results[1].Content)
	assert.Equal(t, "low", results[2].Content)
}

func TestComputeDistance(t *testing.T) {
	tests := []struct {
		name     string
		distType DistanceType
		a, b     []float32
		expected float32
	}{
		{"cosine identical", Cosine, []float32{1, 0}, []float32{1, 0}, 0},
		{"cosine orthogonal", Cosine, []float32{1, 0}, []float32{0, 1}, 1},
		{"euclidean identical", Euclidean, []float32{1, 2}, []float32{1, 2}, 0},
		{"dot product", DotProduct, []float32{1, 2}, []float32{3, 4}, 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeDistance(tt.a, tt.b, tt.distType)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 1e-5)
		})
	}

	_, err := ComputeDistance([]float32{1}, []float32{1, 2}, Cosine)
	assert.Error(t, err)
}

func TestMemoryRepositoryLargeBatch(t *testing.T) {
	repo := newTestRepository(t, Cosine)

	records := make([]Record, 50)
	for i := range records {
		records[i] = makeRecord(
			fmt.Sprintf("r%d", i),
			"big.txt",
			fmt.Sprintf("chunk %d", i),
			[]float32{float32(i + 1), 1, 0, 0},
		)
	}
	require.NoError(t, repo.Upsert(records))

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 50, count)

	results, err := repo.Search([]float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	assert.Len(t, results, 5)
}
