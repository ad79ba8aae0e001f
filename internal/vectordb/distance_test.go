package vectordb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricToScoreCosine(t *testing.T) {
	// 内积索引对归一化向量返回余弦相似度，完全匹配为1，正交为0
	assert.Equal(t, float32(1), MetricToScore(1.0, Cosine))
	assert.Equal(t, float32(0), MetricToScore(0.0, Cosine))

	// 浮点精度可能让内积略超1
	assert.Equal(t, float32(1), MetricToScore(1.0001, Cosine))

	// 相似度越高评分越高
	assert.Greater(t, MetricToScore(0.9, Cosine), MetricToScore(0.2, Cosine))
	assert.Greater(t, MetricToScore(0.2, Cosine), MetricToScore(-0.5, Cosine))
}

// TestMetricToScoreAgreesWithDistancePath 内积路径和距离路径对同一对向量给出相同评分
func TestMetricToScoreAgreesWithDistancePath(t *testing.T) {
	for _, sim := range []float32{-1, -0.3, 0, 0.4, 0.85, 1} {
		fromMetric := MetricToScore(sim, Cosine)
		fromDistance := DistanceToScore(1-sim, Cosine)
		assert.InDelta(t, fromDistance, fromMetric, 1e-6, "similarity %v", sim)
	}
}

func TestMetricToScoreDotProduct(t *testing.T) {
	assert.Equal(t, float32(1), MetricToScore(1.0, DotProduct))
	assert.Equal(t, float32(0.5), MetricToScore(0.0, DotProduct))
	assert.Equal(t, float32(0), MetricToScore(-1.0, DotProduct))
}

func TestMetricToScoreEuclidean(t *testing.T) {
	// L2索引返回距离的平方
	assert.Equal(t, float32(1), MetricToScore(0, Euclidean))
	assert.InDelta(t, DistanceToScore(2, Euclidean), MetricToScore(4, Euclidean), 1e-6)
	assert.Greater(t, MetricToScore(1, Euclidean), MetricToScore(9, Euclidean))
}

// TestMetricScoresSortBestFirst 内积换算出的评分排序后最佳匹配排在最前
func TestMetricScoresSortBestFirst(t *testing.T) {
	innerProducts := []float32{0.1, 0.95, 0.5}
	results := make([]SearchResult, len(innerProducts))
	for i, ip := range innerProducts {
		results[i] = SearchResult{
			Content: "chunk",
			Score:   MetricToScore(ip, Cosine),
		}
	}

	SortSearchResults(results)

	require.Len(t, results, 3)
	assert.InDelta(t, 0.95, results[0].Score, 1e-6)
	assert.InDelta(t, 0.5, results[1].Score, 1e-6)
	assert.InDelta(t, 0.1, results[2].Score, 1e-6)
}
