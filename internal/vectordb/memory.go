package vectordb

import (
	"fmt"
	"sync"
	"time"
)

// MemoryRepository 内存向量索引实现
// 用于开发和测试环境的简单内存存储
type MemoryRepository struct {
	mu           sync.RWMutex
	dimension    int
	distType     DistanceType
	records      map[string]Record   // ID到记录的映射
	sourceToIDs  map[string][]string // 文档标识到记录ID的映射
}

// NewMemoryRepository 创建内存向量索引
func NewMemoryRepository(config Config) (Repository, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}

	distType := config.DistanceType
	if distType != Cosine && distType != DotProduct && distType != Euclidean {
		distType = Cosine // 默认使用余弦距离
	}

	return &MemoryRepository{
		dimension:   config.Dimension,
		distType:    distType,
		records:     make(map[string]Record),
		sourceToIDs: make(map[string][]string),
	}, nil
}

// Upsert 批量写入记录
// 先整体校验再写入，任何一条校验失败都不会产生部分写入
func (r *MemoryRepository) Upsert(records []Record) error {
	if len(records) == 0 {
		return nil
	}

	// 写入前整体校验，保证全有或全无
	for i := range records {
		if err := ValidateVector(records[i].Vector, r.dimension); err != nil {
			return fmt.Errorf("upsert rejected: invalid vector for record %s: %w", records[i].ID, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range records {
		rec := records[i]

		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now()
		}
		if rec.Metadata == nil {
			rec.Metadata = make(map[string]string)
		}

		// 对于余弦距离，先对向量进行归一化处理
		if r.distType == Cosine {
			rec.Vector = normalizeVector(rec.Vector)
		}

		if _, exists := r.records[rec.ID]; !exists {
			r.sourceToIDs[rec.SourceID] = append(r.sourceToIDs[rec.SourceID], rec.ID)
		}
		r.records[rec.ID] = rec
	}

	return nil
}

// Search 相似度检索
func (r *MemoryRepository) Search(vector []float32, topK int) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []SearchResult{}, nil
	}

	if r.distType == Cosine {
		vector = normalizeVector(vector)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	// 空索引返回空序列而不是错误
	if len(r.records) == 0 {
		return []SearchResult{}, nil
	}

	results := make([]SearchResult, 0, len(r.records))
	for _, rec := range r.records {
		dist, err := ComputeDistance(vector, rec.Vector, r.distType)
		if err != nil {
			return nil, err
		}

		results = append(results, SearchResult{
			Content:  rec.Content,
			Score:    DistanceToScore(dist, r.distType),
			Metadata: copyMetadata(rec.Metadata),
		})
	}

	SortSearchResults(results)

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// DeleteBySourceID 删除指定文档的所有记录
func (r *MemoryRepository) DeleteBySourceID(sourceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids, exists := r.sourceToIDs[sourceID]
	if !exists {
		return nil
	}

	for _, id := range ids {
		delete(r.records, id)
	}
	delete(r.sourceToIDs, sourceID)

	return nil
}

// Count 获取记录总数
func (r *MemoryRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records), nil
}

// GetDimension 返回向量维数
func (r *MemoryRepository) GetDimension() int {
	return r.dimension
}

// Close 关闭索引，内存实现无需清理
func (r *MemoryRepository) Close() error {
	return nil
}

// copyMetadata 复制元数据映射，避免调用方修改影响存储
func copyMetadata(meta map[string]string) map[string]string {
	result := make(map[string]string, len(meta))
	for k, v := range meta {
		result[k] = v
	}
	return result
}

// 在包初始化时注册内存实现
func init() {
	RegisterRepository("memory", NewMemoryRepository)
}
