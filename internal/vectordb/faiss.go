//go:build cgo

package vectordb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/DataIntelligenceCrew/go-faiss"
)

// FaissRepository 基于Faiss的向量索引实现
// 向量存入Faiss索引，记录本体和位置映射保存在JSON伴随文件中
type FaissRepository struct {
	mu             sync.RWMutex
	index          faiss.Index
	records        map[string]Record
	sourceToIDs    map[string][]string
	idToPosition   map[string]int
	positionToID   map[int]string
	indexPath      string
	metaPath       string
	dimension      int
	distanceType   DistanceType
	saveOnClose    bool
	autoSave       bool
	autoSaveCount  int
	operationCount int
}

// NewFaissRepository 创建新的Faiss向量索引
func NewFaissRepository(config Config) (Repository, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}

	if config.Path != "" && !config.InMemory {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %v", err)
		}
	}

	distType := config.DistanceType
	if distType == "" {
		distType = Cosine
	}

	indexPath := config.Path
	metaPath := ""
	if indexPath != "" {
		metaPath = indexPath + ".meta.json"
	}

	repo := &FaissRepository{
		records:       make(map[string]Record),
		sourceToIDs:   make(map[string][]string),
		idToPosition:  make(map[string]int),
		positionToID:  make(map[int]string),
		indexPath:     indexPath,
		metaPath:      metaPath,
		dimension:     config.Dimension,
		distanceType:  distType,
		saveOnClose:   true,
		autoSave:      true,
		autoSaveCount: 100,
	}

	var index faiss.Index
	var err error

	// 尝试从文件加载已有索引
	if indexPath != "" && !config.InMemory && fileExists(indexPath) {
		index, err = faiss.ReadIndex(indexPath, 0)
		if err != nil {
			if config.CreateIfNotExists {
				index, err = createFaissIndex(config.Dimension, distType)
				if err != nil {
					return nil, fmt.Errorf("failed to create Faiss index: %v", err)
				}
			} else {
				return nil, fmt.Errorf("failed to read index file: %v", err)
			}
		} else {
			if err := repo.loadMetadata(metaPath); err != nil {
				return nil, fmt.Errorf("failed to load index metadata: %v", err)
			}
		}
	} else {
		index, err = createFaissIndex(config.Dimension, distType)
		if err != nil {
			return nil, fmt.Errorf("failed to create Faiss index: %v", err)
		}
	}

	repo.index = index
	return repo, nil
}

// createFaissIndex 创建Faiss索引
func createFaissIndex(dimension int, distType DistanceType) (faiss.Index, error) {
	var metric int
	switch distType {
	case Cosine, DotProduct:
		metric = faiss.MetricInnerProduct
	case Euclidean:
		metric = faiss.MetricL2
	default:
		metric = faiss.MetricL2
	}
	return faiss.NewIndexFlat(dimension, metric)
}

// Upsert 批量写入记录
// 先整体校验向量，再写入Faiss索引和记录映射；
// 校验阶段失败不触碰索引，保证全有或全无
func (r *FaissRepository) Upsert(records []Record) error {
	if len(records) == 0 {
		return nil
	}

	prepared := make([]Record, len(records))
	for i := range records {
		if err := ValidateVector(records[i].Vector, r.dimension); err != nil {
			return fmt.Errorf("upsert rejected: invalid vector for record %s: %w", records[i].ID, err)
		}

		rec := records[i]
		if r.distanceType == Cosine {
			rec.Vector = normalizeVector(rec.Vector)
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now()
		}
		if rec.Metadata == nil {
			rec.Metadata = make(map[string]string)
		}
		prepared[i] = rec
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	startPos := int(r.index.Ntotal())
	for i := range prepared {
		if err := r.index.Add(prepared[i].Vector); err != nil {
			return fmt.Errorf("failed to add vector to index: %v", err)
		}
	}

	for i := range prepared {
		rec := prepared[i]
		position := startPos + i

		if _, exists := r.records[rec.ID]; !exists {
			r.sourceToIDs[rec.SourceID] = append(r.sourceToIDs[rec.SourceID], rec.ID)
		}
		r.records[rec.ID] = rec
		r.idToPosition[rec.ID] = position
		r.positionToID[position] = rec.ID
	}

	r.operationCount += len(prepared)
	if r.autoSave && r.operationCount >= r.autoSaveCount {
		if err := r.saveIndex(); err != nil {
			return fmt.Errorf("auto-save failed: %v", err)
		}
		r.operationCount = 0
	}
	return nil
}

// Search 相似度检索
func (r *FaissRepository) Search(vector []float32, topK int) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}
	if r.distanceType == Cosine {
		vector = normalizeVector(vector)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.records) == 0 || topK <= 0 {
		return []SearchResult{}, nil
	}

	queryLimit := topK
	total := int(r.index.Ntotal())
	if queryLimit > total {
		queryLimit = total
	}
	if queryLimit == 0 {
		return []SearchResult{}, nil
	}

	distances, indices, err := r.index.Search(vector, int64(queryLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %v", err)
	}

	results := make([]SearchResult, 0, queryLimit)
	for i := 0; i < len(indices); i++ {
		idx := indices[i]
		if idx < 0 {
			continue
		}

		recID, found := r.positionToID[int(idx)]
		if !found {
			continue
		}
		rec, exists := r.records[recID]
		if !exists {
			continue
		}

		results = append(results, SearchResult{
			Content:  rec.Content,
			Score:    MetricToScore(distances[i], r.distanceType),
			Metadata: copyMetadata(rec.Metadata),
		})
		if len(results) >= topK {
			break
		}
	}

	SortSearchResults(results)
	return results, nil
}

// DeleteBySourceID 删除指定文档的所有记录
// 向量仍留在Faiss索引中，但位置映射移除后不会再出现在结果里
func (r *FaissRepository) DeleteBySourceID(sourceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids, exists := r.sourceToIDs[sourceID]
	if !exists {
		return nil
	}

	for _, id := range ids {
		if pos, ok := r.idToPosition[id]; ok {
			delete(r.positionToID, pos)
		}
		delete(r.records, id)
		delete(r.idToPosition, id)
	}
	delete(r.sourceToIDs, sourceID)

	r.operationCount += len(ids)
	return nil
}

// Count 获取记录总数
func (r *FaissRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records), nil
}

// GetDimension 返回向量维数
func (r *FaissRepository) GetDimension() int {
	return r.dimension
}

// Close 关闭索引
func (r *FaissRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.saveOnClose && r.indexPath != "" {
		if err := r.saveIndex(); err != nil {
			return fmt.Errorf("failed to save index on close: %v", err)
		}
	}
	return nil
}

// faissMetadata 伴随文件中保存的记录元数据
type faissMetadata struct {
	Records        map[string]Record   `json:"records"`
	SourceToIDs    map[string][]string `json:"source_to_ids"`
	IDToPosition   map[string]int      `json:"id_to_position"`
	OperationCount int                 `json:"operation_count"`
}

// saveIndex 保存索引和记录数据到文件
func (r *FaissRepository) saveIndex() error {
	if r.indexPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(r.indexPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %v", err)
	}
	if err := faiss.WriteIndex(r.index, r.indexPath); err != nil {
		return fmt.Errorf("failed to write index to file: %v", err)
	}
	return r.saveMetadata()
}

// saveMetadata 保存记录元数据到伴随文件
func (r *FaissRepository) saveMetadata() error {
	if r.metaPath == "" {
		return nil
	}

	meta := faissMetadata{
		Records:        r.records,
		SourceToIDs:    r.sourceToIDs,
		IDToPosition:   r.idToPosition,
		OperationCount: r.operationCount,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %v", err)
	}
	if err := os.WriteFile(r.metaPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %v", err)
	}
	return nil
}

// loadMetadata 从伴随文件加载记录元数据
func (r *FaissRepository) loadMetadata(path string) error {
	if path == "" || !fileExists(path) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read metadata file: %v", err)
	}

	var meta faissMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("failed to unmarshal metadata: %v", err)
	}

	r.records = meta.Records
	r.sourceToIDs = meta.SourceToIDs
	r.idToPosition = meta.IDToPosition
	r.operationCount = meta.OperationCount

	r.positionToID = make(map[int]string, len(meta.IDToPosition))
	for id, pos := range meta.IDToPosition {
		r.positionToID[pos] = id
	}
	return nil
}

// fileExists 检查文件是否存在
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

func init() {
	RegisterRepository("faiss", NewFaissRepository)
}
