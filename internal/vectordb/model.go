package vectordb

import (
	"errors"
	"time"
)

// 常用错误定义
var (
	ErrEmptyVector      = errors.New("empty vector")
	ErrInvalidDimension = errors.New("vector dimension mismatch")
)

// Record 向量索引记录
// 包含分块文本、向量表示及元数据，入库后不再修改
type Record struct {
	ID        string            // 唯一标识符
	SourceID  string            // 所属文档标识
	Content   string            // 分块文本内容
	Vector    []float32         // 向量表示
	Metadata  map[string]string // 元数据信封字段
	CreatedAt time.Time         // 创建时间
}

// DistanceType 向量距离计算方法
type DistanceType string

const (
	// Cosine 余弦相似度
	Cosine DistanceType = "cosine"
	// DotProduct 点积
	DotProduct DistanceType = "dot"
	// Euclidean 欧几里得距离
	Euclidean DistanceType = "l2"
)

// SearchResult 检索结果
// 只在单次问答调用期间存活，不做持久化
type SearchResult struct {
	Content  string            // 分块文本内容
	Score    float32           // 相似度得分
	Metadata map[string]string // 检索返回的原始元数据
}

// Repository 向量索引仓库接口
// 定义核心管线依赖的两个操作及必要的管理操作
type Repository interface {
	// Upsert 批量写入记录
	// 从调用方角度必须是全有或全无：部分失败时返回单个聚合错误，
	// 不允许出现部分写入被当作成功的状态
	Upsert(records []Record) error

	// Search 相似度检索
	// 返回按相似度降序排列的至多topK条结果；
	// 索引为空或没有匹配时返回空序列而不是错误
	Search(vector []float32, topK int) ([]SearchResult, error)

	// DeleteBySourceID 删除指定文档的所有记录
	DeleteBySourceID(sourceID string) error

	// Count 获取记录总数
	Count() (int, error)

	// GetDimension 返回向量维数
	GetDimension() int

	// Close 关闭索引连接
	Close() error
}

// Config 向量索引配置
type Config struct {
	Type              string       // 索引类型，如 "memory", "faiss", "azuresearch"
	Path              string       // 索引文件路径
	Endpoint          string       // 远程索引服务地址
	APIKey            string       // 远程索引服务密钥
	IndexName         string       // 远程索引名称
	Dimension         int          // 向量维度
	DistanceType      DistanceType // 距离计算类型
	CreateIfNotExists bool         // 如果不存在是否创建
	InMemory          bool         // 是否仅在内存中运行
}

// Factory 向量索引工厂函数类型
type Factory func(config Config) (Repository, error)

// RepositoryRegistry 注册可用的向量索引实现
var RepositoryRegistry = map[string]Factory{}

// RegisterRepository 注册向量索引工厂函数
func RegisterRepository(name string, factory Factory) {
	RepositoryRegistry[name] = factory
}

// NewRepository 根据配置创建向量索引实例
func NewRepository(config Config) (Repository, error) {
	factory, ok := RepositoryRegistry[config.Type]
	if !ok {
		// 默认使用内存实现
		factory = NewMemoryRepository
	}
	return factory(config)
}
