package embedding

import (
	"context"
	"time"
)

// Client 嵌入模型客户端，把文本转成向量表示
type Client interface {
	// Embed 生成单条文本的向量
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch 批量生成向量，结果顺序与输入一致
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Name 返回模型名称
	Name() string
}

// Config 嵌入客户端配置
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string // 模型部署名称
	APIVersion  string
	Timeout     time.Duration
	MaxRetries  int
	Dimensions  int  // 向量维度
	EnableCache bool // 相同文本的向量做本地缓存
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Model:      "text-embedding-3-small",
		APIVersion: "2024-12-01-preview",
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		Dimensions: 1536,
	}
}

// NewConfig 在默认配置上应用选项
func NewConfig(opts ...Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Option 配置选项
type Option func(*Config)

func WithAPIKey(apiKey string) Option {
	return func(c *Config) { c.APIKey = apiKey }
}

func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

func WithAPIVersion(version string) Option {
	return func(c *Config) { c.APIVersion = version }
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) { c.Timeout = timeout }
}

func WithMaxRetries(retries int) Option {
	return func(c *Config) { c.MaxRetries = retries }
}

func WithDimensions(dimensions int) Option {
	return func(c *Config) { c.Dimensions = dimensions }
}

func WithCache(enable bool) Option {
	return func(c *Config) { c.EnableCache = enable }
}

// Factory 嵌入客户端工厂函数类型
type Factory func(opts ...Option) (Client, error)

var clientFactories = make(map[string]Factory)

// RegisterClient 按名称注册客户端实现
func RegisterClient(name string, factory Factory) {
	clientFactories[name] = factory
}

// NewClient 创建已注册的客户端实现
func NewClient(name string, opts ...Option) (Client, error) {
	factory, ok := clientFactories[name]
	if !ok {
		return nil, NewEmbeddingError(
			ErrCodeInvalidRequest,
			"embedding client type not registered: "+name)
	}
	return factory(opts...)
}
