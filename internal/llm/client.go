package llm

import (
	"context"
	"time"
)

// Client 大模型客户端，负责生成回答
type Client interface {
	// Generate 根据提示词生成回答
	Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error)

	// Chat 多轮对话
	Chat(ctx context.Context, messages []Message, options ...ChatOption) (*Response, error)

	// Name 返回模型名称
	Name() string
}

// Config 大模型客户端配置
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string // 模型部署名称
	APIVersion  string
	Timeout     time.Duration
	MaxRetries  int
	MaxTokens   int
	Temperature float32 // 采样温度，0.0-2.0
	TopP        float32 // 核采样阈值，0.0-1.0
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Model:       ModelGPT4o,
		APIVersion:  "2024-12-01-preview",
		Timeout:     60 * time.Second,
		MaxRetries:  3,
		MaxTokens:   1024,
		Temperature: 0.7,
		TopP:        0.9,
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

// Option 客户端级配置选项
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

func WithMaxTokens(tokens int) Option {
	return func(c *Config) { c.MaxTokens = tokens }
}

func WithTemperature(temp float32) Option {
	return func(c *Config) { c.Temperature = temp }
}

func WithTopP(topP float32) Option {
	return func(c *Config) { c.TopP = topP }
}

// GenerateOptions 单次生成请求的覆盖参数，nil字段沿用客户端配置
type GenerateOptions struct {
	MaxTokens   *int
	Temperature *float32
	TopP        *float32
}

// GenerateOption 生成请求的选项
type GenerateOption func(*GenerateOptions)

func WithGenerateMaxTokens(tokens int) GenerateOption {
	return func(o *GenerateOptions) { o.MaxTokens = &tokens }
}

func WithGenerateTemperature(temp float32) GenerateOption {
	return func(o *GenerateOptions) { o.Temperature = &temp }
}

func WithGenerateTopP(topP float32) GenerateOption {
	return func(o *GenerateOptions) { o.TopP = &topP }
}

// ChatOptions 单次对话请求的覆盖参数，nil字段沿用客户端配置
type ChatOptions struct {
	MaxTokens   *int
	Temperature *float32
	TopP        *float32
}

// ChatOption 对话请求的选项
type ChatOption func(*ChatOptions)

func WithChatMaxTokens(tokens int) ChatOption {
	return func(o *ChatOptions) { o.MaxTokens = &tokens }
}

func WithChatTemperature(temp float32) ChatOption {
	return func(o *ChatOptions) { o.Temperature = &temp }
}

func WithChatTopP(topP float32) ChatOption {
	return func(o *ChatOptions) { o.TopP = &topP }
}

// Factory 大模型客户端工厂函数类型
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
		return nil, NewLLMError(
			ErrCodeInvalidRequest,
			"llm client type not registered: "+name)
	}
	return factory(opts...)
}
