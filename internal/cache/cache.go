package cache

import (
	"fmt"
	"strings"
	"time"
)

// Cache 字符串内容的缓存接口，问答结果缓存使用
type Cache interface {
	// Get 查询缓存，found为false表示键不存在或已过期
	Get(key string) (value string, found bool, err error)
	// Set 写入缓存，ttl为0时使用实现的默认过期时间
	Set(key string, value string, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Config 缓存配置
type Config struct {
	Type            string        // 实现类型，"memory"或"redis"
	RedisAddr       string        // Redis连接地址
	RedisPassword   string        // Redis密码
	RedisDB         int           // Redis数据库编号
	DefaultTTL      time.Duration // 默认过期时间
	CleanupInterval time.Duration // 过期项清理间隔，仅内存缓存使用
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		Type:            "memory",
		DefaultTTL:      24 * time.Hour,
		CleanupInterval: 10 * time.Minute,
	}
}

// Factory 缓存实现的构造函数类型
type Factory func(config Config) (Cache, error)

var registry = make(map[string]Factory)

// RegisterCache 注册缓存实现，各实现在init中调用
func RegisterCache(name string, factory Factory) {
	registry[name] = factory
}

// NewCache 按配置的类型创建缓存实例
// 未知类型回落到内存缓存
func NewCache(config Config) (Cache, error) {
	factory, ok := registry[config.Type]
	if !ok {
		return NewMemoryCache(config)
	}
	return factory(config)
}

// GenerateCacheKey 用前缀和参数拼出规范化的缓存键
func GenerateCacheKey(prefix string, parts ...string) string {
	if len(parts) == 0 {
		return prefix
	}
	return fmt.Sprintf("%s:%s", prefix, strings.Join(parts, ":"))
}
