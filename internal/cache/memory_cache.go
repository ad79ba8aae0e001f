package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache 进程内缓存，基于go-cache
type MemoryCache struct {
	store *gocache.Cache
}

// NewMemoryCache 创建内存缓存实例
func NewMemoryCache(config Config) (Cache, error) {
	ttl := config.DefaultTTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}

	interval := config.CleanupInterval
	if interval == 0 {
		interval = 10 * time.Minute
	}

	return &MemoryCache{store: gocache.New(ttl, interval)}, nil
}

// Get 查询缓存内容
func (m *MemoryCache) Get(key string) (string, bool, error) {
	value, found := m.store.Get(key)
	if !found {
		return "", false, nil
	}

	str, ok := value.(string)
	if !ok {
		// 类型不符按未命中处理
		return "", false, nil
	}
	return str, true, nil
}

// Set 写入缓存内容
func (m *MemoryCache) Set(key string, value string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = gocache.DefaultExpiration
	}
	m.store.Set(key, value, ttl)
	return nil
}

// Delete 删除缓存项
func (m *MemoryCache) Delete(key string) error {
	m.store.Delete(key)
	return nil
}

// Clear 清空所有缓存项
func (m *MemoryCache) Clear() error {
	m.store.Flush()
	return nil
}

func init() {
	RegisterCache("memory", NewMemoryCache)
}
