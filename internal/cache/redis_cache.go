package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache 多实例部署时共享的Redis缓存
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache 创建Redis缓存实例并验证连接
func NewRedisCache(config Config) (Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.RedisAddr, err)
	}

	return &RedisCache{client: client}, nil
}

// Get 查询缓存内容
func (r *RedisCache) Get(key string) (string, bool, error) {
	value, err := r.client.Get(context.Background(), key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set 写入缓存内容
func (r *RedisCache) Set(key string, value string, ttl time.Duration) error {
	return r.client.Set(context.Background(), key, value, ttl).Err()
}

// Delete 删除缓存项
func (r *RedisCache) Delete(key string) error {
	return r.client.Del(context.Background(), key).Err()
}

// Clear 清空当前Redis数据库
// 会影响同库的其他键，部署时应使用独立的DB编号
func (r *RedisCache) Clear() error {
	return r.client.FlushDB(context.Background()).Err()
}

func init() {
	RegisterCache("redis", NewRedisCache)
}
