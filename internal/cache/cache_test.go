package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemoryCache(t *testing.T) Cache {
	t.Helper()

	c, err := NewMemoryCache(Config{
		DefaultTTL:      2 * time.Second,
		CleanupInterval: time.Second,
	})
	require.NoError(t, err)
	return c
}

func TestMemoryCacheSetGet(t *testing.T) {
	c := newTestMemoryCache(t)

	require.NoError(t, c.Set("key1", "value1", 0))

	val, found, err := c.Get("key1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "value1", val)

	_, found, err = c.Get("missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := newTestMemoryCache(t)

	require.NoError(t, c.Set("short-lived", "temp", 100*time.Millisecond))
	time.Sleep(200 * time.Millisecond)

	_, found, err := c.Get("short-lived")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryCacheDeleteAndClear(t *testing.T) {
	c := newTestMemoryCache(t)

	require.NoError(t, c.Set("a", "1", 0))
	require.NoError(t, c.Set("b", "2", 0))

	require.NoError(t, c.Delete("a"))
	_, found, err := c.Get("a")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Clear())
	_, found, err = c.Get("b")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewRedisCache(Config{
		Type:      "redis",
		RedisAddr: mr.Addr(),
	})
	require.NoError(t, err)

	require.NoError(t, c.Set("answer", "42", time.Minute))

	val, found, err := c.Get("answer")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "42", val)

	// 过期通过miniredis快进时间验证
	mr.FastForward(2 * time.Minute)
	_, found, err = c.Get("answer")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set("gone", "x", 0))
	require.NoError(t, c.Delete("gone"))
	_, found, err = c.Get("gone")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set("flushed", "x", 0))
	require.NoError(t, c.Clear())
	_, found, err = c.Get("flushed")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisCacheConnectError(t *testing.T) {
	_, err := NewRedisCache(Config{RedisAddr: "127.0.0.1:1"})
	require.Error(t, err)
}

func TestNewCacheSelectsImplementation(t *testing.T) {
	c, err := NewCache(DefaultConfig())
	require.NoError(t, err)
	_, ok := c.(*MemoryCache)
	assert.True(t, ok)

	// 未注册的类型回落到内存缓存
	c, err = NewCache(Config{Type: "bolt"})
	require.NoError(t, err)
	_, ok = c.(*MemoryCache)
	assert.True(t, ok)
}

func TestGenerateCacheKey(t *testing.T) {
	assert.Equal(t, "qa", GenerateCacheKey("qa"))
	assert.Equal(t, "qa:question", GenerateCacheKey("qa", "question"))
	assert.Equal(t, "doc:id:3", GenerateCacheKey("doc", "id", "3"))
}
