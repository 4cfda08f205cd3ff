package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
)

// BigCache 实现了 `Cache` 接口，使用 `allegro/bigcache` 作为底层存储。
// 所有条目共享同一个全局 TTL。
type BigCache struct {
	cache  *bigcache.BigCache
	prefix string
}

// NewBigCache 创建 BigCache 实例。
// maxMB 为 0 表示不限制容量；shards 必须是 2 的幂，为 0 时使用默认值。
func NewBigCache(ctx context.Context, ttl time.Duration, maxMB, shards int) (*BigCache, error) {
	config := bigcache.DefaultConfig(ttl)
	config.HardMaxCacheSize = maxMB
	config.CleanWindow = cleanWindow(ttl)
	if shards > 0 {
		config.Shards = shards
	}

	cache, err := bigcache.New(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("初始化 bigcache 失败: %w", err)
	}

	return &BigCache{cache: cache}, nil
}

func cleanWindow(ttl time.Duration) time.Duration {
	w := ttl / 2
	if w < time.Second {
		return time.Second
	}
	if w > 5*time.Minute {
		return 5 * time.Minute
	}
	return w
}

// WithPrefix 返回共享底层存储、使用不同键前缀的视图。
func (c *BigCache) WithPrefix(prefix string) *BigCache {
	return &BigCache{cache: c.cache, prefix: prefix}
}

func (c *BigCache) buildKey(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}

// Get 从缓存中读取并反序列化。
func (c *BigCache) Get(_ context.Context, key string, value any) error {
	data, err := c.cache.Get(c.buildKey(key))
	if err != nil {
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			return ErrCacheMiss
		}
		return err
	}
	return json.Unmarshal(data, value)
}

// Set 序列化后写入缓存。
func (c *BigCache) Set(_ context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	return c.cache.Set(c.buildKey(key), data)
}

// Delete 删除一个或多个键，不存在的键被忽略。
func (c *BigCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		if err := c.cache.Delete(c.buildKey(key)); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
			return err
		}
	}
	return nil
}

// Len 当前条目数。
func (c *BigCache) Len() int {
	return c.cache.Len()
}

// Close 释放底层资源。
func (c *BigCache) Close() error {
	return c.cache.Close()
}
