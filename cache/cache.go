// Package cache 提供定价结果缓存抽象及基于 bigcache 的本地实现。
package cache

import (
	"context"
	"errors"
)

// ErrCacheMiss 键不存在或已过期。
var ErrCacheMiss = errors.New("cache miss")

// Cache 定义缓存接口，值以 JSON 序列化存储。
type Cache interface {
	// Get 将缓存值反序列化到 value（必须是指针），未命中返回 ErrCacheMiss。
	Get(ctx context.Context, key string, value any) error
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}
