// Package limiter 提供基于令牌桶算法的本地限流器。
package limiter

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter 接口定义了限流器的通用行为。
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Dynamic 是支持运行时调整速率的限流器，用于配置热更新。
type Dynamic interface {
	Limiter
	Update(r rate.Limit, b int)
}

var (
	_ Dynamic = (*LocalLimiter)(nil)
	_ Dynamic = (*KeyedLimiter)(nil)
)

// LocalLimiter 是进程内全局令牌桶限流器，忽略 key。
type LocalLimiter struct {
	limiter *rate.Limiter
}

// NewLocalLimiter 创建 LocalLimiter。
// r: 每秒生成的令牌数；b: 令牌桶容量，即允许的瞬时突发请求数。
func NewLocalLimiter(r rate.Limit, b int) *LocalLimiter {
	return &LocalLimiter{limiter: rate.NewLimiter(r, b)}
}

// Allow 尝试获取一个令牌。
func (l *LocalLimiter) Allow(_ context.Context, _ string) (bool, error) {
	return l.limiter.Allow(), nil
}

// Update 运行时调整速率和突发容量，用于配置热更新。
func (l *LocalLimiter) Update(r rate.Limit, b int) {
	l.limiter.SetLimit(r)
	l.limiter.SetBurst(b)
}

// KeyedLimiter 为每个 key（如客户端 IP）维护独立的令牌桶。
type KeyedLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	maxKeys  int
}

// NewKeyedLimiter 创建按 key 限流的限流器。maxKeys 限制跟踪的 key 数量，超出时整体重置。
func NewKeyedLimiter(r rate.Limit, b, maxKeys int) *KeyedLimiter {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	return &KeyedLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    r,
		burst:    b,
		maxKeys:  maxKeys,
	}
}

// Allow 检查 key 对应的令牌桶。
func (l *KeyedLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= l.maxKeys {
			clear(l.limiters)
		}
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow(), nil
}

// Update 调整速率，已有的令牌桶同步生效。
func (l *KeyedLimiter) Update(r rate.Limit, b int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limit, l.burst = r, b
	for _, lim := range l.limiters {
		lim.SetLimit(r)
		lim.SetBurst(b)
	}
}
