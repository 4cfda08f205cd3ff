// Package health 提供就绪探针：按名称注册依赖检查并并发执行。
package health

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wyfcoding/lattice/cache"
	"golang.org/x/sync/errgroup"
)

// Checker 定义健康检查函数原型。
type Checker func(ctx context.Context) error

// Result 单项检查结果。
type Result struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Registry 保存已注册的检查项。
type Registry struct {
	mu      sync.RWMutex
	checks  map[string]Checker
	timeout time.Duration
}

// NewRegistry 创建检查注册表，timeout 为单项检查超时，<= 0 时取 2s。
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Registry{checks: make(map[string]Checker), timeout: timeout}
}

// Register 注册检查项，同名覆盖。
func (r *Registry) Register(name string, c Checker) {
	if c == nil {
		return
	}
	r.mu.Lock()
	r.checks[name] = c
	r.mu.Unlock()
}

// Check 并发执行全部检查，返回按名称排序的结果；任一失败时 error 非空。
func (r *Registry) Check(ctx context.Context) ([]Result, error) {
	r.mu.RLock()
	names := make([]string, 0, len(r.checks))
	for name := range r.checks {
		names = append(names, name)
	}
	checks := make(map[string]Checker, len(r.checks))
	for k, v := range r.checks {
		checks[k] = v
	}
	r.mu.RUnlock()
	sort.Strings(names)

	results := make([]Result, len(names))
	errs := make([]error, len(names))
	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			results[i] = Result{Name: name, Status: "ok"}
			if err := checks[name](cctx); err != nil {
				results[i].Status = "down"
				results[i].Error = err.Error()
				errs[i] = fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, errors.Join(errs...)
}

// CacheChecker 写入并读回一个探针键。
func CacheChecker(c cache.Cache) Checker {
	return func(ctx context.Context) error {
		if c == nil {
			return errors.New("cache is nil")
		}
		const key = "health:probe"
		now := time.Now().UnixNano()
		if err := c.Set(ctx, key, now); err != nil {
			return err
		}
		var got int64
		if err := c.Get(ctx, key, &got); err != nil {
			return err
		}
		if got != now {
			return fmt.Errorf("cache probe mismatch: %d != %d", got, now)
		}
		return nil
	}
}
