package ratelimit

import (
	"context"
	"sync"
	"time"

	"wenda-go/pkg/log"
)

type bucket struct {
	count   int64
	resetAt time.Time
}

// MemoryCounter 是进程内的计数器实现，适用于单实例部署。
// 计数状态不跨进程共享：水平扩容时每个实例各自执行配额，
// 对外生效的上限会乘以实例数，这是部署拓扑层面的已知取舍。
type MemoryCounter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// NewMemoryCounter 创建一个进程内计数器。
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Incr 对 key 执行一次检查并自增。窗口过期后重新从 1 计数。
func (c *MemoryCounter) Incr(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	b, ok := c.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		b = &bucket{count: 1, resetAt: now.Add(window)}
		c.buckets[key] = b
		return b.count, b.resetAt, nil
	}
	b.count++
	return b.count, b.resetAt, nil
}

// Sweep 清理重置时间已过去超过 grace 的桶，返回清理条数。
// 不做清理的话，桶表会随客户端基数无限增长。
func (c *MemoryCounter) Sweep(grace time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, b := range c.buckets {
		if now.Sub(b.resetAt) > grace {
			delete(c.buckets, key)
			removed++
		}
	}
	return removed
}

// StartSweeper 启动后台清理循环，ctx 取消时退出。
func (c *MemoryCounter) StartSweeper(ctx context.Context, interval, grace time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.Sweep(grace); n > 0 {
					log.Debugf("[RateLimit] 已清理 %d 个过期限流桶", n)
				}
			}
		}
	}()
}

// size 返回当前桶数，仅测试使用。
func (c *MemoryCounter) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buckets)
}
