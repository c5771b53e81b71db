// Package ratelimit 实现基于固定时间窗口的客户端限流。
//
// 限流器由两个独立窗口组成（短窗口：分钟级；长窗口：天级），
// 每个窗口以 (窗口类型, 客户端标识) 为键维护一个计数桶。
// 计数动作抽象为 Counter 接口：进程内表与 Redis 共享计数可互换，
// 多实例部署想要全局配额时切到 Redis 实现即可。
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Counter 是带 TTL 的检查并自增计数器。
// 对同一 key，首次调用或窗口已过期时从 1 重新计数，
// 返回自增后的计数和当前窗口的重置时间。
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}

// Window 描述一个限流窗口。
type Window struct {
	Kind     string
	Limit    int64
	Duration time.Duration
}

// LimitError 表示配额耗尽，携带建议的重试等待秒数。
type LimitError struct {
	Window        string
	RetryAfterSec int64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded (%s window), retry after %ds", e.Window, e.RetryAfterSec)
}

// Limiter 按顺序检查所有窗口，全部通过才放行。
type Limiter struct {
	counter Counter
	windows []Window
	now     func() time.Time
}

// New 创建一个 Limiter。窗口的检查顺序即传入顺序，
// 但先后顺序不影响放行结果：任何一个窗口超限都会拒绝。
func New(counter Counter, windows ...Window) *Limiter {
	return &Limiter{
		counter: counter,
		windows: windows,
		now:     time.Now,
	}
}

// Admit 在执行任何昂贵操作之前调用。放行时返回 nil；
// 超限时返回 *LimitError；计数器本身出错时原样上抛。
func (l *Limiter) Admit(ctx context.Context, clientKey string) error {
	for _, w := range l.windows {
		key := w.Kind + ":" + clientKey
		count, resetAt, err := l.counter.Incr(ctx, key, w.Duration)
		if err != nil {
			return fmt.Errorf("限流计数失败 (%s): %w", w.Kind, err)
		}
		if count > w.Limit {
			retry := int64(math.Ceil(resetAt.Sub(l.now()).Seconds()))
			if retry < 1 {
				retry = 1
			}
			return &LimitError{Window: w.Kind, RetryAfterSec: retry}
		}
	}
	return nil
}
