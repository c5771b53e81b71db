package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCounter 把窗口计数放在 Redis，多个进程实例共享同一份配额。
// 键在首次计数时设置与窗口等长的过期时间，由 Redis 负责窗口重置。
type RedisCounter struct {
	rdb       *redis.Client
	keyPrefix string
}

// NewRedisCounter 创建一个 Redis 计数器。
func NewRedisCounter(rdb *redis.Client) *RedisCounter {
	return &RedisCounter{rdb: rdb, keyPrefix: "ratelimit:"}
}

// Incr 对 key 执行一次检查并自增。
func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	fullKey := c.keyPrefix + key

	count, err := c.rdb.Incr(ctx, fullKey).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis incr 失败: %w", err)
	}
	if count == 1 {
		if err := c.rdb.PExpire(ctx, fullKey, window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("redis expire 失败: %w", err)
		}
	}

	ttl, err := c.rdb.PTTL(ctx, fullKey).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis pttl 失败: %w", err)
	}
	if ttl < 0 {
		// 键存在但没有过期时间（例如 expire 与其他实例竞争失败后被删除重建），补一个兜底
		ttl = window
		_ = c.rdb.PExpire(ctx, fullKey, window).Err()
	}
	return count, time.Now().Add(ttl), nil
}
