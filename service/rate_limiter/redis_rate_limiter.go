/*
 * @module service/rate_limiter/redis_rate_limiter
 * @description 基于Redis的固定窗口限流，用于限制单个报价的分配运行频率
 * @architecture 工具层 - 提供分布式限流能力
 * @stateFlow 构造窗口Key -> Redis原子计数 -> 判断是否超限
 * @rules 使用Lua脚本保证INCR与EXPIRE的原子性；每个窗口独立计数
 * @dependencies github.com/go-redis/redis/v8
 * @refs api/middleware/rate_limit.go
 */

package rate_limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateLimitResult 限流检查结果
type RateLimitResult struct {
	Allowed   bool   `json:"allowed"`   // 是否允许请求
	Limit     int    `json:"limit"`     // 限制数量
	Remaining int    `json:"remaining"` // 剩余数量
	ResetAt   int64  `json:"reset_at"`  // 重置时间（Unix时间戳）
	Message   string `json:"message"`
}

// Limiter 限流器
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error)
}

// RedisRateLimiter Redis限流器
type RedisRateLimiter struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisRateLimiter 基于已连接的Redis客户端创建限流器
func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, now: time.Now}
}

var allowScript = redis.NewScript(`
	local current = tonumber(redis.call('GET', KEYS[1]) or '0')
	if current >= tonumber(ARGV[1]) then
		return {0, current, redis.call('TTL', KEYS[1])}
	end
	local n = redis.call('INCR', KEYS[1])
	if n == 1 then
		redis.call('EXPIRE', KEYS[1], ARGV[2])
	end
	return {1, n, redis.call('TTL', KEYS[1])}
`)

// Allow 检查并计数；limit<=0 表示不限流
func (r *RedisRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error) {
	if limit <= 0 {
		return &RateLimitResult{Allowed: true, Limit: -1, Remaining: -1, Message: "无限流规则"}, nil
	}

	seconds := int64(window / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	now := r.now()
	windowKey := fmt.Sprintf("rate_limit:%s:%d", key, now.Unix()/seconds)

	res, err := allowScript.Run(ctx, r.client, []string{windowKey}, limit, seconds).Slice()
	if err != nil {
		return nil, fmt.Errorf("限流检查失败: %w", err)
	}

	allowed := res[0].(int64) == 1
	count := int(res[1].(int64))
	ttl := res[2].(int64)
	if ttl < 0 {
		ttl = seconds
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	msg := "允许请求"
	if !allowed {
		msg = fmt.Sprintf("超过限流限制: 每%d秒%d次", seconds, limit)
	}

	return &RateLimitResult{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   now.Add(time.Duration(ttl) * time.Second).Unix(),
		Message:   msg,
	}, nil
}
