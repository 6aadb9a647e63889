/*
 * @module service/distributed_lock/redis_lock
 * @description Redis分布式锁实现，用于多实例环境下的定时清理任务防重
 * @architecture 工具层 - 提供分布式锁能力
 * @stateFlow 获取锁 -> 执行任务 -> 释放锁/自动过期
 * @rules 使用Redis SET NX实现，锁值为实例令牌，只有持有者才能释放或续期
 * @dependencies github.com/go-redis/redis/v8, github.com/google/uuid
 * @refs service/init.go, service/cleanup/run_cleanup_service.go
 */

package distributed_lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const keyPrefix = "coverage_service:lock:"

// ErrLockNotHeld 锁不存在或已被其他实例持有
var ErrLockNotHeld = errors.New("锁不存在或已被其他实例持有")

// DistributedLock 分布式锁接口
type DistributedLock interface {
	// TryLock 尝试获取锁
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Unlock 释放锁
	Unlock(ctx context.Context, key string) error
	// Refresh 刷新锁的过期时间
	Refresh(ctx context.Context, key string, ttl time.Duration) error
}

// RedisLock Redis分布式锁实现
type RedisLock struct {
	client *redis.Client
	token  string // 实例令牌，用于标识锁的持有者
}

// NewRedisLock 基于已连接的Redis客户端创建分布式锁
func NewRedisLock(client *redis.Client) *RedisLock {
	hostname, _ := os.Hostname()
	token := fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), uuid.NewString())

	slog.Info("Redis分布式锁初始化成功", "instance", token)
	return &RedisLock{client: client, token: token}
}

// TryLock 尝试获取锁，只有当key不存在时才会设置成功
func (r *RedisLock) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, keyPrefix+key, r.token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("获取锁失败: %w", err)
	}
	if ok {
		slog.Debug("分布式锁: 成功获取锁", "key", key, "ttl", ttl)
	}
	return ok, nil
}

var unlockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

var refreshScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// Unlock 释放锁
func (r *RedisLock) Unlock(ctx context.Context, key string) error {
	n, err := unlockScript.Run(ctx, r.client, []string{keyPrefix + key}, r.token).Int64()
	if err != nil {
		return fmt.Errorf("释放锁失败: %w", err)
	}
	if n == 0 {
		slog.Warn("分布式锁: 锁不存在或已被其他实例持有", "key", key)
	}
	return nil
}

// Refresh 刷新锁的过期时间
func (r *RedisLock) Refresh(ctx context.Context, key string, ttl time.Duration) error {
	n, err := refreshScript.Run(ctx, r.client, []string{keyPrefix + key}, r.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("刷新锁失败: %w", err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// LocalLock 进程内锁，Redis不可用时单实例部署使用
type LocalLock struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

// NewLocalLock 创建进程内锁
func NewLocalLock() *LocalLock {
	return &LocalLock{held: make(map[string]time.Time), clock: time.Now}
}

// TryLock 实现 DistributedLock
func (l *LocalLock) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return false, nil
	}
	l.held[key] = now.Add(ttl)
	return true, nil
}

// Unlock 实现 DistributedLock
func (l *LocalLock) Unlock(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.held, key)
	l.mu.Unlock()
	return nil
}

// Refresh 实现 DistributedLock
func (l *LocalLock) Refresh(_ context.Context, key string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	exp, ok := l.held[key]
	if !ok || !l.clock().Before(exp) {
		return ErrLockNotHeld
	}
	l.held[key] = l.clock().Add(ttl)
	return nil
}

// LockExecutor 带锁执行器，用于简化锁的使用
type LockExecutor struct {
	lock DistributedLock
}

// NewLockExecutor 创建带锁执行器
func NewLockExecutor(lock DistributedLock) *LockExecutor {
	return &LockExecutor{lock: lock}
}

// ExecuteWithLock 在锁保护下执行函数；锁被其他实例持有时跳过执行并返回false
func (e *LockExecutor) ExecuteWithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) (bool, error) {
	locked, err := e.lock.TryLock(ctx, key, ttl)
	if err != nil {
		return false, err
	}
	if !locked {
		slog.Debug("分布式锁: 锁已被其他实例持有，跳过执行", "key", key)
		return false, nil
	}

	defer func() {
		if unlockErr := e.lock.Unlock(context.Background(), key); unlockErr != nil {
			slog.Error("分布式锁: 释放锁失败", "key", key, "error", unlockErr)
		}
	}()

	return true, fn()
}
