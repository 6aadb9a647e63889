/*
 * @module service/network/change_listener
 * @description 监听PostgreSQL目录变更通知，使多实例部署下的快照缓存及时失效
 * @architecture 事件驱动 - 基础设施层
 * @stateFlow LISTEN network_catalog_changed -> 收到通知 -> Invalidate
 * @rules 连接断开时监听器自动重连，重连后统一失效一次以覆盖断线期间的变更
 * @dependencies github.com/lib/pq
 * @refs service/network/catalog_service.go
 */

package network

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// Invalidator 可失效的缓存
type Invalidator interface {
	Invalidate()
}

// ChangeListener 目录变更监听器
type ChangeListener struct {
	listener *pq.Listener
	target   Invalidator
}

// NewChangeListener 创建目录变更监听器
func NewChangeListener(dsn string, target Invalidator) (*ChangeListener, error) {
	l := &ChangeListener{target: target}
	l.listener = pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			slog.Warn("目录变更监听器事件", "event", ev, "error", err)
		}
		// 重连后断线期间的通知已丢失
		if ev == pq.ListenerEventReconnected {
			target.Invalidate()
		}
	})

	if err := l.listener.Listen(ChangeChannel); err != nil {
		l.listener.Close()
		return nil, fmt.Errorf("监听目录变更通知失败: %w", err)
	}
	return l, nil
}

// Run 处理通知直到ctx取消
func (l *ChangeListener) Run(ctx context.Context) {
	slog.Info("目录变更监听器已启动", "channel", ChangeChannel)
	defer l.listener.Close()

	for {
		select {
		case n := <-l.listener.Notify:
			// nil 表示连接重建
			if n != nil {
				slog.Debug("收到目录变更通知", "channel", n.Channel)
			}
			l.target.Invalidate()
		case <-time.After(90 * time.Second):
			go func() {
				if err := l.listener.Ping(); err != nil {
					slog.Warn("目录变更监听器心跳失败", "error", err)
				}
			}()
		case <-ctx.Done():
			slog.Info("目录变更监听器已停止")
			return
		}
	}
}
