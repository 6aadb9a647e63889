/*
 * @module service/cleanup/run_cleanup_service
 * @description 分配运行清理服务，定期删除超过保留期且已被更新运行取代的历史运行
 * @architecture 分层架构 - 业务服务层
 * @stateFlow 定时触发 -> 获取分布式锁 -> 读取保留配置 -> 执行清理 -> 记录结果
 * @rules 每个报价始终保留最新的N条运行；最新运行永不删除；多实例只有一个实例执行
 * @dependencies coverage-service/service/config, gorm.io/gorm, github.com/robfig/cron/v3
 * @refs service/config/config_service.go, service/distributed_lock/redis_lock.go
 */

package cleanup

import (
	"context"
	"coverage-service/service/config"
	"coverage-service/service/distributed_lock"
	"coverage-service/service/monitoring"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

const (
	// Schedule 每天凌晨2点执行（秒 分 时 日 月 周）
	Schedule = "0 0 2 * * *"
	lockKey  = "assignment_run_cleanup"
	lockTTL  = 10 * time.Minute
)

// pruneSQL 删除早于截止时间且不在每个报价最新N条之内的运行
const pruneSQL = `DELETE FROM assignment_runs
WHERE created_at < ?
  AND id IN (
    SELECT id FROM (
      SELECT id, ROW_NUMBER() OVER (PARTITION BY quote_id ORDER BY created_at DESC, id DESC) AS rn
      FROM assignment_runs
    ) ranked
    WHERE rn > ?
  )`

// RunCleanupService 分配运行清理服务
type RunCleanupService struct {
	db            *gorm.DB
	configService *config.ConfigService
	locker        *distributed_lock.LockExecutor
	metrics       *monitoring.AssignmentMetrics
	cron          *cron.Cron
	ctx           context.Context
	cancel        context.CancelFunc
	started       bool
	now           func() time.Time
}

// NewRunCleanupService 创建运行清理服务实例
func NewRunCleanupService(db *gorm.DB, configService *config.ConfigService, lock distributed_lock.DistributedLock, metrics *monitoring.AssignmentMetrics) *RunCleanupService {
	ctx, cancel := context.WithCancel(context.Background())

	return &RunCleanupService{
		db:            db,
		configService: configService,
		locker:        distributed_lock.NewLockExecutor(lock),
		metrics:       metrics,
		cron:          cron.New(cron.WithSeconds()),
		ctx:           ctx,
		cancel:        cancel,
		now:           time.Now,
	}
}

// CleanupExpiredRuns 在分布式锁保护下清理过期运行
func (s *RunCleanupService) CleanupExpiredRuns(ctx context.Context) (int64, error) {
	var deleted int64
	ran, err := s.locker.ExecuteWithLock(ctx, lockKey, lockTTL, func() error {
		retentionDays := s.configService.GetRunRetentionDays()
		keepLatest := s.configService.GetKeepLatestRuns()

		n, err := s.PruneRuns(ctx, retentionDays, keepLatest)
		if err != nil {
			return err
		}
		deleted = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	if !ran {
		slog.Info("运行清理已由其他实例执行，跳过")
	}
	return deleted, nil
}

// PruneRuns 删除早于retentionDays天、且不是报价最新keepLatest条的运行
func (s *RunCleanupService) PruneRuns(ctx context.Context, retentionDays, keepLatest int) (int64, error) {
	if keepLatest < 1 {
		keepLatest = 1
	}
	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)
	startTime := time.Now()

	result := s.db.WithContext(ctx).Exec(pruneSQL, cutoff, keepLatest)
	if result.Error != nil {
		return 0, fmt.Errorf("清理分配运行失败: %w", result.Error)
	}

	s.metrics.ObservePruned(result.RowsAffected)
	slog.Info("分配运行清理完成",
		"deleted_count", result.RowsAffected,
		"retention_days", retentionDays,
		"keep_latest", keepLatest,
		"duration_ms", time.Since(startTime).Milliseconds())
	return result.RowsAffected, nil
}

// StartScheduledCleanup 启动定时清理任务
func (s *RunCleanupService) StartScheduledCleanup() error {
	if s.started {
		return fmt.Errorf("运行清理调度器已经启动")
	}

	_, err := s.cron.AddFunc(Schedule, func() {
		if _, err := s.CleanupExpiredRuns(s.ctx); err != nil {
			slog.Error("定时运行清理任务失败", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("添加定时任务失败: %w", err)
	}

	s.cron.Start()
	s.started = true
	slog.Info("运行清理调度器启动成功", "schedule", Schedule)
	return nil
}

// StopScheduledCleanup 停止定时清理任务
func (s *RunCleanupService) StopScheduledCleanup() {
	if !s.started {
		return
	}

	s.cancel()
	<-s.cron.Stop().Done()
	s.started = false

	slog.Info("运行清理调度器已停止")
}
