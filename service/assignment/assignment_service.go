/*
 * @module service/assignment/assignment_service
 * @description 分配运行编排：读取名单与目录快照，调用引擎计算，追加写入运行记录，记录指标并发布事件
 * @architecture 分层架构 - 业务服务层
 * @stateFlow 报价校验 -> 名单 + 快照 -> coverage.BuildRun -> 追加写入 -> 指标 -> 事件
 * @rules 运行记录只追加不更新；数据不足时不写入任何记录；事件发布失败不影响运行
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/coverage/run.go, service/event/publisher.go, api/controllers/assignment_controller.go
 */

package assignment

import (
	"context"
	"coverage-service/service/coverage"
	"coverage-service/service/event"
	"coverage-service/service/models"
	"coverage-service/service/monitoring"
	"coverage-service/service/network"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// DefaultListLimit 运行列表默认条数
	DefaultListLimit = 20
	// MaxListLimit 运行列表最大条数
	MaxListLimit = 100
)

// ErrNoRuns 报价尚无运行记录
var ErrNoRuns = errors.New("quote has no assignment runs")

// QuoteReader 报价与名单读取
type QuoteReader interface {
	GetQuote(ctx context.Context, id string) (*models.Quote, error)
	GetCensus(ctx context.Context, quoteID string) ([]coverage.MemberRow, error)
}

// SnapshotProvider 目录与设置快照
type SnapshotProvider interface {
	Snapshot(ctx context.Context) (*network.Snapshot, error)
}

// Service 分配运行服务
type Service struct {
	db        *gorm.DB
	quotes    QuoteReader
	snapshots SnapshotProvider
	publisher event.Publisher
	metrics   *monitoring.AssignmentMetrics
	now       func() time.Time
}

// NewService 创建分配运行服务；publisher为nil时不发布事件，metrics为nil时不记录指标
func NewService(db *gorm.DB, quotes QuoteReader, snapshots SnapshotProvider, publisher event.Publisher, metrics *monitoring.AssignmentMetrics) *Service {
	if publisher == nil {
		publisher = event.NopPublisher{}
	}
	return &Service{
		db:        db,
		quotes:    quotes,
		snapshots: snapshots,
		publisher: publisher,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Run 为报价计算并持久化一次新的分配运行
func (s *Service) Run(ctx context.Context, quoteID string, mode coverage.ResultKind) (*models.AssignmentRun, error) {
	started := time.Now()

	if _, err := s.quotes.GetQuote(ctx, quoteID); err != nil {
		return nil, err
	}

	members, err := s.quotes.GetCensus(ctx, quoteID)
	if err != nil {
		s.metrics.ObserveFailure(string(mode), monitoring.OutcomeError)
		return nil, err
	}

	snap, err := s.snapshots.Snapshot(ctx)
	if err != nil {
		s.metrics.ObserveFailure(string(mode), monitoring.OutcomeError)
		return nil, err
	}

	run, err := coverage.BuildRun(quoteID, members, snap.Catalog, snap.Settings, mode)
	if err != nil {
		if errors.Is(err, coverage.ErrInsufficientData) {
			s.metrics.ObserveFailure(string(mode), monitoring.OutcomeInsufficientData)
			slog.Warn("名单数据不足，未生成分配运行", "quote_id", quoteID, "rows", len(members))
		}
		return nil, err
	}

	run.ID = uuid.New().String()
	run.CreatedAt = s.now().UTC()
	record := models.NewAssignmentRun(run)
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		s.metrics.ObserveFailure(string(mode), monitoring.OutcomeError)
		return nil, fmt.Errorf("保存分配运行失败: %w", err)
	}

	summary := run.Result.GroupSummary
	s.metrics.ObserveRun(string(run.Mode), summary.FallbackUsed, summary.ReviewRequired,
		len(summary.InvalidRows), time.Since(started))

	if n := len(summary.InvalidRows); n > 0 {
		slog.Warn("名单中存在未映射的ZIP", "quote_id", quoteID, "run_id", run.ID, "invalid_rows", n)
	}
	slog.Info("分配运行完成",
		"quote_id", quoteID,
		"run_id", run.ID,
		"mode", run.Mode,
		"network", run.Recommendation,
		"coverage", summary.CoveragePercentage,
		"fallback_used", summary.FallbackUsed)

	s.publish(ctx, run)
	return record, nil
}

func (s *Service) publish(ctx context.Context, run *coverage.AssignmentRun) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	summary := run.Result.GroupSummary
	ev := &event.AssignmentRunEvent{
		Type:           event.EventTypeAssignmentRunCreated,
		RunID:          run.ID,
		QuoteID:        run.QuoteID,
		Mode:           string(run.Mode),
		Recommendation: run.Recommendation,
		Confidence:     run.Confidence,
		FallbackUsed:   summary.FallbackUsed,
		ReviewRequired: summary.ReviewRequired,
		CreatedAt:      run.CreatedAt,
	}
	if err := s.publisher.PublishAssignmentRun(pubCtx, ev); err != nil {
		slog.Error("发布分配运行事件失败", "quote_id", run.QuoteID, "run_id", run.ID, "error", err)
	}
}

// ListRuns 按创建时间倒序列出报价的运行记录
func (s *Service) ListRuns(ctx context.Context, quoteID string, limit int) ([]models.AssignmentRun, error) {
	if _, err := s.quotes.GetQuote(ctx, quoteID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	var runs []models.AssignmentRun
	err := s.db.WithContext(ctx).
		Where("quote_id = ?", quoteID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("查询分配运行失败: %w", err)
	}
	return runs, nil
}

// LatestRun 获取报价最新的运行记录
func (s *Service) LatestRun(ctx context.Context, quoteID string) (*models.AssignmentRun, error) {
	if _, err := s.quotes.GetQuote(ctx, quoteID); err != nil {
		return nil, err
	}
	return s.latestRun(ctx, quoteID)
}

func (s *Service) latestRun(ctx context.Context, quoteID string) (*models.AssignmentRun, error) {
	var run models.AssignmentRun
	err := s.db.WithContext(ctx).
		Where("quote_id = ?", quoteID).
		Order("created_at DESC").Order("id DESC").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNoRuns, quoteID)
	}
	if err != nil {
		return nil, fmt.Errorf("查询最新分配运行失败: %w", err)
	}
	return &run, nil
}

// EffectiveAssignment 合并手工网络与最新运行，得到报价当前生效的网络
func (s *Service) EffectiveAssignment(ctx context.Context, quoteID string) (*coverage.EffectiveAssignment, error) {
	q, err := s.quotes.GetQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}

	var latest *coverage.AssignmentRun
	if q.ManualNetwork == nil || *q.ManualNetwork == "" {
		run, err := s.latestRun(ctx, quoteID)
		switch {
		case errors.Is(err, ErrNoRuns):
		case err != nil:
			return nil, err
		default:
			latest = run.ToCoverage()
		}
	}

	eff := coverage.Resolve(q.ManualNetwork, latest)
	return &eff, nil
}
