/*
 * @module service/quote/quote_service
 * @description 报价服务：报价维护、标准化名单替换与读取、手工网络设置与清除
 * @architecture 分层架构 - 业务服务层
 * @stateFlow 创建报价 -> 替换名单 -> （管理员）设置/清除手工网络
 * @rules 名单替换整体生效；手工网络必须是目录中的网络，清除即置空
 * @dependencies gorm.io/gorm, github.com/spf13/cast
 * @refs service/assignment/assignment_service.go
 */

package quote

import (
	"context"
	"coverage-service/service/coverage"
	"coverage-service/service/models"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gorm.io/gorm"
)

var (
	// ErrQuoteNotFound 报价不存在
	ErrQuoteNotFound = errors.New("quote not found")
	// ErrInvalidQuote 报价数据非法
	ErrInvalidQuote = errors.New("invalid quote")
	// ErrInvalidCensus 名单数据非法
	ErrInvalidCensus = errors.New("invalid census")
	// ErrUnknownNetwork 手工网络不在目录中
	ErrUnknownNetwork = errors.New("manual network is not in the network catalog")
)

// NetworkChecker 网络存在性检查
type NetworkChecker interface {
	NetworkExists(ctx context.Context, id string) (bool, error)
}

// CensusRowInput 上游标准化步骤输出的名单行；row可省略（按顺序编号），zip可能是数字
type CensusRowInput struct {
	Row interface{} `json:"row,omitempty" swaggertype:"integer" example:"1"`
	Zip interface{} `json:"zip" swaggertype:"string" example:"63011"`
}

// Service 报价服务
type Service struct {
	db       *gorm.DB
	networks NetworkChecker
}

// NewService 创建报价服务实例
func NewService(db *gorm.DB, networks NetworkChecker) *Service {
	return &Service{db: db, networks: networks}
}

// CreateQuote 创建报价
func (s *Service) CreateQuote(ctx context.Context, q *models.Quote, actor string) error {
	q.Name = strings.TrimSpace(q.Name)
	if q.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidQuote)
	}
	// 手工网络只能通过专用接口设置
	q.ManualNetwork = nil
	q.ManualNetworkSetAt = nil
	q.ManualNetworkSetBy = ""
	q.CreatedBy = actor
	q.UpdatedBy = actor

	if err := s.db.WithContext(ctx).Create(q).Error; err != nil {
		return fmt.Errorf("创建报价失败: %w", err)
	}
	return nil
}

// GetQuote 获取报价
func (s *Service) GetQuote(ctx context.Context, id string) (*models.Quote, error) {
	var q models.Quote
	err := s.db.WithContext(ctx).First(&q, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrQuoteNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("查询报价失败: %w", err)
	}
	return &q, nil
}

// ReplaceCensus 用新的标准化名单整体替换报价当前名单
func (s *Service) ReplaceCensus(ctx context.Context, quoteID string, rows []CensusRowInput) ([]coverage.MemberRow, error) {
	members, err := normalizeCensus(rows)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Quote{}).Where("id = ?", quoteID).Count(&count).Error; err != nil {
			return fmt.Errorf("查询报价失败: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("%w: %s", ErrQuoteNotFound, quoteID)
		}

		if err := tx.Where("quote_id = ?", quoteID).Delete(&models.CensusMember{}).Error; err != nil {
			return fmt.Errorf("清除旧名单失败: %w", err)
		}
		if len(members) == 0 {
			return nil
		}

		records := make([]models.CensusMember, len(members))
		for i, m := range members {
			records[i] = models.CensusMember{QuoteID: quoteID, Row: m.Row, Zip: m.Zip}
		}
		if err := tx.CreateInBatches(&records, 500).Error; err != nil {
			return fmt.Errorf("写入名单失败: %w", err)
		}
		return tx.Model(&models.Quote{}).Where("id = ?", quoteID).Update("updated_at", time.Now()).Error
	})
	if err != nil {
		return nil, err
	}

	slog.Info("报价名单已替换", "quote_id", quoteID, "members", len(members))
	return members, nil
}

// GetCensus 按行号顺序读取报价当前名单
func (s *Service) GetCensus(ctx context.Context, quoteID string) ([]coverage.MemberRow, error) {
	var records []models.CensusMember
	if err := s.db.WithContext(ctx).Where("quote_id = ?", quoteID).Order("row_no").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("查询名单失败: %w", err)
	}

	members := make([]coverage.MemberRow, len(records))
	for i, r := range records {
		members[i] = coverage.MemberRow{Row: r.Row, Zip: r.Zip}
	}
	return members, nil
}

// SetManualNetwork 设置或清除（network为nil或空串）手工网络
func (s *Service) SetManualNetwork(ctx context.Context, quoteID string, network *string, actor string) (*models.Quote, error) {
	q, err := s.GetQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	updates := map[string]interface{}{
		"updated_at": now,
		"updated_by": actor,
	}

	if network == nil || strings.TrimSpace(*network) == "" {
		updates["manual_network"] = nil
		updates["manual_network_set_by"] = actor
		updates["manual_network_set_at"] = now
	} else {
		id := strings.TrimSpace(*network)
		ok, err := s.networks.NetworkExists(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNetwork, id)
		}
		updates["manual_network"] = id
		updates["manual_network_set_by"] = actor
		updates["manual_network_set_at"] = now
	}

	if err := s.db.WithContext(ctx).Model(q).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("更新手工网络失败: %w", err)
	}

	slog.Info("报价手工网络已更新", "quote_id", quoteID, "manual_network", updates["manual_network"], "actor", actor)
	return s.GetQuote(ctx, quoteID)
}

// normalizeCensus 校验并规整名单：行号缺省时按顺序编号，行号不可重复，ZIP转为字符串
func normalizeCensus(rows []CensusRowInput) ([]coverage.MemberRow, error) {
	members := make([]coverage.MemberRow, 0, len(rows))
	seen := make(map[int]struct{}, len(rows))

	for i, r := range rows {
		row := i + 1
		if r.Row != nil {
			n, ok := rowOrdinal(r.Row)
			if !ok {
				return nil, fmt.Errorf("%w: item %d has invalid row %v", ErrInvalidCensus, i, r.Row)
			}
			row = n
		}
		if _, dup := seen[row]; dup {
			return nil, fmt.Errorf("%w: row %d appears more than once", ErrInvalidCensus, row)
		}
		seen[row] = struct{}{}

		zip, err := cast.ToStringE(r.Zip)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d has invalid zip %v", ErrInvalidCensus, row, r.Zip)
		}
		members = append(members, coverage.MemberRow{Row: row, Zip: strings.TrimSpace(zip)})
	}
	return members, nil
}

// rowOrdinal 解析正整数行号；JSON数字解码为float64，带小数部分的值不截断而是拒绝
func rowOrdinal(v interface{}) (int, bool) {
	switch f := v.(type) {
	case float64:
		if math.IsInf(f, 0) || f != math.Trunc(f) {
			return 0, false
		}
	case float32:
		if float64(f) != math.Trunc(float64(f)) {
			return 0, false
		}
	}
	n, err := cast.ToIntE(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
