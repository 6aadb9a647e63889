/*
 * @module service/models/assignment
 * @description 分配运行记录模型，不可变：新运行即新行，从不原地更新
 * @architecture DDD领域驱动设计 - 实体模型
 * @stateFlow 引擎计算 -> 追加写入 -> 按创建时间倒序读取
 * @rules 最新运行由created_at决定，同时间按id倒序
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/assignment/assignment_service.go
 */

package models

import (
	"coverage-service/service/coverage"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AssignmentRun 分配运行记录
type AssignmentRun struct {
	ID             string           `json:"id" gorm:"primaryKey;type:varchar(36)"`
	QuoteID        string           `json:"quote_id" gorm:"not null;type:varchar(36);index:idx_assignment_quote_created,priority:1"`
	Mode           string           `json:"mode" gorm:"not null;size:20" example:"threshold"`
	Result         AssignmentResult `json:"result" gorm:"type:jsonb;not null"`
	Recommendation string           `json:"recommendation" gorm:"not null;type:varchar(100)" example:"Cigna_PPO"`
	Confidence     float64          `json:"confidence" gorm:"not null" example:"0.94"`
	Rationale      string           `json:"rationale" gorm:"type:text"`
	CreatedAt      time.Time        `json:"created_at" gorm:"not null;index:idx_assignment_quote_created,priority:2"`
}

// BeforeCreate GORM钩子，创建前生成UUID
func (r *AssignmentRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// NewAssignmentRun 由引擎结果构建持久化模型
func NewAssignmentRun(run *coverage.AssignmentRun) *AssignmentRun {
	return &AssignmentRun{
		ID:             run.ID,
		QuoteID:        run.QuoteID,
		Mode:           string(run.Mode),
		Result:         AssignmentResult(run.Result),
		Recommendation: run.Recommendation,
		Confidence:     run.Confidence,
		Rationale:      run.Rationale,
		CreatedAt:      run.CreatedAt,
	}
}

// ToCoverage 转换为引擎结果
func (r *AssignmentRun) ToCoverage() *coverage.AssignmentRun {
	return &coverage.AssignmentRun{
		ID:             r.ID,
		QuoteID:        r.QuoteID,
		Mode:           coverage.ResultKind(r.Mode),
		Result:         coverage.Result(r.Result),
		Recommendation: r.Recommendation,
		Confidence:     r.Confidence,
		Rationale:      r.Rationale,
		CreatedAt:      r.CreatedAt,
	}
}
