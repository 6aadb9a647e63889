/*
 * @module service/models/quote
 * @description 团体报价及其标准化名单模型
 * @architecture DDD领域驱动设计 - 实体模型
 * @stateFlow 创建报价 -> 上传标准化名单 -> 分配计算 -> （可选）管理员设置手工网络
 * @rules 手工网络独立于任何分配运行，重新计算不会清除
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/quote/quote_service.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Quote 团体报价
type Quote struct {
	ID                 string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name               string     `json:"name" gorm:"not null;size:255" example:"Acme Corp 2027 Renewal"`
	Status             string     `json:"status" gorm:"not null;default:'draft';size:20" example:"draft"`
	ManualNetwork      *string    `json:"manual_network" gorm:"type:varchar(100)"`
	ManualNetworkSetBy string     `json:"manual_network_set_by,omitempty" gorm:"size:100"`
	ManualNetworkSetAt *time.Time `json:"manual_network_set_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	CreatedBy          string     `json:"created_by" gorm:"not null;default:'system';size:100"`
	UpdatedAt          time.Time  `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedBy          string     `json:"updated_by" gorm:"not null;default:'system';size:100"`
}

// BeforeCreate GORM钩子，创建前生成UUID
func (q *Quote) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	if q.CreatedBy == "" {
		q.CreatedBy = "system"
	}
	return nil
}

// CensusMember 报价当前的标准化名单行
type CensusMember struct {
	QuoteID string `json:"-" gorm:"primaryKey;type:varchar(36)"`
	Row     int    `json:"row" gorm:"primaryKey;column:row_no;autoIncrement:false"`
	Zip     string `json:"zip" gorm:"not null;size:20"`
}
