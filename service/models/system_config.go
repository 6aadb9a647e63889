/*
 * @module service/models/system_config
 * @description 系统配置模型，存储可在运行时调整的键值配置（运行记录保留天数、限流阈值等）
 * @architecture 数据模型层
 * @stateFlow 配置存储 -> 配置读取 -> 配置更新
 * @rules 同一环境下配置键唯一
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/config/config_service.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SystemConfig 系统配置模型
type SystemConfig struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Key         string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_config_key_env" json:"key"`
	Value       string    `gorm:"type:text;not null" json:"value"`
	Environment string    `gorm:"type:varchar(20);not null;default:'default';uniqueIndex:idx_config_key_env" json:"environment"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName 指定表名
func (SystemConfig) TableName() string {
	return "system_configs"
}

// BeforeCreate GORM钩子，创建前生成UUID
func (c *SystemConfig) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Environment == "" {
		c.Environment = "default"
	}
	return nil
}

// SystemConfigItem 配置项（接口返回用）
type SystemConfigItem struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description"`
	ValueType   string `json:"value_type"`
}
