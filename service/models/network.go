/*
 * @module service/models/network
 * @description 保险网络目录相关模型：网络、ZIP映射、分配设置
 * @architecture DDD领域驱动设计 - 实体模型
 * @stateFlow 管理员维护目录 -> 每次分配计算读取一致性快照
 * @rules 一个ZIP最多映射一个网络（ZIP为主键）；设置为单例行，后写覆盖
 * @dependencies gorm.io/gorm
 * @refs service/network/catalog_service.go
 */

package models

import (
	"time"
)

// SettingsSingletonID 分配设置单例行ID
const SettingsSingletonID = 1

// Network 保险网络
type Network struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(100)" example:"Cigna_PPO"`
	Name      string    `json:"name" gorm:"size:255" example:"Cigna Open Access Plus PPO"`
	SortOrder int       `json:"sort_order" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	CreatedBy string    `json:"created_by" gorm:"not null;default:'system';size:100"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedBy string    `json:"updated_by" gorm:"not null;default:'system';size:100"`
}

// NetworkMapping ZIP到网络的映射
type NetworkMapping struct {
	Zip       string    `json:"zip" gorm:"primaryKey;type:varchar(10)" example:"63011"`
	NetworkID string    `json:"network" gorm:"not null;type:varchar(100);index" example:"Cigna_PPO"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedBy string    `json:"updated_by" gorm:"not null;default:'system';size:100"`
}

// NetworkSettings 分配设置（单例）
type NetworkSettings struct {
	ID                int       `json:"-" gorm:"primaryKey"`
	DefaultNetwork    string    `json:"default_network" gorm:"not null;type:varchar(100)" example:"Cigna_PPO"`
	CoverageThreshold float64   `json:"coverage_threshold" gorm:"not null" example:"0.9"`
	UpdatedAt         time.Time `json:"updated_at"`
	UpdatedBy         string    `json:"updated_by" gorm:"not null;default:'system';size:100"`
}
