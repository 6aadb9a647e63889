/*
 * @module service/database/migrate
 * @description 数据库迁移模块，负责创建和更新数据库表结构以及初始化基础数据
 * @architecture 数据访问层 - 迁移管理
 * @stateFlow 应用启动时执行数据库迁移
 * @rules 确保数据库结构与模型定义保持一致；基础数据初始化幂等
 * @dependencies coverage-service/service/models, gorm.io/gorm
 * @refs service/init.go
 */

package database

import (
	"coverage-service/service/config"
	"coverage-service/service/models"
	"fmt"
	"log"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate(db *gorm.DB) error {
	log.Println("开始数据库迁移...")

	// 网络目录相关表
	err := db.AutoMigrate(
		&models.Network{},
		&models.NetworkMapping{},
		&models.NetworkSettings{},
	)
	if err != nil {
		return err
	}

	// 报价与分配相关表
	err = db.AutoMigrate(
		&models.Quote{},
		&models.CensusMember{},
		&models.AssignmentRun{},
	)
	if err != nil {
		return err
	}

	if err := db.AutoMigrate(&models.SystemConfig{}); err != nil {
		return err
	}

	log.Println("数据库迁移完成")
	return nil
}

// InitializeData 初始化基础数据，已存在的配置不会被覆盖
func InitializeData(db *gorm.DB) error {
	log.Println("开始初始化基础数据...")

	for _, item := range config.DefaultSystemConfigs() {
		record := models.SystemConfig{
			Key:         item.Key,
			Value:       item.Value,
			Description: item.Description,
		}
		err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error
		if err != nil {
			return fmt.Errorf("初始化系统配置 %s 失败: %w", item.Key, err)
		}
	}

	log.Println("基础数据初始化完成")
	return nil
}
