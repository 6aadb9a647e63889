/*
 * @module service/config/config_service
 * @description 配置服务，提供运行时可调整的系统配置（system_configs表）读写与缓存
 * @architecture 分层架构 - 业务服务层
 * @stateFlow 服务调用 -> 缓存 -> 数据库 -> 默认值
 * @rules 读取失败或解析失败时回退到默认值，不影响业务流程
 * @dependencies coverage-service/service/models, gorm.io/gorm, github.com/spf13/cast
 * @refs service/cleanup/run_cleanup_service.go, api/middleware/rate_limit.go
 */

package config

import (
	"coverage-service/service/models"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cast"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 系统配置键
const (
	ConfigKeyRunRetentionDays      = "assignment_run_retention_days"
	ConfigKeyKeepLatestRuns        = "assignment_keep_latest_runs"
	ConfigKeyRunRateLimitPerMinute = "assignment_rate_limit_per_minute"
)

// 系统配置默认值
const (
	DefaultRunRetentionDays      = 180
	DefaultKeepLatestRuns        = 5
	DefaultRunRateLimitPerMinute = 30
)

// DefaultSystemConfigs 默认系统配置项
func DefaultSystemConfigs() []models.SystemConfigItem {
	return []models.SystemConfigItem{
		{
			Key:         ConfigKeyRunRetentionDays,
			Value:       strconv.Itoa(DefaultRunRetentionDays),
			Description: "被取代的分配运行记录保留天数",
			ValueType:   "int",
		},
		{
			Key:         ConfigKeyKeepLatestRuns,
			Value:       strconv.Itoa(DefaultKeepLatestRuns),
			Description: "每个报价至少保留的最新分配运行记录数",
			ValueType:   "int",
		},
		{
			Key:         ConfigKeyRunRateLimitPerMinute,
			Value:       strconv.Itoa(DefaultRunRateLimitPerMinute),
			Description: "单个报价每分钟允许触发的分配计算次数",
			ValueType:   "int",
		},
	}
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// ConfigService 配置服务
type ConfigService struct {
	db       *gorm.DB
	cache    map[string]cacheEntry
	cacheTTL time.Duration
	mu       sync.RWMutex
}

// NewConfigService 创建配置服务实例
func NewConfigService(db *gorm.DB) *ConfigService {
	return &ConfigService{
		db:       db,
		cache:    make(map[string]cacheEntry),
		cacheTTL: time.Minute,
	}
}

// GetSystemConfig 获取系统配置
func (s *ConfigService) GetSystemConfig(key string) (string, error) {
	s.mu.RLock()
	entry, ok := s.cache[key]
	s.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	var record models.SystemConfig
	if err := s.db.Where("key = ? AND environment = ?", key, "default").First(&record).Error; err != nil {
		return "", fmt.Errorf("查询配置 %s 失败: %w", key, err)
	}

	s.mu.Lock()
	s.cache[key] = cacheEntry{value: record.Value, expiresAt: time.Now().Add(s.cacheTTL)}
	s.mu.Unlock()
	return record.Value, nil
}

// SetSystemConfig 设置系统配置
func (s *ConfigService) SetSystemConfig(key, value, description string) error {
	record := models.SystemConfig{
		Key:         key,
		Value:       value,
		Description: description,
		Environment: "default",
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}, {Name: "environment"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "description", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("保存配置 %s 失败: %w", key, err)
	}

	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
	return nil
}

// GetAllSystemConfigs 获取所有系统配置，数据库中缺失的配置以默认值补齐
func (s *ConfigService) GetAllSystemConfigs() ([]models.SystemConfigItem, error) {
	var configs []models.SystemConfig
	if err := s.db.Where("environment = ?", "default").Order("key").Find(&configs).Error; err != nil {
		return nil, fmt.Errorf("查询配置失败: %w", err)
	}

	existing := make(map[string]bool, len(configs))
	items := make([]models.SystemConfigItem, 0, len(configs))
	for _, c := range configs {
		existing[c.Key] = true
		items = append(items, models.SystemConfigItem{
			Key:         c.Key,
			Value:       c.Value,
			Description: c.Description,
			ValueType:   "string",
		})
	}

	for _, def := range DefaultSystemConfigs() {
		if !existing[def.Key] {
			items = append(items, def)
		}
	}
	return items, nil
}

// GetInt 获取整型配置，缺失或解析失败时返回默认值
func (s *ConfigService) GetInt(key string, defaultValue int) int {
	raw, err := s.GetSystemConfig(key)
	if err != nil {
		return defaultValue
	}
	v, err := cast.ToIntE(raw)
	if err != nil {
		return defaultValue
	}
	return v
}

// GetRunRetentionDays 被取代运行记录的保留天数
func (s *ConfigService) GetRunRetentionDays() int {
	return s.GetInt(ConfigKeyRunRetentionDays, DefaultRunRetentionDays)
}

// GetKeepLatestRuns 每个报价至少保留的运行记录数，最少为1
func (s *ConfigService) GetKeepLatestRuns() int {
	n := s.GetInt(ConfigKeyKeepLatestRuns, DefaultKeepLatestRuns)
	if n < 1 {
		return 1
	}
	return n
}

// GetRunRateLimitPerMinute 单个报价每分钟分配计算上限
func (s *ConfigService) GetRunRateLimitPerMinute() int {
	return s.GetInt(ConfigKeyRunRateLimitPerMinute, DefaultRunRateLimitPerMinute)
}

// ErrUnknownConfigKey 未定义的配置键
var ErrUnknownConfigKey = errors.New("unknown system config key")

// ErrInvalidConfigValue 配置值非法
var ErrInvalidConfigValue = errors.New("invalid system config value")

// UpdateKnownConfig 校验并更新已定义的配置；所有已定义配置均为非负整数
func (s *ConfigService) UpdateKnownConfig(key, value string) error {
	var def *models.SystemConfigItem
	for _, item := range DefaultSystemConfigs() {
		if item.Key == key {
			def = &item
			break
		}
	}
	if def == nil {
		return fmt.Errorf("%w: %s", ErrUnknownConfigKey, key)
	}

	n, err := cast.ToIntE(strings.TrimSpace(value))
	if err != nil || n < 0 {
		return fmt.Errorf("%w: %s=%q", ErrInvalidConfigValue, key, value)
	}
	return s.SetSystemConfig(key, strconv.Itoa(n), def.Description)
}

// ClearCache 清除配置缓存
func (s *ConfigService) ClearCache() {
	s.mu.Lock()
	s.cache = make(map[string]cacheEntry)
	s.mu.Unlock()
}
