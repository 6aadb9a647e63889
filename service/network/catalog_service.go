/*
 * @module service/network/catalog_service
 * @description 网络目录服务：网络、ZIP映射与分配设置的维护，以及按次计算的一致性快照读取
 * @architecture 分层架构 - 业务服务层
 * @stateFlow 管理员写入 -> 事务提交 -> 通知变更 -> 快照缓存失效 -> 下一次计算重新读取
 * @rules 设置在写入时校验；快照在同一只读事务内读取目录与设置，避免读到一半的批量导入
 * @dependencies gorm.io/gorm, coverage-service/service/coverage
 * @refs service/network/change_listener.go, service/assignment/assignment_service.go
 */

package network

import (
	"context"
	"coverage-service/service/coverage"
	"coverage-service/service/models"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChangeChannel 目录变更通知频道
const ChangeChannel = "network_catalog_changed"

var (
	// ErrNetworkNotFound 网络不存在
	ErrNetworkNotFound = errors.New("network not found")
	// ErrNetworkExists 网络已存在
	ErrNetworkExists = errors.New("network already exists")
	// ErrNetworkIsDefault 默认网络不可删除
	ErrNetworkIsDefault = errors.New("network is the configured default network")
	// ErrInvalidMapping 映射数据非法
	ErrInvalidMapping = errors.New("invalid network mapping")
	// ErrMappingNotFound 映射不存在
	ErrMappingNotFound = errors.New("network mapping not found")
	// ErrSettingsNotConfigured 尚未配置分配设置
	ErrSettingsNotConfigured = errors.New("network settings are not configured")
	// ErrSettingsInvalid 已保存的设置与当前目录不一致
	ErrSettingsInvalid = errors.New("stored network settings are invalid")
)

// Snapshot 单次计算使用的目录与设置快照
type Snapshot struct {
	Catalog  *coverage.NetworkCatalog
	Settings coverage.AssignmentSettings
	LoadedAt time.Time
}

// Service 网络目录服务
type Service struct {
	db        *gorm.DB
	txOptions *sql.TxOptions

	mu         sync.RWMutex
	cached     *Snapshot
	generation uint64
}

// NewService 创建网络目录服务实例
func NewService(db *gorm.DB) *Service {
	s := &Service{db: db}
	if db.Dialector.Name() == "postgres" {
		s.txOptions = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	return s
}

// ListNetworks 按目录顺序列出网络
func (s *Service) ListNetworks(ctx context.Context) ([]models.Network, error) {
	var networks []models.Network
	if err := s.db.WithContext(ctx).Order("sort_order, id").Find(&networks).Error; err != nil {
		return nil, fmt.Errorf("查询网络列表失败: %w", err)
	}
	return networks, nil
}

// CreateNetwork 添加网络
func (s *Service) CreateNetwork(ctx context.Context, network *models.Network, actor string) error {
	network.ID = strings.TrimSpace(network.ID)
	if network.ID == "" {
		return fmt.Errorf("%w: network id is required", ErrInvalidMapping)
	}
	network.CreatedBy = actor
	network.UpdatedBy = actor

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Network{}).Where("id = ?", network.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("检查网络失败: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: %s", ErrNetworkExists, network.ID)
		}
		if err := tx.Create(network).Error; err != nil {
			return fmt.Errorf("创建网络失败: %w", err)
		}
		return notifyChanged(tx)
	})
	return s.afterWrite(err)
}

// DeleteNetwork 删除网络及其所有ZIP映射
func (s *Service) DeleteNetwork(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 先锁网络行再读设置，与UpdateSettings加锁顺序一致
		locked, err := lockNetwork(tx, id)
		if err != nil {
			return err
		}
		if !locked {
			return fmt.Errorf("%w: %s", ErrNetworkNotFound, id)
		}

		var settings models.NetworkSettings
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&settings, models.SettingsSingletonID).Error
		if err == nil && settings.DefaultNetwork == id {
			return fmt.Errorf("%w: %s", ErrNetworkIsDefault, id)
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("查询分配设置失败: %w", err)
		}

		if err := tx.Where("network_id = ?", id).Delete(&models.NetworkMapping{}).Error; err != nil {
			return fmt.Errorf("删除网络映射失败: %w", err)
		}
		result := tx.Where("id = ?", id).Delete(&models.Network{})
		if result.Error != nil {
			return fmt.Errorf("删除网络失败: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrNetworkNotFound, id)
		}
		return notifyChanged(tx)
	})
	return s.afterWrite(err)
}

// ListMappings 列出ZIP映射，network为空时返回全部
func (s *Service) ListMappings(ctx context.Context, network string) ([]models.NetworkMapping, error) {
	query := s.db.WithContext(ctx).Order("zip")
	if network != "" {
		query = query.Where("network_id = ?", network)
	}
	var mappings []models.NetworkMapping
	if err := query.Find(&mappings).Error; err != nil {
		return nil, fmt.Errorf("查询网络映射失败: %w", err)
	}
	return mappings, nil
}

// UpsertMappings 批量写入映射，整批在一个事务内生效
func (s *Service) UpsertMappings(ctx context.Context, mappings []coverage.NetworkMapping, actor string) (int, error) {
	if len(mappings) == 0 {
		return 0, fmt.Errorf("%w: empty batch", ErrInvalidMapping)
	}

	records := make([]models.NetworkMapping, 0, len(mappings))
	seen := make(map[string]struct{}, len(mappings))
	for i, m := range mappings {
		zip := coverage.NormalizeZip(m.Zip)
		if zip == "" || m.Network == "" {
			return 0, fmt.Errorf("%w: item %d requires zip and network", ErrInvalidMapping, i)
		}
		if _, dup := seen[zip]; dup {
			return 0, fmt.Errorf("%w: zip %s appears more than once", ErrInvalidMapping, zip)
		}
		seen[zip] = struct{}{}
		records = append(records, models.NetworkMapping{Zip: zip, NetworkID: m.Network, UpdatedBy: actor})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		known, err := networkIDs(tx)
		if err != nil {
			return err
		}
		for _, r := range records {
			if _, ok := known[r.NetworkID]; !ok {
				return fmt.Errorf("%w: %s", ErrNetworkNotFound, r.NetworkID)
			}
		}

		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "zip"}},
			DoUpdates: clause.AssignmentColumns([]string{"network_id", "updated_at", "updated_by"}),
		}).CreateInBatches(&records, 500).Error
		if err != nil {
			return fmt.Errorf("写入网络映射失败: %w", err)
		}
		return notifyChanged(tx)
	})
	if err := s.afterWrite(err); err != nil {
		return 0, err
	}
	return len(records), nil
}

// DeleteMapping 删除ZIP映射
func (s *Service) DeleteMapping(ctx context.Context, zip string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("zip = ?", coverage.NormalizeZip(zip)).Delete(&models.NetworkMapping{})
		if result.Error != nil {
			return fmt.Errorf("删除网络映射失败: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrMappingNotFound, zip)
		}
		return notifyChanged(tx)
	})
	return s.afterWrite(err)
}

// GetSettings 读取分配设置
func (s *Service) GetSettings(ctx context.Context) (*models.NetworkSettings, error) {
	var settings models.NetworkSettings
	err := s.db.WithContext(ctx).First(&settings, models.SettingsSingletonID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSettingsNotConfigured
	}
	if err != nil {
		return nil, fmt.Errorf("查询分配设置失败: %w", err)
	}
	return &settings, nil
}

// UpdateSettings 写入分配设置；默认网络必须在目录中，阈值必须在[0,1]
func (s *Service) UpdateSettings(ctx context.Context, in coverage.AssignmentSettings, actor string) (*models.NetworkSettings, error) {
	record := &models.NetworkSettings{
		ID:                models.SettingsSingletonID,
		DefaultNetwork:    strings.TrimSpace(in.DefaultNetwork),
		CoverageThreshold: in.CoverageThreshold,
		UpdatedAt:         time.Now(),
		UpdatedBy:         actor,
	}

	settings := coverage.AssignmentSettings{
		DefaultNetwork:    record.DefaultNetwork,
		CoverageThreshold: record.CoverageThreshold,
	}
	if err := settings.Validate(nil); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 默认网络行加锁到提交，并发的DeleteNetwork要么先完成（此处查不到），要么等待后看到新设置
		locked, err := lockNetwork(tx, record.DefaultNetwork)
		if err != nil {
			return err
		}
		if !locked {
			return fmt.Errorf("%w: %s", coverage.ErrUnknownDefaultNetwork, record.DefaultNetwork)
		}

		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"default_network", "coverage_threshold", "updated_at", "updated_by"}),
		}).Create(record).Error
		if err != nil {
			return fmt.Errorf("保存分配设置失败: %w", err)
		}
		return notifyChanged(tx)
	})
	if err := s.afterWrite(err); err != nil {
		return nil, err
	}

	slog.Info("分配设置已更新",
		"default_network", record.DefaultNetwork,
		"coverage_threshold", record.CoverageThreshold,
		"updated_by", actor)
	return record, nil
}

// Snapshot 获取目录与设置的一致性快照；缓存命中时直接返回
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	s.mu.RLock()
	cached, gen := s.cached, s.generation
	s.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	snap, err := s.loadSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	// 加载期间发生过失效则不写缓存，避免缓存旧快照
	s.mu.Lock()
	if s.generation == gen {
		s.cached = snap
	}
	s.mu.Unlock()
	return snap, nil
}

// Invalidate 使快照缓存失效
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.generation++
	s.mu.Unlock()
}

func (s *Service) loadSnapshot(ctx context.Context) (*Snapshot, error) {
	var (
		networks []models.Network
		mappings []models.NetworkMapping
		settings models.NetworkSettings
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Order("sort_order, id").Find(&networks).Error; err != nil {
			return fmt.Errorf("查询网络列表失败: %w", err)
		}
		if err := tx.Find(&mappings).Error; err != nil {
			return fmt.Errorf("查询网络映射失败: %w", err)
		}
		err := tx.First(&settings, models.SettingsSingletonID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSettingsNotConfigured
		}
		if err != nil {
			return fmt.Errorf("查询分配设置失败: %w", err)
		}
		return nil
	}, s.txOptions)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(networks))
	for i, n := range networks {
		ids[i] = n.ID
	}
	pairs := make([]coverage.NetworkMapping, len(mappings))
	for i, m := range mappings {
		pairs[i] = coverage.NetworkMapping{Zip: m.Zip, Network: m.NetworkID}
	}

	catalog := coverage.NewNetworkCatalog(ids, pairs)
	current := coverage.AssignmentSettings{
		DefaultNetwork:    settings.DefaultNetwork,
		CoverageThreshold: settings.CoverageThreshold,
	}
	if err := current.Validate(catalog); err != nil {
		slog.Error("已保存的分配设置与目录不一致", "default_network", settings.DefaultNetwork, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrSettingsInvalid, err)
	}

	snap := &Snapshot{
		Catalog:  catalog,
		Settings: current,
		LoadedAt: time.Now(),
	}
	slog.Debug("网络目录快照已加载",
		"networks", len(ids),
		"mappings", snap.Catalog.MappingCount())
	return snap, nil
}

// afterWrite 事务提交成功后使本实例缓存失效
func (s *Service) afterWrite(err error) error {
	if err != nil {
		return err
	}
	s.Invalidate()
	return nil
}

// notifyChanged 在事务内发出变更通知，PostgreSQL在提交时投递给其他实例
func notifyChanged(tx *gorm.DB) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	if err := tx.Exec("SELECT pg_notify(?, '')", ChangeChannel).Error; err != nil {
		return fmt.Errorf("发送目录变更通知失败: %w", err)
	}
	return nil
}

// lockNetwork 对网络行加行锁（SQLite下忽略锁子句），返回网络是否存在
func lockNetwork(tx *gorm.DB, id string) (bool, error) {
	var ids []string
	err := tx.Model(&models.Network{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Pluck("id", &ids).Error
	if err != nil {
		return false, fmt.Errorf("锁定网络失败: %w", err)
	}
	return len(ids) > 0, nil
}

func networkIDs(tx *gorm.DB) (map[string]struct{}, error) {
	var ids []string
	if err := tx.Model(&models.Network{}).Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("查询网络列表失败: %w", err)
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

// NetworkExists 判断网络是否在目录中
func (s *Service) NetworkExists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Network{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("检查网络失败: %w", err)
	}
	return count > 0, nil
}
