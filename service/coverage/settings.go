package coverage

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrMissingDefaultNetwork 未配置默认网络
	ErrMissingDefaultNetwork = errors.New("default network is required")
	// ErrUnknownDefaultNetwork 默认网络不在目录中
	ErrUnknownDefaultNetwork = errors.New("default network is not in the network catalog")
	// ErrInvalidThreshold 覆盖率阈值不在[0,1]区间
	ErrInvalidThreshold = errors.New("coverage threshold must be between 0 and 1")
)

// AssignmentSettings 分配设置：回退网络与覆盖率接受阈值
type AssignmentSettings struct {
	DefaultNetwork    string  `json:"default_network"`
	CoverageThreshold float64 `json:"coverage_threshold"`
}

// Validate 写入设置时校验；catalog为nil时跳过目录成员检查
func (s AssignmentSettings) Validate(catalog *NetworkCatalog) error {
	if s.DefaultNetwork == "" {
		return ErrMissingDefaultNetwork
	}
	if math.IsNaN(s.CoverageThreshold) || s.CoverageThreshold < 0 || s.CoverageThreshold > 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidThreshold, s.CoverageThreshold)
	}
	if catalog != nil && !catalog.Has(s.DefaultNetwork) {
		return fmt.Errorf("%w: %s", ErrUnknownDefaultNetwork, s.DefaultNetwork)
	}
	return nil
}

// mustValidate 计算时设置必须已校验，违反即编程错误
func (s AssignmentSettings) mustValidate(catalog *NetworkCatalog) {
	if err := s.Validate(catalog); err != nil {
		panic(fmt.Sprintf("coverage: invalid assignment settings: %v", err))
	}
}
