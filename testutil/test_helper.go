/*
 * @module testutil/test_helper
 * @description 测试工具和辅助函数
 * @architecture 测试基础设施 - 提供测试通用工具和数据工厂
 * @stateFlow 测试环境初始化 -> 测试数据创建 -> 测试执行 -> 清理资源
 * @rules 每个测试独立的共享缓存内存库；单连接保证事务内外看到同一份数据
 * @dependencies gorm, sqlite, testify
 * @refs service/models
 */

package testutil

import (
	"bytes"
	"context"
	"coverage-service/service/database"
	"coverage-service/service/event"
	"coverage-service/service/models"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// TestDB 测试数据库配置
type TestDB struct {
	DB *gorm.DB
}

// NewTestDB 创建测试数据库并完成迁移
func NewTestDB() *TestDB {
	// 普通 :memory: 每个连接各自一份库，这里用命名的共享缓存库
	dsn := fmt.Sprintf("file:coverage_test_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(fmt.Sprintf("failed to connect test database: %v", err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		panic(fmt.Sprintf("failed to get sql.DB: %v", err))
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		panic(fmt.Sprintf("failed to migrate test database: %v", err))
	}
	if err := database.InitializeData(db); err != nil {
		panic(fmt.Sprintf("failed to seed test database: %v", err))
	}

	return &TestDB{DB: db}
}

// NewTestDBT 创建测试数据库，测试结束时自动关闭
func NewTestDBT(t *testing.T) *gorm.DB {
	t.Helper()
	tdb := NewTestDB()
	t.Cleanup(tdb.Close)
	return tdb.DB
}

// CleanDB 清理业务数据，保留系统配置
func (tdb *TestDB) CleanDB() {
	tables := []string{
		"assignment_runs",
		"census_members",
		"quotes",
		"network_settings",
		"network_mappings",
		"networks",
	}
	for _, table := range tables {
		tdb.DB.Exec(fmt.Sprintf("DELETE FROM %s", table))
	}
}

// Close 关闭数据库连接
func (tdb *TestDB) Close() {
	if db, err := tdb.DB.DB(); err == nil {
		db.Close()
	}
}

// TestDataFactory 测试数据工厂
type TestDataFactory struct {
	DB *gorm.DB
}

// NewTestDataFactory 创建测试数据工厂
func NewTestDataFactory(db *gorm.DB) *TestDataFactory {
	return &TestDataFactory{DB: db}
}

// CreateCatalog 创建网络目录、ZIP映射和分配设置
func (f *TestDataFactory) CreateCatalog(networks []string, zipToNetwork map[string]string, defaultNetwork string, threshold float64) {
	for i, id := range networks {
		n := models.Network{ID: id, Name: id, SortOrder: i, CreatedBy: "test", UpdatedBy: "test"}
		if err := f.DB.Create(&n).Error; err != nil {
			panic(fmt.Sprintf("failed to create test network: %v", err))
		}
	}
	for zip, network := range zipToNetwork {
		m := models.NetworkMapping{Zip: zip, NetworkID: network, UpdatedBy: "test"}
		if err := f.DB.Create(&m).Error; err != nil {
			panic(fmt.Sprintf("failed to create test mapping: %v", err))
		}
	}
	settings := models.NetworkSettings{
		ID:                models.SettingsSingletonID,
		DefaultNetwork:    defaultNetwork,
		CoverageThreshold: threshold,
		UpdatedBy:         "test",
	}
	if err := f.DB.Create(&settings).Error; err != nil {
		panic(fmt.Sprintf("failed to create test settings: %v", err))
	}
}

// CreateExampleCatalog 创建示例目录：63011->Cigna_PPO，10001->Aetna_HMO，默认Cigna_PPO，阈值0.9
func (f *TestDataFactory) CreateExampleCatalog() {
	f.CreateCatalog(
		[]string{"Cigna_PPO", "Aetna_HMO"},
		map[string]string{"63011": "Cigna_PPO", "10001": "Aetna_HMO"},
		"Cigna_PPO", 0.9,
	)
}

// QuoteOption 报价选项函数类型
type QuoteOption func(*models.Quote)

// WithManualNetwork 设置手工网络
func WithManualNetwork(network string) QuoteOption {
	return func(q *models.Quote) {
		q.ManualNetwork = &network
		q.ManualNetworkSetBy = "test"
	}
}

// CreateQuote 创建测试报价
func (f *TestDataFactory) CreateQuote(opts ...QuoteOption) *models.Quote {
	q := &models.Quote{
		Name:      "测试报价_" + generateSuffix(),
		Status:    "draft",
		CreatedBy: "test",
		UpdatedBy: "test",
	}
	for _, opt := range opts {
		opt(q)
	}
	if err := f.DB.Create(q).Error; err != nil {
		panic(fmt.Sprintf("failed to create test quote: %v", err))
	}
	return q
}

// CreateCensus 为报价写入名单，行号从1开始
func (f *TestDataFactory) CreateCensus(quoteID string, zips ...string) {
	for i, zip := range zips {
		m := models.CensusMember{QuoteID: quoteID, Row: i + 1, Zip: zip}
		if err := f.DB.Create(&m).Error; err != nil {
			panic(fmt.Sprintf("failed to create test census: %v", err))
		}
	}
}

func generateSuffix() string {
	return fmt.Sprintf("%d", time.Now().UnixNano()%100000)
}

// MockPublisher Mock事件发布器
type MockPublisher struct {
	mock.Mock
}

// PublishAssignmentRun 实现 event.Publisher
func (m *MockPublisher) PublishAssignmentRun(ctx context.Context, ev *event.AssignmentRunEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

// Close 实现 event.Publisher
func (m *MockPublisher) Close() error {
	return nil
}

// HTTPTestHelper HTTP测试辅助工具
type HTTPTestHelper struct{}

// NewHTTPTestHelper 创建HTTP测试辅助工具
func NewHTTPTestHelper() *HTTPTestHelper {
	return &HTTPTestHelper{}
}

// CreateJSONRequest 创建JSON请求
func (h *HTTPTestHelper) CreateJSONRequest(method, url string, body interface{}) (*http.Request, error) {
	var reqBody io.Reader

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// AssertJSONResponse 断言JSON响应
func (h *HTTPTestHelper) AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedBody interface{}) {
	assert.Equal(t, expectedStatus, w.Code)

	if expectedBody != nil {
		var actualBody interface{}
		err := json.Unmarshal(w.Body.Bytes(), &actualBody)
		assert.NoError(t, err)

		expectedJSON, _ := json.Marshal(expectedBody)
		actualJSON, _ := json.Marshal(actualBody)

		assert.JSONEq(t, string(expectedJSON), string(actualJSON))
	}
}

// DecodeEnvelope 解码 {status, msg, data} 响应，data解码到out（可为nil）
func (h *HTTPTestHelper) DecodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, out interface{}) (status int, msg string) {
	t.Helper()
	var env struct {
		Status int             `json:"status"`
		Msg    string          `json:"msg"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if out != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
	return env.Status, env.Msg
}
