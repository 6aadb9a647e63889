/*
 * @module service/init
 * @description 服务初始化模块，负责配置加载、数据库连接、迁移和各业务服务的装配
 * @architecture 分层架构 - 服务层
 * @stateFlow 加载配置 -> 连接数据库 -> 迁移 -> 装配服务 -> 启动后台任务
 * @rules 数据库不可用时拒绝启动；Redis与事件总线不可用时降级运行
 * @dependencies gorm.io/gorm, gorm.io/driver/postgres, github.com/go-redis/redis/v8
 * @refs main.go, api/routes.go
 */

package service

import (
	"context"
	"coverage-service/logger"
	"coverage-service/service/assignment"
	"coverage-service/service/cleanup"
	"coverage-service/service/config"
	"coverage-service/service/database"
	"coverage-service/service/distributed_lock"
	"coverage-service/service/event"
	"coverage-service/service/monitoring"
	"coverage-service/service/network"
	"coverage-service/service/quote"
	"coverage-service/service/rate_limiter"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	DB                      *gorm.DB
	AppConfig               *config.ApplicationConfig
	GlobalConfigService     *config.ConfigService
	GlobalNetworkService    *network.Service
	GlobalQuoteService      *quote.Service
	GlobalAssignmentService *assignment.Service
	GlobalRunCleanupService *cleanup.RunCleanupService
	GlobalRateLimiter       rate_limiter.Limiter
	GlobalEventPublisher    event.Publisher
	GlobalMetrics           *monitoring.AssignmentMetrics

	redisClient *redis.Client
	cancelBg    context.CancelFunc
)

// Init 初始化全部服务，由main在挂载路由前调用
func Init() {
	initConfig()
	initDatabase()
	runMigrations()
	initServices()
}

// initConfig 加载应用配置并初始化日志
func initConfig() {
	var err error
	AppConfig, err = config.LoadApplicationConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	logger.InitLogger(AppConfig.Logging.Level)
}

// initDatabase 初始化数据库连接
func initDatabase() {
	var err error
	DB, err = gorm.Open(postgres.Open(AppConfig.Database.DSN()), &gorm.Config{})
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	if err := database.EnsureSchema(DB, AppConfig.Database.Schema); err != nil {
		log.Fatalf("初始化schema失败: %v", err)
	}
	slog.Info("数据库连接成功", "schema", AppConfig.Database.Schema)
}

// runMigrations 运行数据库迁移
func runMigrations() {
	if err := database.AutoMigrate(DB); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}
	if err := database.InitializeData(DB); err != nil {
		log.Fatalf("基础数据初始化失败: %v", err)
	}
	slog.Info("所有数据库迁移任务完成")
}

// initServices 初始化服务
func initServices() {
	ctx, cancel := context.WithCancel(context.Background())
	cancelBg = cancel

	GlobalMetrics = monitoring.NewAssignmentMetrics(prometheus.DefaultRegisterer)
	GlobalConfigService = config.NewConfigService(DB)
	GlobalNetworkService = network.NewService(DB)
	GlobalQuoteService = quote.NewService(DB, GlobalNetworkService)

	publisher, err := event.NewPublisher(AppConfig.Events)
	if err != nil {
		slog.Error("事件总线初始化失败，运行事件将不会发布", "bus", AppConfig.Events.Bus, "error", err)
		publisher = event.NopPublisher{}
	}
	GlobalEventPublisher = publisher
	GlobalAssignmentService = assignment.NewService(DB, GlobalQuoteService, GlobalNetworkService, publisher, GlobalMetrics)

	// 多实例部署时通过LISTEN/NOTIFY同步快照缓存
	listener, err := network.NewChangeListener(AppConfig.Database.DSN(), GlobalNetworkService)
	if err != nil {
		slog.Warn("目录变更监听器启动失败，仅本实例写入会使缓存失效", "error", err)
	} else {
		go listener.Run(ctx)
	}

	var lock distributed_lock.DistributedLock
	if client, err := connectRedis(AppConfig.Redis); err != nil {
		slog.Warn("Redis不可用，限流关闭，清理任务使用进程内锁", "addr", AppConfig.Redis.Addr(), "error", err)
		lock = distributed_lock.NewLocalLock()
	} else {
		redisClient = client
		lock = distributed_lock.NewRedisLock(client)
		GlobalRateLimiter = rate_limiter.NewRedisRateLimiter(client)
	}

	GlobalRunCleanupService = cleanup.NewRunCleanupService(DB, GlobalConfigService, lock, GlobalMetrics)
	if err := GlobalRunCleanupService.StartScheduledCleanup(); err != nil {
		slog.Error("启动运行清理调度器失败", "error", err)
	}

	slog.Info("服务初始化完成")
}

// connectRedis 连接Redis并检查可用性
func connectRedis(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis连接失败: %w", err)
	}
	return client, nil
}

// Shutdown 停止后台任务并释放连接
func Shutdown() {
	if cancelBg != nil {
		cancelBg()
	}
	if GlobalRunCleanupService != nil {
		GlobalRunCleanupService.StopScheduledCleanup()
	}
	if GlobalEventPublisher != nil {
		if err := GlobalEventPublisher.Close(); err != nil {
			slog.Warn("关闭事件发布器失败", "error", err)
		}
	}
	if redisClient != nil {
		redisClient.Close()
	}
	if DB != nil {
		if sqlDB, err := DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
}
