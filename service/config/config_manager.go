/*
 * @module service/config/config_manager
 * @description 应用配置管理器，负责从YAML/JSON文件加载启动配置，并用环境变量覆盖
 * @architecture 分层架构 - 基础设施层
 * @stateFlow 默认值 -> 配置文件 -> 环境变量覆盖 -> 配置验证
 * @rules 环境变量优先级最高；配置文件可选
 * @dependencies gopkg.in/yaml.v3, github.com/spf13/cast
 * @refs main.go, service/init.go
 */

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// ApplicationConfig 应用启动配置
type ApplicationConfig struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
	Events   EventsConfig   `json:"events" yaml:"events"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port        int    `json:"port" yaml:"port"`
	BaseContext string `json:"base_context" yaml:"base_context"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	URL      string `json:"url" yaml:"url"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Database string `json:"database" yaml:"database"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	SSLMode  string `json:"ssl_mode" yaml:"ssl_mode"`
	Schema   string `json:"schema" yaml:"schema"`
}

// DSN 生成PostgreSQL连接串，URL优先
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s search_path=%s",
		d.Host, d.Port, d.Username, d.Password, d.Database, d.SSLMode, d.Schema)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// Addr Redis地址
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// EventsConfig 事件总线配置
type EventsConfig struct {
	Bus          string   `json:"bus" yaml:"bus"` // kafka, mqtt, 空表示不发布
	KafkaBrokers []string `json:"kafka_brokers" yaml:"kafka_brokers"`
	KafkaTopic   string   `json:"kafka_topic" yaml:"kafka_topic"`
	MQTTBroker   string   `json:"mqtt_broker" yaml:"mqtt_broker"`
	MQTTTopic    string   `json:"mqtt_topic" yaml:"mqtt_topic"`
	MQTTClientID string   `json:"mqtt_client_id" yaml:"mqtt_client_id"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
}

// DefaultApplicationConfig 默认配置
func DefaultApplicationConfig() *ApplicationConfig {
	return &ApplicationConfig{
		Server: ServerConfig{Port: 80},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "postgres",
			Username: "postgres",
			SSLMode:  "disable",
			Schema:   "public",
		},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Events: EventsConfig{
			KafkaTopic:   "assignment-runs",
			MQTTTopic:    "coverage/assignment-runs",
			MQTTClientID: "coverage-service",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// LoadApplicationConfig 加载配置：默认值 -> 文件(path为空时跳过) -> 环境变量
func LoadApplicationConfig(path string) (*ApplicationConfig, error) {
	cfg := DefaultApplicationConfig()

	if path != "" {
		if err := loadConfigFromFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvironmentOverrides(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return cfg, nil
}

func loadConfigFromFile(path string, cfg *ApplicationConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 根据文件扩展名决定解析方式
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".json":
		err = json.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("不支持的配置文件格式: %s", ext)
	}
	if err != nil {
		return fmt.Errorf("解析配置文件失败: %w", err)
	}
	return nil
}

// 应用环境变量覆盖
func applyEnvironmentOverrides(cfg *ApplicationConfig) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := cast.ToIntE(v); err == nil {
				*dst = n
			}
		}
	}

	setInt("LISTEN_PORT", &cfg.Server.Port)
	setString("BASE_CONTEXT", &cfg.Server.BaseContext)

	setString("DATABASE_URL", &cfg.Database.URL)
	setString("DB_HOST", &cfg.Database.Host)
	setInt("DB_PORT", &cfg.Database.Port)
	setString("DB_USER", &cfg.Database.Username)
	setString("DB_PASSWORD", &cfg.Database.Password)
	setString("DB_NAME", &cfg.Database.Database)
	setString("DB_SSLMODE", &cfg.Database.SSLMode)
	setString("DB_SCHEMA", &cfg.Database.Schema)

	setString("REDIS_HOST", &cfg.Redis.Host)
	setInt("REDIS_PORT", &cfg.Redis.Port)
	setString("REDIS_PASSWORD", &cfg.Redis.Password)
	setInt("REDIS_DB", &cfg.Redis.DB)

	setString("EVENT_BUS", &cfg.Events.Bus)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Events.KafkaBrokers = splitList(v)
	}
	setString("KAFKA_TOPIC", &cfg.Events.KafkaTopic)
	setString("MQTT_BROKER", &cfg.Events.MQTTBroker)
	setString("MQTT_TOPIC", &cfg.Events.MQTTTopic)
	setString("MQTT_CLIENT_ID", &cfg.Events.MQTTClientID)

	setString("LOG_LEVEL", &cfg.Logging.Level)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// 验证配置
func validateConfig(cfg *ApplicationConfig) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("服务器端口无效: %d", cfg.Server.Port)
	}
	if cfg.Database.URL == "" && cfg.Database.Host == "" {
		return fmt.Errorf("数据库主机不能为空")
	}

	switch cfg.Events.Bus {
	case "":
	case "kafka":
		if len(cfg.Events.KafkaBrokers) == 0 {
			return fmt.Errorf("EVENT_BUS=kafka 时必须配置 KAFKA_BROKERS")
		}
	case "mqtt":
		if cfg.Events.MQTTBroker == "" {
			return fmt.Errorf("EVENT_BUS=mqtt 时必须配置 MQTT_BROKER")
		}
	default:
		return fmt.Errorf("不支持的事件总线: %s", cfg.Events.Bus)
	}
	return nil
}
