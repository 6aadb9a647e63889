/*
 * @module service/event/publisher
 * @description 分配运行事件发布，支持Kafka与MQTT两种总线，未配置时不发布
 * @architecture 事件驱动架构 - 适配器模式
 * @stateFlow 运行持久化 -> 构建事件 -> 序列化 -> 发布到总线
 * @rules 发布失败只记录日志，不影响已持久化的运行
 * @dependencies github.com/segmentio/kafka-go, github.com/eclipse/paho.mqtt.golang
 * @refs service/assignment/assignment_service.go
 */

package event

import (
	"context"
	"coverage-service/service/config"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnsupportedBus 未知的事件总线类型
	ErrUnsupportedBus = errors.New("unsupported event bus")
	// ErrMissingBusAddress 总线地址或主题未配置
	ErrMissingBusAddress = errors.New("event bus address is not configured")
)

// EventTypeAssignmentRunCreated 分配运行创建事件
const EventTypeAssignmentRunCreated = "assignment.run.created"

// AssignmentRunEvent 分配运行事件负载
type AssignmentRunEvent struct {
	Type           string    `json:"type"`
	RunID          string    `json:"run_id"`
	QuoteID        string    `json:"quote_id"`
	Mode           string    `json:"mode"`
	Recommendation string    `json:"recommendation"`
	Confidence     float64   `json:"confidence"`
	FallbackUsed   bool      `json:"fallback_used"`
	ReviewRequired bool      `json:"review_required"`
	CreatedAt      time.Time `json:"created_at"`
}

// Publisher 事件发布器
type Publisher interface {
	PublishAssignmentRun(ctx context.Context, ev *AssignmentRunEvent) error
	Close() error
}

// NopPublisher 不发布任何事件
type NopPublisher struct{}

// PublishAssignmentRun 实现 Publisher
func (NopPublisher) PublishAssignmentRun(context.Context, *AssignmentRunEvent) error { return nil }

// Close 实现 Publisher
func (NopPublisher) Close() error { return nil }

// NewPublisher 根据配置创建事件发布器
func NewPublisher(cfg config.EventsConfig) (Publisher, error) {
	switch cfg.Bus {
	case "":
		return NopPublisher{}, nil
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 || cfg.KafkaTopic == "" {
			return nil, fmt.Errorf("%w: kafka brokers/topic", ErrMissingBusAddress)
		}
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	case "mqtt":
		if cfg.MQTTBroker == "" || cfg.MQTTTopic == "" {
			return nil, fmt.Errorf("%w: mqtt broker/topic", ErrMissingBusAddress)
		}
		return NewMQTTPublisher(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopic)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBus, cfg.Bus)
	}
}
