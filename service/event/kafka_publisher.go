package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher Kafka事件发布器，以报价ID为消息键保证同一报价的事件有序
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher 创建Kafka事件发布器
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

// PublishAssignmentRun 发布分配运行事件
func (p *KafkaPublisher) PublishAssignmentRun(ctx context.Context, ev *AssignmentRunEvent) error {
	msg, err := kafkaMessage(ev)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("发送Kafka消息失败: %w", err)
	}
	return nil
}

func kafkaMessage(ev *AssignmentRunEvent) (kafka.Message, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("序列化事件失败: %w", err)
	}
	return kafka.Message{
		Key:   []byte(ev.QuoteID),
		Value: payload,
		Time:  ev.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}, nil
}

// Close 关闭生产者
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
