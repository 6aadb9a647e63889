package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTPublisher MQTT事件发布器，主题为 <topic>/<quote_id>
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
	qos    byte
}

// NewMQTTPublisher 创建并连接MQTT事件发布器
func NewMQTTPublisher(broker, clientID, topic string) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("MQTT连接断开", "broker", broker, "error", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("连接MQTT服务器超时: %s", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("连接MQTT服务器失败: %w", err)
	}

	return &MQTTPublisher{client: client, topic: topic, qos: 1}, nil
}

// PublishAssignmentRun 发布分配运行事件
func (p *MQTTPublisher) PublishAssignmentRun(ctx context.Context, ev *AssignmentRunEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	token := p.client.Publish(fmt.Sprintf("%s/%s", p.topic, ev.QuoteID), p.qos, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("发送MQTT消息失败: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 断开连接
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
