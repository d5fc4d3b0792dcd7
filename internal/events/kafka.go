package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter kafka.Writer 的最小接口
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher 基于 kafka-go 的异步事件发布器
type KafkaPublisher struct {
	w      MessageWriter
	logger *zap.Logger
}

// NewKafkaPublisher 创建异步发布器，写入失败由 Completion 回调记录
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	logger = logger.With(zap.String("topic", topic))

	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		Async:                  true,
		AllowAutoTopicCreation: true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				logger.Error("事件写入 Kafka 失败", zap.Int("count", len(msgs)), zap.Error(err))
			}
		},
	}

	logger.Info("事件发布已配置", zap.Strings("brokers", brokers))
	return NewKafkaPublisherWithWriter(w, logger)
}

// NewKafkaPublisherWithWriter 使用已有 writer 构造（测试注入）
func NewKafkaPublisherWithWriter(w MessageWriter, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{w: w, logger: logger}
}

// Publish 以邮箱为分区键写入事件，同一用户的事件保持有序
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) {
	b, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("序列化事件失败", zap.String("type", event.Type), zap.Error(err))
		return
	}

	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Email),
		Value: b,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		p.logger.Error("写入事件失败", zap.String("type", event.Type), zap.Error(err))
	}
}

func (p *KafkaPublisher) Close() error {
	if err := p.w.Close(); err != nil {
		return fmt.Errorf("关闭 Kafka writer 失败: %w", err)
	}
	return nil
}
