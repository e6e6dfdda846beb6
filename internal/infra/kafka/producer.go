package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"esc-telemetry/internal/config"
	"esc-telemetry/internal/infra/mq"
)

// KafkaProducer publishes frames keyed by robot name, so one robot's
// frames stay ordered within a partition.
type KafkaProducer struct {
	writer *kafka.Writer
	logger *zap.Logger
	topic  string
}

var _ mq.Producer = (*KafkaProducer)(nil)

func NewKafkaProducer(cfg config.KafkaConfig, logger *zap.Logger) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           10 * time.Second,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn("Kafka batch delivery failed", zap.Int("messages", len(messages)), zap.Error(err))
			}
		},
	}

	logger.Info("Initialized Kafka producer", zap.Strings("brokers", cfg.Brokers), zap.String("topic", cfg.Topic))
	return &KafkaProducer{
		writer: w,
		logger: logger,
		topic:  cfg.Topic,
	}, nil
}

// Produce 写入一条消息; topic 为空时使用配置的默认 topic
func (p *KafkaProducer) Produce(ctx context.Context, topic string, key string, data interface{}) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("kafka: marshal payload: %w", err)
	}

	target := p.topic
	if topic != "" {
		target = topic
	}
	msg := kafka.Message{
		Topic: target,
		Key:   []byte(key),
		Value: body,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write to %s: %w", target, err)
	}

	p.logger.Debug("Produced message to Kafka", zap.String("topic", target), zap.String("key", key), zap.Int("bytes", len(body)))
	return nil
}

func (p *KafkaProducer) Close() {
	if err := p.writer.Close(); err != nil {
		p.logger.Error("Failed to close Kafka writer", zap.Error(err))
	}
}
