package kafka

import (
	"context"
	"time"

	"quantgate/pkg/logger"

	json "github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
)

// Kafka 生产者服务
// 决策流按tenant作Key写入，同一租户的决策保证进同一个Partition（有序性）
type ProducerService interface {
	Produce(ctx context.Context, key string, v any) error
	Close()
}

type kafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(brokerURL, topic string) ProducerService {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokerURL),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // 按Key哈希，保证同租户有序
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &kafkaProducer{writer: writer}
}

// Produce 序列化为JSON写入Kafka
func (p *kafkaProducer) Produce(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
	})
}

func (p *kafkaProducer) Close() {
	if err := p.writer.Close(); err != nil {
		logger.Errorf("Error closing kafka writer: %v", err)
	}
}
