// Package kafka implements a Kafka publisher on top of a sarama sync producer.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// Keyed payloads choose their partition key.
type Keyed interface {
	PartitionKey() string
}

// Publisher sends JSON payloads to Kafka topics.
type Publisher struct {
	producer sarama.SyncProducer
	now      func() time.Time
}

// NewConfig returns the producer settings used by Open.
func NewConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true
	cfg.Producer.Compression = sarama.CompressionSnappy
	return cfg
}

// Open dials brokers and returns a Publisher owning the producer.
func Open(brokers []string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	producer, err := sarama.NewSyncProducer(brokers, NewConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return New(producer), nil
}

// New wraps producer.
func New(producer sarama.SyncProducer) *Publisher {
	return &Publisher{producer: producer, now: time.Now}
}

// Publish sends payload as JSON and returns "topic/partition/offset". The
// trace context of ctx is written to the record headers.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if p == nil || p.producer == nil {
		return "", fmt.Errorf("kafka publisher is not configured")
	}
	if topic == "" {
		return "", fmt.Errorf("topic is required")
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("publish canceled: %w", err)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Value:     sarama.ByteEncoder(data),
		Headers:   []sarama.RecordHeader{{Key: []byte("content-type"), Value: []byte("application/json")}},
		Timestamp: p.now(),
	}
	injectTrace(ctx, msg)
	if k, ok := payload.(Keyed); ok && k.PartitionKey() != "" {
		msg.Key = sarama.StringEncoder(k.PartitionKey())
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return "", fmt.Errorf("send kafka message: %w", err)
	}
	return fmt.Sprintf("%s/%d/%d", topic, partition, offset), nil
}

// Close closes the producer.
func (p *Publisher) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
