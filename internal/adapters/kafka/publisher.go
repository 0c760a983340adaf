// Package kafka publishes agent events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"tradingAgent/internal/domain"
	"tradingAgent/internal/ports"
)

const headerEventType = "event-type"

// Config holds the producer settings.
type Config struct {
	Brokers []string
	Topic   string
	// SendTimeout bounds each produce request, default 5s.
	SendTimeout time.Duration
}

// Publisher implements ports.EventPublisher with a synchronous producer so
// an event is acknowledged before the cycle moves on.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   ports.Logger
}

var _ ports.EventPublisher = (*Publisher)(nil)

// NewSaramaConfig returns the producer configuration used by NewPublisher.
func NewSaramaConfig(sendTimeout time.Duration) *sarama.Config {
	if sendTimeout <= 0 {
		sendTimeout = 5 * time.Second
	}
	config := sarama.NewConfig()
	config.Version = sarama.V2_8_0_0
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = true
	config.Producer.Timeout = sendTimeout
	config.Producer.Partitioner = sarama.NewHashPartitioner
	return config
}

// NewPublisher connects a producer to the brokers.
func NewPublisher(cfg Config, logger ports.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("%w: kafka brokers and topic are required", ports.ErrConfigurationError)
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewSaramaConfig(cfg.SendTimeout))
	if err != nil {
		return nil, fmt.Errorf("%w: kafka producer: %v", ports.ErrConnectionFailed, err)
	}
	logger.Info(context.Background(), "Kafka publisher connected", map[string]interface{}{"brokers": cfg.Brokers, "topic": cfg.Topic})
	return NewPublisherWithProducer(producer, cfg.Topic, logger), nil
}

// NewPublisherWithProducer wraps an existing producer.
func NewPublisherWithProducer(producer sarama.SyncProducer, topic string, logger ports.Logger) *Publisher {
	return &Publisher{producer: producer, topic: topic, logger: logger}
}

// Publish sends event as JSON keyed by event.Key.
func (p *Publisher) Publish(ctx context.Context, event domain.Event) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("publish %s: %w: %v", event.Type, ports.ErrContextCanceled, err)
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("publish %s: encoding event: %w", event.Type, err)
	}
	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Value:     sarama.ByteEncoder(value),
		Timestamp: event.Time,
		Headers:   []sarama.RecordHeader{{Key: []byte(headerEventType), Value: []byte(event.Type)}},
	}
	if event.Key != "" {
		msg.Key = sarama.StringEncoder(event.Key)
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("publish %s: %w: %v", event.Type, ports.ErrConnectionFailed, err)
	}
	p.logger.Debug(ctx, "Event published", map[string]interface{}{
		"type": event.Type, "key": event.Key, "partition": partition, "offset": offset,
	})
	return nil
}

// Close flushes and closes the producer.
func (p *Publisher) Close() error {
	return p.producer.Close()
}
