package outbox

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
)

// KafkaPublisher writes each destination to its own topic, prefix+destination.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	prefix   string
}

// NewKafkaConfig returns the producer settings the publisher relies on.
func NewKafkaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

func NewKafkaPublisher(brokers []string, topicPrefix string) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewKafkaConfig())
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(producer, topicPrefix), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer, e.g. a mock.
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topicPrefix string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, prefix: topicPrefix}
}

func (p *KafkaPublisher) Topic(destination string) string { return p.prefix + destination }

func (p *KafkaPublisher) Publish(_ context.Context, destination string, msg Message) error {
	_, _, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.Topic(destination),
		Key:   sarama.StringEncoder(msg.Key),
		Value: sarama.ByteEncoder(msg.Payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(msg.EventType)},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka send %s: %w", p.Topic(destination), err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.producer.Close() }
