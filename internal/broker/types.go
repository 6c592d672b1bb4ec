package broker

import (
	"context"
	"fmt"

	"finpasser/internal/config"
	"finpasser/internal/logger"
	"finpasser/pkg/models"
)

// Producer publishes envelopes keyed by business id so all events of one
// message land on the same partition.
type Producer interface {
	Publish(ctx context.Context, topic string, env models.EventEnvelope) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

// HandlerFunc processes one envelope. Returning a fatal error parks the
// message on the DLQ without retrying; other errors are retried.
type HandlerFunc func(ctx context.Context, env models.EventEnvelope) error

const TypeKafka = "kafka"

// New builds the producer and consumer pair for the configured broker type,
// both labelled with serviceName for metrics and DLQ headers.
func New(cfg config.BrokerConfig, serviceName string, log logger.Logger) (Producer, Consumer, error) {
	if cfg.Type != TypeKafka {
		return nil, nil, fmt.Errorf("unknown broker type: %q", cfg.Type)
	}
	producer := NewKafkaProducer(cfg.Kafka, log)
	consumer := NewKafkaConsumer(cfg.Kafka, log)
	if serviceName != "" {
		producer.SetServiceName(serviceName)
		consumer.SetServiceName(serviceName)
	}
	return producer, consumer, nil
}
