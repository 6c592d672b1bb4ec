package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"finpasser/internal/config"
	"finpasser/internal/constants"
	"finpasser/internal/logger"
	apperrors "finpasser/pkg/errors"
	"finpasser/pkg/logging"
	"finpasser/pkg/metrics"
	"finpasser/pkg/models"
	"finpasser/pkg/retry"
	"finpasser/pkg/tracing"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Stats() kafka.ReaderStats
	Close() error
}

type KafkaProducer struct {
	writer      messageWriter
	logger      logger.Logger
	serviceName string
}

func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           constants.KafkaBatchTimeout,
		WriteTimeout:           constants.KafkaWriteTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		Async:                  false,
	}
	return &KafkaProducer{writer: w, logger: log, serviceName: "unknown"}
}

func (p *KafkaProducer) SetServiceName(name string) {
	p.serviceName = name
}

func (p *KafkaProducer) Publish(ctx context.Context, topic string, env models.EventEnvelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	headers := []kafka.Header{{Key: constants.HeaderEventType, Value: []byte(env.Type)}}
	headers = tracing.InjectTraceContext(ctx, headers)

	msg := kafka.Message{
		Topic:   topic,
		Key:     []byte(env.BusinessID),
		Value:   body,
		Headers: headers,
		Time:    time.Now(),
	}
	if err := p.write(ctx, msg); err != nil {
		return apperrors.ErrPublishFailed.
			WithCause(err).
			WithDetail("topic", topic).
			WithDetail("business_id", env.BusinessID)
	}

	p.logger.DebugwCtx(ctx, "Event published",
		"topic", topic,
		"event_id", env.ID,
		"event_type", env.Type,
	)
	return nil
}

func (p *KafkaProducer) write(ctx context.Context, msg kafka.Message) error {
	start := time.Now()
	err := p.writer.WriteMessages(ctx, msg)
	metrics.ObserveKafkaWriteDuration(p.serviceName, msg.Topic, time.Since(start))
	if err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}
	metrics.IncKafkaMessagesWritten(p.serviceName, msg.Topic)
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

type KafkaConsumer struct {
	cfg         config.KafkaConfig
	wg          sync.WaitGroup
	mu          sync.Mutex
	reader      messageReader
	newReader   func(topic string) messageReader
	logger      logger.Logger
	dlqProducer *KafkaProducer
	policy      retry.Policy
	serviceName string
}

func NewKafkaConsumer(cfg config.KafkaConfig, log logger.Logger) *KafkaConsumer {
	consumer := &KafkaConsumer{
		cfg:         cfg,
		logger:      log,
		policy:      policyFromConfig(cfg.Retry),
		serviceName: "unknown",
	}
	consumer.newReader = consumer.kafkaReader

	if cfg.DLQTopic != "" {
		consumer.dlqProducer = NewKafkaProducer(cfg, log)
	}

	return consumer
}

func policyFromConfig(cfg config.RetryConfig) retry.Policy {
	return retry.Policy{
		MaxAttempts:     cfg.MaxAttempts,
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
		Multiplier:      cfg.Multiplier,
		MaxElapsedTime:  cfg.MaxElapsedTime,
	}.Merge(retry.DefaultPolicy())
}

func (c *KafkaConsumer) kafkaReader(topic string) messageReader {
	startOffset := kafka.FirstOffset
	if strings.EqualFold(c.cfg.StartOffset, "latest") {
		startOffset = kafka.LastOffset
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.cfg.Brokers,
		GroupID:     c.cfg.GroupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: startOffset,
	})
}

func (c *KafkaConsumer) SetServiceName(name string) {
	c.serviceName = name
	if c.dlqProducer != nil {
		c.dlqProducer.SetServiceName(name)
	}
}

// Consume blocks until ctx is cancelled or a message can be neither handled
// nor parked. In the latter case the offset stays uncommitted and the error is
// returned so the process restarts from the last committed position.
func (c *KafkaConsumer) Consume(ctx context.Context, topic string, handler HandlerFunc) error {
	c.logger.Infow("Creating Kafka reader",
		"topic", topic,
		"brokers", c.cfg.Brokers,
		"group_id", c.cfg.GroupID,
		"service_name", c.serviceName,
	)

	reader := c.newReader(topic)
	c.mu.Lock()
	c.reader = reader
	c.mu.Unlock()

	c.wg.Add(1)
	defer c.wg.Done()

	consumeCtx := logging.WithServiceName(ctx, c.serviceName)
	c.logger.InfowCtx(consumeCtx, "Started consuming", "topic", topic)

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.InfowCtx(consumeCtx, "Stopped consuming",
					"topic", topic,
					"reason", "context canceled",
				)
				return nil
			}
			c.logger.ErrorwCtx(consumeCtx, "Error fetching kafka message",
				"error", err,
				"topic", topic,
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		metrics.IncKafkaMessagesRead(c.serviceName, topic)

		if err := c.handleMessage(ctx, reader, m, handler); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		metrics.SetKafkaConsumerLag(c.serviceName, topic, reader.Stats().Lag)
	}
}

// handleMessage runs the handler with retries, parks failures on the DLQ and
// commits. It returns an error only when the message was left uncommitted.
func (c *KafkaConsumer) handleMessage(ctx context.Context, reader messageReader, m kafka.Message, handler HandlerFunc) error {
	msgCtx, span := tracing.StartConsumeSpan(ctx, m)
	defer span.End()
	msgCtx = logging.WithServiceName(msgCtx, c.serviceName)

	env, err := decodeEnvelope(m.Value)
	if err == nil {
		if env.TraceID != "" {
			msgCtx = logging.WithTraceID(msgCtx, env.TraceID)
		} else if traceID := tracing.TraceID(msgCtx); traceID != "" {
			msgCtx = logging.WithTraceID(msgCtx, traceID)
		}
		msgCtx = logging.WithMessageID(msgCtx, env.ID)
		msgCtx = logging.WithBusinessID(msgCtx, env.BusinessID)

		err = c.processMessageWithRetry(msgCtx, env, handler, m.Topic)
	}

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		span.RecordError(err)
		c.logger.ErrorwCtx(msgCtx, "Failed to process message",
			"error", err,
			"topic", m.Topic,
			"offset", m.Offset,
			"partition", m.Partition,
		)
		if parkErr := c.park(msgCtx, m, err); parkErr != nil {
			c.logger.ErrorwCtx(msgCtx, "Message could not be parked, leaving offset uncommitted",
				"error", parkErr,
				"topic", m.Topic,
				"offset", m.Offset,
			)
			return parkErr
		}
	}

	if err := reader.CommitMessages(ctx, m); err != nil {
		c.logger.ErrorwCtx(msgCtx, "Failed to commit message",
			"error", err,
			"topic", m.Topic,
			"offset", m.Offset,
		)
	}
	return nil
}

func decodeEnvelope(value []byte) (models.EventEnvelope, error) {
	var env models.EventEnvelope
	if err := json.Unmarshal(value, &env); err != nil {
		return env, apperrors.ErrInvalidEvent.WithCause(err)
	}
	if err := models.ValidateEnvelope(&env); err != nil {
		return env, apperrors.ErrInvalidEvent.WithCause(err)
	}
	return env, nil
}

func (c *KafkaConsumer) processMessageWithRetry(ctx context.Context, env models.EventEnvelope, handler HandlerFunc, topic string) error {
	return retry.RetryWithCallback(ctx, c.policy, func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = apperrors.RecoverPanic(r)
				c.logger.ErrorwCtx(ctx, "Panic recovered during message processing",
					"error", err,
					"topic", topic,
				)
			}
		}()
		return handler(ctx, env)
	}, func(attempt int, err error, nextDelay time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues(c.serviceName, topic).Inc()
		c.logger.WarnwCtx(ctx, "Retrying message processing",
			"attempt", attempt,
			"max_attempts", c.policy.MaxAttempts,
			"next_delay", nextDelay,
			"error", err,
			"topic", topic,
		)
	})
}

// park copies the original message onto the DLQ topic with the failure reason
// in its headers. Without a DLQ topic it fails, so the offset stays put.
func (c *KafkaConsumer) park(ctx context.Context, m kafka.Message, cause error) error {
	reason := dlqReason(cause)
	if reason == "record_not_found" || reason == "out_of_order_transition" {
		metrics.IncReconciliationAlert(c.serviceName, reason)
	}

	if c.dlqProducer == nil || c.cfg.DLQTopic == "" {
		return fmt.Errorf("no DLQ topic configured to park %s message: %w", m.Topic, cause)
	}

	headers := make([]kafka.Header, 0, len(m.Headers)+5)
	for _, h := range m.Headers {
		if !strings.HasPrefix(h.Key, "dlq_") {
			headers = append(headers, h)
		}
	}
	headers = append(headers,
		kafka.Header{Key: constants.DLQHeaderReason, Value: []byte(cause.Error())},
		kafka.Header{Key: constants.DLQHeaderSourceTopic, Value: []byte(m.Topic)},
		kafka.Header{Key: constants.DLQHeaderTimestamp, Value: []byte(strconv.FormatInt(time.Now().UnixMilli(), 10))},
		kafka.Header{Key: constants.DLQHeaderErrorCode, Value: []byte(reason)},
		kafka.Header{Key: constants.DLQHeaderService, Value: []byte(c.serviceName)},
	)

	// Parking outlives ctx cancellation and has its own retry budget.
	dlqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.KafkaWriteTimeout*3)
	defer cancel()
	err := retry.Retry(dlqCtx, retry.Policy{MaxAttempts: 3, InitialInterval: 200 * time.Millisecond, MaxInterval: 2 * time.Second, Multiplier: 2}, func() error {
		return c.dlqProducer.write(dlqCtx, kafka.Message{
			Topic:   c.cfg.DLQTopic,
			Key:     m.Key,
			Value:   m.Value,
			Headers: headers,
			Time:    time.Now(),
		})
	})
	if err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}

	metrics.DLQMessagesTotal.WithLabelValues(c.serviceName, m.Topic, reason).Inc()
	c.logger.WarnwCtx(ctx, "Message sent to DLQ",
		"source_topic", m.Topic,
		"dlq_topic", c.cfg.DLQTopic,
		"reason", reason,
		"error", cause.Error(),
	)
	return nil
}

func dlqReason(err error) string {
	switch {
	case apperrors.IsRecordNotFound(err):
		return "record_not_found"
	case apperrors.IsOutOfOrder(err):
		return "out_of_order_transition"
	case errors.Is(err, apperrors.ErrInvalidEvent):
		return "invalid_event"
	case retry.IsFatal(err):
		return "fatal_error"
	default:
		return "max_retries_exceeded"
	}
}

func (c *KafkaConsumer) Close() error {
	var err error
	c.mu.Lock()
	reader := c.reader
	c.mu.Unlock()
	if reader != nil {
		err = reader.Close()
	}
	c.wg.Wait()
	if c.dlqProducer != nil {
		if closeErr := c.dlqProducer.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}
