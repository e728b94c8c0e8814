package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"cashback-service/internal/config"
	"cashback-service/internal/util"
)

// ErrSkipMessage tells the consume loop a message can never be handled
// (malformed payload). It is logged and committed instead of retried.
var ErrSkipMessage = errors.New("kafka: skip message")

type KafkaProducer struct {
	Writer  *kafka.Writer
	brokers []string
}

func NewKafkaProducer(cfg *config.Config) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Kafka.Brokers...),
		Balancer:               &kafka.Hash{},
		MaxAttempts:            3,
		BatchSize:              100,
		BatchBytes:             1 << 20,
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: !cfg.IsProduction(),
	}

	util.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))

	return &KafkaProducer{Writer: writer, brokers: cfg.Kafka.Brokers}
}

// Produce writes one message. The key picks the partition, so messages with
// the same key stay ordered.
func (p *KafkaProducer) Produce(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	msg := kafka.Message{Topic: topic, Key: key, Value: value}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	if err := p.Writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	util.Debug("Produced kafka message",
		zap.String("topic", topic),
		zap.Int("value_size", len(value)))
	return nil
}

func (p *KafkaProducer) Close() error {
	if p.Writer == nil {
		return nil
	}
	if err := p.Writer.Close(); err != nil {
		util.Error("failed to close Kafka producer", zap.Error(err))
		return err
	}
	util.Info("Kafka producer closed")
	return nil
}

func (p *KafkaProducer) HealthCheck(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	dialer := &kafka.Dialer{Timeout: 5 * time.Second, DualStack: true}
	conn, err := dialer.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to kafka broker: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ReadPartitions(); err != nil {
		return fmt.Errorf("failed to read Kafka partitions: %w", err)
	}
	return nil
}

// MessageReader is the part of *kafka.Reader the consume loop needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConsumer struct {
	Reader     MessageReader
	topic      string
	backoffMin time.Duration
	backoffMax time.Duration
}

func NewKafkaConsumer(cfg *config.Config, topic, groupID string) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		StartOffset:    kafka.FirstOffset,
		MaxWait:        2 * time.Second,
		ReadBackoffMin: 100 * time.Millisecond,
		ReadBackoffMax: time.Second,
	})

	util.Info("Kafka consumer initialized",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", topic),
		zap.String("group_id", groupID))

	return NewKafkaConsumerFromReader(reader, topic)
}

func NewKafkaConsumerFromReader(r MessageReader, topic string) *KafkaConsumer {
	return &KafkaConsumer{
		Reader:     r,
		topic:      topic,
		backoffMin: 200 * time.Millisecond,
		backoffMax: 30 * time.Second,
	}
}

// Run fetches messages and hands them to handle one at a time. The offset
// is committed only after handle succeeds (or returns ErrSkipMessage), so a
// crash redelivers the message. A failing message is retried with backoff
// until it succeeds or ctx ends. Run returns nil when ctx is cancelled.
func (c *KafkaConsumer) Run(ctx context.Context, handle func(context.Context, kafka.Message) error) error {
	for {
		msg, err := c.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to fetch kafka message: %w", err)
		}

		if err := c.handleWithRetry(ctx, msg, handle); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := c.Reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to commit kafka message: %w", err)
		}
	}
}

func (c *KafkaConsumer) handleWithRetry(ctx context.Context, msg kafka.Message, handle func(context.Context, kafka.Message) error) error {
	backoff := c.backoffMin
	for attempt := 1; ; attempt++ {
		err := handle(ctx, msg)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrSkipMessage) {
			util.Warn("skipping kafka message",
				zap.String("topic", c.topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			return nil
		}

		util.Error("kafka message handler failed, retrying",
			zap.String("topic", c.topic),
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, c.backoffMax)
	}
}

func (c *KafkaConsumer) Close() error {
	if c.Reader == nil {
		return nil
	}
	if err := c.Reader.Close(); err != nil {
		util.Error("failed to close Kafka consumer", zap.Error(err))
		return err
	}
	util.Info("Kafka consumer closed", zap.String("topic", c.topic))
	return nil
}
