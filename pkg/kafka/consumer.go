// Package kafka provides Kafka producer and consumer clients backed by
// segmentio/kafka-go. The producer serialises events as JSON, while the
// consumer hands raw documents to a pluggable MessageHandler callback and
// commits a message only once the handler accepted it.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/resilience"
)

// MessageHandler is a callback invoked for each Kafka message. A nil return
// acknowledges the message; an error asks for it to be delivered again.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// ErrRedeliveryExhausted is returned by Start when a message kept failing
// after every retry. The message stays uncommitted.
var ErrRedeliveryExhausted = errors.New("message retries exhausted")

// Reader is the part of *kafka.Reader the consumer drives.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads messages from a Kafka topic and dispatches them to a
// MessageHandler, one at a time and in partition order.
type Consumer struct {
	reader  Reader
	handler MessageHandler
	retry   resilience.RetryConfig
	logger  *slog.Logger
}

type ConsumerOption func(*Consumer)

// WithRetry sets the backoff used to redeliver a failed message in place.
func WithRetry(cfg resilience.RetryConfig) ConsumerOption {
	return func(c *Consumer) { c.retry = cfg }
}

// NewConsumer creates a group Consumer for the given topic and handler.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1e3,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	return newConsumer(r, topic, handler, opts...)
}

func newConsumer(r Reader, topic string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		reader:  r,
		handler: handler,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start consumes until ctx is cancelled, then closes the reader. Group
// offsets are committed in order, so committing a later message would skip
// an earlier failed one: a failing message is retried in place with
// backoff, and if it still fails Start returns ErrRedeliveryExhausted
// without committing it. The group then hands the partition to another
// member, or to this one after a restart, starting at that message.
func (c *Consumer) Start(ctx context.Context) (err error) {
	defer func() {
		if cerr := c.reader.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing reader: %w", cerr)
		}
	}()

	c.logger.Info("consumer started")
	for {
		if ctx.Err() != nil {
			c.logger.Info("consumer stopping", "reason", ctx.Err())
			return nil
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		c.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"value_size", len(msg.Value),
		)

		if err := c.handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping with message unacknowledged",
					"partition", msg.Partition,
					"offset", msg.Offset,
				)
				return nil
			}
			c.logger.Error("giving up on message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			return fmt.Errorf("partition %d offset %d: %w", msg.Partition, msg.Offset, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	attempt := 0
	err := resilience.Retry(ctx, "handle-message", c.retry, func() error {
		attempt++
		err := c.handler(ctx, msg.Key, msg.Value)
		if err != nil {
			c.logger.Warn("failed to process message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"attempt", attempt,
				"error", err,
			)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRedeliveryExhausted, err)
	}
	return nil
}
