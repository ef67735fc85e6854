package kafka

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/helixforge/helixforge/internal/config"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/pkg/errors"
)

// Handler processes one decoded envelope.  Returning an error triggers the
// retry policy; exhausting retries drops the message so one poison pill
// cannot stall the partition.
type Handler func(ctx context.Context, envelope *EventEnvelope) error

// ReaderInterface is the subset of kafka-go's Reader the consumer uses.
type ReaderInterface interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// ConsumerMetrics tracks consumption outcomes.
type ConsumerMetrics struct {
	Processed int64
	Retried   int64
	Dropped   int64
}

// Consumer reads envelopes from one topic and dispatches them to a handler.
type Consumer struct {
	reader     ReaderInterface
	handler    Handler
	logger     logging.Logger
	maxRetries int
	backoff    time.Duration

	processed atomic.Int64
	retried   atomic.Int64
	dropped   atomic.Int64
}

// ConsumerOption customizes a Consumer.
type ConsumerOption func(*Consumer)

// WithRetryPolicy overrides the per-message retry bounds.
func WithRetryPolicy(maxRetries int, backoff time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if maxRetries >= 0 {
			c.maxRetries = maxRetries
		}
		if backoff > 0 {
			c.backoff = backoff
		}
	}
}

// NewConsumer builds a consumer group reader for one topic.
func NewConsumer(cfg *config.KafkaConfig, topic string, handler Handler, log logging.Logger, opts ...ConsumerOption) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "kafka brokers are required")
	}
	if handler == nil {
		return nil, errors.New(errors.ErrCodeValidation, "kafka handler is required")
	}
	groupID := cfg.GroupID
	if groupID == "" {
		groupID = "helixforge"
	}

	startOffset := kafkago.LastOffset
	if cfg.AutoOffsetReset == "earliest" {
		startOffset = kafkago.FirstOffset
	}

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     groupID,
		Topic:       topic,
		StartOffset: startOffset,
		MinBytes:    1,
		MaxBytes:    10 << 20,
	})
	return NewConsumerWithReader(reader, handler, log, opts...), nil
}

// NewConsumerWithReader wires an explicit reader; used by tests.
func NewConsumerWithReader(reader ReaderInterface, handler Handler, log logging.Logger, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		reader:     reader,
		handler:    handler,
		logger:     log.Named("kafka_consumer"),
		maxRetries: 3,
		backoff:    200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, errors.ErrCodeExternalService, "failed to fetch kafka message")
		}

		c.handleMessage(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("failed to commit kafka offset",
				logging.String("topic", msg.Topic),
				logging.Err(err))
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg kafkago.Message) {
	var envelope EventEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		c.dropped.Add(1)
		c.logger.Warn("dropping malformed kafka message",
			logging.String("topic", msg.Topic),
			logging.Err(err))
		return
	}

	backoff := c.backoff
	for attempt := 0; ; attempt++ {
		err := c.handler(ctx, &envelope)
		if err == nil {
			c.processed.Add(1)
			return
		}
		if attempt >= c.maxRetries || ctx.Err() != nil {
			c.dropped.Add(1)
			c.logger.Error("dropping message after retry exhaustion",
				logging.String("topic", msg.Topic),
				logging.String("event_type", envelope.Type),
				logging.Int("attempts", attempt+1),
				logging.Err(err))
			return
		}

		c.retried.Add(1)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// Metrics returns a snapshot of consumption counters.
func (c *Consumer) Metrics() ConsumerMetrics {
	return ConsumerMetrics{
		Processed: c.processed.Load(),
		Retried:   c.retried.Load(),
		Dropped:   c.dropped.Load(),
	}
}

// Close releases the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
