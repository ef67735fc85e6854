package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/helixforge/helixforge/internal/config"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/pkg/errors"
)

// WriterInterface is the subset of kafka-go's Writer the producer uses.
type WriterInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// ProducerMetrics tracks publish outcomes.
type ProducerMetrics struct {
	Published int64
	Failed    int64
}

// Producer publishes envelopes to topics.
type Producer struct {
	writer    WriterInterface
	topics    Topics
	logger    logging.Logger
	once      sync.Once
	published atomic.Int64
	failed    atomic.Int64
}

// NewProducer builds a producer over the configured brokers.
func NewProducer(cfg *config.KafkaConfig, log logging.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "kafka brokers are required")
	}
	retries := cfg.ProducerRetries
	if retries <= 0 {
		retries = 3
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 50 * time.Millisecond
	}

	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		MaxAttempts:  retries,
		BatchTimeout: batchTimeout,
	}
	return NewProducerWithWriter(writer, NewTopics(cfg), log), nil
}

// NewProducerWithWriter wires an explicit writer; used by tests.
func NewProducerWithWriter(writer WriterInterface, topics Topics, log logging.Logger) *Producer {
	return &Producer{
		writer: writer,
		topics: topics,
		logger: log.Named("kafka_producer"),
	}
}

// Topics exposes the producer's topic resolver.
func (p *Producer) Topics() Topics {
	return p.topics
}

// Publish writes one envelope.  The key determines partition affinity, so
// events for one run stay ordered.
func (p *Producer) Publish(ctx context.Context, topic, key string, envelope *EventEnvelope) error {
	value, err := json.Marshal(envelope)
	if err != nil {
		p.failed.Add(1)
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal event envelope")
	}

	msg := kafkago.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(envelope.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.failed.Add(1)
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to publish kafka message")
	}
	p.published.Add(1)
	return nil
}

// PublishScoringJobs fans a batch of jobs into the scoring topic.
func (p *Producer) PublishScoringJobs(ctx context.Context, jobs []ScoringJobPayload) error {
	if len(jobs) == 0 {
		return nil
	}

	msgs := make([]kafkago.Message, 0, len(jobs))
	for _, job := range jobs {
		envelope, err := NewEventEnvelope(EventScoringRequested, "controller", job)
		if err != nil {
			return err
		}
		value, err := json.Marshal(envelope)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal scoring job")
		}
		msgs = append(msgs, kafkago.Message{
			Topic: p.topics.ScoringJobs(),
			Key:   []byte(job.RunID),
			Value: value,
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.failed.Add(int64(len(jobs)))
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to publish scoring jobs")
	}
	p.published.Add(int64(len(jobs)))
	return nil
}

// Metrics returns a snapshot of publish counters.
func (p *Producer) Metrics() ProducerMetrics {
	return ProducerMetrics{
		Published: p.published.Load(),
		Failed:    p.failed.Load(),
	}
}

// Close flushes and releases the writer.  Idempotent.
func (p *Producer) Close() error {
	var err error
	p.once.Do(func() {
		err = p.writer.Close()
	})
	return err
}
