// Package kafka carries run telemetry and asynchronous scoring jobs.
// Generation reports and run lifecycle events are published for downstream
// consumers; scoring jobs feed the worker pool.
package kafka

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/helixforge/helixforge/internal/config"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/pkg/errors"
)

// Topic suffixes; the configured prefix namespaces deployments sharing a
// cluster.
const (
	topicGenerationReports = "generation-reports"
	topicRunEvents         = "run-events"
	topicScoringJobs       = "scoring-jobs"
)

// Event types carried in envelopes.
const (
	EventGenerationCompleted = "generation.completed"
	EventRunFinished         = "run.finished"
	EventScoringRequested    = "scoring.requested"
)

// Topics resolves fully-prefixed topic names.
type Topics struct {
	prefix string
}

func NewTopics(cfg *config.KafkaConfig) Topics {
	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "helixforge."
	}
	return Topics{prefix: prefix}
}

func (t Topics) GenerationReports() string { return t.prefix + topicGenerationReports }
func (t Topics) RunEvents() string         { return t.prefix + topicRunEvents }
func (t Topics) ScoringJobs() string       { return t.prefix + topicScoringJobs }

// All returns every topic the platform uses.
func (t Topics) All() []string {
	return []string{t.GenerationReports(), t.RunEvents(), t.ScoringJobs()}
}

// EventEnvelope is the wire format for every published message.
type EventEnvelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEventEnvelope wraps a payload for publication.
func NewEventEnvelope(eventType, source string, payload any) (*EventEnvelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal event payload")
	}
	return &EventEnvelope{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}, nil
}

// DecodePayload unmarshals the payload into target.
func (e *EventEnvelope) DecodePayload(target any) error {
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode event payload")
	}
	return nil
}

// ScoringJobPayload requests one asynchronous evaluation.
type ScoringJobPayload struct {
	RunID      string `json:"run_id"`
	Key        string `json:"key"`
	Sequence   string `json:"sequence"`
	Generation int    `json:"generation"`
	ParentKey  string `json:"parent_key,omitempty"`
}

// ConnInterface is the subset of kafka-go's Conn the topic manager uses.
type ConnInterface interface {
	CreateTopics(topics ...kafkago.TopicConfig) error
	ReadPartitions(topics ...string) ([]kafkago.Partition, error)
	Close() error
}

// TopicManager creates and inspects topics.
type TopicManager struct {
	conn   ConnInterface
	logger logging.Logger
}

// Connect dials the first broker for admin operations.
func Connect(cfg *config.KafkaConfig, log logging.Logger) (*TopicManager, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "kafka brokers are required")
	}
	conn, err := kafkago.Dial("tcp", cfg.Brokers[0])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to dial kafka broker")
	}
	return NewTopicManager(conn, log), nil
}

func NewTopicManager(conn ConnInterface, log logging.Logger) *TopicManager {
	return &TopicManager{conn: conn, logger: log.Named("kafka_topics")}
}

// EnsureTopics creates the given topics with sane defaults.  Existing
// topics are left untouched.
func (m *TopicManager) EnsureTopics(topics []string) error {
	configs := make([]kafkago.TopicConfig, len(topics))
	for i, name := range topics {
		configs[i] = kafkago.TopicConfig{
			Topic:             name,
			NumPartitions:     3,
			ReplicationFactor: 1,
		}
	}
	if err := m.conn.CreateTopics(configs...); err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to create kafka topics")
	}
	m.logger.Info("kafka topics ensured", logging.Int("count", len(topics)))
	return nil
}

// TopicExists reports whether the topic has at least one partition.
func (m *TopicManager) TopicExists(name string) (bool, error) {
	partitions, err := m.conn.ReadPartitions(name)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeExternalService, "failed to read kafka partitions")
	}
	return len(partitions) > 0, nil
}

// Close releases the admin connection.
func (m *TopicManager) Close() error {
	return m.conn.Close()
}
