package kafka

import (
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixforge/helixforge/internal/config"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
)

type fakeConn struct {
	created    []kafkago.TopicConfig
	partitions map[string][]kafkago.Partition
	closed     bool
}

func (f *fakeConn) CreateTopics(topics ...kafkago.TopicConfig) error {
	f.created = append(f.created, topics...)
	return nil
}

func (f *fakeConn) ReadPartitions(topics ...string) ([]kafkago.Partition, error) {
	var out []kafkago.Partition
	for _, t := range topics {
		out = append(out, f.partitions[t]...)
	}
	return out, nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func TestTopics_Prefixing(t *testing.T) {
	topics := NewTopics(&config.KafkaConfig{TopicPrefix: "staging."})
	assert.Equal(t, "staging.generation-reports", topics.GenerationReports())
	assert.Equal(t, "staging.run-events", topics.RunEvents())
	assert.Equal(t, "staging.scoring-jobs", topics.ScoringJobs())
	assert.Len(t, topics.All(), 3)
}

func TestTopics_DefaultPrefix(t *testing.T) {
	topics := NewTopics(&config.KafkaConfig{})
	assert.Equal(t, "helixforge.generation-reports", topics.GenerationReports())
}

func TestEventEnvelope_RoundTrip(t *testing.T) {
	job := ScoringJobPayload{RunID: "run-1", Key: "k1", Sequence: "MKVL", Generation: 2}
	envelope, err := NewEventEnvelope(EventScoringRequested, "controller", job)
	require.NoError(t, err)
	assert.NotEmpty(t, envelope.ID)
	assert.Equal(t, EventScoringRequested, envelope.Type)

	var decoded ScoringJobPayload
	require.NoError(t, envelope.DecodePayload(&decoded))
	assert.Equal(t, job, decoded)
}

func TestEnsureTopics(t *testing.T) {
	conn := &fakeConn{}
	mgr := NewTopicManager(conn, logging.NewNopLogger())
	topics := NewTopics(&config.KafkaConfig{})

	require.NoError(t, mgr.EnsureTopics(topics.All()))
	require.Len(t, conn.created, 3)
	assert.Equal(t, "helixforge.generation-reports", conn.created[0].Topic)
	assert.Equal(t, 3, conn.created[0].NumPartitions)
}

func TestTopicExists(t *testing.T) {
	conn := &fakeConn{partitions: map[string][]kafkago.Partition{
		"helixforge.run-events": {{ID: 0}},
	}}
	mgr := NewTopicManager(conn, logging.NewNopLogger())

	exists, err := mgr.TopicExists("helixforge.run-events")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = mgr.TopicExists("missing")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestTopicManager_Close(t *testing.T) {
	conn := &fakeConn{}
	mgr := NewTopicManager(conn, logging.NewNopLogger())
	require.NoError(t, mgr.Close())
	assert.True(t, conn.closed)
}
