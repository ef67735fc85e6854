package kafka

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
)

type fakeReader struct {
	messages  []kafkago.Message
	pos       int
	committed []kafkago.Message
	closed    bool
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	if f.pos >= len(f.messages) {
		// Drained; behave like a cancelled reader so Run returns.
		<-ctx.Done()
		return kafkago.Message{}, ctx.Err()
	}
	msg := f.messages[f.pos]
	f.pos++
	return msg, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

func envelopeMessage(t *testing.T, eventType string, payload any) kafkago.Message {
	t.Helper()
	envelope, err := NewEventEnvelope(eventType, "test", payload)
	require.NoError(t, err)
	value, err := json.Marshal(envelope)
	require.NoError(t, err)
	return kafkago.Message{Topic: "helixforge.scoring-jobs", Value: value}
}

func runConsumer(t *testing.T, c *Consumer, reader *fakeReader, wantCommits int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(reader.committed) >= wantCommits
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestConsumer_DispatchesEnvelopes(t *testing.T) {
	reader := &fakeReader{messages: []kafkago.Message{
		envelopeMessage(t, EventScoringRequested, ScoringJobPayload{RunID: "run-1", Key: "k1"}),
		envelopeMessage(t, EventScoringRequested, ScoringJobPayload{RunID: "run-1", Key: "k2"}),
	}}

	var handled atomic.Int32
	c := NewConsumerWithReader(reader, func(_ context.Context, envelope *EventEnvelope) error {
		var job ScoringJobPayload
		if err := envelope.DecodePayload(&job); err != nil {
			return err
		}
		handled.Add(1)
		return nil
	}, logging.NewNopLogger())

	runConsumer(t, c, reader, 2)
	assert.Equal(t, int32(2), handled.Load())
	assert.Equal(t, int64(2), c.Metrics().Processed)
}

func TestConsumer_RetriesThenSucceeds(t *testing.T) {
	reader := &fakeReader{messages: []kafkago.Message{
		envelopeMessage(t, EventScoringRequested, ScoringJobPayload{Key: "k1"}),
	}}

	var attempts atomic.Int32
	c := NewConsumerWithReader(reader, func(context.Context, *EventEnvelope) error {
		if attempts.Add(1) < 3 {
			return stderrors.New("transient")
		}
		return nil
	}, logging.NewNopLogger(), WithRetryPolicy(5, time.Millisecond))

	runConsumer(t, c, reader, 1)
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, int64(1), c.Metrics().Processed)
	assert.Equal(t, int64(2), c.Metrics().Retried)
}

func TestConsumer_DropsAfterRetryExhaustion(t *testing.T) {
	reader := &fakeReader{messages: []kafkago.Message{
		envelopeMessage(t, EventScoringRequested, ScoringJobPayload{Key: "poison"}),
	}}

	c := NewConsumerWithReader(reader, func(context.Context, *EventEnvelope) error {
		return stderrors.New("permanent")
	}, logging.NewNopLogger(), WithRetryPolicy(2, time.Millisecond))

	runConsumer(t, c, reader, 1)
	assert.Equal(t, int64(1), c.Metrics().Dropped)
	assert.Len(t, reader.committed, 1, "poison pill is committed, not replayed")
}

func TestConsumer_DropsMalformedMessage(t *testing.T) {
	reader := &fakeReader{messages: []kafkago.Message{
		{Topic: "helixforge.scoring-jobs", Value: []byte("{not json")},
	}}

	c := NewConsumerWithReader(reader, func(context.Context, *EventEnvelope) error {
		t.Error("handler must not see malformed messages")
		return nil
	}, logging.NewNopLogger())

	runConsumer(t, c, reader, 1)
	assert.Equal(t, int64(1), c.Metrics().Dropped)
}

func TestConsumer_Close(t *testing.T) {
	reader := &fakeReader{}
	c := NewConsumerWithReader(reader, func(context.Context, *EventEnvelope) error { return nil },
		logging.NewNopLogger())
	require.NoError(t, c.Close())
	assert.True(t, reader.closed)
}
