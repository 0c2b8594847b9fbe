package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/consolidation/core/events"
)

type fakeKafka struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeKafka) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func (f *fakeKafka) Close() error {
	f.closed = true
	return nil
}

func TestKafkaNotifierKeysByTopic(t *testing.T) {
	w := &fakeKafka{}
	k := &KafkaNotifier{w: w}
	require.NoError(t, k.Notify(context.Background(), events.DecisionEvent{DecisionID: "d1", Action: events.DecisionCreated}))
	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "decisions", string(msg.Key))
	assert.Contains(t, string(msg.Value), `"decision_id":"d1"`)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "event-type", msg.Headers[1].Key)
	assert.Equal(t, "created", string(msg.Headers[1].Value))

	require.NoError(t, k.Close())
	assert.True(t, w.closed)
}

func TestKafkaNotifierWrapsErrors(t *testing.T) {
	boom := errors.New("leader not available")
	k := &KafkaNotifier{w: &fakeKafka{err: boom}}
	err := k.Notify(context.Background(), events.DecisionEvent{DecisionID: "d1", Action: events.DecisionCreated})
	assert.ErrorIs(t, err, boom)
}

func TestNewKafkaNotifierRequiresBrokers(t *testing.T) {
	_, err := NewKafkaNotifier(KafkaConfig{})
	assert.Error(t, err)

	k, err := NewKafkaNotifier(KafkaConfig{Brokers: []string{"localhost:9092"}})
	require.NoError(t, err)
	w := k.w.(*kafka.Writer)
	assert.Equal(t, DefaultKafkaTopic, w.Topic)
	assert.Equal(t, 3, w.MaxAttempts)
	require.NoError(t, k.Close())
}
