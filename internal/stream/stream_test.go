package stream

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ILLUVRSE/serverquality/internal/models"
)

type fakeWriter struct {
	failures int
	calls    int
	msgs     []kafka.Message
	closed   bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("leader not available")
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func fastProducer(w messageWriter, attempts int) *KafkaProducer {
	p := newKafkaProducer(w, KafkaProducerConfig{MaxAttempts: attempts})
	p.backoff = time.Millisecond
	return p
}

func TestNewKafkaProducer_RequiresBrokersAndTopic(t *testing.T) {
	_, err := NewKafkaProducer(KafkaProducerConfig{Topic: "quality.events"})
	assert.Error(t, err)
	_, err = NewKafkaProducer(KafkaProducerConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)

	p, err := NewKafkaProducer(KafkaProducerConfig{Brokers: []string{"localhost:9092"}, Topic: "quality.events"})
	require.NoError(t, err)
	assert.Equal(t, 3, p.maxAttempts)
	assert.NoError(t, p.Close())
}

func TestKafkaProducer_RetriesTransientErrors(t *testing.T) {
	w := &fakeWriter{failures: 2}
	p := fastProducer(w, 3)

	require.NoError(t, p.Produce(context.Background(), []byte("fs"), []byte(`{}`)))
	assert.Equal(t, 3, w.calls)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "fs", string(w.msgs[0].Key))
}

func TestKafkaProducer_GivesUp(t *testing.T) {
	w := &fakeWriter{failures: 10}
	p := fastProducer(w, 2)

	err := p.Produce(context.Background(), nil, []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, 2, w.calls)
}

func TestKafkaProducer_StopsOnCancel(t *testing.T) {
	w := &fakeWriter{failures: 10}
	p := newKafkaProducer(w, KafkaProducerConfig{MaxAttempts: 5})
	p.backoff = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Produce(ctx, nil, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, w.calls)
}

func TestNewEnvelope_NaturalKeyMatchesDedupTuple(t *testing.T) {
	ts := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	a := models.InstallAttempt{ComponentID: "fs", InstallID: "fs@1", Outcome: models.OutcomeSuccess, Timestamp: ts}
	b := a
	b.InstallID = "fs@2" // not part of the natural key

	ea, err := NewEnvelope(models.KindInstallAttempt, a, ts)
	require.NoError(t, err)
	eb, err := NewEnvelope(models.KindInstallAttempt, b, ts)
	require.NoError(t, err)
	assert.Equal(t, ea.NaturalKey, eb.NaturalKey)

	b.Outcome = models.OutcomeFailure
	ec, err := NewEnvelope(models.KindInstallAttempt, b, ts)
	require.NoError(t, err)
	assert.NotEqual(t, ea.NaturalKey, ec.NaturalKey)

	_, err = NewEnvelope(models.KindInstallAttempt, "nope", ts)
	assert.Error(t, err)
}

func TestEventPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	pub := NewEventPublisher(fastProducer(w, 1), zap.NewNop())
	pub.now = func() time.Time { return time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC) }

	fb := models.UserFeedback{ComponentID: "fs", Rating: 5, Timestamp: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, pub.Publish(context.Background(), models.KindUserFeedback, fb))
	require.Len(t, w.msgs, 1)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "user_feedback", got["kind"])
	assert.Equal(t, "fs", got["component_id"])
	assert.Equal(t, "2026-04-02T00:00:00Z", got["recorded_at"])
	assert.Len(t, got["natural_key"], 64)
	event := got["event"].(map[string]interface{})
	assert.Equal(t, float64(5), event["rating"])

	require.NoError(t, pub.Close())
	assert.True(t, w.closed)
}

func TestEventPublisher_LogsFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	pub := NewEventPublisher(fastProducer(&fakeWriter{failures: 5}, 1), zap.New(core))

	err := pub.Publish(context.Background(), models.KindHealthCheck, models.HealthCheck{ComponentID: "fs", Status: models.HealthHealthy, Timestamp: time.Now()})
	require.Error(t, err)
	require.Equal(t, 1, logs.FilterMessage("publish failed").Len())
	assert.Equal(t, "fs", logs.All()[0].ContextMap()["component_id"])
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), models.KindHealthCheck, nil))
}
