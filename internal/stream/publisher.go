package stream

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ILLUVRSE/serverquality/internal/canonical"
	"github.com/ILLUVRSE/serverquality/internal/models"
)

// Envelope is the message value published for every stored event.
type Envelope struct {
	Kind        models.EventKind `json:"kind"`
	ComponentID string           `json:"component_id"`
	NaturalKey  string           `json:"natural_key"`
	Event       interface{}      `json:"event"`
	RecordedAt  time.Time        `json:"recorded_at"`
}

// Publisher turns stored events into stream messages.
type Publisher interface {
	Publish(ctx context.Context, kind models.EventKind, event interface{}) error
}

// NopPublisher drops every event. It is used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.EventKind, interface{}) error { return nil }

// EventPublisher encodes events as canonical JSON envelopes keyed by
// component id.
type EventPublisher struct {
	producer Producer
	logger   *zap.Logger
	now      func() time.Time
}

func NewEventPublisher(producer Producer, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{
		producer: producer,
		logger:   logger.Named("stream"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (p *EventPublisher) Publish(ctx context.Context, kind models.EventKind, event interface{}) error {
	env, err := NewEnvelope(kind, event, p.now())
	if err != nil {
		return err
	}
	value, err := canonical.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := p.producer.Produce(ctx, []byte(env.ComponentID), value); err != nil {
		p.logger.Warn("publish failed",
			zap.String("kind", string(kind)),
			zap.String("component_id", env.ComponentID),
			zap.Error(err))
		return err
	}
	return nil
}

func (p *EventPublisher) Close() error {
	return p.producer.Close()
}

// NewEnvelope wraps one of the three event types. The natural key is the
// digest of the tuple the store deduplicates on, so consumers can drop
// redeliveries the same way.
func NewEnvelope(kind models.EventKind, event interface{}, recordedAt time.Time) (Envelope, error) {
	var (
		componentID string
		key         []interface{}
	)
	switch ev := event.(type) {
	case models.InstallAttempt:
		componentID = ev.ComponentID
		key = []interface{}{ev.ComponentID, ev.Timestamp.UnixMicro(), string(ev.Outcome)}
	case models.HealthCheck:
		componentID = ev.ComponentID
		key = []interface{}{ev.ComponentID, ev.Timestamp.UnixMicro(), string(ev.Status)}
	case models.UserFeedback:
		componentID = ev.ComponentID
		key = []interface{}{ev.ComponentID, ev.SubmitterHash, ev.Timestamp.UnixMicro()}
	default:
		return Envelope{}, fmt.Errorf("unsupported event type %T", event)
	}
	digest, err := canonical.Digest(key)
	if err != nil {
		return Envelope{}, fmt.Errorf("natural key: %w", err)
	}
	return Envelope{
		Kind:        kind,
		ComponentID: componentID,
		NaturalKey:  digest,
		Event:       event,
		RecordedAt:  recordedAt,
	}, nil
}
