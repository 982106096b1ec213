package events

import (
	"context"
	"fmt"

	"eventmarket/pkg/kafka"
	"eventmarket/pkg/session"
)

type producer interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// KafkaPublisher writes lock events and job cart events to their own topics.
// Either producer may be nil when a service only emits one kind.
type KafkaPublisher struct {
	locks    producer
	jobCarts producer
	source   string
}

func NewKafkaPublisher(locks, jobCarts producer, source string) *KafkaPublisher {
	return &KafkaPublisher{locks: locks, jobCarts: jobCarts, source: source}
}

func (p *KafkaPublisher) LockReleased(ctx context.Context, event LockReleased) error {
	if p.locks == nil {
		return nil
	}
	if event.Origin == "" {
		event.Origin = p.source
	}
	return p.publish(ctx, p.locks, TypeLockReleased, event.ResourceKey, event)
}

func (p *KafkaPublisher) JobCartAccepted(ctx context.Context, event JobCartAccepted) error {
	if p.jobCarts == nil {
		return nil
	}
	return p.publish(ctx, p.jobCarts, TypeJobCartAccepted, event.JobCartID, event)
}

func (p *KafkaPublisher) publish(ctx context.Context, to producer, eventType, key string, payload any) error {
	msg, err := kafka.NewMessage().
		WithKey(key).
		WithEventType(eventType).
		WithSchemaVersion(SchemaVersion).
		WithSource(p.source).
		WithCorrelationID(session.RequestIDFromContext(ctx)).
		WithValue(payload).
		Build()
	if err != nil {
		return err
	}
	if err := to.Publish(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", eventType, err)
	}
	return nil
}
