package service

import (
	"context"
	"fmt"

	"eventmarket/pkg/events"
	"eventmarket/pkg/kafka"
	"eventmarket/pkg/logger"
)

// ReleaseListener relays lock.released events published by other instances
// to local waiters.
type ReleaseListener struct {
	notifier *Notifier
	source   string
	log      *logger.Logger
}

func NewReleaseListener(notifier *Notifier, source string, log *logger.Logger) *ReleaseListener {
	return &ReleaseListener{notifier: notifier, source: source, log: log}
}

func (l *ReleaseListener) Handle(ctx context.Context, msg kafka.Message) error {
	if msg.GetEventType() != events.TypeLockReleased {
		return nil
	}

	var event events.LockReleased
	if err := msg.DecodeValue(&event); err != nil {
		return err
	}
	// Our own releases were broadcast before publishing.
	if event.Origin == l.source {
		return nil
	}

	key, err := event.Key()
	if err != nil {
		return kafka.NewPermanentError(fmt.Sprintf("invalid resource key %q", event.ResourceKey), err)
	}
	l.notifier.Broadcast(key)
	l.log.Debug("Relayed remote lock release", "resource_key", event.ResourceKey, "kind", event.Kind, "origin", event.Origin)
	return nil
}
