// Package events defines the lock and job cart events exchanged between
// service instances and their Kafka encoding.
package events

import (
	"context"
	"time"

	"eventmarket/pkg/model"
)

const (
	TypeLockReleased    = "lock.released"
	TypeJobCartAccepted = "job_cart.accepted"

	SchemaVersion = "1"
)

type ReleaseKind string

const (
	ReleaseByHolder ReleaseKind = "release"
	ReleaseForced   ReleaseKind = "force"
	ReleaseExpired  ReleaseKind = "purge"
)

// LockReleased is emitted whenever a lock stops existing so that waiters on
// other instances can re-check the resource.
type LockReleased struct {
	ResourceKey string      `json:"resource_key"`
	HolderID    string      `json:"holder_id,omitempty"`
	Kind        ReleaseKind `json:"kind"`
	Reason      string      `json:"reason,omitempty"`
	ReleasedBy  string      `json:"released_by,omitempty"`
	ReleasedAt  time.Time   `json:"released_at"`
	Origin      string      `json:"origin"`
}

func (e LockReleased) Key() (model.ResourceKey, error) {
	return model.ParseResourceKey(e.ResourceKey)
}

type JobCartAccepted struct {
	JobCartID  string    `json:"job_cart_id"`
	EventID    string    `json:"event_id"`
	ClientID   string    `json:"client_id"`
	ProviderID string    `json:"provider_id"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// Publisher is best effort: callers log failures and carry on.
type Publisher interface {
	LockReleased(ctx context.Context, event LockReleased) error
	JobCartAccepted(ctx context.Context, event JobCartAccepted) error
}

// Nop drops every event. Used when Kafka is disabled.
type Nop struct{}

func (Nop) LockReleased(context.Context, LockReleased) error       { return nil }
func (Nop) JobCartAccepted(context.Context, JobCartAccepted) error { return nil }
