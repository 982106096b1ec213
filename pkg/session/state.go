// Package session holds the per-process caller state: the locks this process
// believes it holds and the operations it currently has in flight.
//
// Nothing here carries cross-caller correctness weight. Storage decides who
// wins; this state only avoids redundant calls from the same caller.
package session

import (
	"context"
	"sort"
	"time"

	"eventmarket/pkg/model"

	"github.com/puzpuzpuz/xsync/v3"
)

// HeldLock is a lock this process was granted and keeps renewing.
type HeldLock struct {
	Key        model.ResourceKey
	LeaseID    string
	Operation  model.Operation
	AcquiredAt time.Time
}

// OperationKey identifies a single in-flight call: (resource, actor, verb).
type OperationKey struct {
	ResourceID string
	ActorID    string
	Verb       string
}

type State struct {
	held    *xsync.MapOf[model.ResourceKey, HeldLock]
	pending *xsync.MapOf[OperationKey, time.Time]
}

func NewState() *State {
	return &State{
		held:    xsync.NewMapOf[model.ResourceKey, HeldLock](),
		pending: xsync.NewMapOf[OperationKey, time.Time](),
	}
}

func (s *State) Hold(lock HeldLock) {
	s.held.Store(lock.Key, lock)
}

func (s *State) Drop(key model.ResourceKey) (HeldLock, bool) {
	return s.held.LoadAndDelete(key)
}

func (s *State) Lookup(key model.ResourceKey) (HeldLock, bool) {
	return s.held.Load(key)
}

func (s *State) Holds(key model.ResourceKey) bool {
	_, ok := s.held.Load(key)
	return ok
}

// Held returns a snapshot of held locks ordered by resource key.
func (s *State) Held() []HeldLock {
	locks := make([]HeldLock, 0, s.held.Size())
	s.held.Range(func(_ model.ResourceKey, lock HeldLock) bool {
		locks = append(locks, lock)
		return true
	})
	sort.Slice(locks, func(i, j int) bool {
		return locks[i].Key.String() < locks[j].Key.String()
	})
	return locks
}

// TryBegin marks op as in flight. It returns ok=false if the same operation is
// already running; otherwise done must be called once the call settles.
func (s *State) TryBegin(op OperationKey) (done func(), ok bool) {
	if _, loaded := s.pending.LoadOrStore(op, time.Now()); loaded {
		return func() {}, false
	}
	return func() { s.pending.Delete(op) }, true
}

func (s *State) InFlight(op OperationKey) bool {
	_, ok := s.pending.Load(op)
	return ok
}

func (s *State) PendingCount() int {
	return s.pending.Size()
}

type contextKey string

const (
	stateKey   contextKey = "session_state"
	actorKey   contextKey = "session_actor"
	requestKey contextKey = "request_id"
)

func WithState(ctx context.Context, s *State) context.Context {
	return context.WithValue(ctx, stateKey, s)
}

// FromContext returns the state attached to ctx, or fallback when there is none.
func FromContext(ctx context.Context, fallback *State) *State {
	if s, ok := ctx.Value(stateKey).(*State); ok && s != nil {
		return s
	}
	return fallback
}

func WithActor(ctx context.Context, actor model.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func ActorFromContext(ctx context.Context) (model.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(model.Actor)
	if !ok || actor.IsZero() {
		return model.Actor{}, false
	}
	return actor, true
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestKey, id)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestKey).(string)
	return id
}
