package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"eventmarket/pkg/model"
)

func TestTryBegin_SecondCallRejectedUntilDone(t *testing.T) {
	s := NewState()
	op := OperationKey{ResourceID: "jc-1", ActorID: "p-1", Verb: "accept"}

	done, ok := s.TryBegin(op)
	if !ok {
		t.Fatal("first TryBegin should succeed")
	}
	if _, ok := s.TryBegin(op); ok {
		t.Fatal("second TryBegin for the same operation should be rejected")
	}
	if !s.InFlight(op) {
		t.Fatal("operation should be in flight")
	}

	other := OperationKey{ResourceID: "jc-1", ActorID: "p-2", Verb: "accept"}
	otherDone, ok := s.TryBegin(other)
	if !ok {
		t.Fatal("a different actor must not be blocked")
	}
	otherDone()

	done()
	if s.InFlight(op) {
		t.Fatal("operation should be cleared after done")
	}
	if _, ok := s.TryBegin(op); !ok {
		t.Fatal("TryBegin should succeed again after done")
	}
}

func TestTryBegin_ConcurrentExactlyOneWins(t *testing.T) {
	s := NewState()
	op := OperationKey{ResourceID: "jc-9", ActorID: "p-9", Verb: "decline"}

	var wins int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := s.TryBegin(op); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestHeldSet(t *testing.T) {
	s := NewState()
	a := model.NewResourceKey(model.ResourceQuotation, "q-1")
	b := model.NewResourceKey(model.ResourceBooking, "b-1")

	s.Hold(HeldLock{Key: a, LeaseID: "lease-a"})
	s.Hold(HeldLock{Key: b, LeaseID: "lease-b"})

	held := s.Held()
	if len(held) != 2 {
		t.Fatalf("expected 2 held locks, got %d", len(held))
	}
	if held[0].Key != b || held[1].Key != a {
		t.Errorf("held locks should be sorted by key, got %v", held)
	}

	if lock, ok := s.Drop(a); !ok || lock.LeaseID != "lease-a" {
		t.Errorf("Drop(a) = %+v, %v", lock, ok)
	}
	if s.Holds(a) {
		t.Error("a should no longer be held")
	}
	if _, ok := s.Drop(a); ok {
		t.Error("dropping twice should report not held")
	}
}

func TestContextHelpers(t *testing.T) {
	fallback := NewState()
	if got := FromContext(context.Background(), fallback); got != fallback {
		t.Error("expected fallback when no state attached")
	}

	attached := NewState()
	ctx := WithState(context.Background(), attached)
	if got := FromContext(ctx, fallback); got != attached {
		t.Error("expected attached state")
	}

	if _, ok := ActorFromContext(ctx); ok {
		t.Error("no actor should be found")
	}
	ctx = WithActor(ctx, model.Actor{ID: "u-1", Role: model.RoleClient})
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.ID != "u-1" {
		t.Errorf("ActorFromContext = %+v, %v", actor, ok)
	}
}
