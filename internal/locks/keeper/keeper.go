// Package keeper keeps the locks a caller holds alive. It renews every held
// lock on each heartbeat and forgets any lock whose renewal fails, so that a
// caller never keeps acting on a lease it may have lost.
package keeper

import (
	"context"
	"sync"
	"time"

	apperrors "eventmarket/pkg/errors"
	"eventmarket/pkg/logger"
	"eventmarket/pkg/model"
	"eventmarket/pkg/session"

	"golang.org/x/sync/errgroup"
)

// Leaser is the subset of the lock service the keeper drives. Both the
// in-process service and the HTTP client satisfy it.
type Leaser interface {
	Acquire(ctx context.Context, actor model.Actor, req *model.AcquireRequest) (*model.AcquireOutcome, error)
	Renew(ctx context.Context, actor model.Actor, key model.ResourceKey, leaseID string) (*model.RenewOutcome, error)
	Release(ctx context.Context, actor model.Actor, key model.ResourceKey) error
}

const maxConcurrentRenewals = 8

type Keeper struct {
	leaser   Leaser
	actor    model.Actor
	state    *session.State
	interval time.Duration
	log      *logger.Logger

	// OnLost is called with the key of every lock the keeper gives up.
	OnLost func(key model.ResourceKey, err error)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(leaser Leaser, actor model.Actor, interval time.Duration, log *logger.Logger) *Keeper {
	return &Keeper{
		leaser:   leaser,
		actor:    actor,
		state:    session.NewState(),
		interval: interval,
		log:      log.With("holder_id", actor.ID),
	}
}

// State exposes the held set. Callers may attach it to a context with
// session.WithState to have the service record grants directly.
func (k *Keeper) State() *session.State {
	return k.state
}

// Acquire requests the lock and starts keeping it on success.
func (k *Keeper) Acquire(ctx context.Context, req *model.AcquireRequest) (*model.AcquireOutcome, error) {
	outcome, err := k.leaser.Acquire(ctx, k.actor, req)
	if err != nil {
		return nil, err
	}
	if outcome.Granted() {
		k.state.Hold(session.HeldLock{
			Key:        req.Key(),
			LeaseID:    outcome.LeaseID,
			Operation:  req.Operation,
			AcquiredAt: derefTime(outcome.AcquiredAt),
		})
	}
	return outcome, nil
}

// Authorize fails with a lease-lost error unless key is currently held.
// Call it before every write guarded by the lock.
func (k *Keeper) Authorize(key model.ResourceKey) error {
	if !k.state.Holds(key) {
		return apperrors.LeaseLost(key.String())
	}
	return nil
}

func (k *Keeper) Release(ctx context.Context, key model.ResourceKey) error {
	k.state.Drop(key)
	return k.leaser.Release(ctx, k.actor, key)
}

// ReleaseAll releases every held lock, returning the first failure.
func (k *Keeper) ReleaseAll(ctx context.Context) error {
	var first error
	for _, held := range k.state.Held() {
		if err := k.Release(ctx, held.Key); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Start launches the heartbeat loop. It is a no-op if already running.
func (k *Keeper) Start(ctx context.Context) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.cancel != nil {
		return
	}

	ctx, k.cancel = context.WithCancel(ctx)
	k.done = make(chan struct{})
	go k.run(ctx, k.done)
}

// Stop ends the heartbeat loop and waits for it to exit. Held locks are
// left to expire unless ReleaseAll is called.
func (k *Keeper) Stop() {
	k.mu.Lock()
	cancel, done := k.cancel, k.done
	k.cancel, k.done = nil, nil
	k.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (k *Keeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			k.renewAll(ctx)
		}
	}
}

func (k *Keeper) renewAll(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentRenewals)

	for _, held := range k.state.Held() {
		g.Go(func() error {
			k.renew(gctx, held)
			return nil
		})
	}
	_ = g.Wait()
}

func (k *Keeper) renew(ctx context.Context, held session.HeldLock) {
	outcome, err := k.leaser.Renew(ctx, k.actor, held.Key, held.LeaseID)
	if ctx.Err() != nil {
		return
	}
	switch {
	case err != nil:
		// We cannot tell whether the lease survived, so stop relying on it.
		k.log.Warn("Lock renewal failed, forfeiting lock", "resource_key", held.Key.String(), "error", err)
	case !outcome.Renewed:
		k.log.Info("Lock lease lost", "resource_key", held.Key.String())
		err = apperrors.LeaseLost(held.Key.String())
	default:
		return
	}

	k.state.Drop(held.Key)
	if k.OnLost != nil {
		k.OnLost(held.Key, err)
	}
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
