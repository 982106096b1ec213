package keeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "eventmarket/pkg/errors"
	"eventmarket/pkg/logger"
	"eventmarket/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLeaser struct {
	AcquireFunc func(ctx context.Context, actor model.Actor, req *model.AcquireRequest) (*model.AcquireOutcome, error)
	RenewFunc   func(ctx context.Context, actor model.Actor, key model.ResourceKey, leaseID string) (*model.RenewOutcome, error)
	ReleaseFunc func(ctx context.Context, actor model.Actor, key model.ResourceKey) error
}

func (m *mockLeaser) Acquire(ctx context.Context, actor model.Actor, req *model.AcquireRequest) (*model.AcquireOutcome, error) {
	return m.AcquireFunc(ctx, actor, req)
}

func (m *mockLeaser) Renew(ctx context.Context, actor model.Actor, key model.ResourceKey, leaseID string) (*model.RenewOutcome, error) {
	return m.RenewFunc(ctx, actor, key, leaseID)
}

func (m *mockLeaser) Release(ctx context.Context, actor model.Actor, key model.ResourceKey) error {
	return m.ReleaseFunc(ctx, actor, key)
}

var actor = model.Actor{ID: "alice", Role: model.RoleClient}

func grantAll() func(context.Context, model.Actor, *model.AcquireRequest) (*model.AcquireOutcome, error) {
	return func(_ context.Context, _ model.Actor, req *model.AcquireRequest) (*model.AcquireOutcome, error) {
		now := time.Now()
		return model.Granted(&model.Lock{
			ID:         req.Key().String(),
			LeaseID:    "lease-" + req.ResourceID,
			AcquiredAt: now,
			ExpiresAt:  now.Add(time.Minute),
		}), nil
	}
}

func request(id string) *model.AcquireRequest {
	return &model.AcquireRequest{ResourceType: model.ResourceQuotation, ResourceID: id, Operation: model.OperationEdit}
}

func TestKeeper_AcquireTracksGrantsOnly(t *testing.T) {
	leaser := &mockLeaser{
		AcquireFunc: func(_ context.Context, _ model.Actor, req *model.AcquireRequest) (*model.AcquireOutcome, error) {
			if req.ResourceID == "taken" {
				return model.Denied(req.Key(), nil, "locked"), nil
			}
			return grantAll()(context.Background(), actor, req)
		},
	}
	k := New(leaser, actor, time.Hour, logger.Discard())
	ctx := context.Background()

	_, err := k.Acquire(ctx, request("q-1"))
	require.NoError(t, err)
	_, err = k.Acquire(ctx, request("taken"))
	require.NoError(t, err)

	assert.NoError(t, k.Authorize(request("q-1").Key()))
	err = k.Authorize(request("taken").Key())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeLeaseLost))
}

func TestKeeper_HeartbeatRenewsAndForfeits(t *testing.T) {
	var mu sync.Mutex
	renewals := map[string]int{}

	leaser := &mockLeaser{
		AcquireFunc: grantAll(),
		RenewFunc: func(_ context.Context, _ model.Actor, key model.ResourceKey, leaseID string) (*model.RenewOutcome, error) {
			mu.Lock()
			renewals[key.RecordID]++
			mu.Unlock()

			assert.Equal(t, "lease-"+key.RecordID, leaseID)
			switch key.RecordID {
			case "lost":
				return &model.RenewOutcome{Renewed: false, ResourceKey: key.String()}, nil
			case "flaky":
				return nil, errors.New("connection reset")
			}
			return &model.RenewOutcome{Renewed: true, ResourceKey: key.String()}, nil
		},
	}

	k := New(leaser, actor, 10*time.Millisecond, logger.Discard())
	var lostMu sync.Mutex
	var lost []string
	k.OnLost = func(key model.ResourceKey, _ error) {
		lostMu.Lock()
		lost = append(lost, key.RecordID)
		lostMu.Unlock()
	}

	ctx := context.Background()
	for _, id := range []string{"kept", "lost", "flaky"} {
		_, err := k.Acquire(ctx, request(id))
		require.NoError(t, err)
	}

	k.Start(ctx)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return renewals["kept"] >= 3
	}, time.Second, 5*time.Millisecond)
	k.Stop()

	assert.NoError(t, k.Authorize(request("kept").Key()))
	assert.Error(t, k.Authorize(request("lost").Key()))
	assert.Error(t, k.Authorize(request("flaky").Key()))

	mu.Lock()
	assert.Equal(t, 1, renewals["lost"], "forfeited locks are not renewed again")
	assert.Equal(t, 1, renewals["flaky"])
	mu.Unlock()

	lostMu.Lock()
	assert.ElementsMatch(t, []string{"lost", "flaky"}, lost)
	lostMu.Unlock()
}

func TestKeeper_ReleaseAll(t *testing.T) {
	var released []string
	leaser := &mockLeaser{
		AcquireFunc: grantAll(),
		ReleaseFunc: func(_ context.Context, _ model.Actor, key model.ResourceKey) error {
			released = append(released, key.RecordID)
			if key.RecordID == "q-2" {
				return errors.New("boom")
			}
			return nil
		},
	}
	k := New(leaser, actor, time.Hour, logger.Discard())
	ctx := context.Background()

	for _, id := range []string{"q-1", "q-2", "q-3"} {
		_, err := k.Acquire(ctx, request(id))
		require.NoError(t, err)
	}

	err := k.ReleaseAll(ctx)
	assert.EqualError(t, err, "boom")
	assert.Equal(t, []string{"q-1", "q-2", "q-3"}, released)
	assert.Empty(t, k.State().Held())
}

func TestKeeper_StartStopIdempotent(t *testing.T) {
	k := New(&mockLeaser{}, actor, time.Hour, logger.Discard())
	k.Stop()
	k.Start(context.Background())
	k.Start(context.Background())
	k.Stop()
	k.Stop()
}
