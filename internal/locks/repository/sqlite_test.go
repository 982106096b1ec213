package repository

import (
	"context"
	"testing"
	"time"

	lockserrors "eventmarket/internal/locks/errors"
	"eventmarket/pkg/db/sqlite"
	"eventmarket/pkg/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteRepo(t *testing.T) LockRepository {
	t.Helper()
	db, err := sqlite.OpenDSN(sqlite.MemoryDSN("locks-" + uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteLockRepository(db)
}

var base = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func testLock(key model.ResourceKey, holder string, expiresAt time.Time) *model.Lock {
	return &model.Lock{
		ID:               key.String(),
		ResourceType:     key.Type,
		ResourceRecordID: key.RecordID,
		HolderID:         holder,
		HolderRole:       model.RoleClient,
		Operation:        model.OperationEdit,
		LeaseID:          uuid.NewString(),
		AcquiredAt:       base,
		LastRenewedAt:    base,
		ExpiresAt:        expiresAt,
	}
}

func TestSQLiteLockRepository_InsertIsExclusive(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()
	key := model.NewResourceKey(model.ResourceQuotation, "q-1")

	require.NoError(t, repo.Insert(ctx, testLock(key, "alice", base.Add(time.Minute))))
	err := repo.Insert(ctx, testLock(key, "bob", base.Add(time.Minute)))
	assert.ErrorIs(t, err, lockserrors.ErrLockHeld)

	got, err := repo.FindByKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.HolderID)
	assert.Equal(t, model.ResourceQuotation, got.ResourceType)
	assert.True(t, got.ExpiresAt.Equal(base.Add(time.Minute)))
}

func TestSQLiteLockRepository_FindMissing(t *testing.T) {
	repo := newSQLiteRepo(t)
	_, err := repo.FindByKey(context.Background(), model.NewResourceKey(model.ResourceBooking, "nope"))
	assert.ErrorIs(t, err, lockserrors.ErrNotFound)
}

func TestSQLiteLockRepository_DeleteExpiredOnlyWhenExpired(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()
	key := model.NewResourceKey(model.ResourcePayment, "p-1")
	require.NoError(t, repo.Insert(ctx, testLock(key, "alice", base.Add(time.Minute))))

	deleted, err := repo.DeleteExpired(ctx, key, base.Add(30*time.Second))
	require.NoError(t, err)
	assert.False(t, deleted, "live lock must survive")

	deleted, err = repo.DeleteExpired(ctx, key, base.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, deleted, "expires_at == now counts as expired")
}

func TestSQLiteLockRepository_Renew(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()
	key := model.NewResourceKey(model.ResourceEvent, "e-1")
	lock := testLock(key, "alice", base.Add(time.Minute))
	require.NoError(t, repo.Insert(ctx, lock))

	now := base.Add(30 * time.Second)
	tests := []struct {
		name    string
		holder  string
		leaseID string
		now     time.Time
		want    bool
	}{
		{"other holder", "bob", "", now, false},
		{"wrong lease", "alice", uuid.NewString(), now, false},
		{"already expired", "alice", lock.LeaseID, base.Add(2 * time.Minute), false},
		{"holder with lease", "alice", lock.LeaseID, now, true},
		{"holder without lease", "alice", "", now, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := repo.Renew(ctx, key, tt.holder, tt.leaseID, tt.now, tt.now.Add(time.Minute))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}

	got, err := repo.FindByKey(ctx, key)
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.Equal(now.Add(time.Minute)))
	assert.True(t, got.LastRenewedAt.Equal(now))
}

func TestSQLiteLockRepository_ReleaseIsHolderScoped(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()
	key := model.NewResourceKey(model.ResourceClient, "c-1")
	require.NoError(t, repo.Insert(ctx, testLock(key, "alice", base.Add(time.Minute))))

	released, err := repo.Release(ctx, key, "bob")
	require.NoError(t, err)
	assert.Nil(t, released)

	released, err = repo.Release(ctx, key, "alice")
	require.NoError(t, err)
	require.NotNil(t, released)
	assert.Equal(t, "alice", released.HolderID)

	released, err = repo.Release(ctx, key, "alice")
	require.NoError(t, err)
	assert.Nil(t, released, "second release is a no-op")
}

func TestSQLiteLockRepository_ForceDelete(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()
	key := model.NewResourceKey(model.ResourceBooking, "b-1")
	require.NoError(t, repo.Insert(ctx, testLock(key, "alice", base.Add(time.Minute))))

	prev, err := repo.ForceDelete(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, "alice", prev.HolderID)

	_, err = repo.FindByKey(ctx, key)
	assert.ErrorIs(t, err, lockserrors.ErrNotFound)
}

func TestSQLiteLockRepository_PurgeAndList(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	expired := model.NewResourceKey(model.ResourceQuotation, "old")
	live := model.NewResourceKey(model.ResourceQuotation, "new")
	other := model.NewResourceKey(model.ResourceBooking, "b-9")
	require.NoError(t, repo.Insert(ctx, testLock(expired, "a", base.Add(time.Second))))
	require.NoError(t, repo.Insert(ctx, testLock(live, "b", base.Add(time.Hour))))
	require.NoError(t, repo.Insert(ctx, testLock(other, "c", base.Add(time.Hour))))

	now := base.Add(time.Minute)

	count, err := repo.CountActive(ctx, now, "")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	locks, err := repo.FindActive(ctx, now, model.ResourceQuotation, 10, 0)
	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.Equal(t, live.String(), locks[0].ID)

	purged, err := repo.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []model.ResourceKey{expired}, purged)

	purged, err = repo.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, purged)
}
