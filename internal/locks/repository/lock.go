package repository

import (
	"context"
	"fmt"
	"time"

	"eventmarket/pkg/config"
	"eventmarket/pkg/model"
)

const TableName = "resource_locks"

// LockRepository is the storage contract of the lock service. Every method
// that changes state is a single conditional write; callers never read and
// then write to decide ownership.
type LockRepository interface {
	FindByKey(ctx context.Context, key model.ResourceKey) (*model.Lock, error)

	// Insert fails with ErrLockHeld when any row exists for the key.
	Insert(ctx context.Context, lock *model.Lock) error

	// DeleteExpired removes the row only if it has expired at now.
	DeleteExpired(ctx context.Context, key model.ResourceKey, now time.Time) (bool, error)

	// Renew moves expires_at forward if holderID still owns a live lock. An
	// empty leaseID matches any lease of that holder.
	Renew(ctx context.Context, key model.ResourceKey, holderID, leaseID string, now, expiresAt time.Time) (bool, error)

	// Release deletes the row owned by holderID and returns it, or nil when
	// there was nothing of theirs to delete.
	Release(ctx context.Context, key model.ResourceKey, holderID string) (*model.Lock, error)

	// ForceDelete deletes the row regardless of holder.
	ForceDelete(ctx context.Context, key model.ResourceKey) (*model.Lock, error)

	PurgeExpired(ctx context.Context, now time.Time) ([]model.ResourceKey, error)

	FindActive(ctx context.Context, now time.Time, resourceType model.ResourceType, limit int, offset int64) ([]*model.Lock, error)
	CountActive(ctx context.Context, now time.Time, resourceType model.ResourceType) (int64, error)
}

// New returns the repository for the configured storage driver.
func New(cfg *config.Config) (LockRepository, error) {
	switch cfg.StorageDriver {
	case config.StorageMongo:
		return NewMongoLockRepository(cfg), nil
	case config.StoragePostgres:
		return NewPostgresLockRepository(cfg.Client.Postgres), nil
	case config.StorageSQLite:
		return NewSQLiteLockRepository(cfg.Client.SQLite), nil
	}
	return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
}
