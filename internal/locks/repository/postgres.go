package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	lockserrors "eventmarket/internal/locks/errors"
	"eventmarket/pkg/config"
	"eventmarket/pkg/db/postgres"
	"eventmarket/pkg/metrics"
	"eventmarket/pkg/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresLockRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresLockRepository(pool *pgxpool.Pool) LockRepository {
	return &postgresLockRepository{pool: pool}
}

func scanPostgresLock(row pgx.Row) (*model.Lock, error) {
	var lock model.Lock
	if err := row.Scan(
		&lock.ID, &lock.ResourceType, &lock.ResourceRecordID, &lock.HolderID, &lock.HolderRole,
		&lock.Operation, &lock.LeaseID, &lock.AcquiredAt, &lock.LastRenewedAt, &lock.ExpiresAt,
	); err != nil {
		return nil, err
	}
	lock.AcquiredAt = lock.AcquiredAt.UTC()
	lock.LastRenewedAt = lock.LastRenewedAt.UTC()
	lock.ExpiresAt = lock.ExpiresAt.UTC()
	return &lock, nil
}

func (r *postgresLockRepository) FindByKey(ctx context.Context, key model.ResourceKey) (*model.Lock, error) {
	defer metrics.ObserveStorage(config.StoragePostgres, "lock_find")()

	lock, err := scanPostgresLock(r.pool.QueryRow(ctx,
		`SELECT `+lockColumns+` FROM resource_locks WHERE resource_key = $1`, key.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, lockserrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find lock %s: %w", key, err)
	}
	return lock, nil
}

func (r *postgresLockRepository) Insert(ctx context.Context, lock *model.Lock) error {
	defer metrics.ObserveStorage(config.StoragePostgres, "lock_insert")()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO resource_locks (`+lockColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		lock.ID, string(lock.ResourceType), lock.ResourceRecordID, lock.HolderID, lock.HolderRole,
		string(lock.Operation), lock.LeaseID, lock.AcquiredAt, lock.LastRenewedAt, lock.ExpiresAt,
	)
	if postgres.IsUniqueViolation(err) {
		return lockserrors.ErrLockHeld
	}
	if err != nil {
		return fmt.Errorf("failed to insert lock %s: %w", lock.ID, err)
	}
	return nil
}

func (r *postgresLockRepository) DeleteExpired(ctx context.Context, key model.ResourceKey, now time.Time) (bool, error) {
	defer metrics.ObserveStorage(config.StoragePostgres, "lock_delete_expired")()

	tag, err := r.pool.Exec(ctx,
		`DELETE FROM resource_locks WHERE resource_key = $1 AND expires_at <= $2`, key.String(), now)
	if err != nil {
		return false, fmt.Errorf("failed to delete expired lock %s: %w", key, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *postgresLockRepository) Renew(ctx context.Context, key model.ResourceKey, holderID, leaseID string, now, expiresAt time.Time) (bool, error) {
	defer metrics.ObserveStorage(config.StoragePostgres, "lock_renew")()

	tag, err := r.pool.Exec(ctx,
		`UPDATE resource_locks SET last_renewed_at = $1, expires_at = $2
		 WHERE resource_key = $3 AND holder_id = $4 AND expires_at > $1 AND ($5 = '' OR lease_id = $5)`,
		now, expiresAt, key.String(), holderID, leaseID)
	if err != nil {
		return false, fmt.Errorf("failed to renew lock %s: %w", key, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *postgresLockRepository) Release(ctx context.Context, key model.ResourceKey, holderID string) (*model.Lock, error) {
	return r.deleteReturning(ctx, "lock_release",
		`DELETE FROM resource_locks WHERE resource_key = $1 AND holder_id = $2 RETURNING `+lockColumns,
		key.String(), holderID)
}

func (r *postgresLockRepository) ForceDelete(ctx context.Context, key model.ResourceKey) (*model.Lock, error) {
	return r.deleteReturning(ctx, "lock_force_delete",
		`DELETE FROM resource_locks WHERE resource_key = $1 RETURNING `+lockColumns,
		key.String())
}

func (r *postgresLockRepository) deleteReturning(ctx context.Context, op, query string, args ...any) (*model.Lock, error) {
	defer metrics.ObserveStorage(config.StoragePostgres, op)()

	lock, err := scanPostgresLock(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete lock %v: %w", args[0], err)
	}
	return lock, nil
}

func (r *postgresLockRepository) PurgeExpired(ctx context.Context, now time.Time) ([]model.ResourceKey, error) {
	defer metrics.ObserveStorage(config.StoragePostgres, "lock_purge")()

	rows, err := r.pool.Query(ctx,
		`DELETE FROM resource_locks WHERE expires_at <= $1 RETURNING resource_key`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to purge expired locks: %w", err)
	}
	raw, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to purge expired locks: %w", err)
	}

	keys := make([]model.ResourceKey, 0, len(raw))
	for _, s := range raw {
		if key, err := model.ParseResourceKey(s); err == nil {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (r *postgresLockRepository) FindActive(ctx context.Context, now time.Time, resourceType model.ResourceType, limit int, offset int64) ([]*model.Lock, error) {
	defer metrics.ObserveStorage(config.StoragePostgres, "lock_find_active")()

	rows, err := r.pool.Query(ctx,
		`SELECT `+lockColumns+` FROM resource_locks
		 WHERE expires_at > $1 AND ($2 = '' OR resource_type = $2)
		 ORDER BY acquired_at, resource_key LIMIT $3 OFFSET $4`,
		now, string(resourceType), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list active locks: %w", err)
	}
	defer rows.Close()

	var locks []*model.Lock
	for rows.Next() {
		lock, err := scanPostgresLock(rows)
		if err != nil {
			return nil, err
		}
		locks = append(locks, lock)
	}
	return locks, rows.Err()
}

func (r *postgresLockRepository) CountActive(ctx context.Context, now time.Time, resourceType model.ResourceType) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM resource_locks WHERE expires_at > $1 AND ($2 = '' OR resource_type = $2)`,
		now, string(resourceType)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active locks: %w", err)
	}
	return count, nil
}
