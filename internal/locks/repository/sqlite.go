package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	lockserrors "eventmarket/internal/locks/errors"
	"eventmarket/pkg/config"
	"eventmarket/pkg/db/sqlite"
	"eventmarket/pkg/metrics"
	"eventmarket/pkg/model"
)

const lockColumns = `resource_key, resource_type, resource_record_id, holder_id, holder_role,
	operation, lease_id, acquired_at, last_renewed_at, expires_at`

type sqliteLockRepository struct {
	db *sql.DB
}

func NewSQLiteLockRepository(db *sql.DB) LockRepository {
	return &sqliteLockRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteLock(row rowScanner) (*model.Lock, error) {
	var (
		lock                       model.Lock
		acquired, renewed, expires int64
	)
	if err := row.Scan(
		&lock.ID, &lock.ResourceType, &lock.ResourceRecordID, &lock.HolderID, &lock.HolderRole,
		&lock.Operation, &lock.LeaseID, &acquired, &renewed, &expires,
	); err != nil {
		return nil, err
	}
	lock.AcquiredAt = sqlite.FromMillis(acquired)
	lock.LastRenewedAt = sqlite.FromMillis(renewed)
	lock.ExpiresAt = sqlite.FromMillis(expires)
	return &lock, nil
}

func (r *sqliteLockRepository) FindByKey(ctx context.Context, key model.ResourceKey) (*model.Lock, error) {
	defer metrics.ObserveStorage(config.StorageSQLite, "lock_find")()

	lock, err := scanSQLiteLock(r.db.QueryRowContext(ctx,
		`SELECT `+lockColumns+` FROM resource_locks WHERE resource_key = ?`, key.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lockserrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find lock %s: %w", key, err)
	}
	return lock, nil
}

func (r *sqliteLockRepository) Insert(ctx context.Context, lock *model.Lock) error {
	defer metrics.ObserveStorage(config.StorageSQLite, "lock_insert")()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO resource_locks (`+lockColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lock.ID, lock.ResourceType, lock.ResourceRecordID, lock.HolderID, lock.HolderRole,
		lock.Operation, lock.LeaseID,
		sqlite.ToMillis(lock.AcquiredAt), sqlite.ToMillis(lock.LastRenewedAt), sqlite.ToMillis(lock.ExpiresAt),
	)
	if sqlite.IsUniqueViolation(err) {
		return lockserrors.ErrLockHeld
	}
	if err != nil {
		return fmt.Errorf("failed to insert lock %s: %w", lock.ID, err)
	}
	return nil
}

func (r *sqliteLockRepository) DeleteExpired(ctx context.Context, key model.ResourceKey, now time.Time) (bool, error) {
	defer metrics.ObserveStorage(config.StorageSQLite, "lock_delete_expired")()

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM resource_locks WHERE resource_key = ? AND expires_at <= ?`,
		key.String(), sqlite.ToMillis(now))
	if err != nil {
		return false, fmt.Errorf("failed to delete expired lock %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *sqliteLockRepository) Renew(ctx context.Context, key model.ResourceKey, holderID, leaseID string, now, expiresAt time.Time) (bool, error) {
	defer metrics.ObserveStorage(config.StorageSQLite, "lock_renew")()

	res, err := r.db.ExecContext(ctx,
		`UPDATE resource_locks SET last_renewed_at = ?, expires_at = ?
		 WHERE resource_key = ? AND holder_id = ? AND expires_at > ? AND (? = '' OR lease_id = ?)`,
		sqlite.ToMillis(now), sqlite.ToMillis(expiresAt),
		key.String(), holderID, sqlite.ToMillis(now), leaseID, leaseID)
	if err != nil {
		return false, fmt.Errorf("failed to renew lock %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *sqliteLockRepository) Release(ctx context.Context, key model.ResourceKey, holderID string) (*model.Lock, error) {
	return r.deleteReturning(ctx, "lock_release",
		`DELETE FROM resource_locks WHERE resource_key = ? AND holder_id = ? RETURNING `+lockColumns,
		key.String(), holderID)
}

func (r *sqliteLockRepository) ForceDelete(ctx context.Context, key model.ResourceKey) (*model.Lock, error) {
	return r.deleteReturning(ctx, "lock_force_delete",
		`DELETE FROM resource_locks WHERE resource_key = ? RETURNING `+lockColumns,
		key.String())
}

func (r *sqliteLockRepository) deleteReturning(ctx context.Context, op, query string, args ...any) (*model.Lock, error) {
	defer metrics.ObserveStorage(config.StorageSQLite, op)()

	lock, err := scanSQLiteLock(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete lock %v: %w", args[0], err)
	}
	return lock, nil
}

func (r *sqliteLockRepository) PurgeExpired(ctx context.Context, now time.Time) ([]model.ResourceKey, error) {
	defer metrics.ObserveStorage(config.StorageSQLite, "lock_purge")()

	rows, err := r.db.QueryContext(ctx,
		`DELETE FROM resource_locks WHERE expires_at <= ? RETURNING resource_key`, sqlite.ToMillis(now))
	if err != nil {
		return nil, fmt.Errorf("failed to purge expired locks: %w", err)
	}
	defer rows.Close()

	var keys []model.ResourceKey
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		if key, err := model.ParseResourceKey(raw); err == nil {
			keys = append(keys, key)
		}
	}
	return keys, rows.Err()
}

func (r *sqliteLockRepository) FindActive(ctx context.Context, now time.Time, resourceType model.ResourceType, limit int, offset int64) ([]*model.Lock, error) {
	defer metrics.ObserveStorage(config.StorageSQLite, "lock_find_active")()

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+lockColumns+` FROM resource_locks
		 WHERE expires_at > ? AND (? = '' OR resource_type = ?)
		 ORDER BY acquired_at, resource_key LIMIT ? OFFSET ?`,
		sqlite.ToMillis(now), resourceType, resourceType, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list active locks: %w", err)
	}
	defer rows.Close()

	var locks []*model.Lock
	for rows.Next() {
		lock, err := scanSQLiteLock(rows)
		if err != nil {
			return nil, err
		}
		locks = append(locks, lock)
	}
	return locks, rows.Err()
}

func (r *sqliteLockRepository) CountActive(ctx context.Context, now time.Time, resourceType model.ResourceType) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM resource_locks WHERE expires_at > ? AND (? = '' OR resource_type = ?)`,
		sqlite.ToMillis(now), resourceType, resourceType).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active locks: %w", err)
	}
	return count, nil
}
