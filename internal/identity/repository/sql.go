package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"eventmarket/pkg/config"
	"eventmarket/pkg/metrics"
	"eventmarket/pkg/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

type sqliteUserRepository struct {
	db *sql.DB
}

func NewSQLiteUserRepository(db *sql.DB) UserRepository {
	return &sqliteUserRepository{db: db}
}

func (r *sqliteUserRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*model.User, error) {
	defer metrics.ObserveStorage(config.StorageSQLite, "user_find")()
	byID := make(map[string]*model.User, len(ids))
	if len(ids) == 0 {
		return byID, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	rows, err := r.db.QueryContext(ctx,
		"SELECT id, display_name, role FROM users WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.DisplayName, &u.Role); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		byID[u.ID] = &u
	}
	return byID, rows.Err()
}

func (r *sqliteUserRepository) Upsert(ctx context.Context, user *model.User) error {
	defer metrics.ObserveStorage(config.StorageSQLite, "user_upsert")()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, role) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET display_name = excluded.display_name, role = excluded.role`,
		user.ID, user.DisplayName, user.Role)
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", user.ID, err)
	}
	return nil
}

type postgresUserRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepository(pool *pgxpool.Pool) UserRepository {
	return &postgresUserRepository{pool: pool}
}

func (r *postgresUserRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*model.User, error) {
	defer metrics.ObserveStorage(config.StoragePostgres, "user_find")()
	byID := make(map[string]*model.User, len(ids))
	if len(ids) == 0 {
		return byID, nil
	}

	rows, err := r.pool.Query(ctx, "SELECT id, display_name, role FROM users WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, fmt.Errorf("failed to find users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.DisplayName, &u.Role); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		byID[u.ID] = &u
	}
	return byID, rows.Err()
}

func (r *postgresUserRepository) Upsert(ctx context.Context, user *model.User) error {
	defer metrics.ObserveStorage(config.StoragePostgres, "user_upsert")()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, display_name, role) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name, role = EXCLUDED.role`,
		user.ID, user.DisplayName, user.Role)
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", user.ID, err)
	}
	return nil
}
