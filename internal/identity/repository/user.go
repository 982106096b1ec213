package repository

import (
	"context"
	"fmt"

	"eventmarket/pkg/config"
	"eventmarket/pkg/model"
)

type UserRepository interface {
	// FindByIDs returns the users that exist among ids, keyed by id.
	FindByIDs(ctx context.Context, ids []string) (map[string]*model.User, error)
	Upsert(ctx context.Context, user *model.User) error
}

func New(cfg *config.Config) (UserRepository, error) {
	switch cfg.StorageDriver {
	case config.StorageMongo:
		return NewMongoUserRepository(cfg), nil
	case config.StoragePostgres:
		return NewPostgresUserRepository(cfg.Client.Postgres), nil
	case config.StorageSQLite:
		return NewSQLiteUserRepository(cfg.Client.SQLite), nil
	}
	return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
}
