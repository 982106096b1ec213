package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	mongoMigration "eventmarket/internal/migrations/mongo"
	"eventmarket/pkg/config"

	"github.com/gofrs/flock"
)

const (
	JobName = "migrate"

	EnvMigrateLockFile = "MIGRATE_LOCK_FILE"
)

// SQL schemas are applied when the connection is opened, so this job only has
// to connect for Postgres and SQLite. Mongo collections, validators and
// indexes are reconciled explicitly.
func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	cfg := config.Load(JobName)

	fileLock := flock.New(lockFilePath())
	locked, err := fileLock.TryLockContext(ctx, time.Second)
	if err != nil || !locked {
		cfg.Log.Fatal("Another migration is running on this host", "lock_file", fileLock.Path(), "error", err)
	}
	defer fileLock.Unlock()

	cfg.SetStorage()
	defer cfg.GracefulShutdown()
	cfg.Log.Info("Starting migration job", "storage_driver", cfg.StorageDriver)

	if cfg.StorageDriver == config.StorageMongo {
		db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
		if err := mongoMigration.RunMigration(ctx, db, cfg.Log); err != nil {
			cfg.Log.Fatal("Migration failed", "error", err)
		}
	}

	if err := cfg.Ping(ctx); err != nil {
		cfg.Log.Fatal("Storage is not reachable after migration", "error", err)
	}
	cfg.Log.Info("Migration completed successfully")
}

func lockFilePath() string {
	if path := os.Getenv(EnvMigrateLockFile); path != "" {
		return path
	}
	return filepath.Join(os.TempDir(), "eventmarket-migrate.lock")
}
