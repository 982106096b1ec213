package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	lockserrors "eventmarket/internal/locks/errors"
	"eventmarket/pkg/config"
	mongotx "eventmarket/pkg/db/mongo"
	"eventmarket/pkg/metrics"
	"eventmarket/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Resource_locks"

	mongoOpTimeout = 5 * time.Second
)

type mongoLockRepository struct {
	collection *mongo.Collection
}

func NewMongoLockRepository(cfg *config.Config) LockRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoLockRepository{collection: db.Collection(CollectionName)}
}

func (r *mongoLockRepository) FindByKey(ctx context.Context, key model.ResourceKey) (*model.Lock, error) {
	defer metrics.ObserveStorage(config.StorageMongo, "lock_find")()
	ctx, cancel := mongotx.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	var lock model.Lock
	err := r.collection.FindOne(ctx, bson.M{"_id": key.String()}).Decode(&lock)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, lockserrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find lock %s: %w", key, err)
	}
	return &lock, nil
}

func (r *mongoLockRepository) Insert(ctx context.Context, lock *model.Lock) error {
	defer metrics.ObserveStorage(config.StorageMongo, "lock_insert")()
	ctx, cancel := mongotx.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, lock); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return lockserrors.ErrLockHeld
		}
		return fmt.Errorf("failed to insert lock %s: %w", lock.ID, err)
	}
	return nil
}

func (r *mongoLockRepository) DeleteExpired(ctx context.Context, key model.ResourceKey, now time.Time) (bool, error) {
	defer metrics.ObserveStorage(config.StorageMongo, "lock_delete_expired")()
	ctx, cancel := mongotx.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	res, err := r.collection.DeleteOne(ctx, bson.M{
		"_id":        key.String(),
		"expires_at": bson.M{"$lte": now},
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete expired lock %s: %w", key, err)
	}
	return res.DeletedCount > 0, nil
}

func (r *mongoLockRepository) Renew(ctx context.Context, key model.ResourceKey, holderID, leaseID string, now, expiresAt time.Time) (bool, error) {
	defer metrics.ObserveStorage(config.StorageMongo, "lock_renew")()
	ctx, cancel := mongotx.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	filter := bson.M{
		"_id":        key.String(),
		"holder_id":  holderID,
		"expires_at": bson.M{"$gt": now},
	}
	if leaseID != "" {
		filter["lease_id"] = leaseID
	}

	res, err := r.collection.UpdateOne(ctx, filter, bson.M{
		"$set": bson.M{"last_renewed_at": now, "expires_at": expiresAt},
	})
	if err != nil {
		return false, fmt.Errorf("failed to renew lock %s: %w", key, err)
	}
	return res.MatchedCount > 0, nil
}

func (r *mongoLockRepository) Release(ctx context.Context, key model.ResourceKey, holderID string) (*model.Lock, error) {
	return r.findAndDelete(ctx, "lock_release", bson.M{"_id": key.String(), "holder_id": holderID})
}

func (r *mongoLockRepository) ForceDelete(ctx context.Context, key model.ResourceKey) (*model.Lock, error) {
	return r.findAndDelete(ctx, "lock_force_delete", bson.M{"_id": key.String()})
}

func (r *mongoLockRepository) findAndDelete(ctx context.Context, op string, filter bson.M) (*model.Lock, error) {
	defer metrics.ObserveStorage(config.StorageMongo, op)()
	ctx, cancel := mongotx.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	var lock model.Lock
	err := r.collection.FindOneAndDelete(ctx, filter).Decode(&lock)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete lock %v: %w", filter["_id"], err)
	}
	return &lock, nil
}

// PurgeExpired lists expired ids and then deletes them with the expiry
// predicate repeated, so a lock re-acquired in between survives.
func (r *mongoLockRepository) PurgeExpired(ctx context.Context, now time.Time) ([]model.ResourceKey, error) {
	defer metrics.ObserveStorage(config.StorageMongo, "lock_purge")()
	ctx, cancel := mongotx.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	expired := bson.M{"expires_at": bson.M{"$lte": now}}
	cursor, err := r.collection.Find(ctx, expired, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list expired locks: %w", err)
	}

	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode expired locks: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(rows))
	keys := make([]model.ResourceKey, 0, len(rows))
	for _, row := range rows {
		key, err := model.ParseResourceKey(row.ID)
		if err != nil {
			continue
		}
		ids = append(ids, row.ID)
		keys = append(keys, key)
	}

	if _, err := r.collection.DeleteMany(ctx, bson.M{
		"_id":        bson.M{"$in": ids},
		"expires_at": bson.M{"$lte": now},
	}); err != nil {
		return nil, fmt.Errorf("failed to purge expired locks: %w", err)
	}
	return keys, nil
}

func activeFilter(now time.Time, resourceType model.ResourceType) bson.M {
	filter := bson.M{"expires_at": bson.M{"$gt": now}}
	if resourceType != "" {
		filter["resource_type"] = resourceType
	}
	return filter
}

func (r *mongoLockRepository) FindActive(ctx context.Context, now time.Time, resourceType model.ResourceType, limit int, offset int64) ([]*model.Lock, error) {
	defer metrics.ObserveStorage(config.StorageMongo, "lock_find_active")()
	ctx, cancel := mongotx.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "acquired_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, activeFilter(now, resourceType), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list active locks: %w", err)
	}

	var locks []*model.Lock
	if err := cursor.All(ctx, &locks); err != nil {
		return nil, fmt.Errorf("failed to decode active locks: %w", err)
	}
	return locks, nil
}

func (r *mongoLockRepository) CountActive(ctx context.Context, now time.Time, resourceType model.ResourceType) (int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, activeFilter(now, resourceType))
	if err != nil {
		return 0, fmt.Errorf("failed to count active locks: %w", err)
	}
	return count, nil
}
