package repository

import (
	"context"
	"fmt"
	"time"

	"eventmarket/pkg/config"
	mongotx "eventmarket/pkg/db/mongo"
	"eventmarket/pkg/metrics"
	"eventmarket/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Users"

	mongoOpTimeout = 5 * time.Second
)

type mongoUserRepository struct {
	collection *mongo.Collection
}

func NewMongoUserRepository(cfg *config.Config) UserRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoUserRepository{collection: db.Collection(CollectionName)}
}

func (r *mongoUserRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*model.User, error) {
	defer metrics.ObserveStorage(config.StorageMongo, "user_find")()
	ctx, cancel := mongotx.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to find users: %w", err)
	}
	defer cursor.Close(ctx)

	var users []*model.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}

	byID := make(map[string]*model.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	return byID, nil
}

func (r *mongoUserRepository) Upsert(ctx context.Context, user *model.User) error {
	defer metrics.ObserveStorage(config.StorageMongo, "user_upsert")()
	ctx, cancel := mongotx.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": user.ID}, user, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", user.ID, err)
	}
	return nil
}
