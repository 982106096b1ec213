package mongo

import (
	"context"
	"fmt"

	identityrepo "eventmarket/internal/identity/repository"
	jobcartsrepo "eventmarket/internal/jobcarts/repository"
	locksrepo "eventmarket/internal/locks/repository"
	"eventmarket/internal/migrations/mongo/validators"
	"eventmarket/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// The TTL monitor runs about once a minute, so it only backs up the
	// sweeper; expiry is always decided by comparing expires_at to now.
	ResourceLocksIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("expires_at_ttl").SetExpireAfterSeconds(0),
		},
		{Keys: bson.D{{Key: "resource_type", Value: 1}, {Key: "expires_at", Value: 1}}},
		{Keys: bson.D{{Key: "holder_id", Value: 1}}},
	}

	JobCartsIndexes = []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "status", Value: 1},
			{Key: "location", Value: 1},
			{Key: "service_type", Value: 1},
			{Key: "created_at", Value: -1},
		}},
		{Keys: bson.D{{Key: "event_id", Value: 1}}},
	}

	JobCartClaimsIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "job_cart_id", Value: 1}, {Key: "provider_id", Value: 1}},
			Options: options.Index().SetName("one_claim_per_provider").SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "job_cart_id", Value: 1}},
			Options: options.Index().
				SetName("one_accepted_claim").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": "accepted"}),
		},
		{Keys: bson.D{{Key: "provider_id", Value: 1}}},
	}
)

type collectionDef struct {
	Indexes   []mongo.IndexModel
	Validator bson.M
}

var collections = map[string]collectionDef{
	locksrepo.CollectionName: {
		Indexes:   ResourceLocksIndexes,
		Validator: validators.ResourceLockValidator,
	},
	jobcartsrepo.JobCartsCollection: {
		Indexes:   JobCartsIndexes,
		Validator: validators.JobCartValidator,
	},
	jobcartsrepo.ClaimsCollection: {
		Indexes:   JobCartClaimsIndexes,
		Validator: validators.JobCartClaimValidator,
	},
	identityrepo.CollectionName: {
		Validator: validators.UserValidator,
	},
}

func RunMigration(ctx context.Context, db *mongo.Database, log *logger.Logger) error {
	log.Info("Running Mongo migrations", "database", db.Name())

	for name, def := range collections {
		if err := ensureCollection(ctx, db, name, def.Validator, log); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
		if err := ensureIndexes(ctx, db, name, def.Indexes, log); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", name, err)
		}
	}

	log.Info("All migrations applied successfully")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M, log *logger.Logger) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		log.Info("Creating collection", "collection", name)
		opts := options.CreateCollection().SetValidator(validator)
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	log.Info("Collection already exists, updating validator", "collection", name)
	command := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
	}
	if err := db.RunCommand(ctx, command).Err(); err != nil {
		log.Warn("Failed updating validator", "collection", name, "error", err)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel, log *logger.Logger) error {
	if len(models) == 0 {
		return nil
	}
	if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
		return err
	}
	log.Info("Ensured indexes", "collection", name, "count", len(models))
	return nil
}
