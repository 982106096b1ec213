package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	jobcartserrors "eventmarket/internal/jobcarts/errors"
	"eventmarket/pkg/config"
	mongotx "eventmarket/pkg/db/mongo"
	"eventmarket/pkg/metrics"
	"eventmarket/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	JobCartsCollection = "Job_carts"
	ClaimsCollection   = "Job_cart_claims"

	mongoOpTimeout = 5 * time.Second
)

type mongoJobCartRepository struct {
	carts  *mongo.Collection
	claims *mongo.Collection
	tx     mongotx.TransactionManager
}

func NewMongoJobCartRepository(cfg *config.Config) JobCartRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoJobCartRepository{
		carts:  db.Collection(JobCartsCollection),
		claims: db.Collection(ClaimsCollection),
		tx:     mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoJobCartRepository) Create(ctx context.Context, cart *model.JobCart) error {
	defer metrics.ObserveStorage(config.StorageMongo, "job_cart_create")()
	ctx, cancel := mongotx.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	if _, err := r.carts.InsertOne(ctx, cart); err != nil {
		return fmt.Errorf("failed to create job cart %s: %w", cart.ID, err)
	}
	return nil
}

func (r *mongoJobCartRepository) FindByID(ctx context.Context, id string) (*model.JobCart, error) {
	defer metrics.ObserveStorage(config.StorageMongo, "job_cart_find")()
	ctx, cancel := mongotx.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	var cart model.JobCart
	err := r.carts.FindOne(ctx, bson.M{"_id": id}).Decode(&cart)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, jobcartserrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find job cart %s: %w", id, err)
	}
	return &cart, nil
}

// AcceptAtomically runs the transition and the claim insert in one
// transaction. Concurrent accepts conflict on the cart document; the driver
// retries the loser, whose conditional update then matches nothing.
func (r *mongoJobCartRepository) AcceptAtomically(ctx context.Context, jobCartID, providerID, claimID string, now time.Time) (*model.TransitionResult, error) {
	defer metrics.ObserveStorage(config.StorageMongo, "job_cart_accept")()
	ctx, cancel := mongotx.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	var result *model.TransitionResult
	err := r.tx.ExecuteTransaction(ctx, "job_cart_accept", func(sessCtx mongo.SessionContext) error {
		res, err := r.carts.UpdateOne(sessCtx,
			bson.M{"_id": jobCartID, "status": model.JobCartAvailable},
			bson.M{"$set": bson.M{
				"status":      model.JobCartInProgress,
				"accepted_by": providerID,
				"updated_at":  now,
			}},
		)
		if err != nil {
			return err
		}

		if res.MatchedCount == 0 {
			var current model.JobCart
			err := r.carts.FindOne(sessCtx, bson.M{"_id": jobCartID},
				options.FindOne().SetProjection(bson.M{"status": 1, "accepted_by": 1}),
			).Decode(&current)
			if errors.Is(err, mongo.ErrNoDocuments) {
				return jobcartserrors.ErrNotFound
			}
			if err != nil {
				return err
			}
			result = &model.TransitionResult{Status: current.Status, AcceptedBy: current.AcceptedBy}
			return nil
		}

		_, err = r.claims.InsertOne(sessCtx, &model.JobCartClaim{
			ID:         claimID,
			JobCartID:  jobCartID,
			ProviderID: providerID,
			Status:     model.ClaimAccepted,
			DecidedAt:  now,
		})
		if mongo.IsDuplicateKeyError(err) {
			return jobcartserrors.ErrClaimExists
		}
		if err != nil {
			return err
		}
		result = &model.TransitionResult{Applied: true, Status: model.JobCartInProgress, AcceptedBy: providerID}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jobcartserrors.ErrNotFound):
			return nil, jobcartserrors.ErrNotFound
		case errors.Is(err, jobcartserrors.ErrClaimExists):
			return nil, jobcartserrors.ErrClaimExists
		}
		return nil, fmt.Errorf("failed to accept job cart %s: %w", jobCartID, err)
	}
	return result, nil
}

// availableFilter excludes the provider's decided carts by id. Providers act
// on a handful of carts, so the exclusion list stays short.
func (r *mongoJobCartRepository) availableFilter(ctx context.Context, providerID string, filter model.JobCartFilter) (bson.M, error) {
	decided, err := r.claims.Distinct(ctx, "job_cart_id", bson.M{"provider_id": providerID})
	if err != nil {
		return nil, fmt.Errorf("failed to read claims of provider %s: %w", providerID, err)
	}

	query := bson.M{"status": model.JobCartAvailable}
	if len(decided) > 0 {
		query["_id"] = bson.M{"$nin": decided}
	}
	if filter.Location != "" {
		query["location"] = filter.Location
	}
	if filter.ServiceType != "" {
		query["service_type"] = filter.ServiceType
	}
	return query, nil
}

func (r *mongoJobCartRepository) FindAvailable(ctx context.Context, providerID string, filter model.JobCartFilter, limit int, offset int64) ([]*model.JobCart, error) {
	defer metrics.ObserveStorage(config.StorageMongo, "job_cart_find_available")()
	ctx, cancel := mongotx.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	query, err := r.availableFilter(ctx, providerID, filter)
	if err != nil {
		return nil, err
	}

	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(offset).
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})

	cursor, err := r.carts.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list available job carts: %w", err)
	}
	defer cursor.Close(ctx)

	carts := []*model.JobCart{}
	if err := cursor.All(ctx, &carts); err != nil {
		return nil, fmt.Errorf("failed to decode job carts: %w", err)
	}
	return carts, nil
}

func (r *mongoJobCartRepository) CountAvailable(ctx context.Context, providerID string, filter model.JobCartFilter) (int64, error) {
	defer metrics.ObserveStorage(config.StorageMongo, "job_cart_count_available")()
	ctx, cancel := mongotx.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	query, err := r.availableFilter(ctx, providerID, filter)
	if err != nil {
		return 0, err
	}
	count, err := r.carts.CountDocuments(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count available job carts: %w", err)
	}
	return count, nil
}

type mongoClaimRepository struct {
	carts  *mongo.Collection
	claims *mongo.Collection
}

func NewMongoClaimRepository(cfg *config.Config) ClaimRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoClaimRepository{
		carts:  db.Collection(JobCartsCollection),
		claims: db.Collection(ClaimsCollection),
	}
}

func (r *mongoClaimRepository) InsertDecline(ctx context.Context, claim *model.JobCartClaim) error {
	defer metrics.ObserveStorage(config.StorageMongo, "claim_decline")()
	ctx, cancel := mongotx.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	// Mongo has no foreign keys; a decline of an unknown cart is refused here.
	// Carts are never deleted, so the check cannot go stale.
	n, err := r.carts.CountDocuments(ctx, bson.M{"_id": claim.JobCartID}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("failed to check job cart %s: %w", claim.JobCartID, err)
	}
	if n == 0 {
		return jobcartserrors.ErrNotFound
	}

	declined := *claim
	declined.Status = model.ClaimDeclined
	if _, err := r.claims.InsertOne(ctx, &declined); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return jobcartserrors.ErrClaimExists
		}
		return fmt.Errorf("failed to decline job cart %s: %w", claim.JobCartID, err)
	}
	return nil
}

func (r *mongoClaimRepository) FindClaim(ctx context.Context, jobCartID, providerID string) (*model.JobCartClaim, error) {
	defer metrics.ObserveStorage(config.StorageMongo, "claim_find")()
	ctx, cancel := mongotx.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	var claim model.JobCartClaim
	err := r.claims.FindOne(ctx, bson.M{"job_cart_id": jobCartID, "provider_id": providerID}).Decode(&claim)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, jobcartserrors.ErrClaimNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find claim on job cart %s: %w", jobCartID, err)
	}
	return &claim, nil
}
