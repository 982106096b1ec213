package repository

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	jobcartserrors "eventmarket/internal/jobcarts/errors"
	"eventmarket/pkg/client"
	"eventmarket/pkg/config"
	"eventmarket/pkg/db/postgres"
	"eventmarket/pkg/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	envPostgresTestDSN = "POSTGRES_TEST_DSN"
	// Transactions need a replica set, so this must point at one.
	envMongoTestURI = "MONGO_TEST_URI"
)

type backend struct {
	name string
	open func(t *testing.T) (JobCartRepository, ClaimRepository)
}

func backends() []backend {
	return []backend{
		{name: config.StorageSQLite, open: newSQLiteRepos},
		{name: config.StoragePostgres, open: newPostgresRepos},
		{name: config.StorageMongo, open: newMongoRepos},
	}
}

func newPostgresRepos(t *testing.T) (JobCartRepository, ClaimRepository) {
	t.Helper()
	dsn := os.Getenv(envPostgresTestDSN)
	if dsn == "" {
		t.Skipf("%s not set", envPostgresTestDSN)
	}
	ctx := context.Background()
	pool, err := postgres.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, "TRUNCATE job_cart_claims, job_carts")
	require.NoError(t, err)
	return NewPostgresJobCartRepository(pool), NewPostgresClaimRepository(pool)
}

func newMongoRepos(t *testing.T) (JobCartRepository, ClaimRepository) {
	t.Helper()
	uri := os.Getenv(envMongoTestURI)
	if uri == "" {
		t.Skipf("%s not set", envMongoTestURI)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mc, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	require.NoError(t, mc.Ping(ctx, nil))

	dbName := "eventmarket_test_" + uuid.NewString()[:8]
	db := mc.Database(dbName)
	_, err = db.Collection(ClaimsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "job_cart_id", Value: 1}, {Key: "provider_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
		_ = mc.Disconnect(ctx)
	})

	cfg := &config.Config{MongoDatabaseName: dbName, Client: &client.Client{Mongo: mc}}
	return NewMongoJobCartRepository(cfg), NewMongoClaimRepository(cfg)
}

func TestJobCartRepositoryContract(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			t.Run("concurrent accepts have one winner", func(t *testing.T) {
				carts, claims := b.open(t)
				seedCart(t, carts, "jc-race", "haifa", "dj", base)

				const providers = 8
				var (
					wg      sync.WaitGroup
					mu      sync.Mutex
					winners []string
				)
				for i := 0; i < providers; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						provider := fmt.Sprintf("p-%d", i)
						res, err := carts.AcceptAtomically(context.Background(), "jc-race", provider, uuid.NewString(), base)
						if !assert.NoError(t, err) {
							return
						}
						if res.Applied {
							mu.Lock()
							winners = append(winners, provider)
							mu.Unlock()
						}
					}(i)
				}
				wg.Wait()

				require.Len(t, winners, 1)
				cart, err := carts.FindByID(context.Background(), "jc-race")
				require.NoError(t, err)
				assert.Equal(t, model.JobCartInProgress, cart.Status)
				assert.Equal(t, winners[0], cart.AcceptedBy)

				claim, err := claims.FindClaim(context.Background(), "jc-race", winners[0])
				require.NoError(t, err)
				assert.Equal(t, model.ClaimAccepted, claim.Status)
			})

			t.Run("accept after decline leaves the cart available", func(t *testing.T) {
				carts, claims := b.open(t)
				ctx := context.Background()
				seedCart(t, carts, "jc-declined", "haifa", "dj", base)

				require.NoError(t, claims.InsertDecline(ctx, &model.JobCartClaim{
					ID: uuid.NewString(), JobCartID: "jc-declined", ProviderID: "p-1", DecidedAt: base,
				}))
				_, err := carts.AcceptAtomically(ctx, "jc-declined", "p-1", uuid.NewString(), base)
				assert.ErrorIs(t, err, jobcartserrors.ErrClaimExists)

				cart, err := carts.FindByID(ctx, "jc-declined")
				require.NoError(t, err)
				assert.Equal(t, model.JobCartAvailable, cart.Status)
			})

			t.Run("decline of an unknown cart", func(t *testing.T) {
				_, claims := b.open(t)
				err := claims.InsertDecline(context.Background(), &model.JobCartClaim{
					ID: uuid.NewString(), JobCartID: "missing", ProviderID: "p-1", DecidedAt: base,
				})
				assert.ErrorIs(t, err, jobcartserrors.ErrNotFound)
			})
		})
	}
}
